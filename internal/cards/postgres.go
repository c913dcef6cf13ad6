package cards

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
)

type Postgres struct {
	db *pgxpool.Pool
}

var _ Repository = (*Postgres)(nil)

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) ListCards(ctx context.Context, cardSetID string) ([]domain.Card, error) {
	const stmt = `
SELECT card_id, front, back
FROM cards
WHERE card_set_id = $1
ORDER BY position, card_id;`

	rows, err := p.db.Query(ctx, stmt, cardSetID)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}

	cs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Card, error) {
		var c domain.Card
		if err := r.Scan(&c.ID, &c.Front, &c.Back); err != nil {
			return domain.Card{}, err
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect cards: %w", err)
	}

	if len(cs) == 0 {
		return nil, errors.NotFound("card set not found: card_set=%s", cardSetID)
	}

	return cs, nil
}

// CreateCardSet inserts a card set and its cards, keeping the given order.
func (p *Postgres) CreateCardSet(ctx context.Context, cardSetID, title string, cs []domain.Card) error {
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO card_sets (card_set_id, title) VALUES ($1, $2);`, cardSetID, title)
	for i, c := range cs {
		batch.Queue(`INSERT INTO cards (card_id, card_set_id, position, front, back) VALUES ($1, $2, $3, $4, $5);`,
			c.ID, cardSetID, i, c.Front, c.Back)
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert card set: %w", err)
	}

	return tx.Commit(ctx)
}
