package ranking

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
	"github.com/victornm/flashgame/internal/store"
)

const readConcurrency = 8

type Config struct {
	Store store.Gateway
}

type Service struct {
	st store.Gateway
}

func NewService(c Config) *Service {
	return &Service{st: c.Store}
}

type GetRankingRequest struct {
	GameID string
}

// GetRanking reads a completed game once and ranks its players. The result is never stored.
func (s *Service) GetRanking(ctx context.Context, req GetRankingRequest) (*domain.Ranking, error) {
	ss, err := s.st.GetSession(ctx, req.GameID)
	if err != nil {
		return nil, err
	}

	if ss.Status != domain.StatusCompleted {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonGameNotCompleted),
			errors.WithMessagef("ranking is available once the game is completed: game=%s, status=%s", req.GameID, ss.Status),
		)
	}

	ps := make([]domain.Participant, len(ss.Players))
	found := make([]bool, len(ss.Players))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(readConcurrency)
	for i, pl := range ss.Players {
		eg.Go(func() error {
			p, err := s.st.GetParticipant(egCtx, pl.ParticipantID)
			if errors.HasCode(err, errors.CodeNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			ps[i], found[i] = p, true
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	records := make([]domain.Participant, 0, len(ps))
	for i, p := range ps {
		if found[i] {
			records = append(records, p)
		}
	}

	r := Rank(ctx, ss, records)
	return &r, nil
}
