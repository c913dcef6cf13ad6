// Package cards provides the card sets games are generated from.
package cards

import (
	"context"
	"slices"

	"github.com/gosimple/slug"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
)

type Repository interface {
	// ListCards returns the cards of a set in their authored order.
	ListCards(ctx context.Context, cardSetID string) ([]domain.Card, error)
}

// Static serves card sets held in memory.
type Static map[string][]domain.Card

var _ Repository = Static(nil)

func (s Static) ListCards(_ context.Context, cardSetID string) ([]domain.Card, error) {
	cs, ok := s[cardSetID]
	if !ok || len(cs) == 0 {
		return nil, errors.NotFound("card set not found: card_set=%s", cardSetID)
	}

	out := make([]domain.Card, len(cs))
	for i, c := range cs {
		out[i] = domain.Card{
			ID:    c.ID,
			Front: slices.Clone(c.Front),
			Back:  slices.Clone(c.Back),
		}
	}

	return out, nil
}

// SetID derives a card set id from its title, e.g. "Demo Spanish" becomes
// "demo-spanish".
func SetID(title string) string {
	return slug.Make(title)
}

// Set is a titled card set.
type Set struct {
	ID    string
	Title string
	Cards []domain.Card
}

func NewSet(title string, cs []domain.Card) Set {
	return Set{ID: SetID(title), Title: title, Cards: cs}
}

// DemoSets returns the sets served when no database is configured.
func DemoSets() []Set {
	return []Set{
		NewSet("Demo Spanish", []domain.Card{
			{ID: "es-1", Front: []string{"hola"}, Back: []string{"hello"}},
			{ID: "es-2", Front: []string{"adiós"}, Back: []string{"goodbye"}},
			{ID: "es-3", Front: []string{"gracias"}, Back: []string{"thank you"}},
			{ID: "es-4", Front: []string{"por favor"}, Back: []string{"please"}},
			{ID: "es-5", Front: []string{"perro"}, Back: []string{"dog"}},
			{ID: "es-6", Front: []string{"gato"}, Back: []string{"cat"}},
		}),
	}
}

// Demo serves DemoSets.
func Demo() Static {
	s := make(Static)
	for _, set := range DemoSets() {
		s[set.ID] = set.Cards
	}
	return s
}
