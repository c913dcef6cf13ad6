package question

import (
	"context"
	"slices"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
)

// Matching is the engine of the matching game. Selecting a selected tile clears the selection.
// Selecting a second tile locks both until the reveal delay passes, then either matches them or
// releases them.
type Matching struct {
	c Config

	mu       sync.Mutex
	selected []int
	matched  map[int]struct{}
	reveal   clockwork.Timer
	score    int
	over     bool
	closed   bool
}

var _ Engine = (*Matching)(nil)

func newMatching(c Config) *Matching {
	return &Matching{
		c:       c,
		matched: make(map[int]struct{}, len(c.Set.Tiles)),
	}
}

func (m *Matching) Submit(_ context.Context, a domain.Answer) (Result, error) {
	if a.TileIndex == nil {
		return Result{}, errors.InvalidArgument("tile index is required for a matching game")
	}
	idx := *a.TileIndex
	if idx < 0 || idx >= len(m.c.Set.Tiles) {
		return Result{}, errors.InvalidArgument("tile index out of range: %d", idx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	res := Result{Score: m.score, Finished: m.over}
	if m.over || m.closed || m.reveal != nil {
		res.Ignored = true
		return res, nil
	}
	if _, ok := m.matched[idx]; ok {
		res.Ignored = true
		return res, nil
	}

	switch {
	case len(m.selected) == 0:
		m.selected = append(m.selected, idx)
	case m.selected[0] == idx:
		m.selected = m.selected[:0]
	default:
		first := m.selected[0]
		m.selected = append(m.selected, idx)
		res.Correct = boolPtr(m.c.Set.Tiles[first].CardID == m.c.Set.Tiles[idx].CardID)
		m.reveal = m.c.Clock.AfterFunc(m.c.RevealDelay, m.resolve)
	}

	return res, nil
}

// resolve runs when the reveal delay of a pair has passed.
func (m *Matching) resolve() {
	m.mu.Lock()
	if m.closed || len(m.selected) != 2 {
		m.mu.Unlock()
		return
	}

	a, b := m.selected[0], m.selected[1]
	m.selected = m.selected[:0]
	m.reveal = nil

	var n notice
	if m.c.Set.Tiles[a].CardID == m.c.Set.Tiles[b].CardID {
		m.matched[a] = struct{}{}
		m.matched[b] = struct{}{}
		m.score = len(m.matched) / 2
		n = notice{score: m.score, scored: true}

		if len(m.matched) == len(m.c.Set.Tiles) {
			m.over = true
			n.finished = true
			m.c.Progress.Write(domain.ParticipantUpdate{CurrentScore: &n.score, Finish: true})
		} else {
			m.c.Progress.Write(domain.ParticipantUpdate{CurrentScore: &n.score})
		}
	}
	m.mu.Unlock()

	m.c.Hooks.fire(n)
}

func (m *Matching) Score() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.score
}

func (m *Matching) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.over
}

// Matched returns the indexes of matched tiles in ascending order.
func (m *Matching) Matched() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]int, 0, len(m.matched))
	for i := range m.matched {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

func (m *Matching) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.reveal != nil {
		m.reveal.Stop()
		m.reveal = nil
	}
}
