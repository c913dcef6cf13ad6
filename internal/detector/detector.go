// Package detector completes games from the outside, independent of any participant's client.
//
// A game is watched from the moment it starts. Every session or participant snapshot re-runs
// Evaluate; Sweep re-reads watched games periodically so a game whose players went silent still
// completes at its deadline.
package detector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/event"
	"github.com/victornm/flashgame/internal/store"
)

const DefaultGrace = 2 * time.Second

type Completer interface {
	CompleteGame(ctx context.Context, gameID string, trigger domain.CompletionTrigger) (bool, error)
}

type Config struct {
	Store     store.Gateway
	Completer Completer
	EventBus  *event.Bus
	Clock     clockwork.Clock
	// Grace is how long past the deadline the detector waits for the host timer. Defaults to 2s.
	Grace time.Duration
}

type Detector struct {
	st        store.Gateway
	completer Completer
	clock     clockwork.Clock
	grace     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	watches map[string]*watch
}

type watch struct {
	gameID string
	stops  []store.Unsubscribe

	mu           sync.Mutex
	session      *domain.GameSession
	participants []domain.Participant
}

func New(c Config) *Detector {
	d := &Detector{
		st:        c.Store,
		completer: c.Completer,
		clock:     c.Clock,
		grace:     c.Grace,
		watches:   make(map[string]*watch),
	}
	if d.clock == nil {
		d.clock = clockwork.NewRealClock()
	}
	if d.grace == 0 {
		d.grace = DefaultGrace
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	if c.EventBus != nil {
		event.On(c.EventBus, func(ctx context.Context, e domain.EventGameStarted) error {
			return d.Watch(ctx, e.Session.GameID)
		})
		event.On(c.EventBus, func(_ context.Context, e domain.EventGameCompleted) error {
			d.Unwatch(e.GameID)
			return nil
		})
	}

	return d
}

// Watch subscribes to a game's session and participants until the game completes or Unwatch
// is called. Watching a watched game is a no-op.
func (d *Detector) Watch(ctx context.Context, gameID string) error {
	d.mu.Lock()
	if _, ok := d.watches[gameID]; ok {
		d.mu.Unlock()
		return nil
	}
	w := &watch{gameID: gameID}
	d.watches[gameID] = w
	d.mu.Unlock()

	// Subscriptions live as long as the detector, not the caller.
	stopSession, err := d.st.SubscribeSession(d.ctx, gameID, func(ss domain.GameSession) {
		w.mu.Lock()
		w.session = &ss
		w.mu.Unlock()
		d.evaluate(w)
	})
	if err != nil {
		d.drop(gameID)
		return err
	}

	stopParticipants, err := d.st.SubscribeParticipants(d.ctx, gameID, func(ps []domain.Participant) {
		w.mu.Lock()
		w.participants = ps
		w.mu.Unlock()
		d.evaluate(w)
	})
	if err != nil {
		stopSession()
		d.drop(gameID)
		return err
	}

	w.mu.Lock()
	w.stops = []store.Unsubscribe{stopSession, stopParticipants}
	w.mu.Unlock()

	// The game may have completed while subscribing.
	d.mu.Lock()
	current := d.watches[gameID] == w
	d.mu.Unlock()
	if !current {
		stopSession()
		stopParticipants()
		return nil
	}

	slog.DebugContext(ctx, "detector: watching game", "game_id", gameID)
	return nil
}

// Unwatch stops watching a game.
func (d *Detector) Unwatch(gameID string) {
	d.drop(gameID)
}

// Watching reports whether a game is being watched.
func (d *Detector) Watching(gameID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.watches[gameID]
	return ok
}

func (d *Detector) drop(gameID string) {
	d.mu.Lock()
	w, ok := d.watches[gameID]
	delete(d.watches, gameID)
	d.mu.Unlock()

	if !ok {
		return
	}

	w.mu.Lock()
	stops := w.stops
	w.stops = nil
	w.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

func (d *Detector) evaluate(w *watch) {
	w.mu.Lock()
	if w.session == nil {
		w.mu.Unlock()
		return
	}
	ss := *w.session
	ps := w.participants
	w.mu.Unlock()

	if ss.Status == domain.StatusCompleted {
		d.drop(w.gameID)
		return
	}

	d.complete(d.ctx, ss, ps)
}

func (d *Detector) complete(ctx context.Context, ss domain.GameSession, ps []domain.Participant) {
	dec := Evaluate(ss, ps, d.clock.Now(), d.grace)
	if !dec.Complete {
		return
	}

	// A failure is retried on the next snapshot or sweep.
	if _, err := d.completer.CompleteGame(ctx, ss.GameID, dec.Trigger); err != nil {
		slog.ErrorContext(ctx, "detector: complete game failed", "error", err, "game_id", ss.GameID, "trigger", dec.Trigger)
	}
}

// Sweep re-reads every watched game and completes those that are over.
func (d *Detector) Sweep(ctx context.Context) {
	d.mu.Lock()
	ids := make([]string, 0, len(d.watches))
	for id := range d.watches {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		if err := d.check(ctx, id); err != nil {
			slog.WarnContext(ctx, "detector: sweep game failed", "error", err, "game_id", id)
		}
	}
}

func (d *Detector) check(ctx context.Context, gameID string) error {
	ss, err := d.st.GetSession(ctx, gameID)
	if err != nil {
		return err
	}

	if ss.Status == domain.StatusCompleted {
		d.drop(gameID)
		return nil
	}

	ps := make([]domain.Participant, 0, len(ss.Players))
	for _, pl := range ss.Players {
		p, err := d.st.GetParticipant(ctx, pl.ParticipantID)
		if err != nil {
			return err
		}
		ps = append(ps, p)
	}

	d.complete(ctx, ss, ps)
	return nil
}

// Close stops all watches.
func (d *Detector) Close() {
	d.cancel()

	d.mu.Lock()
	ids := make([]string, 0, len(d.watches))
	for id := range d.watches {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		d.drop(id)
	}
}
