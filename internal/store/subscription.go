package store

import (
	"context"
	"log/slog"
	"sync"
)

// Subscription delivers snapshots of type T on its own goroutine. Change signals are
// coalesced: a slow consumer skips intermediate states and always receives the latest one.
type Subscription[T any] struct {
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Subscribe starts a subscription that reloads the snapshot with load on every Notify and
// hands it to deliver. The first snapshot is delivered without waiting for a change. The
// subscription ends when ctx is done or Stop is called.
func Subscribe[T any](ctx context.Context, name string, load func(ctx context.Context) (T, error), deliver func(T)) *Subscription[T] {
	s := &Subscription[T]{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	s.Notify()
	go s.run(ctx, name, load, deliver)

	return s
}

func (s *Subscription[T]) run(ctx context.Context, name string, load func(ctx context.Context) (T, error), deliver func(T)) {
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-s.done:
			return
		case <-s.signal:
		}

		v, err := load(ctx)
		if err != nil {
			slog.WarnContext(ctx, "store: load snapshot failed",
				"subscription", name,
				"error", err,
			)
			continue
		}

		select {
		case <-s.done:
			return
		default:
		}

		deliver(v)
	}
}

// Notify tells the subscription that the underlying records changed.
func (s *Subscription[T]) Notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Stop ends the subscription. It does not wait for an in-flight callback, so it may be
// called from inside one.
func (s *Subscription[T]) Stop() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed once the subscription stopped.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}
