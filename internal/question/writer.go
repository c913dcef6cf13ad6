package question

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
)

type ParticipantUpdater interface {
	UpdateParticipant(ctx context.Context, participantID string, u domain.ParticipantUpdate) error
}

type WriterConfig struct {
	Store         ParticipantUpdater
	ParticipantID string
	// Attempts is how many times a write failing with a retryable error is tried. Defaults to 3.
	Attempts int
	// Backoff is the pause between attempts, multiplied by the attempt number. Defaults to 100ms.
	Backoff time.Duration
	// Timeout bounds a single attempt. Defaults to 5s.
	Timeout time.Duration
	// OnDropped is called when an update is given up on.
	OnDropped func(u domain.ParticipantUpdate, err error)
}

// Writer is a fire-and-forget queue of updates to one participant record. Updates are applied
// one at a time in the order they were written.
type Writer struct {
	c WriterConfig

	mu      sync.Mutex
	queue   []domain.ParticipantUpdate
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

var _ Progress = (*Writer)(nil)

func NewWriter(c WriterConfig) *Writer {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 100 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}

	w := &Writer{
		c:       c,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go w.run()

	return w
}

func (w *Writer) Write(u domain.ParticipantUpdate) {
	if u.CurrentScore != nil {
		score := *u.CurrentScore
		u.CurrentScore = &score
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		slog.Warn("question: write after close dropped", "participant_id", w.c.ParticipantID)
		return
	}
	w.queue = append(w.queue, u)
	select {
	case w.wake <- struct{}{}:
	default:
	}
	w.mu.Unlock()
}

// Close stops accepting updates and waits until the queued ones are written.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.wake)
	}
	w.mu.Unlock()

	<-w.stopped
}

func (w *Writer) run() {
	defer close(w.stopped)

	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			closed := w.closed
			w.mu.Unlock()
			if closed {
				return
			}
			<-w.wake
			continue
		}
		u := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.apply(u)
	}
}

func (w *Writer) apply(u domain.ParticipantUpdate) {
	var err error
	for attempt := 1; attempt <= w.c.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), w.c.Timeout)
		err = w.c.Store.UpdateParticipant(ctx, w.c.ParticipantID, u)
		cancel()

		if err == nil {
			return
		}
		if !errors.Convert(err).Retryable() {
			break
		}

		slog.Warn("question: write progress failed, retrying", "error", err, "participant_id", w.c.ParticipantID, "attempt", attempt)
		if attempt < w.c.Attempts {
			time.Sleep(time.Duration(attempt) * w.c.Backoff)
		}
	}

	slog.Error("question: write progress dropped", "error", err, "participant_id", w.c.ParticipantID)
	if w.c.OnDropped != nil {
		w.c.OnDropped(u, err)
	}
}
