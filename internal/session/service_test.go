package session_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/flashgame/internal/cards"
	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
	"github.com/victornm/flashgame/internal/event"
	"github.com/victornm/flashgame/internal/session"
	"github.com/victornm/flashgame/internal/store/memory"
)

type fixture struct {
	clock     *clockwork.FakeClock
	store     *memory.Store
	completed chan domain.EventGameCompleted
	started   chan domain.EventGameStarted
}

func makeService(t *testing.T) (*session.Service, *fixture) {
	t.Helper()

	f := &fixture{
		clock:     clockwork.NewFakeClock(),
		completed: make(chan domain.EventGameCompleted, 8),
		started:   make(chan domain.EventGameStarted, 8),
	}
	f.store = memory.New(memory.WithClock(f.clock))

	eb := event.NewBus()
	t.Cleanup(eb.Stop)
	event.On(eb, func(_ context.Context, e domain.EventGameCompleted) error {
		f.completed <- e
		return nil
	})
	event.On(eb, func(_ context.Context, e domain.EventGameStarted) error {
		f.started <- e
		return nil
	})

	set := make([]domain.Card, 6)
	for i := range set {
		set[i] = domain.Card{ID: fmt.Sprintf("c%d", i), Front: []string{"f"}, Back: []string{"b"}}
	}

	s := session.NewService(session.Config{
		Store:    f.store,
		Cards:    cards.Static{"set-1": set},
		EventBus: eb,
		Clock:    f.clock,
		NewSeed:  func() uint64 { return 7 },
	})
	t.Cleanup(s.Close)

	return s, f
}

func createGame(t *testing.T, s *session.Service) *domain.GameSession {
	t.Helper()

	ss, err := s.CreateGame(context.Background(), session.CreateGameRequest{
		HostUserID:       "host",
		CardSetID:        "set-1",
		QuizType:         domain.QuizTypeMatching,
		QuestionQty:      4,
		TimeLimitSeconds: 30,
	})
	require.NoError(t, err)
	return ss
}

func TestService_CreateGame(t *testing.T) {
	s, f := makeService(t)
	ctx := context.Background()

	ss := createGame(t, s)
	assert.Equal(t, domain.StatusWaiting, ss.Status)
	assert.Equal(t, "host", ss.HostUserID)
	assert.Empty(t, ss.Players)
	assert.Nil(t, ss.StartedAt)

	qs, err := f.store.GetQuestionSet(ctx, ss.GameQuestionID)
	require.NoError(t, err)
	assert.Equal(t, domain.QuizTypeMatching, qs.QuizType)
	assert.Equal(t, uint64(7), qs.Seed)
	assert.Len(t, qs.Tiles, 8)
}

func TestService_CreateGameValidation(t *testing.T) {
	s, _ := makeService(t)

	valid := session.CreateGameRequest{
		HostUserID:       "host",
		CardSetID:        "set-1",
		QuizType:         domain.QuizTypeMultipleChoice,
		QuestionQty:      2,
		TimeLimitSeconds: 20,
	}

	tests := map[string]struct {
		modify     func(r *session.CreateGameRequest)
		wantCode   errors.Code
		wantReason errors.Reason
	}{
		"time limit below minimum": {
			modify:     func(r *session.CreateGameRequest) { r.TimeLimitSeconds = 19 },
			wantCode:   errors.CodeInvalidArgument,
			wantReason: errors.ReasonInvalidTimeLimit,
		},
		"missing host": {
			modify:   func(r *session.CreateGameRequest) { r.HostUserID = "" },
			wantCode: errors.CodeInvalidArgument,
		},
		"unknown quiz type": {
			modify:   func(r *session.CreateGameRequest) { r.QuizType = "essay" },
			wantCode: errors.CodeInvalidArgument,
		},
		"more questions than cards": {
			modify:   func(r *session.CreateGameRequest) { r.QuestionQty = 7 },
			wantCode: errors.CodeInvalidArgument,
		},
		"unknown card set": {
			modify:   func(r *session.CreateGameRequest) { r.CardSetID = "nope" },
			wantCode: errors.CodeNotFound,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			req := valid
			tc.modify(&req)

			_, err := s.CreateGame(context.Background(), req)
			require.True(t, errors.HasCode(err, tc.wantCode), "got %v", err)
			if tc.wantReason != "" {
				require.True(t, errors.HasReason(err, tc.wantReason), "got %v", err)
			}
		})
	}

	_, err := s.CreateGame(context.Background(), valid)
	require.NoError(t, err, "the minimum time limit is accepted")
}

func TestService_StartGame(t *testing.T) {
	s, f := makeService(t)
	ctx := context.Background()
	ss := createGame(t, s)

	_, err := s.StartGame(ctx, session.StartGameRequest{GameID: ss.GameID, UserID: "guest"})
	require.True(t, errors.HasReason(err, errors.ReasonNotHost), "got %v", err)

	started, err := s.StartGame(ctx, session.StartGameRequest{GameID: ss.GameID, UserID: "host"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)
	assert.True(t, f.clock.Now().Equal(*started.StartedAt))

	select {
	case e := <-f.started:
		assert.Equal(t, ss.GameID, e.Session.GameID)
	case <-time.After(time.Second):
		t.Fatal("game.started not published")
	}

	_, err = s.StartGame(ctx, session.StartGameRequest{GameID: ss.GameID, UserID: "host"})
	require.True(t, errors.HasReason(err, errors.ReasonInvalidTransition), "got %v", err)
}

func TestService_HostTimerCompletesGame(t *testing.T) {
	s, f := makeService(t)
	ctx := context.Background()
	ss := createGame(t, s)

	_, err := s.StartGame(ctx, session.StartGameRequest{GameID: ss.GameID, UserID: "host"})
	require.NoError(t, err)

	f.clock.Advance(29 * time.Second)
	got, err := s.GetGame(ctx, ss.GameID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusInProgress, got.Status)

	f.clock.Advance(time.Second)
	select {
	case e := <-f.completed:
		assert.Equal(t, domain.EventGameCompleted{GameID: ss.GameID, Trigger: domain.TriggerHostTimer}, e)
	case <-time.After(2 * time.Second):
		t.Fatal("game.completed not published")
	}

	got, err = s.GetGame(ctx, ss.GameID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestService_StopCountdown(t *testing.T) {
	s, f := makeService(t)
	ctx := context.Background()
	ss := createGame(t, s)

	_, err := s.StartGame(ctx, session.StartGameRequest{GameID: ss.GameID, UserID: "host"})
	require.NoError(t, err)

	s.StopCountdown(ss.GameID)
	f.clock.Advance(time.Minute)

	select {
	case e := <-f.completed:
		t.Fatalf("unexpected completion: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}

	got, err := s.GetGame(ctx, ss.GameID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
}

func TestService_CompleteGameIsIdempotent(t *testing.T) {
	s, f := makeService(t)
	ctx := context.Background()
	ss := createGame(t, s)

	_, err := s.CompleteGame(ctx, ss.GameID, domain.TriggerAllFinished)
	require.True(t, errors.HasReason(err, errors.ReasonInvalidTransition), "a waiting game cannot complete, got %v", err)

	_, err = s.StartGame(ctx, session.StartGameRequest{GameID: ss.GameID, UserID: "host"})
	require.NoError(t, err)

	changed, err := s.CompleteGame(ctx, ss.GameID, domain.TriggerAllFinished)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = s.CompleteGame(ctx, ss.GameID, domain.TriggerDeadline)
	require.NoError(t, err)
	require.False(t, changed)

	// The countdown was dropped on completion, so the host timer adds nothing.
	f.clock.Advance(time.Minute)

	select {
	case e := <-f.completed:
		assert.Equal(t, domain.TriggerAllFinished, e.Trigger)
	case <-time.After(time.Second):
		t.Fatal("game.completed not published")
	}
	select {
	case e := <-f.completed:
		t.Fatalf("completion published twice: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}
