// Package storetest holds the behavior every store.Gateway implementation must share.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
	"github.com/victornm/flashgame/internal/store"
)

// Run runs the gateway conformance tests. newGateway must return a fresh, empty gateway.
func Run(t *testing.T, newGateway func(t *testing.T) store.Gateway) {
	t.Run("status only moves forward one step at a time", func(t *testing.T) {
		testStatusTransitions(t, newGateway(t))
	})
	t.Run("append player is idempotent and rejects late joiners", func(t *testing.T) {
		testAppendPlayer(t, newGateway(t))
	})
	t.Run("participant score is monotonic and finalize happens once", func(t *testing.T) {
		testParticipantUpdates(t, newGateway(t))
	})
	t.Run("concurrent finalize sets gameEndedAt once", func(t *testing.T) {
		testConcurrentFinalize(t, newGateway(t))
	})
	t.Run("participant subscription delivers full snapshots", func(t *testing.T) {
		testSubscribeParticipants(t, newGateway(t))
	})
	t.Run("session subscription delivers status changes", func(t *testing.T) {
		testSubscribeSession(t, newGateway(t))
	})
	t.Run("question set round trip", func(t *testing.T) {
		testQuestionSet(t, newGateway(t))
	})
	t.Run("unknown records are not found", func(t *testing.T) {
		testNotFound(t, newGateway(t))
	})
}

func createSession(t *testing.T, g store.Gateway) string {
	t.Helper()

	id, err := g.CreateSession(context.Background(), domain.SessionConfig{
		HostUserID:       "host",
		CardSetID:        "set-1",
		QuizType:         domain.QuizTypeMatching,
		QuestionQty:      4,
		TimeLimitSeconds: 60,
		GameQuestionID:   "qs-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	return id
}

func testStatusTransitions(t *testing.T, g store.Gateway) {
	ctx := context.Background()
	id := createSession(t, g)

	ss, err := g.GetSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusWaiting, ss.Status)
	require.Nil(t, ss.StartedAt)
	require.Equal(t, "host", ss.HostUserID)
	require.Equal(t, domain.QuizTypeMatching, ss.QuizType)
	require.Equal(t, 4, ss.QuestionQty)
	require.Equal(t, 60, ss.TimeLimitSeconds)
	require.Equal(t, "qs-1", ss.GameQuestionID)

	_, err = g.UpdateSessionStatus(ctx, id, domain.StatusCompleted)
	require.True(t, errors.HasReason(err, errors.ReasonInvalidTransition), "skipping in-progress must be rejected, got %v", err)

	changed, err := g.UpdateSessionStatus(ctx, id, domain.StatusInProgress)
	require.NoError(t, err)
	require.True(t, changed)

	ss, err = g.GetSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusInProgress, ss.Status)
	require.NotNil(t, ss.StartedAt)
	startedAt := *ss.StartedAt

	changed, err = g.UpdateSessionStatus(ctx, id, domain.StatusInProgress)
	require.NoError(t, err)
	require.False(t, changed, "repeating a transition is a no-op")

	changed, err = g.UpdateSessionStatus(ctx, id, domain.StatusCompleted)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = g.UpdateSessionStatus(ctx, id, domain.StatusCompleted)
	require.NoError(t, err)
	require.False(t, changed, "completed is absorbing")

	changed, err = g.UpdateSessionStatus(ctx, id, domain.StatusWaiting)
	require.NoError(t, err)
	require.False(t, changed, "status never regresses")

	ss, err = g.GetSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, ss.Status)
	require.True(t, startedAt.Equal(*ss.StartedAt), "startedAt is set exactly once")
	require.NotNil(t, ss.CompletedAt)
}

func testAppendPlayer(t *testing.T, g store.Gateway) {
	ctx := context.Background()
	id := createSession(t, g)

	pid, err := g.AppendPlayer(ctx, id, domain.Player{ParticipantID: "p1", IdentityKey: "guest:alice", Username: "Alice"})
	require.NoError(t, err)
	require.Equal(t, "p1", pid)

	pid, err = g.AppendPlayer(ctx, id, domain.Player{ParticipantID: "p2", IdentityKey: "guest:alice", Username: "alice"})
	require.NoError(t, err)
	require.Equal(t, "p1", pid, "the same identity resolves to the first participant")

	_, err = g.UpdateSessionStatus(ctx, id, domain.StatusInProgress)
	require.NoError(t, err)

	_, err = g.AppendPlayer(ctx, id, domain.Player{ParticipantID: "p3", IdentityKey: "guest:bob", Username: "Bob"})
	require.True(t, errors.HasReason(err, errors.ReasonSessionNotJoinable), "got %v", err)

	ss, err := g.GetSession(ctx, id)
	require.NoError(t, err)
	require.Len(t, ss.Players, 1)
	assert.Equal(t, "p1", ss.Players[0].ParticipantID)
	assert.Equal(t, "Alice", ss.Players[0].Username)
	assert.False(t, ss.Players[0].JoinedAt.IsZero())
}

func testParticipantUpdates(t *testing.T, g store.Gateway) {
	ctx := context.Background()
	id := createSession(t, g)

	pid, err := g.CreateParticipant(ctx, id, domain.ParticipantInfo{Username: "Alice", IdentityKey: "guest:alice"})
	require.NoError(t, err)

	p, err := g.GetParticipant(ctx, pid)
	require.NoError(t, err)
	require.Equal(t, id, p.GameID)
	require.Equal(t, "Alice", p.Username)
	require.Zero(t, p.CurrentScore)
	require.False(t, p.Finished())

	require.NoError(t, g.UpdateParticipant(ctx, pid, domain.ParticipantUpdate{CurrentScore: intPtr(3)}))
	require.NoError(t, g.UpdateParticipant(ctx, pid, domain.ParticipantUpdate{CurrentScore: intPtr(2)}))

	p, err = g.GetParticipant(ctx, pid)
	require.NoError(t, err)
	require.Equal(t, 3, p.CurrentScore, "a lower score never overwrites a higher one")

	require.NoError(t, g.UpdateParticipant(ctx, pid, domain.ParticipantUpdate{CurrentScore: intPtr(4), Finish: true}))
	p, err = g.GetParticipant(ctx, pid)
	require.NoError(t, err)
	require.Equal(t, 4, p.CurrentScore)
	require.True(t, p.Finished())
	endedAt := *p.GameEndedAt

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, g.UpdateParticipant(ctx, pid, domain.ParticipantUpdate{Finish: true}), "a second finalize is a silent no-op")

	p, err = g.GetParticipant(ctx, pid)
	require.NoError(t, err)
	require.True(t, endedAt.Equal(*p.GameEndedAt), "gameEndedAt is set exactly once")
}

func testConcurrentFinalize(t *testing.T, g store.Gateway) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id := createSession(t, g)
	pid, err := g.CreateParticipant(ctx, id, domain.ParticipantInfo{Username: "Alice", IdentityKey: "guest:alice"})
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		endings = make(map[int64]struct{})
	)
	unsubscribe, err := g.SubscribeParticipants(ctx, id, func(ps []domain.Participant) {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range ps {
			if p.GameEndedAt != nil {
				endings[p.GameEndedAt.UnixNano()] = struct{}{}
			}
		}
	})
	require.NoError(t, err)
	defer unsubscribe()

	const writers = 16
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := range writers {
		go func() {
			defer wg.Done()
			time.Sleep(time.Duration(i%4) * time.Millisecond)
			assert.NoError(t, g.UpdateParticipant(ctx, pid, domain.ParticipantUpdate{CurrentScore: intPtr(i), Finish: true}))
		}()
	}
	wg.Wait()

	p, err := g.GetParticipant(ctx, pid)
	require.NoError(t, err)
	require.True(t, p.Finished())
	assert.Equal(t, writers-1, p.CurrentScore, "the highest score wins")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		_, ok := endings[p.GameEndedAt.UnixNano()]
		return ok
	}, 2*time.Second, 10*time.Millisecond, "subscribers observe the finish")

	// Let late notifications drain before checking no second ending was published.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, endings, 1, "every snapshot shows the same gameEndedAt")
}

func testSubscribeParticipants(t *testing.T, g store.Gateway) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id := createSession(t, g)
	pid, err := g.CreateParticipant(ctx, id, domain.ParticipantInfo{Username: "Alice", IdentityKey: "guest:alice"})
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		last []domain.Participant
	)
	unsubscribe, err := g.SubscribeParticipants(ctx, id, func(ps []domain.Participant) {
		mu.Lock()
		last = ps
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsubscribe()

	snapshot := func() []domain.Participant {
		mu.Lock()
		defer mu.Unlock()
		return last
	}

	require.Eventually(t, func() bool {
		ps := snapshot()
		return len(ps) == 1 && ps[0].ParticipantID == pid
	}, 2*time.Second, 10*time.Millisecond, "initial snapshot")

	require.NoError(t, g.UpdateParticipant(ctx, pid, domain.ParticipantUpdate{CurrentScore: intPtr(1), Finish: true}))

	require.Eventually(t, func() bool {
		ps := snapshot()
		return len(ps) == 1 && ps[0].CurrentScore == 1 && ps[0].Finished()
	}, 2*time.Second, 10*time.Millisecond, "snapshot after update")

	unsubscribe()
	unsubscribe()
}

func testSubscribeSession(t *testing.T, g store.Gateway) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id := createSession(t, g)

	var (
		mu       sync.Mutex
		statuses []domain.Status
	)
	unsubscribe, err := g.SubscribeSession(ctx, id, func(ss domain.GameSession) {
		mu.Lock()
		statuses = append(statuses, ss.Status)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) > 0
	}, 2*time.Second, 10*time.Millisecond)

	_, err = g.UpdateSessionStatus(ctx, id, domain.StatusInProgress)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return statuses[len(statuses)-1] == domain.StatusInProgress
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(statuses); i++ {
		assert.LessOrEqual(t, statuses[i-1].Order(), statuses[i].Order(), "snapshots never show a regressed status")
	}
}

func testQuestionSet(t *testing.T, g store.Gateway) {
	ctx := context.Background()

	in := domain.QuestionSet{
		QuizType: domain.QuizTypeMultipleChoice,
		Seed:     42,
		Questions: []domain.ChoiceQuestion{
			{
				QuestionID:   "q1",
				PromptFields: []string{"hola"},
				Options: []domain.Option{
					{OptionID: "c1", AnswerFields: []string{"hello"}},
					{OptionID: "c2", AnswerFields: []string{"bye"}},
				},
				CorrectOptionID: "c1",
			},
		},
	}

	id, err := g.CreateQuestionSet(ctx, in)
	require.NoError(t, err)

	out, err := g.GetQuestionSet(ctx, id)
	require.NoError(t, err)

	in.GameQuestionID = id
	require.Equal(t, in, out)
}

func testNotFound(t *testing.T, g store.Gateway) {
	ctx := context.Background()

	_, err := g.GetSession(ctx, "missing")
	require.True(t, errors.HasCode(err, errors.CodeNotFound), "got %v", err)

	_, err = g.GetParticipant(ctx, "missing")
	require.True(t, errors.HasCode(err, errors.CodeNotFound), "got %v", err)

	err = g.UpdateParticipant(ctx, "missing", domain.ParticipantUpdate{Finish: true})
	require.True(t, errors.HasCode(err, errors.CodeNotFound), "got %v", err)

	_, err = g.GetQuestionSet(ctx, "missing")
	require.True(t, errors.HasCode(err, errors.CodeNotFound), "got %v", err)

	_, err = g.CreateParticipant(ctx, "missing", domain.ParticipantInfo{Username: "x", IdentityKey: "guest:x"})
	require.True(t, errors.HasCode(err, errors.CodeNotFound), "got %v", err)
}

func intPtr(v int) *int { return &v }
