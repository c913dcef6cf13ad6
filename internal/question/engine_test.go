package question

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
	"github.com/victornm/flashgame/internal/store/memory"
)

const waitFor = 2 * time.Second

type hookRecorder struct {
	mu       sync.Mutex
	scores   []int
	finished []int
}

func (h *hookRecorder) hooks() Hooks {
	return Hooks{
		OnScoreChange: func(score int) {
			h.mu.Lock()
			h.scores = append(h.scores, score)
			h.mu.Unlock()
		},
		OnFinished: func(score int) {
			h.mu.Lock()
			h.finished = append(h.finished, score)
			h.mu.Unlock()
		},
	}
}

func (h *hookRecorder) snapshot() ([]int, []int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.scores...), append([]int(nil), h.finished...)
}

type engineFixture struct {
	clock  *clockwork.FakeClock
	store  *memory.Store
	pid    string
	writer *Writer
	hooks  *hookRecorder
}

func makeEngine(t *testing.T, qs domain.QuestionSet) (Engine, *engineFixture) {
	t.Helper()
	ctx := context.Background()

	f := &engineFixture{
		clock: clockwork.NewFakeClock(),
		hooks: &hookRecorder{},
	}
	f.store = memory.New(memory.WithClock(f.clock))

	gameID, err := f.store.CreateSession(ctx, domain.SessionConfig{HostUserID: "host", QuizType: qs.QuizType, QuestionQty: qs.Len(), TimeLimitSeconds: 60})
	require.NoError(t, err)
	f.pid, err = f.store.CreateParticipant(ctx, gameID, domain.ParticipantInfo{Username: "A", IdentityKey: "guest:a"})
	require.NoError(t, err)

	f.writer = NewWriter(WriterConfig{Store: f.store, ParticipantID: f.pid})
	t.Cleanup(f.writer.Close)

	e, err := New(Config{
		Set:      qs,
		Progress: f.writer,
		Hooks:    f.hooks.hooks(),
		Clock:    f.clock,
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)

	return e, f
}

func (f *engineFixture) participant(t *testing.T) domain.Participant {
	t.Helper()
	p, err := f.store.GetParticipant(context.Background(), f.pid)
	require.NoError(t, err)
	return p
}

func tile(i int) domain.Answer { return domain.Answer{TileIndex: &i} }

func pairs(qs domain.QuestionSet) map[string][]int {
	out := make(map[string][]int)
	for i, t := range qs.Tiles {
		out[t.CardID] = append(out[t.CardID], i)
	}
	return out
}

func submit(t *testing.T, e Engine, a domain.Answer) Result {
	t.Helper()
	res, err := e.Submit(context.Background(), a)
	require.NoError(t, err)
	return res
}

func waitUnlocked(t *testing.T, m *Matching) {
	t.Helper()
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.reveal == nil
	}, waitFor, time.Millisecond)
}

func TestMatching_FourPairs(t *testing.T) {
	qs, err := Generate(domain.QuizTypeMatching, makeCards(4), 4, 3)
	require.NoError(t, err)

	e, f := makeEngine(t, qs)
	m := e.(*Matching)

	for k, id := range []string{"c1", "c2", "c3", "c4"} {
		p := pairs(qs)[id]

		res := submit(t, e, tile(p[0]))
		require.False(t, res.Ignored)
		require.Nil(t, res.Correct)

		res = submit(t, e, tile(p[1]))
		require.NotNil(t, res.Correct)
		require.True(t, *res.Correct)
		require.Equal(t, k, res.Score, "score only changes after the reveal delay")

		f.clock.Advance(DefaultMatchingRevealDelay)
		waitUnlocked(t, m)
		require.Equal(t, k+1, e.Score())
	}

	require.True(t, e.Finished())
	require.Len(t, m.Matched(), 8)

	f.writer.Close()
	p := f.participant(t)
	assert.Equal(t, 4, p.CurrentScore)
	require.True(t, p.Finished())

	require.Eventually(t, func() bool {
		scores, finished := f.hooks.snapshot()
		return assert.ObjectsAreEqual([]int{1, 2, 3, 4}, scores) && assert.ObjectsAreEqual([]int{4}, finished)
	}, waitFor, time.Millisecond, "score hooks per pair and a single finish")

	res := submit(t, e, tile(0))
	assert.True(t, res.Ignored, "input after game over is ignored")
	assert.True(t, res.Finished)
}

func TestMatching_Selection(t *testing.T) {
	qs := domain.QuestionSet{
		QuizType: domain.QuizTypeMatching,
		Tiles: []domain.Tile{
			{CardID: "c1", Side: domain.SideFront},
			{CardID: "c2", Side: domain.SideFront},
			{CardID: "c1", Side: domain.SideBack},
			{CardID: "c2", Side: domain.SideBack},
		},
	}

	t.Run("reselecting a tile clears the selection", func(t *testing.T) {
		e, _ := makeEngine(t, qs)
		m := e.(*Matching)

		submit(t, e, tile(0))
		submit(t, e, tile(0))

		m.mu.Lock()
		defer m.mu.Unlock()
		assert.Empty(t, m.selected)
		assert.Nil(t, m.reveal)
	})

	t.Run("mismatch releases both tiles after the delay", func(t *testing.T) {
		e, f := makeEngine(t, qs)
		m := e.(*Matching)

		submit(t, e, tile(0))
		res := submit(t, e, tile(1))
		require.False(t, *res.Correct)

		res = submit(t, e, tile(2))
		assert.True(t, res.Ignored, "tiles are locked during the reveal")

		f.clock.Advance(DefaultMatchingRevealDelay)
		waitUnlocked(t, m)

		assert.Zero(t, e.Score())
		assert.Empty(t, m.Matched())
		scores, _ := f.hooks.snapshot()
		assert.Empty(t, scores)
	})

	t.Run("matched tiles are inert", func(t *testing.T) {
		e, f := makeEngine(t, qs)
		m := e.(*Matching)

		submit(t, e, tile(0))
		submit(t, e, tile(2))
		f.clock.Advance(DefaultMatchingRevealDelay)
		waitUnlocked(t, m)

		res := submit(t, e, tile(2))
		assert.True(t, res.Ignored)
		assert.Equal(t, 1, res.Score)
	})

	t.Run("out of range tile", func(t *testing.T) {
		e, _ := makeEngine(t, qs)

		_, err := e.Submit(context.Background(), tile(9))
		require.True(t, errors.HasCode(err, errors.CodeInvalidArgument), "got %v", err)

		_, err = e.Submit(context.Background(), domain.Answer{OptionID: "c1"})
		require.True(t, errors.HasCode(err, errors.CodeInvalidArgument), "got %v", err)
	})

	t.Run("close cancels a pending reveal", func(t *testing.T) {
		e, f := makeEngine(t, qs)

		submit(t, e, tile(0))
		submit(t, e, tile(2))
		e.Close()
		f.clock.Advance(DefaultMatchingRevealDelay)

		f.writer.Close()
		assert.Zero(t, e.Score())
		assert.Zero(t, f.participant(t).CurrentScore)

		res := submit(t, e, tile(1))
		assert.True(t, res.Ignored)
	})
}

func choiceSet() domain.QuestionSet {
	return domain.QuestionSet{
		QuizType: domain.QuizTypeMultipleChoice,
		Questions: []domain.ChoiceQuestion{
			{
				QuestionID:      "q1",
				PromptFields:    []string{"hola"},
				Options:         []domain.Option{{OptionID: "hello"}, {OptionID: "bye"}},
				CorrectOptionID: "hello",
			},
			{
				QuestionID:      "q2",
				PromptFields:    []string{"perro"},
				Options:         []domain.Option{{OptionID: "dog"}, {OptionID: "cat"}},
				CorrectOptionID: "dog",
			},
		},
	}
}

func waitAdvanced(t *testing.T, c *Choice) {
	t.Helper()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.reveal == nil
	}, waitFor, time.Millisecond)
}

func TestChoice_SingleQuestion(t *testing.T) {
	qs, err := Generate(domain.QuizTypeMultipleChoice, makeCards(4), 1, 11)
	require.NoError(t, err)

	e, f := makeEngine(t, qs)
	c := e.(*Choice)

	res := submit(t, e, domain.Answer{OptionID: qs.Questions[0].CorrectOptionID})
	require.True(t, *res.Correct)
	require.Equal(t, 1, res.Score)
	require.False(t, res.Finished, "finish comes after the reveal delay")

	f.clock.Advance(DefaultChoiceRevealDelay)
	waitAdvanced(t, c)

	require.True(t, e.Finished())
	f.writer.Close()

	p := f.participant(t)
	assert.Equal(t, 1, p.CurrentScore)
	require.True(t, p.Finished())

	require.Eventually(t, func() bool {
		_, finished := f.hooks.snapshot()
		return assert.ObjectsAreEqual([]int{1}, finished)
	}, waitFor, time.Millisecond)
}

func TestChoice_Flow(t *testing.T) {
	t.Run("wrong answer keeps score and advances", func(t *testing.T) {
		e, f := makeEngine(t, choiceSet())
		c := e.(*Choice)

		res := submit(t, e, domain.Answer{OptionID: "bye"})
		require.False(t, *res.Correct)
		require.Zero(t, res.Score)

		res = submit(t, e, domain.Answer{OptionID: "hello"})
		assert.True(t, res.Ignored, "one answer per question")

		f.clock.Advance(DefaultChoiceRevealDelay)
		waitAdvanced(t, c)
		assert.Equal(t, 1, c.Current())

		res = submit(t, e, domain.Answer{OptionID: "dog"})
		require.True(t, *res.Correct)
		assert.Equal(t, 1, res.Score)

		f.clock.Advance(DefaultChoiceRevealDelay)
		waitAdvanced(t, c)
		assert.True(t, e.Finished())

		res = submit(t, e, domain.Answer{OptionID: "dog"})
		assert.True(t, res.Ignored)
	})

	t.Run("unknown option", func(t *testing.T) {
		e, _ := makeEngine(t, choiceSet())

		_, err := e.Submit(context.Background(), domain.Answer{OptionID: "dog"})
		require.True(t, errors.HasCode(err, errors.CodeInvalidArgument), "got %v", err)

		_, err = e.Submit(context.Background(), tile(0))
		require.True(t, errors.HasCode(err, errors.CodeInvalidArgument), "got %v", err)
	})

	t.Run("close cancels the pending advance", func(t *testing.T) {
		e, f := makeEngine(t, choiceSet())
		c := e.(*Choice)

		submit(t, e, domain.Answer{OptionID: "hello"})
		e.Close()
		f.clock.Advance(DefaultChoiceRevealDelay)

		assert.Zero(t, c.Current())
		assert.False(t, e.Finished())
	})
}

func TestNew_RejectsEmptySet(t *testing.T) {
	_, err := New(Config{Set: domain.QuestionSet{QuizType: domain.QuizTypeMatching}})
	require.True(t, errors.HasCode(err, errors.CodeInvalidArgument), "got %v", err)
}
