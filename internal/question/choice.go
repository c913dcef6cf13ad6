package question

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
)

// Choice is the engine of the multiple-choice game. One answer is accepted per question; the
// next question comes up once the reveal delay has passed.
type Choice struct {
	c Config

	mu      sync.Mutex
	current int
	correct int
	reveal  clockwork.Timer
	over    bool
	closed  bool
}

var _ Engine = (*Choice)(nil)

func newChoice(c Config) *Choice {
	return &Choice{c: c}
}

func (e *Choice) Submit(_ context.Context, a domain.Answer) (Result, error) {
	if a.OptionID == "" {
		return Result{}, errors.InvalidArgument("option id is required for a multiple-choice game")
	}

	e.mu.Lock()

	res := Result{Score: e.correct, Finished: e.over}
	if e.over || e.closed || e.reveal != nil {
		e.mu.Unlock()
		res.Ignored = true
		return res, nil
	}

	q := e.c.Set.Questions[e.current]
	if !hasOption(q, a.OptionID) {
		e.mu.Unlock()
		return Result{}, errors.InvalidArgument("unknown option %s for question %s", a.OptionID, q.QuestionID)
	}

	var n notice
	correct := a.OptionID == q.CorrectOptionID
	if correct {
		e.correct++
		n = notice{score: e.correct, scored: true}
		e.c.Progress.Write(domain.ParticipantUpdate{CurrentScore: &n.score})
	}
	res.Correct = boolPtr(correct)
	res.Score = e.correct
	e.reveal = e.c.Clock.AfterFunc(e.c.RevealDelay, e.advance)
	e.mu.Unlock()

	e.c.Hooks.fire(n)
	return res, nil
}

// advance moves to the next question once the reveal delay has passed.
func (e *Choice) advance() {
	e.mu.Lock()
	if e.closed || e.reveal == nil {
		e.mu.Unlock()
		return
	}

	e.reveal = nil
	e.current++

	var n notice
	if e.current >= len(e.c.Set.Questions) {
		e.over = true
		n = notice{score: e.correct, finished: true}
		e.c.Progress.Write(domain.ParticipantUpdate{CurrentScore: &n.score, Finish: true})
	}
	e.mu.Unlock()

	e.c.Hooks.fire(n)
}

// Current returns the 0-indexed number of the question being answered.
func (e *Choice) Current() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Choice) Score() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.correct
}

func (e *Choice) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.over
}

func (e *Choice) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	if e.reveal != nil {
		e.reveal.Stop()
		e.reveal = nil
	}
}

func hasOption(q domain.ChoiceQuestion, optionID string) bool {
	for _, o := range q.Options {
		if o.OptionID == optionID {
			return true
		}
	}
	return false
}
