// Package question generates question sets and runs a participant's play through one.
//
// An engine holds the local state of one participant: tile selection for matching, the current
// question for multiple choice. Every state change that matters to other participants is handed
// to a Progress in the order it happened.
package question

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
)

const (
	DefaultMatchingRevealDelay = 500 * time.Millisecond
	DefaultChoiceRevealDelay   = time.Second
)

// Progress receives participant record updates. Write must not block on the store.
type Progress interface {
	Write(u domain.ParticipantUpdate)
}

// Hooks are called after the engine's lock is released.
type Hooks struct {
	OnScoreChange func(score int)
	OnFinished    func(score int)
}

type Config struct {
	Set         domain.QuestionSet
	Progress    Progress
	Hooks       Hooks
	Clock       clockwork.Clock
	RevealDelay time.Duration
}

// Result describes what an answer did.
type Result struct {
	// Ignored is set when the answer had no effect: the participant is done, the engine is
	// closed, or the answer hit a locked or already matched tile.
	Ignored bool `json:"ignored"`
	// Correct is known as soon as a comparison happens. It is unset for a first tile selection.
	Correct  *bool `json:"correct,omitempty"`
	Score    int   `json:"score"`
	Finished bool  `json:"finished"`
}

type Engine interface {
	Submit(ctx context.Context, a domain.Answer) (Result, error)
	Score() int
	Finished() bool
	// Close cancels any pending reveal. Nothing is written after Close returns.
	Close()
}

// New returns the engine for the question set's quiz type.
func New(c Config) (Engine, error) {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}

	if c.Set.Len() == 0 {
		return nil, errors.InvalidArgument("question set is empty: id=%s", c.Set.GameQuestionID)
	}

	switch c.Set.QuizType {
	case domain.QuizTypeMatching:
		if c.RevealDelay == 0 {
			c.RevealDelay = DefaultMatchingRevealDelay
		}
		return newMatching(c), nil
	case domain.QuizTypeMultipleChoice:
		if c.RevealDelay == 0 {
			c.RevealDelay = DefaultChoiceRevealDelay
		}
		return newChoice(c), nil
	default:
		return nil, errors.InvalidArgument("unknown quiz type: %s", c.Set.QuizType)
	}
}

// notice is a hook call collected under the lock and fired after it is released.
type notice struct {
	score    int
	scored   bool
	finished bool
}

func (h Hooks) fire(n notice) {
	if n.scored && h.OnScoreChange != nil {
		h.OnScoreChange(n.score)
	}
	if n.finished && h.OnFinished != nil {
		h.OnFinished(n.score)
	}
}

func boolPtr(b bool) *bool { return &b }
