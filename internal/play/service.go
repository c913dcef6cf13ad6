// Package play runs participants' answers through their question engines.
package play

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
	"github.com/victornm/flashgame/internal/event"
	"github.com/victornm/flashgame/internal/question"
	"github.com/victornm/flashgame/internal/store"
)

type Config struct {
	Store    store.Gateway
	EventBus *event.Bus
	Clock    clockwork.Clock

	MatchingRevealDelay time.Duration
	ChoiceRevealDelay   time.Duration
	// WriteAttempts bounds retries of a participant update failing with STORE_UNAVAILABLE.
	WriteAttempts int
}

// Service keeps one engine per participant, created on the first answer and closed when the
// participant leaves or the game completes.
type Service struct {
	st    store.Gateway
	eb    *event.Bus
	clock clockwork.Clock

	matchingDelay time.Duration
	choiceDelay   time.Duration
	attempts      int

	group singleflight.Group

	mu      sync.Mutex
	players map[string]*player
	// left maps participants who left to their game. Their answers are ignored.
	left map[string]string
	// closed holds completed games with the time they were closed.
	closed map[string]time.Time
}

// closedRetention bounds how long a completed game is remembered. Later answers already
// observe the completed status in the store.
const closedRetention = time.Hour

type player struct {
	gameID string
	engine question.Engine
	writer *question.Writer
}

func (p *player) close() {
	p.engine.Close()
	p.writer.Close()
}

func NewService(c Config) *Service {
	s := &Service{
		st:            c.Store,
		eb:            c.EventBus,
		clock:         c.Clock,
		matchingDelay: c.MatchingRevealDelay,
		choiceDelay:   c.ChoiceRevealDelay,
		attempts:      c.WriteAttempts,
		players:       make(map[string]*player),
		left:          make(map[string]string),
		closed:        make(map[string]time.Time),
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}

	if s.eb != nil {
		event.On(s.eb, func(ctx context.Context, e domain.EventGameCompleted) error {
			s.closeGame(ctx, e.GameID)
			return nil
		})
	}

	return s
}

type SubmitAnswerRequest struct {
	ParticipantID string
	Answer        domain.Answer
}

type SubmitAnswerResponse struct {
	question.Result
}

// SubmitAnswer applies a participant's answer. Answers to a completed game or from a finished
// participant are ignored rather than rejected.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	p, err := s.st.GetParticipant(ctx, req.ParticipantID)
	if err != nil {
		return nil, err
	}

	ss, err := s.st.GetSession(ctx, p.GameID)
	if err != nil {
		return nil, err
	}

	ignored := &SubmitAnswerResponse{question.Result{Ignored: true, Score: p.CurrentScore, Finished: p.Finished()}}
	switch {
	case ss.Status == domain.StatusWaiting:
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("game has not started: game=%s", ss.GameID))
	case ss.Status == domain.StatusCompleted, p.Finished(), s.hasLeft(p.ParticipantID):
		return ignored, nil
	}

	if !isPlayer(ss, p.ParticipantID) {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("participant is not a player of the game: participant=%s, game=%s", p.ParticipantID, ss.GameID))
	}

	pl, err := s.player(ctx, ss, p.ParticipantID)
	if err != nil {
		return nil, err
	}
	if pl == nil {
		// The participant left or the game completed while the engine was being created.
		return ignored, nil
	}

	res, err := pl.engine.Submit(ctx, req.Answer)
	if err != nil {
		return nil, err
	}

	return &SubmitAnswerResponse{res}, nil
}

// Leave drops the participant's engine. A pending reveal is cancelled and nothing more is
// written for the participant.
func (s *Service) Leave(ctx context.Context, participantID string) error {
	p, err := s.st.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	pl, ok := s.players[participantID]
	delete(s.players, participantID)
	s.left[participantID] = p.GameID
	s.mu.Unlock()

	if ok {
		pl.close()
		slog.InfoContext(ctx, "play: participant left", "participant_id", participantID, "game_id", pl.gameID)
	}

	return nil
}

// Playing reports whether the participant has a live engine.
func (s *Service) Playing(participantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.players[participantID]
	return ok
}

func (s *Service) hasLeft(participantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.left[participantID]
	return ok
}

// Close closes every engine, flushing pending writes.
func (s *Service) Close() {
	s.mu.Lock()
	players := s.players
	s.players = make(map[string]*player)
	s.mu.Unlock()

	for _, pl := range players {
		pl.close()
	}
}

func (s *Service) player(ctx context.Context, ss domain.GameSession, participantID string) (*player, error) {
	s.mu.Lock()
	pl, ok := s.players[participantID]
	s.mu.Unlock()
	if ok {
		return pl, nil
	}

	v, err, _ := s.group.Do(participantID, func() (any, error) {
		s.mu.Lock()
		pl, ok := s.players[participantID]
		s.mu.Unlock()
		if ok {
			return pl, nil
		}

		pl, err := s.newPlayer(ctx, ss, participantID)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		_, left := s.left[participantID]
		_, closed := s.closed[ss.GameID]
		if !left && !closed {
			s.players[participantID] = pl
		}
		s.mu.Unlock()

		if left || closed {
			pl.close()
			return (*player)(nil), nil
		}
		return pl, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*player), nil
}

func (s *Service) newPlayer(ctx context.Context, ss domain.GameSession, participantID string) (*player, error) {
	qs, err := s.st.GetQuestionSet(ctx, ss.GameQuestionID)
	if err != nil {
		return nil, err
	}

	gameID := ss.GameID
	writer := question.NewWriter(question.WriterConfig{
		Store:         s.st,
		ParticipantID: participantID,
		Attempts:      s.attempts,
		OnDropped: func(_ domain.ParticipantUpdate, err error) {
			s.eb.Publish(context.Background(), domain.EventProgressDropped{
				GameID:        gameID,
				ParticipantID: participantID,
				Error:         err.Error(),
			})
		},
	})

	delay := s.matchingDelay
	if qs.QuizType == domain.QuizTypeMultipleChoice {
		delay = s.choiceDelay
	}

	engine, err := question.New(question.Config{
		Set:         qs,
		Progress:    writer,
		Clock:       s.clock,
		RevealDelay: delay,
		Hooks: question.Hooks{
			OnScoreChange: func(score int) {
				s.eb.Publish(context.Background(), domain.EventScoreUpdated{
					GameID:        gameID,
					ParticipantID: participantID,
					Score:         score,
				})
			},
			OnFinished: func(score int) {
				s.eb.Publish(context.Background(), domain.EventParticipantFinished{
					GameID:        gameID,
					ParticipantID: participantID,
					Score:         score,
				})
			},
		},
	})
	if err != nil {
		writer.Close()
		return nil, err
	}

	return &player{gameID: gameID, engine: engine, writer: writer}, nil
}

func (s *Service) closeGame(ctx context.Context, gameID string) {
	s.mu.Lock()
	var closing []*player
	for id, pl := range s.players {
		if pl.gameID == gameID {
			closing = append(closing, pl)
			delete(s.players, id)
		}
	}
	for id, g := range s.left {
		if g == gameID {
			delete(s.left, id)
		}
	}
	now := s.clock.Now()
	for id, at := range s.closed {
		if now.Sub(at) > closedRetention {
			delete(s.closed, id)
		}
	}
	s.closed[gameID] = now
	s.mu.Unlock()

	for _, pl := range closing {
		pl.close()
	}

	if len(closing) > 0 {
		slog.DebugContext(ctx, "play: engines closed", "game_id", gameID, "count", len(closing))
	}
}

func isPlayer(ss domain.GameSession, participantID string) bool {
	for _, p := range ss.Players {
		if p.ParticipantID == participantID {
			return true
		}
	}
	return false
}
