package session

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/flashgame/internal/cards"
	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
	"github.com/victornm/flashgame/internal/event"
	"github.com/victornm/flashgame/internal/question"
	"github.com/victornm/flashgame/internal/store"
)

type Config struct {
	Store    store.Gateway
	Cards    cards.Repository
	EventBus *event.Bus
	Clock    clockwork.Clock
	// NewSeed returns the seed of a new question set. Defaults to a random seed.
	NewSeed func() uint64
}

// Service drives a game through waiting, in-progress and completed. Each started game gets a
// countdown of its time limit, standing in for the host's timer.
type Service struct {
	st      store.Gateway
	cards   cards.Repository
	eb      *event.Bus
	clock   clockwork.Clock
	newSeed func() uint64

	mu         sync.Mutex
	countdowns map[string]clockwork.Timer
}

func NewService(c Config) *Service {
	s := &Service{
		st:         c.Store,
		cards:      c.Cards,
		eb:         c.EventBus,
		clock:      c.Clock,
		newSeed:    c.NewSeed,
		countdowns: make(map[string]clockwork.Timer),
	}

	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.newSeed == nil {
		s.newSeed = rand.Uint64
	}

	return s
}

// CreateGameRequest represents a request to create a new game session.
type CreateGameRequest struct {
	HostUserID       string
	CardSetID        string
	QuizType         domain.QuizType
	QuestionQty      int
	TimeLimitSeconds int
}

// CreateGame generates the question set of a new game and stores the game in waiting state.
func (s *Service) CreateGame(ctx context.Context, req CreateGameRequest) (*domain.GameSession, error) {
	if req.TimeLimitSeconds < domain.MinTimeLimitSeconds {
		return nil, errors.InvalidTimeLimit(req.TimeLimitSeconds, domain.MinTimeLimitSeconds)
	}
	if req.HostUserID == "" {
		return nil, errors.InvalidArgument("host user id is required")
	}
	if !req.QuizType.Valid() {
		return nil, errors.InvalidArgument("unknown quiz type: %s", req.QuizType)
	}

	cs, err := s.cards.ListCards(ctx, req.CardSetID)
	if err != nil {
		return nil, err
	}

	qs, err := question.Generate(req.QuizType, cs, req.QuestionQty, s.newSeed())
	if err != nil {
		return nil, err
	}

	qid, err := s.st.CreateQuestionSet(ctx, qs)
	if err != nil {
		return nil, err
	}

	gameID, err := s.st.CreateSession(ctx, domain.SessionConfig{
		HostUserID:       req.HostUserID,
		CardSetID:        req.CardSetID,
		QuizType:         req.QuizType,
		QuestionQty:      req.QuestionQty,
		TimeLimitSeconds: req.TimeLimitSeconds,
		GameQuestionID:   qid,
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session: game created", "game_id", gameID, "quiz_type", req.QuizType, "question_qty", req.QuestionQty)
	return s.GetGame(ctx, gameID)
}

func (s *Service) GetGame(ctx context.Context, gameID string) (*domain.GameSession, error) {
	ss, err := s.st.GetSession(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return &ss, nil
}

type StartGameRequest struct {
	GameID string
	// UserID is the user asking to start. Only the host may start a game.
	UserID string
}

// StartGame moves a waiting game to in-progress and arms its countdown.
func (s *Service) StartGame(ctx context.Context, req StartGameRequest) (*domain.GameSession, error) {
	ss, err := s.st.GetSession(ctx, req.GameID)
	if err != nil {
		return nil, err
	}

	if ss.HostUserID != req.UserID {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithReason(errors.ReasonNotHost),
			errors.WithMessagef("only the host can start the game: game=%s", req.GameID),
		)
	}

	changed, err := s.st.UpdateSessionStatus(ctx, req.GameID, domain.StatusInProgress)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonInvalidTransition),
			errors.WithMessagef("game already started: game=%s", req.GameID),
		)
	}

	ss, err = s.st.GetSession(ctx, req.GameID)
	if err != nil {
		return nil, err
	}

	s.armCountdown(ss)
	s.eb.Publish(ctx, domain.EventGameStarted{Session: ss})

	slog.InfoContext(ctx, "session: game started", "game_id", req.GameID, "players", len(ss.Players))
	return &ss, nil
}

// CompleteGame moves an in-progress game to completed. It reports whether this call made the
// transition; completing a completed game is a no-op.
func (s *Service) CompleteGame(ctx context.Context, gameID string, trigger domain.CompletionTrigger) (bool, error) {
	changed, err := s.st.UpdateSessionStatus(ctx, gameID, domain.StatusCompleted)
	if err != nil {
		return false, err
	}

	if !changed {
		return false, nil
	}

	s.StopCountdown(gameID)
	s.eb.Publish(ctx, domain.EventGameCompleted{GameID: gameID, Trigger: trigger})

	slog.InfoContext(ctx, "session: game completed", "game_id", gameID, "trigger", trigger)
	return true, nil
}

func (s *Service) armCountdown(ss domain.GameSession) {
	gameID := ss.GameID
	t := s.clock.AfterFunc(ss.TimeLimit(), func() {
		s.mu.Lock()
		delete(s.countdowns, gameID)
		s.mu.Unlock()

		if _, err := s.CompleteGame(context.Background(), gameID, domain.TriggerHostTimer); err != nil {
			slog.Error("session: host timer complete game failed", "error", err, "game_id", gameID)
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.countdowns[gameID]; ok {
		prev.Stop()
	}
	s.countdowns[gameID] = t
}

// StopCountdown drops the countdown of a game, as when the host disconnects. The game then
// completes through the completion detector only.
func (s *Service) StopCountdown(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.countdowns[gameID]; ok {
		t.Stop()
		delete(s.countdowns, gameID)
	}
}

// Close stops all countdowns.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.countdowns {
		t.Stop()
		delete(s.countdowns, id)
	}
}
