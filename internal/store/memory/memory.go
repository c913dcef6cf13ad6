// Package memory is an in-process session store. It backs tests and single-instance
// deployments without Redis.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
	"github.com/victornm/flashgame/internal/store"
)

type notifier interface {
	Notify()
	Done() <-chan struct{}
}

type Store struct {
	clock clockwork.Clock

	mu           sync.RWMutex
	sessions     map[string]*domain.GameSession
	participants map[string]*domain.Participant
	byGame       map[string][]string
	questionSets map[string]domain.QuestionSet
	subs         map[string]map[notifier]struct{}
}

var _ store.Gateway = (*Store)(nil)

type Option func(s *Store)

// WithClock sets the clock used for server timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		clock:        clockwork.NewRealClock(),
		sessions:     make(map[string]*domain.GameSession),
		participants: make(map[string]*domain.Participant),
		byGame:       make(map[string][]string),
		questionSets: make(map[string]domain.QuestionSet),
		subs:         make(map[string]map[notifier]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) CreateSession(_ context.Context, c domain.SessionConfig) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[id] = &domain.GameSession{
		GameID:           id,
		HostUserID:       c.HostUserID,
		CardSetID:        c.CardSetID,
		QuizType:         c.QuizType,
		QuestionQty:      c.QuestionQty,
		TimeLimitSeconds: c.TimeLimitSeconds,
		Status:           domain.StatusWaiting,
		GameQuestionID:   c.GameQuestionID,
		CreatedAt:        s.clock.Now().UTC(),
	}

	return id, nil
}

func (s *Store) GetSession(_ context.Context, gameID string) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ss, ok := s.sessions[gameID]
	if !ok {
		return domain.GameSession{}, errors.NotFound("game not found: game=%s", gameID)
	}

	return cloneSession(ss), nil
}

func (s *Store) SubscribeSession(ctx context.Context, gameID string, onChange func(domain.GameSession)) (store.Unsubscribe, error) {
	if _, err := s.GetSession(ctx, gameID); err != nil {
		return nil, err
	}

	sub := store.Subscribe(ctx, "session:"+gameID, func(ctx context.Context) (domain.GameSession, error) {
		return s.GetSession(ctx, gameID)
	}, onChange)
	s.addSub(gameID, sub)

	return sub.Stop, nil
}

func (s *Store) UpdateSessionStatus(_ context.Context, gameID string, status domain.Status) (bool, error) {
	if !status.Valid() {
		return false, errors.InvalidArgument("unknown status: %s", status)
	}

	s.mu.Lock()
	ss, ok := s.sessions[gameID]
	if !ok {
		s.mu.Unlock()
		return false, errors.NotFound("game not found: game=%s", gameID)
	}

	cur, next := ss.Status.Order(), status.Order()
	switch {
	case next <= cur:
		s.mu.Unlock()
		return false, nil
	case next != cur+1:
		s.mu.Unlock()
		return false, errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonInvalidTransition),
			errors.WithMessagef("cannot move game from %s to %s: game=%s", ss.Status, status, gameID),
		)
	}

	now := s.clock.Now().UTC()
	ss.Status = status
	switch status {
	case domain.StatusInProgress:
		ss.StartedAt = &now
	case domain.StatusCompleted:
		ss.CompletedAt = &now
	}
	s.mu.Unlock()

	s.notify(gameID)
	return true, nil
}

func (s *Store) AppendPlayer(_ context.Context, gameID string, p domain.Player) (string, error) {
	s.mu.Lock()
	ss, ok := s.sessions[gameID]
	if !ok {
		s.mu.Unlock()
		return "", errors.NotFound("game not found: game=%s", gameID)
	}

	if existing, ok := ss.PlayerByIdentity(p.IdentityKey); ok {
		s.mu.Unlock()
		return existing.ParticipantID, nil
	}

	if ss.Status != domain.StatusWaiting {
		s.mu.Unlock()
		return "", errors.SessionNotJoinable(gameID)
	}

	p.JoinedAt = s.clock.Now().UTC()
	ss.Players = append(ss.Players, p)
	s.mu.Unlock()

	s.notify(gameID)
	return p.ParticipantID, nil
}

func (s *Store) CreateParticipant(_ context.Context, gameID string, info domain.ParticipantInfo) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if _, ok := s.sessions[gameID]; !ok {
		s.mu.Unlock()
		return "", errors.NotFound("game not found: game=%s", gameID)
	}

	s.participants[id] = &domain.Participant{
		ParticipantID: id,
		GameID:        gameID,
		Username:      info.Username,
		IdentityKey:   info.IdentityKey,
	}
	s.byGame[gameID] = append(s.byGame[gameID], id)
	s.mu.Unlock()

	s.notify(gameID)
	return id, nil
}

func (s *Store) GetParticipant(_ context.Context, participantID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[participantID]
	if !ok {
		return domain.Participant{}, errors.NotFound("participant not found: participant=%s", participantID)
	}

	return cloneParticipant(p), nil
}

func (s *Store) UpdateParticipant(_ context.Context, participantID string, u domain.ParticipantUpdate) error {
	s.mu.Lock()
	p, ok := s.participants[participantID]
	if !ok {
		s.mu.Unlock()
		return errors.NotFound("participant not found: participant=%s", participantID)
	}

	changed := false
	if u.CurrentScore != nil && *u.CurrentScore > p.CurrentScore {
		p.CurrentScore = *u.CurrentScore
		changed = true
	}
	if u.Finish && p.GameEndedAt == nil {
		now := s.clock.Now().UTC()
		p.GameEndedAt = &now
		changed = true
	}
	gameID := p.GameID
	s.mu.Unlock()

	if changed {
		s.notify(gameID)
	}
	return nil
}

func (s *Store) SubscribeParticipants(ctx context.Context, gameID string, onChange func([]domain.Participant)) (store.Unsubscribe, error) {
	if _, err := s.GetSession(ctx, gameID); err != nil {
		return nil, err
	}

	sub := store.Subscribe(ctx, "participants:"+gameID, func(context.Context) ([]domain.Participant, error) {
		return s.listParticipants(gameID), nil
	}, onChange)
	s.addSub(gameID, sub)

	return sub.Stop, nil
}

func (s *Store) GetQuestionSet(_ context.Context, gameQuestionID string) (domain.QuestionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qs, ok := s.questionSets[gameQuestionID]
	if !ok {
		return domain.QuestionSet{}, errors.NotFound("question set not found: id=%s", gameQuestionID)
	}

	return qs, nil
}

func (s *Store) CreateQuestionSet(_ context.Context, qs domain.QuestionSet) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}

	qs.GameQuestionID = id

	s.mu.Lock()
	s.questionSets[id] = qs
	s.mu.Unlock()

	return id, nil
}

func (s *Store) listParticipants(gameID string) []domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byGame[gameID]
	ps := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		ps = append(ps, cloneParticipant(s.participants[id]))
	}

	return ps
}

func (s *Store) addSub(gameID string, n notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs[gameID] == nil {
		s.subs[gameID] = make(map[notifier]struct{})
	}
	s.subs[gameID][n] = struct{}{}
}

func (s *Store) notify(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for n := range s.subs[gameID] {
		select {
		case <-n.Done():
			delete(s.subs[gameID], n)
		default:
			n.Notify()
		}
	}
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

func cloneSession(ss *domain.GameSession) domain.GameSession {
	c := *ss
	c.Players = slices.Clone(ss.Players)
	if ss.StartedAt != nil {
		t := *ss.StartedAt
		c.StartedAt = &t
	}
	if ss.CompletedAt != nil {
		t := *ss.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

func cloneParticipant(p *domain.Participant) domain.Participant {
	c := *p
	if p.GameEndedAt != nil {
		t := *p.GameEndedAt
		c.GameEndedAt = &t
	}
	return c
}
