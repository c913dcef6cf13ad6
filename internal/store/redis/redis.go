// Package redis implements the session store gateway on Redis.
//
// A session is a hash plus a players list and an identity index, all sharing the game id hash
// tag so scripts touching them stay on one cluster slot. Conditional writes (status
// transitions, idempotent appends, monotonic score, finalize-once) run as Lua scripts. Every
// write that changes a game publishes on the game's change channel; subscribers reload the
// full snapshot on each message. Server timestamps come from Redis TIME.
package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
	"github.com/victornm/flashgame/internal/store"
)

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
}

type Store struct {
	redis  redis.UniversalClient
	prefix string
}

var _ store.Gateway = (*Store)(nil)

func New(c Config) *Store {
	return &Store{
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

func (s *Store) CreateSession(ctx context.Context, c domain.SessionConfig) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}

	now, err := s.now(ctx)
	if err != nil {
		return "", err
	}

	fields := encodeSession(domain.GameSession{
		HostUserID:       c.HostUserID,
		CardSetID:        c.CardSetID,
		QuizType:         c.QuizType,
		QuestionQty:      c.QuestionQty,
		TimeLimitSeconds: c.TimeLimitSeconds,
		Status:           domain.StatusWaiting,
		GameQuestionID:   c.GameQuestionID,
		CreatedAt:        now,
	})
	if err := s.redis.HSet(ctx, s.gameKey(id), fields).Err(); err != nil {
		return "", unavailable("create session", err)
	}

	return id, nil
}

func (s *Store) GetSession(ctx context.Context, gameID string) (domain.GameSession, error) {
	var (
		fields  *redis.MapStringStringCmd
		players *redis.StringSliceCmd
	)
	_, err := s.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		fields = p.HGetAll(ctx, s.gameKey(gameID))
		players = p.LRange(ctx, s.playersKey(gameID), 0, -1)
		return nil
	})
	if err != nil {
		return domain.GameSession{}, unavailable("get session", err)
	}

	if len(fields.Val()) == 0 {
		return domain.GameSession{}, errors.NotFound("game not found: game=%s", gameID)
	}

	ss, err := decodeSession(gameID, fields.Val(), players.Val())
	if err != nil {
		return domain.GameSession{}, errors.Internal(fmt.Errorf("decode session %s: %w", gameID, err))
	}

	return ss, nil
}

func (s *Store) SubscribeSession(ctx context.Context, gameID string, onChange func(domain.GameSession)) (store.Unsubscribe, error) {
	if _, err := s.GetSession(ctx, gameID); err != nil {
		return nil, err
	}

	return subscribe(ctx, s, gameID, "session:"+gameID, func(ctx context.Context) (domain.GameSession, error) {
		return s.GetSession(ctx, gameID)
	}, onChange)
}

func (s *Store) UpdateSessionStatus(ctx context.Context, gameID string, status domain.Status) (bool, error) {
	if !status.Valid() {
		return false, errors.InvalidArgument("unknown status: %s", status)
	}

	now, err := s.now(ctx)
	if err != nil {
		return false, err
	}

	res, err := updateStatusScript.Run(ctx, s.redis, []string{s.gameKey(gameID)}, string(status), encodeMillis(now)).StringSlice()
	if err != nil {
		return false, unavailable("update session status", err)
	}

	switch res[0] {
	case replyOK:
		s.publishChange(ctx, gameID, "session")
		return true, nil
	case replyNoop:
		return false, nil
	case replyNotFound:
		return false, errors.NotFound("game not found: game=%s", gameID)
	case replyInvalid:
		return false, errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonInvalidTransition),
			errors.WithMessagef("cannot move game from %s to %s: game=%s", res[1], status, gameID),
		)
	default:
		return false, errors.Internal(fmt.Errorf("update session status: unexpected reply %v", res))
	}
}

func (s *Store) AppendPlayer(ctx context.Context, gameID string, p domain.Player) (string, error) {
	now, err := s.now(ctx)
	if err != nil {
		return "", err
	}
	p.JoinedAt = now

	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal player: %w", err)
	}

	keys := []string{s.gameKey(gameID), s.identitiesKey(gameID), s.playersKey(gameID)}
	res, err := appendPlayerScript.Run(ctx, s.redis, keys, p.IdentityKey, p.ParticipantID, string(b)).StringSlice()
	if err != nil {
		return "", unavailable("append player", err)
	}

	switch res[0] {
	case replyOK:
		s.publishChange(ctx, gameID, "session")
		return res[1], nil
	case replyExists:
		return res[1], nil
	case replyNotFound:
		return "", errors.NotFound("game not found: game=%s", gameID)
	case replyNotJoinable:
		return "", errors.SessionNotJoinable(gameID)
	default:
		return "", errors.Internal(fmt.Errorf("append player: unexpected reply %v", res))
	}
}

func (s *Store) CreateParticipant(ctx context.Context, gameID string, info domain.ParticipantInfo) (string, error) {
	n, err := s.redis.Exists(ctx, s.gameKey(gameID)).Result()
	if err != nil {
		return "", unavailable("create participant", err)
	}
	if n == 0 {
		return "", errors.NotFound("game not found: game=%s", gameID)
	}

	id, err := newID()
	if err != nil {
		return "", err
	}

	_, err = s.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.participantKey(id), map[string]any{
			"gameId":      gameID,
			"username":    info.Username,
			"identityKey": info.IdentityKey,
			"score":       0,
		})
		p.RPush(ctx, s.participantsKey(gameID), id)
		return nil
	})
	if err != nil {
		return "", unavailable("create participant", err)
	}

	s.publishChange(ctx, gameID, "participants")
	return id, nil
}

func (s *Store) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	fields, err := s.redis.HGetAll(ctx, s.participantKey(participantID)).Result()
	if err != nil {
		return domain.Participant{}, unavailable("get participant", err)
	}

	if len(fields) == 0 {
		return domain.Participant{}, errors.NotFound("participant not found: participant=%s", participantID)
	}

	p, err := decodeParticipant(participantID, fields)
	if err != nil {
		return domain.Participant{}, errors.Internal(fmt.Errorf("decode participant %s: %w", participantID, err))
	}

	return p, nil
}

func (s *Store) UpdateParticipant(ctx context.Context, participantID string, u domain.ParticipantUpdate) error {
	score := ""
	if u.CurrentScore != nil {
		score = strconv.Itoa(*u.CurrentScore)
	}
	finish := "0"
	if u.Finish {
		finish = "1"
	}

	now, err := s.now(ctx)
	if err != nil {
		return err
	}

	res, err := updateParticipantScript.Run(ctx, s.redis, []string{s.participantKey(participantID)}, score, finish, encodeMillis(now)).StringSlice()
	if err != nil {
		return unavailable("update participant", err)
	}

	switch res[0] {
	case replyOK:
		s.publishChange(ctx, res[1], "participants")
		return nil
	case replyNoop:
		return nil
	case replyNotFound:
		return errors.NotFound("participant not found: participant=%s", participantID)
	default:
		return errors.Internal(fmt.Errorf("update participant: unexpected reply %v", res))
	}
}

func (s *Store) SubscribeParticipants(ctx context.Context, gameID string, onChange func([]domain.Participant)) (store.Unsubscribe, error) {
	if _, err := s.GetSession(ctx, gameID); err != nil {
		return nil, err
	}

	return subscribe(ctx, s, gameID, "participants:"+gameID, func(ctx context.Context) ([]domain.Participant, error) {
		return s.listParticipants(ctx, gameID)
	}, onChange)
}

func (s *Store) GetQuestionSet(ctx context.Context, gameQuestionID string) (domain.QuestionSet, error) {
	b, err := s.redis.Get(ctx, s.questionSetKey(gameQuestionID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return domain.QuestionSet{}, errors.NotFound("question set not found: id=%s", gameQuestionID)
	}
	if err != nil {
		return domain.QuestionSet{}, unavailable("get question set", err)
	}

	qs, err := decodeQuestionSet(b)
	if err != nil {
		return domain.QuestionSet{}, errors.Internal(fmt.Errorf("decode question set %s: %w", gameQuestionID, err))
	}

	return qs, nil
}

func (s *Store) CreateQuestionSet(ctx context.Context, qs domain.QuestionSet) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}
	qs.GameQuestionID = id

	b, err := json.Marshal(qs)
	if err != nil {
		return "", fmt.Errorf("marshal question set: %w", err)
	}

	// SETNX keeps the set immutable even if the id were ever reused.
	if err := s.redis.SetNX(ctx, s.questionSetKey(id), b, 0).Err(); err != nil {
		return "", unavailable("create question set", err)
	}

	return id, nil
}

func (s *Store) listParticipants(ctx context.Context, gameID string) ([]domain.Participant, error) {
	ids, err := s.redis.LRange(ctx, s.participantsKey(gameID), 0, -1).Result()
	if err != nil {
		return nil, unavailable("list participants", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, s.participantKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("list participants", err)
	}

	ps := make([]domain.Participant, 0, len(ids))
	for i, id := range ids {
		p, err := decodeParticipant(id, cmds[i].Val())
		if err != nil {
			return nil, errors.Internal(fmt.Errorf("decode participant %s: %w", id, err))
		}
		ps = append(ps, p)
	}

	return ps, nil
}

func (s *Store) publishChange(ctx context.Context, gameID, kind string) {
	// A lost notification only delays subscribers until the next change.
	if err := s.redis.Publish(ctx, s.changesChannel(gameID), kind).Err(); err != nil {
		slog.WarnContext(ctx, "redis: publish change failed", "error", err, "game_id", gameID, "kind", kind)
	}
}

func (s *Store) now(ctx context.Context) (time.Time, error) {
	t, err := s.redis.Time(ctx).Result()
	if err != nil {
		return time.Time{}, unavailable("server time", err)
	}
	return t.UTC(), nil
}

func subscribe[T any](ctx context.Context, s *Store, gameID, name string, load func(ctx context.Context) (T, error), deliver func(T)) (store.Unsubscribe, error) {
	ps := s.redis.Subscribe(ctx, s.changesChannel(gameID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, unavailable("subscribe", err)
	}

	sub := store.Subscribe(ctx, name, load, deliver)
	go func() {
		defer ps.Close()

		ch := ps.Channel()
		for {
			select {
			case <-sub.Done():
				return
			case _, ok := <-ch:
				if !ok {
					sub.Stop()
					return
				}
				sub.Notify()
			}
		}
	}()

	return sub.Stop, nil
}

func (s *Store) gameKey(gameID string) string {
	return fmt.Sprintf("%s:game:{%s}", s.prefix, gameID)
}

func (s *Store) playersKey(gameID string) string {
	return fmt.Sprintf("%s:game:{%s}:players", s.prefix, gameID)
}

func (s *Store) identitiesKey(gameID string) string {
	return fmt.Sprintf("%s:game:{%s}:identities", s.prefix, gameID)
}

func (s *Store) participantsKey(gameID string) string {
	return fmt.Sprintf("%s:game:{%s}:participants", s.prefix, gameID)
}

func (s *Store) changesChannel(gameID string) string {
	return fmt.Sprintf("%s:game:{%s}:changes", s.prefix, gameID)
}

func (s *Store) participantKey(participantID string) string {
	return fmt.Sprintf("%s:participant:{%s}", s.prefix, participantID)
}

func (s *Store) questionSetKey(gameQuestionID string) string {
	return fmt.Sprintf("%s:questions:{%s}", s.prefix, gameQuestionID)
}

func unavailable(op string, err error) error {
	return errors.StoreUnavailable(fmt.Errorf("%s: %w", op, err))
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}
