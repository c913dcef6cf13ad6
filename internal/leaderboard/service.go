// Package leaderboard keeps the live standings of games in progress.
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
	"github.com/victornm/flashgame/internal/event"
)

const (
	defaultPublishInterval = 200 * time.Millisecond
	completedTTL           = time.Hour
)

type Config struct {
	EventBus        *event.Bus
	Redis           redis.UniversalClient
	Prefix          string
	Clock           clockwork.Clock
	PublishInterval time.Duration
}

type Service struct {
	eb       *event.Bus
	redis    redis.UniversalClient
	prefix   string
	clock    clockwork.Clock
	interval time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		eb:       c.EventBus,
		redis:    c.Redis,
		prefix:   c.Prefix,
		clock:    c.Clock,
		interval: c.PublishInterval,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.interval <= 0 {
		s.interval = defaultPublishInterval
	}

	event.On(s.eb, func(ctx context.Context, e domain.EventParticipantJoined) error {
		return s.AddParticipant(ctx, e.GameID, e.Player.ParticipantID)
	})
	event.On(s.eb, func(ctx context.Context, e domain.EventScoreUpdated) error {
		return s.UpdateScore(ctx, e)
	})
	event.On(s.eb, func(ctx context.Context, e domain.EventGameCompleted) error {
		if err := s.redis.Expire(ctx, s.standingsKey(e.GameID), completedTTL).Err(); err != nil {
			return unavailable("expire standings", err)
		}
		return nil
	})

	return s
}

type GetStandingsRequest struct {
	GameID string
}

// GetStandings returns the live scores of a game, highest first.
func (s *Service) GetStandings(ctx context.Context, req GetStandingsRequest) (*domain.Standings, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.standingsKey(req.GameID), 0, -1).Result()
	if err != nil {
		return nil, unavailable("get standings", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("standings not found: game=%s", req.GameID))
	}

	entries := make([]domain.StandingsEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.StandingsEntry{
			ParticipantID: z.Member.(string),
			Score:         int(z.Score),
		})
	}

	return &domain.Standings{
		GameID:  req.GameID,
		Entries: entries,
	}, nil
}

// AddParticipant lists a participant with a zero score unless already listed.
func (s *Service) AddParticipant(ctx context.Context, gameID, participantID string) error {
	if err := s.redis.ZAddNX(ctx, s.standingsKey(gameID), redis.Z{Member: participantID}).Err(); err != nil {
		return unavailable("add participant", err)
	}
	return s.schedulePublish(ctx, gameID)
}

// UpdateScore raises the participant's live score. A lower score than the listed one is ignored.
func (s *Service) UpdateScore(ctx context.Context, e domain.EventScoreUpdated) error {
	if err := s.redis.ZAddGT(ctx, s.standingsKey(e.GameID), redis.Z{
		Score:  float64(e.Score),
		Member: e.ParticipantID,
	}).Err(); err != nil {
		return unavailable("update standings", err)
	}

	return s.schedulePublish(ctx, e.GameID)
}

// schedulePublish publishes the standings once per interval. The first change in an interval
// opens a window; the standings are read and published when it closes, so bursts of score
// changes collapse into one event carrying the latest scores.
func (s *Service) schedulePublish(ctx context.Context, gameID string) error {
	// The window key keeps several instances from publishing the same window.
	ok, err := s.redis.SetNX(ctx, s.windowKey(gameID), s.clock.Now().UnixMilli(), 10*s.interval).Result()
	if err != nil {
		return unavailable("open publish window", err)
	}

	if !ok {
		return nil
	}

	s.clock.AfterFunc(s.interval, func() {
		if err := s.publish(context.Background(), gameID); err != nil {
			slog.Error("leaderboard: publish standings failed", "error", err, "game_id", gameID)
		}
	})

	return nil
}

func (s *Service) publish(ctx context.Context, gameID string) error {
	if err := s.redis.Del(ctx, s.windowKey(gameID)).Err(); err != nil {
		return unavailable("close publish window", err)
	}

	st, err := s.GetStandings(ctx, GetStandingsRequest{GameID: gameID})
	if err != nil {
		return fmt.Errorf("get standings failed: game=%s: %w", gameID, err)
	}

	s.eb.Publish(ctx, domain.EventStandingsUpdated{Standings: *st})
	return nil
}

// unavailable reports a failed redis call as a retryable store error.
func unavailable(op string, err error) error {
	return errors.StoreUnavailable(fmt.Errorf("%s: %w", op, err))
}

func (s *Service) standingsKey(gameID string) string {
	return fmt.Sprintf("%s:game:{%s}:standings", s.prefix, gameID)
}

func (s *Service) windowKey(gameID string) string {
	return fmt.Sprintf("%s:game:{%s}:standings:window", s.prefix, gameID)
}
