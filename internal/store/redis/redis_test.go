package redis_test

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
	"github.com/victornm/flashgame/internal/store"
	"github.com/victornm/flashgame/internal/store/redis"
	"github.com/victornm/flashgame/internal/store/storetest"
)

func makeStore(t *testing.T, hooks ...goredis.Hook) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs: []string{s.Addr()},
	})
	t.Cleanup(func() { _ = client.Close() })
	for _, h := range hooks {
		client.AddHook(h)
	}

	return redis.New(redis.Config{Redis: client, Prefix: "test"}), s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Gateway {
		st, _ := makeStore(t)
		return st
	})
}

func TestStore_CorruptSessionIsInternal(t *testing.T) {
	st, s := makeStore(t)

	s.HSet("test:game:{g1}", "status", "paused", "quizType", "matching")

	_, err := st.GetSession(context.Background(), "g1")
	require.True(t, errors.HasCode(err, errors.CodeInternal), "got %v", err)
}

func TestStore_UnavailableWhenServerDown(t *testing.T) {
	st, s := makeStore(t)
	s.Close()

	_, err := st.GetSession(context.Background(), "g1")
	require.True(t, errors.HasReason(err, errors.ReasonStoreUnavailable), "got %v", err)
	require.True(t, errors.Convert(err).Retryable())
}

// refusePublish fails every PUBLISH while leaving other commands alone.
type refusePublish struct{}

func (refusePublish) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (refusePublish) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if cmd.Name() == "publish" {
			err := stderrors.New("publish refused")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (refusePublish) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func TestStore_PublishFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	st, _ := makeStore(t, refusePublish{})
	ctx := context.Background()

	gameID, err := st.CreateSession(ctx, domain.SessionConfig{
		HostUserID:       "host",
		CardSetID:        "set-1",
		QuizType:         domain.QuizTypeMatching,
		QuestionQty:      2,
		TimeLimitSeconds: 60,
		GameQuestionID:   "gq-1",
	})
	require.NoError(t, err)

	_, err = st.CreateParticipant(ctx, gameID, domain.ParticipantInfo{Username: "A", IdentityKey: "guest:a"})
	require.NoError(t, err, "the write succeeds even when its notification is lost")

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, "redis: publish change failed")
	assert.Contains(t, out, `"game_id":"`+gameID+`"`)
	assert.Contains(t, out, "publish refused")
}
