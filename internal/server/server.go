package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/flashgame/internal/api"
	"github.com/victornm/flashgame/internal/cards"
	"github.com/victornm/flashgame/internal/detector"
	"github.com/victornm/flashgame/internal/event"
	"github.com/victornm/flashgame/internal/join"
	"github.com/victornm/flashgame/internal/leaderboard"
	"github.com/victornm/flashgame/internal/play"
	"github.com/victornm/flashgame/internal/ranking"
	"github.com/victornm/flashgame/internal/session"
	redisstore "github.com/victornm/flashgame/internal/store/redis"
	"github.com/victornm/flashgame/internal/telemetry"
)

type Config struct {
	Log struct {
		Level string
	}

	HTTP struct {
		Port int32
	}

	Redis struct {
		Store  Redis
		Pubsub Redis
	}

	Postgres struct {
		// Cards is optional. The demo card sets are served when it is not configured.
		Cards Postgres
	}

	Game struct {
		MatchingRevealDelay time.Duration
		ChoiceRevealDelay   time.Duration
		SweepInterval       time.Duration
		CompletionGrace     time.Duration
		StandingsInterval   time.Duration
		WriteAttempts       int
	}
}

type Redis struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type Postgres struct {
	Addr string
	User string
	Pass string
	Name string
}

func (p Postgres) Enabled() bool { return p.Addr != "" }

func (p Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s", p.User, p.Pass, p.Addr, p.Name)
}

// DefaultConfig returns the config values used when neither the file nor the environment sets them.
func DefaultConfig() Config {
	var c Config
	c.Log.Level = "info"
	c.HTTP.Port = 8080
	c.Redis.Store.Addrs = []string{"localhost:6379"}
	c.Redis.Store.Prefix = "flashgame"
	c.Redis.Pubsub.Addrs = []string{"localhost:6379"}
	c.Redis.Pubsub.Prefix = "flashgame:pubsub"
	c.Game.MatchingRevealDelay = 500 * time.Millisecond
	c.Game.ChoiceRevealDelay = time.Second
	c.Game.SweepInterval = 5 * time.Second
	c.Game.CompletionGrace = detector.DefaultGrace
	c.Game.StandingsInterval = 200 * time.Millisecond
	c.Game.WriteAttempts = 3
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			store  redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres struct {
			cards *pgxpool.Pool
		}
	}

	store *redisstore.Store

	service struct {
		session     *session.Service
		join        *join.Coordinator
		play        *play.Service
		ranking     *ranking.Service
		leaderboard *leaderboard.Service
		detector    *detector.Detector
	}

	api       *api.API
	scheduler gocron.Scheduler
	http      *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()

	if _, err := telemetry.MonitorGames(prometheus.DefaultRegisterer, s.eb); err != nil {
		return nil, fmt.Errorf("server: init telemetry: %w", err)
	}

	s.initAPI()

	if err := s.initScheduler(); err != nil {
		return nil, fmt.Errorf("server: init scheduler: %w", err)
	}

	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.store, err = connect(s.c.Redis.Store.Addrs, s.c.Redis.Store.Pass)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() error {
	if !s.c.Postgres.Cards.Enabled() {
		slog.Info("server: postgres cards not configured, serving demo card sets")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(s.c.Postgres.Cards.DSN())
	if err != nil {
		return fmt.Errorf("cards: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("cards: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return fmt.Errorf("cards: %w", err)
	}

	s.infra.postgres.cards = db
	return nil
}

func (s *Server) initService() {
	s.store = redisstore.New(redisstore.Config{
		Redis:  s.infra.redis.store,
		Prefix: s.c.Redis.Store.Prefix,
	})
	st := s.store

	var cs cards.Repository = cards.Demo()
	if s.infra.postgres.cards != nil {
		cs = cards.NewPostgres(s.infra.postgres.cards)
	}

	s.service.session = session.NewService(session.Config{
		Store:    st,
		Cards:    cs,
		EventBus: s.eb,
	})

	s.service.join = join.NewCoordinator(join.Config{
		Store:    st,
		EventBus: s.eb,
	})

	s.service.play = play.NewService(play.Config{
		Store:               st,
		EventBus:            s.eb,
		MatchingRevealDelay: s.c.Game.MatchingRevealDelay,
		ChoiceRevealDelay:   s.c.Game.ChoiceRevealDelay,
		WriteAttempts:       s.c.Game.WriteAttempts,
	})

	s.service.detector = detector.New(detector.Config{
		Store:     st,
		Completer: s.service.session,
		EventBus:  s.eb,
		Grace:     s.c.Game.CompletionGrace,
	})

	s.service.ranking = ranking.NewService(ranking.Config{
		Store: st,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus:        s.eb,
		Redis:           s.infra.redis.store,
		Prefix:          s.c.Redis.Store.Prefix,
		PublishInterval: s.c.Game.StandingsInterval,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.ContextWithFallback = true
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.api = api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Store:        s.store,
		Session:      s.service.session,
		Join:         s.service.join,
		Play:         s.service.play,
		Ranking:      s.service.ranking,
		Leaderboard:  s.service.leaderboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// initScheduler sweeps watched games periodically so a game whose host left still completes
// at its deadline.
func (s *Server) initScheduler() error {
	var err error
	s.scheduler, err = gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = s.scheduler.NewJob(
		gocron.DurationJob(s.c.Game.SweepInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.c.Game.SweepInterval)
			defer cancel()

			s.service.detector.Sweep(ctx)
		}),
		gocron.WithName("detector-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}

func (s *Server) Start() {
	ctx := context.TODO()

	s.scheduler.Start()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.api.Close()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	if err := s.scheduler.Shutdown(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown scheduler failed", "error", err)
	}

	// Timers stop before the progress writers flush.
	s.service.detector.Close()
	s.service.session.Close()
	s.service.play.Close()

	s.eb.Stop()

	if err := s.infra.redis.store.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis store failed", "error", err)
	}
	if err := s.infra.redis.pubsub.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis pubsub failed", "error", err)
	}
	if s.infra.postgres.cards != nil {
		s.infra.postgres.cards.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
