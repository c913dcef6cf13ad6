package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/victornm/flashgame/internal/cards"
	"github.com/victornm/flashgame/internal/config"
	"github.com/victornm/flashgame/internal/errors"
	"github.com/victornm/flashgame/internal/server"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("Load .env failed: %v", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd := &cobra.Command{
		Use:          "flashgame",
		Short:        "Multiplayer flashcard game server",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to the YAML config (defaults to $CONFIG_PATH)")
	cmd.AddCommand(serve)
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the card database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(configPath)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Insert the demo card sets into the card database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), configPath)
		},
	})

	return cmd
}

func runServe(configPath string) error {
	c, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
	return nil
}

func runMigrate(configPath string) error {
	c, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if !c.Postgres.Cards.Enabled() {
		return fmt.Errorf("postgres.cards is not configured")
	}

	if err := cards.Migrate(c.Postgres.Cards.DSN()); err != nil {
		return fmt.Errorf("migrate cards: %w", err)
	}

	slog.Info("migrate: cards schema is up to date")
	return nil
}

func runSeed(ctx context.Context, configPath string) error {
	c, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if !c.Postgres.Cards.Enabled() {
		return fmt.Errorf("postgres.cards is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, c.Postgres.Cards.DSN())
	if err != nil {
		return fmt.Errorf("connect cards: %w", err)
	}
	defer db.Close()

	repo := cards.NewPostgres(db)
	for _, set := range cards.DemoSets() {
		_, err := repo.ListCards(ctx, set.ID)
		switch {
		case err == nil:
			slog.Info("seed: card set already present", "card_set_id", set.ID)
			continue
		case !errors.HasCode(err, errors.CodeNotFound):
			return fmt.Errorf("list cards %s: %w", set.ID, err)
		}

		if err := repo.CreateCardSet(ctx, set.ID, set.Title, set.Cards); err != nil {
			return fmt.Errorf("create card set %s: %w", set.ID, err)
		}
		slog.Info("seed: card set created", "card_set_id", set.ID, "cards", len(set.Cards))
	}

	return nil
}

func loadConfig(p string) (server.Config, error) {
	c := server.DefaultConfig()

	if p == "" {
		return c, fmt.Errorf("config path not set: use --config or CONFIG_PATH")
	}

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return c, fmt.Errorf("log.level: %w", err)
	}
	slog.SetLogLoggerLevel(level)

	return c, nil
}
