package main

import (
	"context"
	"log/slog"

	"github.com/MikeSquared-Agency/debrief/internal/config"
	"github.com/MikeSquared-Agency/debrief/internal/hermes"
	"github.com/MikeSquared-Agency/debrief/internal/runner"
	"github.com/MikeSquared-Agency/debrief/internal/slack"
	"github.com/MikeSquared-Agency/debrief/internal/store"
)

// collaborators holds the optional outputs of a run. Every one of them is
// skipped when unconfigured or unreachable.
type collaborators struct {
	deps   runner.Deps
	hermes *hermes.Client
	db     *store.Store
}

func connect(ctx context.Context, cfg config.Config) *collaborators {
	c := &collaborators{}

	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Warn("run history disabled, database unreachable", "error", err)
		} else if err := db.Migrate(ctx); err != nil {
			slog.Warn("run history disabled, migration failed", "error", err)
			db.Close()
		} else {
			c.db = db
			c.deps.Store = db
			slog.Info("database connected")
		}
	}

	if cfg.NatsURL != "" {
		hc, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Warn("NATS disabled", "error", err)
		} else {
			c.hermes = hc
			c.deps.Publisher = hc
			slog.Info("NATS connected", "url", cfg.NatsURL)
		}
	}

	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		c.deps.Notifier = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	}

	return c
}

func (c *collaborators) Close() {
	if c.hermes != nil {
		c.hermes.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
}
