package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"gtarp/main_backend/cache"
	"gtarp/main_backend/config"
	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/discordbot"
	"gtarp/main_backend/logger"
	"gtarp/main_backend/workflow"
)

// app holds the shared resources every command starts from. Optional
// integrations stay nil when they are not configured.
type app struct {
	cfg      *config.Config
	db       *ds.DB
	redis    *redis.Client
	discord  discordbot.Client
	notifier workflow.Notifier
	dedup    workflow.Deduplicator
	logger   *slog.Logger
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger.Get()}

	a.db, err = ds.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Redis.Addr != "" {
		client, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			// Dedup and the presence cache degrade to direct reads.
			a.logger.Warn("redis unavailable, continuing without cache", "error", err)
		} else {
			a.redis = client
			a.dedup = cache.NewNotificationDeduplicator(client, cfg.Workflow.NotificationDedupTTL)
		}
	}

	session, err := discordbot.NewSessionClient(cfg.Discord.BotToken, cfg.Workflow.NotificationTimeout)
	if err != nil {
		a.logger.Warn("discord disabled, notifications will not be sent", "error", err)
	} else {
		a.discord = session
		a.notifier = discordbot.NewDispatcher(session, cfg.Lookup, cfg.Discord.ImageBaseURL, logger.WithComponent("discord"))
	}
	return a, nil
}

func (a *app) presenceCache() workflow.PresenceCache {
	if a.redis == nil {
		return nil
	}
	return cache.NewPresenceCache(a.redis, a.cfg.Workflow.PresencePollInterval)
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", "error", err)
		}
	}
	a.db.Close()
}
