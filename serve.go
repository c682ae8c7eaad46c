package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"gtarp/main_backend/api"
	"gtarp/main_backend/logger"
	"gtarp/main_backend/realtime"
	"gtarp/main_backend/workflow"
)

var autoMigrate bool

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  `Start the portal HTTP API, the realtime change feed and the websocket endpoints.`,
		RunE:  runServe,
	}
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Apply pending database migrations before serving")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg
	log := a.logger

	if autoMigrate {
		version, err := a.db.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("auto-migration failed: %w", err)
		}
		log.Info("database migrated", "version", version)
	} else if version, err := a.db.MigrationStatus(ctx); err != nil {
		log.Warn("failed to check migration status", "error", err)
	} else {
		log.Info("current migration version", "version", version)
	}

	gin.SetMode(cfg.Server.Mode)
	gin.DefaultWriter = io.Discard

	timeout := cfg.Workflow.NotificationTimeout
	hub := realtime.NewHub(64, logger.WithComponent("realtime"))
	safeGo(log, "change-feed", func() {
		if err := hub.Run(ctx, a.db); err != nil {
			log.Error("change feed stopped", "error", err)
		}
	})

	server := api.NewServer(api.Deps{
		Users:           a.db,
		Applications:    a.db,
		Submissions:     workflow.NewSubmissionService(a.db, cfg.Workflow.Cooldown(), logger.WithComponent("submissions")),
		Reviews:         workflow.NewReviewService(a.db, a.notifier, a.dedup, a.db, timeout, logger.WithComponent("reviews")),
		Tickets:         workflow.NewTicketService(a.db, a.notifier, a.dedup, a.db, timeout, logger.WithComponent("tickets")),
		Staff:           workflow.NewStaffService(a.db, a.presenceCache(), logger.WithComponent("staff")),
		Notifier:        a.notifier,
		Discord:         a.discord,
		Hub:             hub,
		Sessions:        api.NewSessionIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL),
		GuildID:         cfg.Discord.GuildID,
		BotAPIKey:       cfg.Auth.BotAPIKey,
		LoginTokenTTL:   cfg.Auth.LoginTokenTTL,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RequestTimeout:  cfg.Server.RequestTimeout,
		EligibilityPoll: cfg.Workflow.EligibilityPoll,
		PresencePoll:    cfg.Workflow.PresencePollInterval,
		Logger:          logger.WithComponent("api"),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	safeGo(log, "http-server", func() {
		log.Info("server starting", "address", srv.Addr, "mode", cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	})

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		return err
	}
	log.Info("server exited gracefully")
	return nil
}

// safeGo runs fn on its own goroutine and logs a panic instead of crashing.
func safeGo(log *slog.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("goroutine panicked",
					"goroutine", name,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
