package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/scribe/internal/background"
	"github.com/BradenHooton/scribe/internal/config"
	"github.com/BradenHooton/scribe/internal/database"
	"github.com/BradenHooton/scribe/internal/phi"
	"github.com/BradenHooton/scribe/internal/services"
)

// The purger tombstones accounts whose deletion grace period has elapsed.
// Pass -once to run a single pass and exit (for an external scheduler).
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("component", "purger"))
	slog.SetDefault(logger)

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Purge justifications are fixed text, so scoring is optional here too
	var scorer services.PHIScorer = phi.NoopScorer{}
	if cfg.PHI.ScorerURL != "" {
		scorer = phi.NewClient(cfg.PHI.ScorerURL, cfg.PHI.Timeout, logger)
	}

	purgeService := services.NewPurgeService(
		services.NewPgTransactor(db),
		services.NewAuditLogger(scorer, logger),
		logger,
	)

	manager, err := background.NewPurgeManager(purgeService, logger, cfg.Purge.Schedule, cfg.Purge.BatchSize, cfg.Purge.Timeout)
	if err != nil {
		logger.Error("failed to create purge manager", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(os.Args) > 1 && os.Args[1] == "-once" {
		start := time.Now()
		manager.RunOnce(ctx)
		logger.Info("single purge pass finished", slog.Duration("duration", time.Since(start)))
		return
	}

	if err := manager.Start(ctx); err != nil {
		logger.Error("purge manager failed", slog.Any("error", err))
		os.Exit(1)
	}
}
