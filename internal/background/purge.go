package background

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/scribe/internal/metrics"
	"github.com/BradenHooton/scribe/internal/services"
	"github.com/robfig/cron/v3"
)

// Purger tombstones accounts whose deletion grace period has elapsed.
type Purger interface {
	PurgeDue(ctx context.Context, batchSize int) (*services.PurgeResult, error)
}

// PurgeManager runs the purge job on a cron schedule
type PurgeManager struct {
	purger    Purger
	logger    *slog.Logger
	schedule  string
	batchSize int
	timeout   time.Duration
	scheduler *cron.Cron
	stopCh    chan struct{}
}

// NewPurgeManager validates schedule and creates a new purge manager
func NewPurgeManager(purger Purger, logger *slog.Logger, schedule string, batchSize int, timeout time.Duration) (*PurgeManager, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}

	return &PurgeManager{
		purger:    purger,
		logger:    logger,
		schedule:  schedule,
		batchSize: batchSize,
		timeout:   timeout,
		scheduler: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start runs one purge immediately, then on every tick of the schedule, until
// ctx is cancelled or Stop is called.
func (pm *PurgeManager) Start(ctx context.Context) error {
	if _, err := pm.scheduler.AddFunc(pm.schedule, func() { pm.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule purge: %w", err)
	}

	// Run immediately on startup
	pm.RunOnce(ctx)

	pm.scheduler.Start()
	pm.logger.Info("purge manager started", slog.String("schedule", pm.schedule))

	select {
	case <-pm.stopCh:
		pm.logger.Info("purge manager stopped")
	case <-ctx.Done():
		pm.logger.Info("purge manager context cancelled")
	}

	// wait for an in-flight run to finish
	<-pm.scheduler.Stop().Done()
	return nil
}

// RunOnce performs a single purge pass bounded by the configured timeout.
func (pm *PurgeManager) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, pm.timeout)
	defer cancel()

	start := time.Now()
	result, err := pm.purger.PurgeDue(runCtx, pm.batchSize)
	metrics.ObservePurgeRun(time.Since(start))
	if err != nil {
		pm.logger.Error("purge run failed", slog.Any("error", err))
		return
	}

	if result.Purged > 0 || result.Skipped > 0 || result.Failed > 0 {
		pm.logger.Info("purge run completed",
			slog.Int("purged", result.Purged),
			slog.Int("skipped", result.Skipped),
			slog.Int("failed", result.Failed),
			slog.Duration("duration", time.Since(start)))
	}
}

// Stop signals the purge manager to stop
func (pm *PurgeManager) Stop() {
	close(pm.stopCh)
}
