package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pruner deletes rows recorded before a cutoff and reports how many went
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupRecorder receives pruned row counts for metrics
type CleanupRecorder interface {
	RecordCleanup(table string, rows int64)
}

// CleanupTarget is one table pruned by age
type CleanupTarget struct {
	Table     string
	Pruner    Pruner
	Retention time.Duration
}

// CleanupManager periodically removes attempts and webhook events that have
// aged out of their retention period
type CleanupManager struct {
	targets  []CleanupTarget
	metrics  CleanupRecorder
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager. Targets with a
// non-positive retention are never pruned.
func NewCleanupManager(logger *slog.Logger, interval time.Duration, targets ...CleanupTarget) *CleanupManager {
	return &CleanupManager{
		targets:  targets,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// SetMetrics enables cleanup metrics
func (cm *CleanupManager) SetMetrics(m CleanupRecorder) {
	cm.metrics = m
}

// Start begins the periodic cleanup task and blocks until stopped
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce prunes every target. A failing target does not stop the others.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	for _, target := range cm.targets {
		if target.Retention <= 0 {
			continue
		}

		cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		rowsDeleted, err := target.Pruner.DeleteOlderThan(cleanupCtx, cm.now().Add(-target.Retention))
		cancel()
		if err != nil {
			cm.logger.Error("cleanup failed",
				slog.String("table", target.Table),
				slog.Any("error", err))
			continue
		}

		if cm.metrics != nil {
			cm.metrics.RecordCleanup(target.Table, rowsDeleted)
		}
		if rowsDeleted > 0 {
			cm.logger.Info("cleanup completed",
				slog.String("table", target.Table),
				slog.Int64("rows_deleted", rowsDeleted))
		}
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
