package background

import (
	"context"
	"log/slog"
	"time"
)

// AttemptCleaner removes login attempts past their retention time
type AttemptCleaner interface {
	DeleteExpiredAttempts(ctx context.Context) (int64, error)
}

// AuditCleaner removes audit entries older than the retention period
type AuditCleaner interface {
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
}

// WindowCleaner removes stale rate limit counter rows
type WindowCleaner interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically applies the retention policy: expired
// attempt rows, aged audit entries and stale rate limit windows.
type CleanupManager struct {
	attempts           AttemptCleaner
	audits             AuditCleaner
	windows            WindowCleaner
	logger             *slog.Logger
	interval           time.Duration
	auditRetentionDays int
	stopCh             chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	attempts AttemptCleaner,
	audits AuditCleaner,
	windows WindowCleaner,
	logger *slog.Logger,
	interval time.Duration,
	auditRetentionDays int,
) *CleanupManager {
	return &CleanupManager{
		attempts:           attempts,
		audits:             audits,
		windows:            windows,
		logger:             logger,
		interval:           interval,
		auditRetentionDays: auditRetentionDays,
		stopCh:             make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if deleted, err := cm.attempts.DeleteExpiredAttempts(cleanupCtx); err != nil {
		cm.logger.Error("failed to cleanup expired login attempts", slog.Any("error", err))
	} else if deleted > 0 {
		cm.logger.Info("expired login attempts removed", slog.Int64("rows_deleted", deleted))
	}

	if deleted, err := cm.audits.Cleanup(cleanupCtx, cm.auditRetentionDays); err != nil {
		cm.logger.Error("failed to cleanup aged audit logs", slog.Any("error", err))
	} else if deleted > 0 {
		cm.logger.Info("aged audit logs removed", slog.Int64("rows_deleted", deleted))
	}

	// Windows only matter inside their own span; anything older than a
	// day is dead weight for every shipped policy.
	cutoff := time.Now().UTC().Add(-48 * time.Hour)
	if deleted, err := cm.windows.DeleteStale(cleanupCtx, cutoff); err != nil {
		cm.logger.Error("failed to cleanup stale rate limit windows", slog.Any("error", err))
	} else if deleted > 0 {
		cm.logger.Info("stale rate limit windows removed", slog.Int64("rows_deleted", deleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
