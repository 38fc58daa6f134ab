package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/projectvision/vision/pkg/observability"
	"github.com/robfig/cron/v3"
)

// Cleaner removes entries past their retention
type Cleaner interface {
	Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error)
}

// RunRetention runs a single cleanup pass
func RunRetention(ctx context.Context, cleaner Cleaner, policy RetentionPolicy, logger *observability.Logger) (int64, error) {
	start := time.Now()
	deleted, err := cleaner.Cleanup(ctx, policy)
	if err != nil {
		logger.WithError(err).Error("Audit retention cleanup failed")
		return 0, err
	}

	logger.WithFields(map[string]interface{}{
		"deleted":        deleted,
		"retention_days": policy.RetentionDays,
		"duration_ms":    time.Since(start).Milliseconds(),
	}).Info("Audit retention cleanup completed")
	return deleted, nil
}

// ScheduleRetention registers the cleanup job on a cron scheduler
func ScheduleRetention(c *cron.Cron, schedule string, cleaner Cleaner, policy RetentionPolicy, logger *observability.Logger) (cron.EntryID, error) {
	if policy.RetentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", policy.RetentionDays)
	}

	id, err := c.AddFunc(schedule, func() {
		defer observability.RecoverPanic(logger, "audit retention")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		_, _ = RunRetention(ctx, cleaner, policy, logger)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to schedule audit retention: %w", err)
	}
	return id, nil
}
