package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAgingSnapshot persists the daily aging report of every organisation.
	TaskAgingSnapshot = "receivables:aging_snapshot"
	// TaskRunGuardCleanup prunes expired job run keys.
	TaskRunGuardCleanup = "receivables:job_runs_cleanup"
)

// AgingSnapshotPayload scopes an aging snapshot run. An empty OrganizationID
// covers every organisation; an empty AsOf means the current UTC day.
type AgingSnapshotPayload struct {
	OrganizationID string `json:"organization_id,omitempty"`
	AsOf           string `json:"as_of,omitempty"`
}

// NewAgingSnapshotTask constructs an Asynq task for the aging snapshot job.
func NewAgingSnapshotTask(payload AgingSnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAgingSnapshot, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// RunGuardCleanupPayload configures the retention of job run keys.
type RunGuardCleanupPayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewRunGuardCleanupTask constructs the cleanup task.
func NewRunGuardCleanupTask(retentionDays int) (*asynq.Task, error) {
	data, err := json.Marshal(RunGuardCleanupPayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRunGuardCleanup, data, asynq.Queue(QueueDefault)), nil
}

// RunCleaner deletes run keys older than a retention window.
type RunCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewRunGuardCleanupHandler processes TaskRunGuardCleanup tasks.
func NewRunGuardCleanupHandler(cleaner RunCleaner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RunGuardCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.RetentionDays <= 0 {
			payload.RetentionDays = 90
		}
		if err := cleaner.Cleanup(ctx, time.Duration(payload.RetentionDays)*24*time.Hour); err != nil {
			return err
		}
		if logger != nil {
			logger.Info("pruned job run keys", slog.Int("retention_days", payload.RetentionDays))
		}
		return nil
	}
}
