package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/receivables/internal/jobs"
	"github.com/odyssey-erp/receivables/internal/ledger"
	"github.com/odyssey-erp/receivables/internal/reporting"
)

const agingSnapshotModule = "aging_snapshot"

// AgingReporter computes uncached aging reports and invalidates cached ones.
type AgingReporter interface {
	ComputeAgingReport(ctx context.Context, orgID uuid.UUID, asOf time.Time) (reporting.AgingReport, error)
	InvalidateCache(ctx context.Context, orgID uuid.UUID) error
}

// SnapshotStore lists organisations and persists their snapshots.
type SnapshotStore interface {
	ListOrganizations(ctx context.Context) ([]ledger.Organization, error)
	SaveAgingSnapshot(ctx context.Context, snap ledger.AgingSnapshot) error
}

// RunGuard records which snapshot keys were already processed.
type RunGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key string) error
}

// AgingSnapshotJob stores one aging snapshot per organisation and day.
type AgingSnapshotJob struct {
	Reports AgingReporter
	Store   SnapshotStore
	Guard   RunGuard
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAgingSnapshotJob constructs the job handler.
func NewAgingSnapshotJob(reports AgingReporter, store SnapshotStore, guard RunGuard, logger *slog.Logger, metrics *jobmetrics.Metrics) *AgingSnapshotJob {
	return &AgingSnapshotJob{
		Reports: reports,
		Store:   store,
		Guard:   guard,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// SnapshotKey is the run guard key of one organisation and day.
func SnapshotKey(orgID uuid.UUID, asOf time.Time) string {
	return fmt.Sprintf("%s:%s:%s", agingSnapshotModule, orgID, asOf.Format(time.DateOnly))
}

// Handle executes the aging snapshot job.
func (j *AgingSnapshotJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Reports == nil || j.Store == nil {
		return errors.New("aging snapshot: dependencies not configured")
	}
	var payload AgingSnapshotPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("aging snapshot: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	asOf, orgFilter, err := j.resolvePayload(payload)
	if err != nil {
		return fmt.Errorf("aging snapshot: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(agingSnapshotModule)
	saved, skipped, err := j.Run(ctx, asOf, orgFilter)
	j.Metrics.AddSnapshots("saved", saved)
	j.Metrics.AddSnapshots("skipped", skipped)
	return tracker.End(err)
}

// Run snapshots the organisations matching orgFilter (all when uuid.Nil) as of
// asOf's UTC day and reports how many were saved and skipped.
func (j *AgingSnapshotJob) Run(ctx context.Context, asOf time.Time, orgFilter uuid.UUID) (saved, skipped int, err error) {
	asOf = reporting.ReportDate(asOf)
	orgs, err := j.Store.ListOrganizations(ctx)
	if err != nil {
		j.log().Error("list organizations", slog.Any("error", err))
		return 0, 0, err
	}

	start := j.now()
	for _, org := range orgs {
		if orgFilter != uuid.Nil && org.ID != orgFilter {
			continue
		}
		key := SnapshotKey(org.ID, asOf)
		if j.Guard != nil {
			if err := j.Guard.CheckAndInsert(ctx, key, agingSnapshotModule); err != nil {
				if errors.Is(err, ledger.ErrAlreadyProcessed) {
					skipped++
					continue
				}
				return saved, skipped, err
			}
		}
		if err := j.snapshot(ctx, org, asOf); err != nil {
			j.release(ctx, key)
			j.log().Error("aging snapshot", slog.String("org_id", org.ID.String()), slog.Any("error", err))
			return saved, skipped, err
		}
		saved++
		if err := j.Reports.InvalidateCache(ctx, org.ID); err != nil {
			j.log().Warn("bump report cache", slog.String("org_id", org.ID.String()), slog.Any("error", err))
		}
	}

	j.log().Info("aging snapshots stored",
		slog.String("as_of", asOf.Format(time.DateOnly)),
		slog.Int("saved", saved),
		slog.Int("skipped", skipped),
		slog.Duration("duration", time.Since(start)))
	return saved, skipped, nil
}

func (j *AgingSnapshotJob) snapshot(ctx context.Context, org ledger.Organization, asOf time.Time) error {
	report, err := j.Reports.ComputeAgingReport(ctx, org.ID, asOf)
	if err != nil {
		return err
	}
	return j.Store.SaveAgingSnapshot(ctx, ledger.AgingSnapshot{
		OrganizationID: org.ID,
		AsOf:           report.AsOf,
		BaseCurrency:   report.BaseCurrency,
		Buckets:        report.Buckets,
		InvoiceCount:   report.InvoiceCount,
	})
}

func (j *AgingSnapshotJob) release(ctx context.Context, key string) {
	if j.Guard == nil {
		return
	}
	if err := j.Guard.Release(ctx, key); err != nil {
		j.log().Warn("release run key", slog.String("key", key), slog.Any("error", err))
	}
}

func (j *AgingSnapshotJob) resolvePayload(payload AgingSnapshotPayload) (time.Time, uuid.UUID, error) {
	asOf := j.now()
	if s := strings.TrimSpace(payload.AsOf); s != "" {
		parsed, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return time.Time{}, uuid.Nil, fmt.Errorf("invalid as_of %q", s)
		}
		asOf = parsed
	}
	orgID := uuid.Nil
	if s := strings.TrimSpace(payload.OrganizationID); s != "" {
		parsed, err := uuid.Parse(s)
		if err != nil {
			return time.Time{}, uuid.Nil, fmt.Errorf("invalid organization_id %q", s)
		}
		orgID = parsed
	}
	return asOf, orgID, nil
}

func (j *AgingSnapshotJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *AgingSnapshotJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
