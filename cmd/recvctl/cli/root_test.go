package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/receivables/internal/app"
	"github.com/odyssey-erp/receivables/internal/money"
	"github.com/odyssey-erp/receivables/internal/receivables"
	"github.com/odyssey-erp/receivables/internal/reporting"
	"github.com/odyssey-erp/receivables/jobs"
)

type stubAging struct {
	asOf time.Time
}

func (s *stubAging) AgingReport(ctx context.Context, orgID uuid.UUID, asOf time.Time) (reporting.AgingReport, error) {
	s.asOf = asOf
	buckets := receivables.AgingBuckets{Current: money.MustParse("0.1"), Over90Days: money.MustParse("0.2")}
	return reporting.AgingReport{
		OrganizationID: orgID,
		BaseCurrency:   "USD",
		AsOf:           reporting.ReportDate(asOf),
		Buckets:        buckets,
		Total:          buckets.Total(),
		InvoiceCount:   2,
	}, nil
}

type stubEnqueuer struct {
	payload jobs.AgingSnapshotPayload
	closed  bool
}

func (s *stubEnqueuer) EnqueueAgingSnapshot(ctx context.Context, payload jobs.AgingSnapshotPayload) (*asynq.TaskInfo, error) {
	s.payload = payload
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error {
	s.closed = true
	return nil
}

var cliNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testOptions(stdout *bytes.Buffer, aging *stubAging, enq *stubEnqueuer) Options {
	return Options{
		Stdout:     stdout,
		Stderr:     new(bytes.Buffer),
		LoadConfig: func() (*app.Config, error) { return &app.Config{}, nil },
		OpenReports: func(ctx context.Context, cfg *app.Config) (AgingLoader, func(), error) {
			return aging, nil, nil
		},
		OpenJobs: func(cfg *app.Config) (SnapshotEnqueuer, error) { return enq, nil },
		Now:      func() time.Time { return cliNow },
	}
}

func run(opts Options, args ...string) error {
	root := NewRootCommand(opts)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestAgingCommandPrintsJSON(t *testing.T) {
	stdout := new(bytes.Buffer)
	aging := &stubAging{}
	orgID := uuid.New()

	require.NoError(t, run(testOptions(stdout, aging, nil), "aging", "--org", orgID.String(), "--as-of", "2025-05-31"))
	require.True(t, aging.asOf.Equal(time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)))

	var report reporting.AgingReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	require.Equal(t, orgID, report.OrganizationID)
	require.Equal(t, "0.3", report.Total.String())
}

func TestAgingCommandDefaultsToNow(t *testing.T) {
	aging := &stubAging{}
	require.NoError(t, run(testOptions(new(bytes.Buffer), aging, nil), "aging", "--org", uuid.NewString()))
	require.True(t, aging.asOf.Equal(cliNow))
}

func TestAgingCommandValidatesFlags(t *testing.T) {
	opts := testOptions(new(bytes.Buffer), &stubAging{}, nil)
	require.Error(t, run(opts, "aging"))
	require.ErrorContains(t, run(opts, "aging", "--org", "acme"), "invalid --org")
	require.ErrorContains(t, run(opts, "aging", "--org", uuid.NewString(), "--as-of", "yesterday"), "invalid --as-of")
}

func TestJobsTriggerAgingSnapshot(t *testing.T) {
	stdout := new(bytes.Buffer)
	enq := &stubEnqueuer{}
	orgID := uuid.NewString()

	require.NoError(t, run(testOptions(stdout, nil, enq), "jobs", "trigger", "aging-snapshot", "--org", orgID, "--as-of", "2025-05-31"))
	require.Equal(t, jobs.AgingSnapshotPayload{OrganizationID: orgID, AsOf: "2025-05-31"}, enq.payload)
	require.True(t, enq.closed)
	require.Contains(t, stdout.String(), "enqueued receivables:aging_snapshot id=task-1")
}

func TestMigrateCommand(t *testing.T) {
	stdout := new(bytes.Buffer)
	opts := testOptions(stdout, nil, nil)
	called := false
	opts.Migrate = func(cfg *app.Config, logger *slog.Logger) error {
		called = true
		return nil
	}
	require.NoError(t, run(opts, "migrate"))
	require.True(t, called)
	require.Contains(t, stdout.String(), "migrations applied")

	opts.Migrate = func(cfg *app.Config, logger *slog.Logger) error { return errors.New("dirty database") }
	require.EqualError(t, run(opts, "migrate"), "dirty database")
}
