package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/receivables/internal/jobs"
	"github.com/odyssey-erp/receivables/internal/ledger"
	"github.com/odyssey-erp/receivables/internal/money"
	"github.com/odyssey-erp/receivables/internal/receivables"
	"github.com/odyssey-erp/receivables/internal/reporting"
)

type stubReports struct {
	asOf  []time.Time
	bumps []uuid.UUID
	err   error
}

func (s *stubReports) ComputeAgingReport(ctx context.Context, orgID uuid.UUID, asOf time.Time) (reporting.AgingReport, error) {
	s.asOf = append(s.asOf, asOf)
	if s.err != nil {
		return reporting.AgingReport{}, s.err
	}
	buckets := receivables.AgingBuckets{Current: money.MustParse("10"), ThirtyDays: money.MustParse("2.5")}
	return reporting.AgingReport{
		OrganizationID: orgID,
		BaseCurrency:   "USD",
		AsOf:           reporting.ReportDate(asOf),
		Buckets:        buckets,
		Total:          buckets.Total(),
		InvoiceCount:   2,
	}, nil
}

func (s *stubReports) InvalidateCache(ctx context.Context, orgID uuid.UUID) error {
	s.bumps = append(s.bumps, orgID)
	return nil
}

type stubStore struct {
	orgs  []ledger.Organization
	saved []ledger.AgingSnapshot
}

func (s *stubStore) ListOrganizations(ctx context.Context) ([]ledger.Organization, error) {
	return s.orgs, nil
}

func (s *stubStore) SaveAgingSnapshot(ctx context.Context, snap ledger.AgingSnapshot) error {
	s.saved = append(s.saved, snap)
	return nil
}

type memoryGuard struct {
	mu   sync.Mutex
	keys map[string]string
}

func (g *memoryGuard) CheckAndInsert(ctx context.Context, key, module string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys == nil {
		g.keys = make(map[string]string)
	}
	if _, ok := g.keys[key]; ok {
		return ledger.ErrAlreadyProcessed
	}
	g.keys[key] = module
	return nil
}

func (g *memoryGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

var jobNow = time.Date(2025, 3, 10, 23, 45, 0, 0, time.UTC)

func newTestJob(reports *stubReports, store *stubStore, guard *memoryGuard) *AgingSnapshotJob {
	job := NewAgingSnapshotJob(reports, store, guard, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return jobNow }
	return job
}

func twoOrgs() []ledger.Organization {
	return []ledger.Organization{
		{ID: uuid.New(), Name: "Acme", BaseCurrency: "USD"},
		{ID: uuid.New(), Name: "Globex", BaseCurrency: "EUR"},
	}
}

func TestAgingSnapshotStoresEveryOrganization(t *testing.T) {
	reports := &stubReports{}
	store := &stubStore{orgs: twoOrgs()}
	guard := &memoryGuard{}
	job := newTestJob(reports, store, guard)

	task, err := NewAgingSnapshotTask(AgingSnapshotPayload{})
	require.NoError(t, err)
	require.Equal(t, TaskAgingSnapshot, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, store.saved, 2)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, snap := range store.saved {
		require.True(t, snap.AsOf.Equal(day))
		require.Equal(t, "12.5", snap.Buckets.Total().String())
		require.Equal(t, 2, snap.InvoiceCount)
	}
	require.Equal(t, []uuid.UUID{store.orgs[0].ID, store.orgs[1].ID}, reports.bumps)
	require.Contains(t, guard.keys, SnapshotKey(store.orgs[0].ID, day))
}

func TestAgingSnapshotRunsOncePerDay(t *testing.T) {
	reports := &stubReports{}
	store := &stubStore{orgs: twoOrgs()}
	job := newTestJob(reports, store, &memoryGuard{})
	ctx := context.Background()

	saved, skipped, err := job.Run(ctx, jobNow, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, 2, saved)
	require.Zero(t, skipped)

	saved, skipped, err = job.Run(ctx, jobNow.Add(-time.Hour), uuid.Nil)
	require.NoError(t, err)
	require.Zero(t, saved)
	require.Equal(t, 2, skipped)
	require.Len(t, store.saved, 2)
	require.Len(t, reports.bumps, 2)
}

func TestAgingSnapshotHonoursPayloadScope(t *testing.T) {
	reports := &stubReports{}
	store := &stubStore{orgs: twoOrgs()}
	job := newTestJob(reports, store, &memoryGuard{})

	body, err := json.Marshal(AgingSnapshotPayload{OrganizationID: store.orgs[1].ID.String(), AsOf: "2024-12-31"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskAgingSnapshot, body)))

	require.Len(t, store.saved, 1)
	require.Equal(t, store.orgs[1].ID, store.saved[0].OrganizationID)
	require.True(t, store.saved[0].AsOf.Equal(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)))
}

func TestAgingSnapshotReleasesKeyOnFailure(t *testing.T) {
	reports := &stubReports{err: errors.New("db down")}
	store := &stubStore{orgs: twoOrgs()[:1]}
	guard := &memoryGuard{}
	job := newTestJob(reports, store, guard)

	_, _, err := job.Run(context.Background(), jobNow, uuid.Nil)
	require.EqualError(t, err, "db down")
	require.Empty(t, guard.keys)
	require.Empty(t, reports.bumps)

	reports.err = nil
	saved, _, err := job.Run(context.Background(), jobNow, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, 1, saved)
}

func TestAgingSnapshotRejectsMalformedPayload(t *testing.T) {
	job := newTestJob(&stubReports{}, &stubStore{}, &memoryGuard{})
	ctx := context.Background()

	err := job.Handle(ctx, asynq.NewTask(TaskAgingSnapshot, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	body, _ := json.Marshal(AgingSnapshotPayload{AsOf: "10/03/2025"})
	err = job.Handle(ctx, asynq.NewTask(TaskAgingSnapshot, body))
	require.ErrorIs(t, err, asynq.SkipRetry)

	body, _ = json.Marshal(AgingSnapshotPayload{OrganizationID: "acme"})
	err = job.Handle(ctx, asynq.NewTask(TaskAgingSnapshot, body))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSnapshotKey(t *testing.T) {
	orgID := uuid.MustParse("8f14e45f-ceea-467f-a0e6-7a1a2b9c1d11")
	require.Equal(t, "aging_snapshot:8f14e45f-ceea-467f-a0e6-7a1a2b9c1d11:2025-03-10", SnapshotKey(orgID, jobNow))
}

type ledgerRepo struct {
	org      ledger.Organization
	invoices []ledger.Invoice
	payments []ledger.Payment
}

func (r *ledgerRepo) GetOrganization(ctx context.Context, id uuid.UUID) (*ledger.Organization, error) {
	if id != r.org.ID {
		return nil, ledger.ErrNotFound
	}
	org := r.org
	return &org, nil
}

func (r *ledgerRepo) GetInvoice(ctx context.Context, orgID, id uuid.UUID) (*ledger.Invoice, error) {
	for _, inv := range r.invoices {
		if inv.ID == id {
			out := inv
			return &out, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (r *ledgerRepo) ListReceivables(ctx context.Context, orgID uuid.UUID) ([]ledger.Invoice, []ledger.Payment, error) {
	return append([]ledger.Invoice(nil), r.invoices...), append([]ledger.Payment(nil), r.payments...), nil
}

func (r *ledgerRepo) ListPayments(ctx context.Context, orgID uuid.UUID, invoiceIDs []uuid.UUID) ([]ledger.Payment, error) {
	return append([]ledger.Payment(nil), r.payments...), nil
}

func TestAgingSnapshotReadsLedgerNotCachedReport(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	orgID := uuid.New()
	inv := ledger.Invoice{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Number:         "INV-100",
		Currency:       "USD",
		Total:          money.MustParse("100"),
		ExchangeRate:   money.MustParse("1"),
		Status:         receivables.StatusSent,
		DueDate:        reporting.ReportDate(jobNow).AddDate(0, 0, -10),
	}
	repo := &ledgerRepo{
		org:      ledger.Organization{ID: orgID, Name: "Acme", BaseCurrency: "USD"},
		invoices: []ledger.Invoice{inv},
	}
	svc := reporting.NewService(repo, reporting.NewCache(client, time.Hour), nil)
	ctx := context.Background()

	warm, err := svc.AgingReport(ctx, orgID, jobNow)
	require.NoError(t, err)
	require.Equal(t, "100", warm.Total.String())

	repo.payments = append(repo.payments, ledger.Payment{
		ID:             uuid.New(),
		OrganizationID: orgID,
		InvoiceID:      inv.ID,
		Amount:         money.MustParse("100"),
		Currency:       "USD",
		BaseAmount:     money.MustParse("100"),
		Status:         receivables.PaymentSuccess,
	})

	store := &stubStore{orgs: []ledger.Organization{repo.org}}
	job := NewAgingSnapshotJob(svc, store, &memoryGuard{}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return jobNow }

	saved, _, err := job.Run(ctx, jobNow, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, 1, saved)
	require.Len(t, store.saved, 1)
	require.True(t, store.saved[0].Buckets.Total().IsZero())
	require.Zero(t, store.saved[0].InvoiceCount)

	fresh, err := svc.AgingReport(ctx, orgID, jobNow)
	require.NoError(t, err)
	require.True(t, fresh.Total.IsZero(), "snapshot run must invalidate the cached report")
}
