// Package reporting assembles receivables reports from ledger data and the
// pure computation core.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/receivables/internal/ledger"
	"github.com/odyssey-erp/receivables/internal/money"
	"github.com/odyssey-erp/receivables/internal/receivables"
)

// Repository exposes the ledger reads the reports depend on.
type Repository interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*ledger.Organization, error)
	GetInvoice(ctx context.Context, orgID, id uuid.UUID) (*ledger.Invoice, error)
	ListReceivables(ctx context.Context, orgID uuid.UUID) ([]ledger.Invoice, []ledger.Payment, error)
	ListPayments(ctx context.Context, orgID uuid.UUID, invoiceIDs []uuid.UUID) ([]ledger.Payment, error)
}

// Service coordinates report assembly with the cache layer.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	flight singleflight.Group
}

// NewService wires a Repository with a Cache helper. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger.With(slog.String("component", "reporting"))}
}

// InvoiceSummary is the base-currency view of one invoice.
type InvoiceSummary struct {
	InvoiceID    uuid.UUID                 `json:"invoice_id"`
	Number       string                    `json:"number"`
	ClientName   string                    `json:"client_name,omitempty"`
	Currency     string                    `json:"currency"`
	BaseCurrency string                    `json:"base_currency"`
	Total        decimal.Decimal           `json:"total"`
	ExchangeRate decimal.Decimal           `json:"exchange_rate"`
	BaseTotal    decimal.Decimal           `json:"base_total"`
	TotalPaid    decimal.Decimal           `json:"total_paid"`
	Outstanding  decimal.Decimal           `json:"outstanding"`
	StoredStatus receivables.InvoiceStatus `json:"stored_status"`
	Status       receivables.InvoiceStatus `json:"status"`
	DueDate      time.Time                 `json:"due_date"`
	DaysPastDue  int                       `json:"days_past_due"`
}

// AgingReport is the aging breakdown of one organisation's receivables.
type AgingReport struct {
	OrganizationID uuid.UUID                `json:"organization_id"`
	BaseCurrency   string                   `json:"base_currency"`
	AsOf           time.Time                `json:"as_of"`
	Buckets        receivables.AgingBuckets `json:"buckets"`
	Total          decimal.Decimal          `json:"total"`
	InvoiceCount   int                      `json:"invoice_count"`
}

// Dashboard summarises receivables for the organisation landing page.
type Dashboard struct {
	OrganizationID   uuid.UUID                         `json:"organization_id"`
	BaseCurrency     string                            `json:"base_currency"`
	AsOf             time.Time                         `json:"as_of"`
	Aging            AgingReport                       `json:"aging"`
	TotalInvoiced    decimal.Decimal                   `json:"total_invoiced"`
	TotalPaid        decimal.Decimal                   `json:"total_paid"`
	TotalOutstanding decimal.Decimal                   `json:"total_outstanding"`
	StatusCounts     map[receivables.InvoiceStatus]int `json:"status_counts"`
	OverdueCount     int                               `json:"overdue_count"`
}

// ReportDate normalises an instant to the UTC day the reports are keyed by.
func ReportDate(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// InvoiceSummary computes the current figures and display status of an invoice.
func (s *Service) InvoiceSummary(ctx context.Context, orgID, invoiceID uuid.UUID, now time.Time) (InvoiceSummary, error) {
	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return InvoiceSummary{}, err
	}
	inv, err := s.repo.GetInvoice(ctx, orgID, invoiceID)
	if err != nil {
		return InvoiceSummary{}, err
	}
	payments, err := s.repo.ListPayments(ctx, orgID, []uuid.UUID{inv.ID})
	if err != nil {
		return InvoiceSummary{}, err
	}
	return Summarize(*inv, ledger.GroupPayments(payments)[inv.ID], org.BaseCurrency, now), nil
}

// Summarize runs the computation core over one invoice and its payments.
func Summarize(inv ledger.Invoice, payments []receivables.PaymentRecord, baseCurrency string, now time.Time) InvoiceSummary {
	baseTotal := inv.BaseTotal()
	paid := receivables.ComputeTotalPaid(payments)
	return InvoiceSummary{
		InvoiceID:    inv.ID,
		Number:       inv.Number,
		ClientName:   inv.ClientName,
		Currency:     inv.Currency,
		BaseCurrency: baseCurrency,
		Total:        inv.Total,
		ExchangeRate: inv.ExchangeRate,
		BaseTotal:    baseTotal,
		TotalPaid:    paid,
		Outstanding:  receivables.ComputeOutstanding(baseTotal, paid),
		StoredStatus: inv.Status,
		Status:       receivables.ComputeInvoiceStatus(baseTotal, paid, inv.DueDate, inv.Status, now),
		DueDate:      inv.DueDate,
		DaysPastDue:  receivables.DaysPastDue(inv.DueDate, now),
	}
}

// AgingReport buckets the organisation's outstanding receivables as of the
// start of asOf's UTC day, serving from the cache when possible.
func (s *Service) AgingReport(ctx context.Context, orgID uuid.UUID, asOf time.Time) (AgingReport, error) {
	asOf = ReportDate(asOf)
	var report AgingReport
	err := s.cached(ctx, orgID, keyAging(orgID, asOf), &report, func(ctx context.Context) (interface{}, error) {
		return s.ComputeAgingReport(ctx, orgID, asOf)
	})
	return report, err
}

// ComputeAgingReport builds the aging report straight from the ledger,
// bypassing the cache. Snapshots are persisted from this path.
func (s *Service) ComputeAgingReport(ctx context.Context, orgID uuid.UUID, asOf time.Time) (AgingReport, error) {
	asOf = ReportDate(asOf)
	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return AgingReport{}, err
	}
	summaries, err := s.loadSummaries(ctx, org, asOf)
	if err != nil {
		return AgingReport{}, err
	}
	return BuildAgingReport(org, summaries, asOf), nil
}

// BuildAgingReport runs the aging bucketer over invoice summaries.
func BuildAgingReport(org *ledger.Organization, summaries []InvoiceSummary, asOf time.Time) AgingReport {
	inputs := make([]receivables.AgingInput, 0, len(summaries))
	count := 0
	for _, sum := range summaries {
		inputs = append(inputs, receivables.AgingInput{
			DueDate:   sum.DueDate,
			BaseTotal: sum.BaseTotal,
			TotalPaid: sum.TotalPaid,
		})
		if sum.Outstanding.IsPositive() {
			count++
		}
	}
	buckets := receivables.ComputeAgingBuckets(inputs, asOf)
	return AgingReport{
		OrganizationID: org.ID,
		BaseCurrency:   org.BaseCurrency,
		AsOf:           asOf,
		Buckets:        buckets,
		Total:          buckets.Total(),
		InvoiceCount:   count,
	}
}

// Dashboard reports the aging breakdown and per-status totals of one ledger
// read. The organisation and its receivables are loaded concurrently.
func (s *Service) Dashboard(ctx context.Context, orgID uuid.UUID, now time.Time) (Dashboard, error) {
	asOf := ReportDate(now)
	var dash Dashboard
	err := s.cached(ctx, orgID, keyDashboard(orgID, asOf), &dash, func(ctx context.Context) (interface{}, error) {
		var (
			org      *ledger.Organization
			invoices []ledger.Invoice
			payments []ledger.Payment
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			org, err = s.repo.GetOrganization(gctx, orgID)
			return err
		})
		g.Go(func() error {
			var err error
			invoices, payments, err = s.repo.ListReceivables(gctx, orgID)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		summaries := summarizeAll(invoices, payments, org.BaseCurrency, asOf)
		return BuildDashboard(org, BuildAgingReport(org, summaries, asOf), summaries, asOf), nil
	})
	return dash, err
}

// BuildDashboard totals invoice summaries by resolved status.
func BuildDashboard(org *ledger.Organization, aging AgingReport, summaries []InvoiceSummary, asOf time.Time) Dashboard {
	dash := Dashboard{
		OrganizationID: org.ID,
		BaseCurrency:   org.BaseCurrency,
		AsOf:           asOf,
		Aging:          aging,
		StatusCounts:   make(map[receivables.InvoiceStatus]int, len(receivables.Statuses)),
	}
	invoiced := make([]decimal.Decimal, 0, len(summaries))
	paid := make([]decimal.Decimal, 0, len(summaries))
	outstanding := make([]decimal.Decimal, 0, len(summaries))
	for _, sum := range summaries {
		dash.StatusCounts[sum.Status]++
		if sum.Status == receivables.StatusOverdue {
			dash.OverdueCount++
		}
		invoiced = append(invoiced, sum.BaseTotal)
		paid = append(paid, sum.TotalPaid)
		outstanding = append(outstanding, money.NonNegative(sum.Outstanding))
	}
	dash.TotalInvoiced = money.Sum(invoiced...)
	dash.TotalPaid = money.Sum(paid...)
	dash.TotalOutstanding = money.Sum(outstanding...)
	return dash
}

// InvalidateCache drops every cached report of one organisation.
func (s *Service) InvalidateCache(ctx context.Context, orgID uuid.UUID) error {
	return s.cache.Bump(ctx, orgID)
}

func (s *Service) loadSummaries(ctx context.Context, org *ledger.Organization, now time.Time) ([]InvoiceSummary, error) {
	invoices, payments, err := s.repo.ListReceivables(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	return summarizeAll(invoices, payments, org.BaseCurrency, now), nil
}

func summarizeAll(invoices []ledger.Invoice, payments []ledger.Payment, baseCurrency string, now time.Time) []InvoiceSummary {
	byInvoice := ledger.GroupPayments(payments)
	summaries := make([]InvoiceSummary, 0, len(invoices))
	for _, inv := range invoices {
		summaries = append(summaries, Summarize(inv, byInvoice[inv.ID], baseCurrency, now))
	}
	return summaries
}

// cached serves dest from the versioned cache, collapsing concurrent loads of
// the same key. Cache failures degrade to a direct load.
func (s *Service) cached(ctx context.Context, orgID uuid.UUID, keyBase string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	key, err := s.cache.BuildKey(ctx, orgID, keyBase)
	if err != nil {
		s.logger.Warn("cache key", slog.String("key", keyBase), slog.Any("error", err))
		key = keyBase
	}
	val, err, _ := s.flight.Do(key, func() (interface{}, error) {
		var out interface{}
		fetchErr := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
			v, err := loader(ctx)
			if err != nil {
				return nil, &loadError{err: err}
			}
			return v, nil
		})
		if fetchErr == nil {
			return out, nil
		}
		var le *loadError
		if errors.As(fetchErr, &le) {
			return nil, le.err
		}
		s.logger.Warn("cache fetch", slog.String("key", key), slog.Any("error", fetchErr))
		return loader(ctx)
	})
	if err != nil {
		return err
	}
	if err := roundTrip(val, dest); err != nil {
		return fmt.Errorf("reporting: decode %s: %w", keyBase, err)
	}
	return nil
}

type loadError struct{ err error }

func (e *loadError) Error() string { return e.err.Error() }
func (e *loadError) Unwrap() error { return e.err }
