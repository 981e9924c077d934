package reportinghttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/receivables/internal/ledger"
	"github.com/odyssey-erp/receivables/internal/platform/httpx"
	"github.com/odyssey-erp/receivables/internal/reporting"
)

const requestTimeout = 5 * time.Second

// ReportService defines the report contract used by the handler.
type ReportService interface {
	InvoiceSummary(ctx context.Context, orgID, invoiceID uuid.UUID, now time.Time) (reporting.InvoiceSummary, error)
	AgingReport(ctx context.Context, orgID uuid.UUID, asOf time.Time) (reporting.AgingReport, error)
	Dashboard(ctx context.Context, orgID uuid.UUID, now time.Time) (reporting.Dashboard, error)
	InvalidateCache(ctx context.Context, orgID uuid.UUID) error
}

// Handler serves receivables reports as JSON.
type Handler struct {
	logger    *slog.Logger
	service   ReportService
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler constructs the reporting HTTP handler.
func NewHandler(logger *slog.Logger, service ReportService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		now:       time.Now,
	}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type agingParams struct {
	OrgID string `validate:"required,uuid"`
	AsOf  string `validate:"omitempty,datetime=2006-01-02"`
}

type summaryParams struct {
	OrgID     string `validate:"required,uuid"`
	InvoiceID string `validate:"required,uuid"`
}

type orgParams struct {
	OrgID string `validate:"required,uuid"`
}

type bucketView struct {
	Label   string          `json:"label"`
	Amount  decimal.Decimal `json:"amount"`
	Display string          `json:"display"`
}

type agingView struct {
	OrganizationID uuid.UUID       `json:"organization_id"`
	BaseCurrency   string          `json:"base_currency"`
	AsOf           string          `json:"as_of"`
	Buckets        []bucketView    `json:"buckets"`
	Total          decimal.Decimal `json:"total"`
	TotalDisplay   string          `json:"total_display"`
	InvoiceCount   int             `json:"invoice_count"`
}

type summaryView struct {
	InvoiceID          uuid.UUID       `json:"invoice_id"`
	Number             string          `json:"number"`
	ClientName         string          `json:"client_name,omitempty"`
	Currency           string          `json:"currency"`
	BaseCurrency       string          `json:"base_currency"`
	Total              decimal.Decimal `json:"total"`
	ExchangeRate       decimal.Decimal `json:"exchange_rate"`
	BaseTotal          decimal.Decimal `json:"base_total"`
	BaseTotalDisplay   string          `json:"base_total_display"`
	TotalPaid          decimal.Decimal `json:"total_paid"`
	TotalPaidDisplay   string          `json:"total_paid_display"`
	Outstanding        decimal.Decimal `json:"outstanding"`
	OutstandingDisplay string          `json:"outstanding_display"`
	StoredStatus       string          `json:"stored_status"`
	Status             string          `json:"status"`
	DueOn              string          `json:"due_date"`
	DaysPastDue        int             `json:"days_past_due"`
}

type dashboardView struct {
	OrganizationID     uuid.UUID      `json:"organization_id"`
	BaseCurrency       string         `json:"base_currency"`
	AsOf               string         `json:"as_of"`
	Aging              agingView      `json:"aging"`
	TotalInvoiced      string         `json:"total_invoiced"`
	TotalPaid          string         `json:"total_paid"`
	TotalOutstanding   string         `json:"total_outstanding"`
	OutstandingDisplay string         `json:"outstanding_display"`
	StatusCounts       map[string]int `json:"status_counts"`
	OverdueCount       int            `json:"overdue_count"`
}

func (h *Handler) handleAging(w http.ResponseWriter, r *http.Request) {
	params := agingParams{
		OrgID: chi.URLParam(r, "orgID"),
		AsOf:  strings.TrimSpace(r.URL.Query().Get("as_of")),
	}
	if err := h.validate(params); err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf := h.now()
	if params.AsOf != "" {
		parsed, err := time.Parse(time.DateOnly, params.AsOf)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: as_of: %v", httpx.ErrValidation, err))
			return
		}
		asOf = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := h.service.AgingReport(ctx, uuid.MustParse(params.OrgID), asOf)
	if err != nil {
		h.respondServiceError(w, "aging report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newAgingView(report))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	params := summaryParams{
		OrgID:     chi.URLParam(r, "orgID"),
		InvoiceID: chi.URLParam(r, "invoiceID"),
	}
	if err := h.validate(params); err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sum, err := h.service.InvoiceSummary(ctx, uuid.MustParse(params.OrgID), uuid.MustParse(params.InvoiceID), h.now())
	if err != nil {
		h.respondServiceError(w, "invoice summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newSummaryView(sum))
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	params := orgParams{OrgID: chi.URLParam(r, "orgID")}
	if err := h.validate(params); err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	dash, err := h.service.Dashboard(ctx, uuid.MustParse(params.OrgID), h.now())
	if err != nil {
		h.respondServiceError(w, "dashboard", err)
		return
	}
	counts := make(map[string]int, len(dash.StatusCounts))
	for status, n := range dash.StatusCounts {
		counts[string(status)] = n
	}
	httpx.JSON(w, http.StatusOK, dashboardView{
		OrganizationID:     dash.OrganizationID,
		BaseCurrency:       dash.BaseCurrency,
		AsOf:               dash.AsOf.Format(time.DateOnly),
		Aging:              newAgingView(dash.Aging),
		TotalInvoiced:      dash.TotalInvoiced.String(),
		TotalPaid:          dash.TotalPaid.String(),
		TotalOutstanding:   dash.TotalOutstanding.String(),
		OutstandingDisplay: reporting.FormatMoney(dash.TotalOutstanding, dash.BaseCurrency),
		StatusCounts:       counts,
		OverdueCount:       dash.OverdueCount,
	})
}

// handleBump drops the cached reports of the organisation in the path only.
func (h *Handler) handleBump(w http.ResponseWriter, r *http.Request) {
	params := orgParams{OrgID: chi.URLParam(r, "orgID")}
	if err := h.validate(params); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.InvalidateCache(r.Context(), uuid.MustParse(params.OrgID)); err != nil {
		h.respondServiceError(w, "cache bump", err)
		return
	}
	h.logger.Info("report cache bumped", slog.String("org_id", params.OrgID))
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "bumped"})
}

func (h *Handler) validate(params any) error {
	err := h.validator.Struct(params)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(msgs, "; "))
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, op))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", op)
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func newSummaryView(sum reporting.InvoiceSummary) summaryView {
	return summaryView{
		InvoiceID:          sum.InvoiceID,
		Number:             sum.Number,
		ClientName:         sum.ClientName,
		Currency:           sum.Currency,
		BaseCurrency:       sum.BaseCurrency,
		Total:              sum.Total,
		ExchangeRate:       sum.ExchangeRate,
		BaseTotal:          sum.BaseTotal,
		BaseTotalDisplay:   reporting.FormatMoney(sum.BaseTotal, sum.BaseCurrency),
		TotalPaid:          sum.TotalPaid,
		TotalPaidDisplay:   reporting.FormatMoney(sum.TotalPaid, sum.BaseCurrency),
		Outstanding:        sum.Outstanding,
		OutstandingDisplay: reporting.FormatMoney(sum.Outstanding, sum.BaseCurrency),
		StoredStatus:       string(sum.StoredStatus),
		Status:             string(sum.Status),
		DueOn:              sum.DueDate.Format(time.DateOnly),
		DaysPastDue:        sum.DaysPastDue,
	}
}

func newAgingView(report reporting.AgingReport) agingView {
	b := report.Buckets
	view := agingView{
		OrganizationID: report.OrganizationID,
		BaseCurrency:   report.BaseCurrency,
		AsOf:           report.AsOf.Format(time.DateOnly),
		Total:          report.Total,
		TotalDisplay:   reporting.FormatMoney(report.Total, report.BaseCurrency),
		InvoiceCount:   report.InvoiceCount,
	}
	for _, bucket := range []struct {
		label  string
		amount decimal.Decimal
	}{
		{"current", b.Current},
		{"1-30", b.ThirtyDays},
		{"31-60", b.SixtyDays},
		{"61-90", b.NinetyDays},
		{"90+", b.Over90Days},
	} {
		view.Buckets = append(view.Buckets, bucketView{
			Label:   bucket.label,
			Amount:  bucket.amount,
			Display: reporting.FormatMoney(bucket.amount, report.BaseCurrency),
		})
	}
	return view
}
