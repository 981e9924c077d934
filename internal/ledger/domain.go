// Package ledger loads organisations, invoices and payments for the
// receivables reports and persists aging snapshots.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/receivables/internal/receivables"
)

// ErrNotFound indicates resource not found.
var ErrNotFound = errors.New("ledger: not found")

// Organization is a tenant reporting in a single base currency.
type Organization struct {
	ID           uuid.UUID
	Name         string
	BaseCurrency string
	CreatedAt    time.Time
}

// Invoice model. Total is in the invoice currency; ExchangeRate converts it to
// the organisation's base currency.
type Invoice struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	ClientID       *uuid.UUID
	ClientName     string
	Number         string
	Currency       string
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
	ExchangeRate   decimal.Decimal
	Status         receivables.InvoiceStatus
	IssuedAt       *time.Time
	DueDate        time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BaseTotal converts the invoice total into the base currency.
func (i Invoice) BaseTotal() decimal.Decimal {
	return receivables.ConvertToBase(i.Total, i.ExchangeRate)
}

// Payment model.
type Payment struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	InvoiceID      uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	BaseAmount     decimal.Decimal
	Status         receivables.PaymentStatus
	PaidAt         *time.Time
	CreatedAt      time.Time
}

// Record projects the payment onto the aggregator input.
func (p Payment) Record() receivables.PaymentRecord {
	return receivables.PaymentRecord{BaseAmount: p.BaseAmount, Status: p.Status}
}

// IssuedStatuses are the stored statuses of invoices that can carry a receivable.
var IssuedStatuses = []receivables.InvoiceStatus{
	receivables.StatusSent,
	receivables.StatusPartiallyPaid,
	receivables.StatusPaid,
	receivables.StatusOverdue,
}

// ListInvoicesRequest filters invoice listings. Listings are capped at Limit
// (a default when unset) unless Unbounded is set; report totals need every row.
type ListInvoicesRequest struct {
	OrganizationID uuid.UUID
	Statuses       []receivables.InvoiceStatus
	Limit          int
	Unbounded      bool
}

// AgingSnapshot is the persisted daily aging result for one organisation.
type AgingSnapshot struct {
	OrganizationID uuid.UUID
	AsOf           time.Time
	BaseCurrency   string
	Buckets        receivables.AgingBuckets
	InvoiceCount   int
	CreatedAt      time.Time
}

// GroupPayments indexes payments by invoice.
func GroupPayments(payments []Payment) map[uuid.UUID][]receivables.PaymentRecord {
	out := make(map[uuid.UUID][]receivables.PaymentRecord)
	for _, p := range payments {
		out[p.InvoiceID] = append(out[p.InvoiceID], p.Record())
	}
	return out
}
