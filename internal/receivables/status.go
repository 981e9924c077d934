package receivables

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the display status of an invoice.
type InvoiceStatus string

const (
	StatusDraft         InvoiceStatus = "DRAFT"
	StatusSent          InvoiceStatus = "SENT"
	StatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	StatusPaid          InvoiceStatus = "PAID"
	StatusOverdue       InvoiceStatus = "OVERDUE"
	StatusCancelled     InvoiceStatus = "CANCELLED"
)

// Statuses lists every status in display order.
var Statuses = []InvoiceStatus{
	StatusDraft, StatusSent, StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled,
}

// Valid reports whether s is a known invoice status.
func (s InvoiceStatus) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// ComputeInvoiceStatus derives the status to display from current facts. The
// rules are evaluated in order and the first match wins, so a partially paid
// invoice past its due date stays PARTIALLY_PAID.
func ComputeInvoiceStatus(baseTotal, totalPaid decimal.Decimal, dueDate time.Time, current InvoiceStatus, now time.Time) InvoiceStatus {
	if current == StatusCancelled || current == StatusDraft {
		return current
	}
	if totalPaid.GreaterThanOrEqual(baseTotal) {
		return StatusPaid
	}
	if totalPaid.IsPositive() && totalPaid.LessThan(baseTotal) {
		return StatusPartiallyPaid
	}
	if now.After(dueDate) && totalPaid.LessThan(baseTotal) {
		return StatusOverdue
	}
	return StatusSent
}
