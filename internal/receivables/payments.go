package receivables

import "github.com/shopspring/decimal"

// PaymentStatus is the settlement state of a payment record.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentSuccess           PaymentStatus = "SUCCESS"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// Valid reports whether s is a known settlement status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentSuccess, PaymentFailed, PaymentRefunded, PaymentPartiallyRefunded:
		return true
	}
	return false
}

// PaymentRecord is a payment already expressed in the organisation's base currency.
type PaymentRecord struct {
	BaseAmount decimal.Decimal
	Status     PaymentStatus
}

// ComputeTotalPaid sums the base amounts of settled payments. Only SUCCESS
// counts; refunded and partially refunded records are excluded, not netted.
func ComputeTotalPaid(payments []PaymentRecord) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Status != PaymentSuccess {
			continue
		}
		total = total.Add(p.BaseAmount)
	}
	return total
}
