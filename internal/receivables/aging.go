package receivables

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// AgingInput describes one invoice for receivables aging.
type AgingInput struct {
	DueDate   time.Time
	BaseTotal decimal.Decimal
	TotalPaid decimal.Decimal
}

// AgingBuckets accumulates outstanding balances by days past due.
type AgingBuckets struct {
	Current    decimal.Decimal `json:"current"`
	ThirtyDays decimal.Decimal `json:"thirty_days"`
	SixtyDays  decimal.Decimal `json:"sixty_days"`
	NinetyDays decimal.Decimal `json:"ninety_days"`
	Over90Days decimal.Decimal `json:"over_90_days"`
}

// Total sums every bucket.
func (b AgingBuckets) Total() decimal.Decimal {
	return b.Current.Add(b.ThirtyDays).Add(b.SixtyDays).Add(b.NinetyDays).Add(b.Over90Days)
}

// DaysPastDue is floor((now - due) / 24h). A future due date is negative.
func DaysPastDue(dueDate, now time.Time) int {
	diff := now.Sub(dueDate)
	days := diff / day
	if diff%day != 0 && diff < 0 {
		days--
	}
	return int(days)
}

// ComputeAgingBuckets classifies outstanding balances as of now. Invoices with
// nothing outstanding are skipped.
func ComputeAgingBuckets(invoices []AgingInput, now time.Time) AgingBuckets {
	buckets := AgingBuckets{
		Current:    decimal.Zero,
		ThirtyDays: decimal.Zero,
		SixtyDays:  decimal.Zero,
		NinetyDays: decimal.Zero,
		Over90Days: decimal.Zero,
	}
	for _, inv := range invoices {
		outstanding := ComputeOutstanding(inv.BaseTotal, inv.TotalPaid)
		if !outstanding.IsPositive() {
			continue
		}
		days := DaysPastDue(inv.DueDate, now)
		switch {
		case days <= 0:
			buckets.Current = buckets.Current.Add(outstanding)
		case days <= 30:
			buckets.ThirtyDays = buckets.ThirtyDays.Add(outstanding)
		case days <= 60:
			buckets.SixtyDays = buckets.SixtyDays.Add(outstanding)
		case days <= 90:
			buckets.NinetyDays = buckets.NinetyDays.Add(outstanding)
		default:
			buckets.Over90Days = buckets.Over90Days.Add(outstanding)
		}
	}
	return buckets
}
