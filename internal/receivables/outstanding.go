package receivables

import "github.com/shopspring/decimal"

// ComputeOutstanding returns the unpaid remainder. Overpayment yields a
// negative value; clamping is left to presentation.
func ComputeOutstanding(baseTotal, totalPaid decimal.Decimal) decimal.Decimal {
	return baseTotal.Sub(totalPaid)
}
