package receivables

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/receivables/internal/money"
)

// ConvertToBase converts a foreign-currency amount using a base-per-foreign
// exchange rate. The product is exact and left unrounded.
func ConvertToBase(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate)
}

// ConvertToBaseString parses both operands before converting. Malformed input
// fails with money.ErrInvalidAmount.
func ConvertToBaseString(amount, rate string) (decimal.Decimal, error) {
	a, err := money.Parse(amount)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := money.Parse(rate)
	if err != nil {
		return decimal.Zero, err
	}
	return ConvertToBase(a, r), nil
}
