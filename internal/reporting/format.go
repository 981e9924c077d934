package reporting

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const fallbackScale = 2

// CurrencyScale returns the ISO 4217 minor-unit digits for code.
func CurrencyScale(code string) int32 {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return fallbackScale
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// FormatMoney renders an amount for display, rounded half away from zero to
// the currency's minor unit. Arithmetic never uses the rounded value.
func FormatMoney(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if unit, err := currency.ParseISO(code); err == nil {
		code = unit.String()
	}
	return code + " " + amount.StringFixed(CurrencyScale(code))
}
