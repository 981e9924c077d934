// Package money holds the exact-decimal helpers shared by the receivables core
// and its collaborators. Binary floating point never takes part in arithmetic.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount indicates an input that cannot be represented as an exact decimal.
var ErrInvalidAmount = errors.New("money: invalid amount")

// InvalidAmountError carries the offending input.
type InvalidAmountError struct {
	Input string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("money: invalid amount %q", e.Input)
}

// Unwrap lets errors.Is match ErrInvalidAmount.
func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

func invalid(input string) error {
	return &InvalidAmountError{Input: input}
}

// Parse reads an exact decimal from its string form.
func Parse(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.Zero, invalid(s)
	}
	switch strings.ToLower(strings.TrimLeft(trimmed, "+-")) {
	case "nan", "inf", "infinity":
		return decimal.Zero, invalid(s)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, invalid(s)
	}
	return d, nil
}

// FromFloat converts a float through its shortest round-trip string so the
// binary value is not rounded twice.
func FromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, invalid(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return Parse(strconv.FormatFloat(f, 'g', -1, 64))
}

// FromValue accepts the loosely typed values that arrive from decoders and
// driver rows.
func FromValue(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, nil
	case *decimal.Decimal:
		if val == nil {
			return decimal.Zero, invalid("<nil>")
		}
		return *val, nil
	case string:
		return Parse(val)
	case json.Number:
		return Parse(val.String())
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int32:
		return decimal.NewFromInt32(val), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case uint32:
		return decimal.NewFromInt(int64(val)), nil
	case uint64:
		return Parse(strconv.FormatUint(val, 10))
	case float32:
		return FromFloat(float64(val))
	case float64:
		return FromFloat(val)
	case nil:
		return decimal.Zero, invalid("<nil>")
	default:
		return decimal.Zero, invalid(fmt.Sprintf("%T", v))
	}
}

// MustParse is Parse for literals known at compile time.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Sum adds values starting from zero.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// NonNegative clamps negative amounts to zero for display.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
