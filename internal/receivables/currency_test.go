package receivables

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/receivables/internal/money"
)

func TestConvertToBaseIsExact(t *testing.T) {
	got := ConvertToBase(money.MustParse("1000000"), money.MustParse("0.000065"))
	require.Equal(t, "65", got.String())

	got = ConvertToBase(money.MustParse("0.1"), money.MustParse("3"))
	require.True(t, got.Equal(money.MustParse("0.3")))
}

func TestConvertToBaseKeepsFullPrecision(t *testing.T) {
	got := ConvertToBase(money.MustParse("10.005"), money.MustParse("1.2345"))
	require.Equal(t, "12.3511725", got.String())
}

func TestConvertToBaseString(t *testing.T) {
	got, err := ConvertToBaseString("250.50", "1.1")
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("275.55")))

	_, err = ConvertToBaseString("abc", "1")
	require.ErrorIs(t, err, money.ErrInvalidAmount)
	_, err = ConvertToBaseString("1", "")
	require.ErrorIs(t, err, money.ErrInvalidAmount)
}
