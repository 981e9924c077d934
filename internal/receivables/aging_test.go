package receivables

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/receivables/internal/money"
)

var asOf = time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)

func agingInput(daysAgo int, total, paid string) AgingInput {
	return AgingInput{
		DueDate:   asOf.Add(-time.Duration(daysAgo) * day),
		BaseTotal: money.MustParse(total),
		TotalPaid: money.MustParse(paid),
	}
}

func TestDaysPastDue(t *testing.T) {
	cases := []struct {
		name string
		due  time.Time
		want int
	}{
		{"same instant", asOf, 0},
		{"one hour overdue", asOf.Add(-time.Hour), 0},
		{"exactly one day", asOf.Add(-day), 1},
		{"thirty days", asOf.Add(-30 * day), 30},
		{"due in one hour", asOf.Add(time.Hour), -1},
		{"due in two days", asOf.Add(2 * day), -2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DaysPastDue(tc.due, asOf))
		})
	}
}

func TestComputeAgingBucketsAssignment(t *testing.T) {
	invoices := []AgingInput{
		agingInput(-5, "10", "0"),
		agingInput(0, "20", "0"),
		agingInput(1, "30", "0"),
		agingInput(30, "40", "0"),
		agingInput(31, "50", "0"),
		agingInput(60, "60", "0"),
		agingInput(61, "70", "0"),
		agingInput(90, "80", "0"),
		agingInput(91, "90", "0"),
		agingInput(400, "100", "0"),
	}
	b := ComputeAgingBuckets(invoices, asOf)
	require.Equal(t, "30", b.Current.String())
	require.Equal(t, "70", b.ThirtyDays.String())
	require.Equal(t, "110", b.SixtyDays.String())
	require.Equal(t, "150", b.NinetyDays.String())
	require.Equal(t, "190", b.Over90Days.String())
}

func TestComputeAgingBucketsBoundary(t *testing.T) {
	b := ComputeAgingBuckets([]AgingInput{agingInput(30, "100", "0")}, asOf)
	require.Equal(t, "100", b.ThirtyDays.String())
	require.True(t, b.SixtyDays.IsZero())

	b = ComputeAgingBuckets([]AgingInput{agingInput(31, "100", "0")}, asOf)
	require.True(t, b.ThirtyDays.IsZero())
	require.Equal(t, "100", b.SixtyDays.String())
}

func TestComputeAgingBucketsUsesOutstandingAndSkipsSettled(t *testing.T) {
	invoices := []AgingInput{
		agingInput(10, "100", "40"),
		agingInput(10, "100", "100"),
		agingInput(10, "100", "150"),
	}
	b := ComputeAgingBuckets(invoices, asOf)
	require.Equal(t, "60", b.ThirtyDays.String())
	require.Equal(t, "60", b.Total().String())
}

func TestComputeAgingBucketsExhaustive(t *testing.T) {
	invoices := []AgingInput{
		agingInput(-3, "0.1", "0"),
		agingInput(15, "0.2", "0"),
		agingInput(45, "1000.005", "0.005"),
		agingInput(75, "12", "13"),
		agingInput(120, "7.7", "0.7"),
	}
	want := decimal.Zero
	for _, inv := range invoices {
		outstanding := ComputeOutstanding(inv.BaseTotal, inv.TotalPaid)
		if outstanding.IsPositive() {
			want = want.Add(outstanding)
		}
	}
	b := ComputeAgingBuckets(invoices, asOf)
	require.True(t, b.Total().Equal(want), "got %s want %s", b.Total(), want)
	require.Equal(t, "1007.3", b.Total().String())
}

func TestComputeAgingBucketsEmpty(t *testing.T) {
	b := ComputeAgingBuckets(nil, asOf)
	require.True(t, b.Total().IsZero())
	require.True(t, b.Current.IsZero())
	require.True(t, b.Over90Days.IsZero())
}

func TestComputeAgingBucketsDeterministic(t *testing.T) {
	invoices := []AgingInput{agingInput(12, "99.99", "0.01"), agingInput(70, "5", "1")}
	first := ComputeAgingBuckets(invoices, asOf)
	second := ComputeAgingBuckets(invoices, asOf)
	require.Equal(t, first, second)
	require.Equal(t, first.ThirtyDays.String(), second.ThirtyDays.String())
}
