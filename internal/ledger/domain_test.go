package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/receivables/internal/money"
	"github.com/odyssey-erp/receivables/internal/receivables"
)

func TestInvoiceBaseTotal(t *testing.T) {
	inv := Invoice{Total: money.MustParse("1000000"), ExchangeRate: money.MustParse("0.000065")}
	require.Equal(t, "65", inv.BaseTotal().String())
}

func TestGroupPayments(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	grouped := GroupPayments([]Payment{
		{InvoiceID: a, BaseAmount: money.MustParse("10"), Status: receivables.PaymentSuccess},
		{InvoiceID: b, BaseAmount: money.MustParse("5"), Status: receivables.PaymentFailed},
		{InvoiceID: a, BaseAmount: money.MustParse("2.5"), Status: receivables.PaymentRefunded},
	})
	require.Len(t, grouped[a], 2)
	require.Len(t, grouped[b], 1)
	require.Equal(t, "10", receivables.ComputeTotalPaid(grouped[a]).String())
	require.True(t, receivables.ComputeTotalPaid(grouped[b]).IsZero())
}

func TestClassifyInsertError(t *testing.T) {
	require.NoError(t, classifyInsertError(nil))

	dup := fmt.Errorf("exec: %w", &pgconn.PgError{Code: uniqueViolation})
	require.ErrorIs(t, classifyInsertError(dup), ErrAlreadyProcessed)

	other := &pgconn.PgError{Code: "23503"}
	require.Same(t, other, classifyInsertError(other))

	plain := errors.New("boom")
	require.Equal(t, plain, classifyInsertError(plain))
}

func TestRunGuardRequiresPool(t *testing.T) {
	var g *RunGuard
	require.Error(t, g.CheckAndInsert(context.Background(), "k", "m"))
	require.NoError(t, g.Release(context.Background(), "k"))
}

func TestInvoiceListQueryCapsListings(t *testing.T) {
	orgID := uuid.New()

	query, args := invoiceListQuery(ListInvoicesRequest{OrganizationID: orgID})
	require.True(t, strings.HasSuffix(query, "ORDER BY i.due_date, i.id LIMIT $2"), query)
	require.Equal(t, []any{orgID, defaultListLimit}, args)

	query, args = invoiceListQuery(ListInvoicesRequest{
		OrganizationID: orgID,
		Statuses:       []receivables.InvoiceStatus{receivables.StatusSent},
		Limit:          25,
	})
	require.Contains(t, query, "i.status = ANY($2::text[])")
	require.True(t, strings.HasSuffix(query, "LIMIT $3"), query)
	require.Equal(t, []any{orgID, []string{"SENT"}, 25}, args)
}

func TestOpenInvoicesQueryReadsEveryRow(t *testing.T) {
	orgID := uuid.New()
	req := openInvoicesRequest(orgID)
	require.True(t, req.Unbounded)

	query, args := invoiceListQuery(req)
	require.NotContains(t, query, "LIMIT")
	require.Equal(t, []any{orgID, []string{"SENT", "PARTIALLY_PAID", "PAID", "OVERDUE"}}, args)

	req.Limit = 10
	query, _ = invoiceListQuery(req)
	require.NotContains(t, query, "LIMIT")
}
