package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/receivables/internal/money"
	"github.com/odyssey-erp/receivables/internal/platform/db"
	"github.com/odyssey-erp/receivables/internal/receivables"
)

const defaultListLimit = 5000

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides PostgreSQL backed reads for receivables reporting.
type Repository struct {
	pool *pgxpool.Pool
	db   querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// GetOrganization loads one organisation.
func (r *Repository) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	const query = `SELECT id, name, base_currency, created_at FROM organizations WHERE id = $1`
	var org Organization
	err := r.db.QueryRow(ctx, query, id).Scan(&org.ID, &org.Name, &org.BaseCurrency, &org.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get organization: %w", err)
	}
	return &org, nil
}

// ListOrganizations returns every organisation ordered by creation.
func (r *Repository) ListOrganizations(ctx context.Context) ([]Organization, error) {
	const query = `SELECT id, name, base_currency, created_at FROM organizations ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ledger: list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.BaseCurrency, &org.CreatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

const invoiceColumns = `
	i.id, i.organization_id, i.client_id, COALESCE(c.name, ''), i.number, i.currency,
	i.subtotal::text, i.tax_amount::text, i.total::text, i.exchange_rate::text,
	i.status, i.issued_at, i.due_date, i.created_at, i.updated_at`

// GetInvoice retrieves an invoice scoped to its organisation.
func (r *Repository) GetInvoice(ctx context.Context, orgID, id uuid.UUID) (*Invoice, error) {
	query := `SELECT` + invoiceColumns + `
		FROM invoices i
		LEFT JOIN clients c ON c.id = i.client_id
		WHERE i.organization_id = $1 AND i.id = $2`

	inv, err := scanInvoice(r.db.QueryRow(ctx, query, orgID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get invoice: %w", err)
	}
	return inv, nil
}

// ListInvoices returns invoices for an organisation ordered by due date.
func (r *Repository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	query, args := invoiceListQuery(req)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// ListOpenInvoices returns every issued invoice, i.e. neither draft nor
// cancelled. Fully paid ones are included; the aging computation skips them.
func (r *Repository) ListOpenInvoices(ctx context.Context, orgID uuid.UUID) ([]Invoice, error) {
	return r.ListInvoices(ctx, openInvoicesRequest(orgID))
}

func openInvoicesRequest(orgID uuid.UUID) ListInvoicesRequest {
	return ListInvoicesRequest{
		OrganizationID: orgID,
		Statuses:       IssuedStatuses,
		Unbounded:      true,
	}
}

func invoiceListQuery(req ListInvoicesRequest) (string, []any) {
	query := `SELECT` + invoiceColumns + `
		FROM invoices i
		LEFT JOIN clients c ON c.id = i.client_id
		WHERE i.organization_id = $1`
	args := []any{req.OrganizationID}

	if len(req.Statuses) > 0 {
		statuses := make([]string, 0, len(req.Statuses))
		for _, st := range req.Statuses {
			statuses = append(statuses, string(st))
		}
		query += ` AND i.status = ANY($2::text[])`
		args = append(args, statuses)
	}

	query += " ORDER BY i.due_date, i.id"
	if req.Unbounded {
		return query, args
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
	args = append(args, limit)
	return query, args
}

// ListReceivables loads the issued invoices of an organisation and their
// payments from a single repeatable-read snapshot.
func (r *Repository) ListReceivables(ctx context.Context, orgID uuid.UUID) ([]Invoice, []Payment, error) {
	var (
		invoices []Invoice
		payments []Payment
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		txRepo := &Repository{pool: r.pool, db: tx}
		var err error
		invoices, err = txRepo.ListOpenInvoices(ctx, orgID)
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(invoices))
		for _, inv := range invoices {
			ids = append(ids, inv.ID)
		}
		payments, err = txRepo.ListPayments(ctx, orgID, ids)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return invoices, payments, nil
}

// ListPayments returns payments for the given invoices of one organisation.
func (r *Repository) ListPayments(ctx context.Context, orgID uuid.UUID, invoiceIDs []uuid.UUID) ([]Payment, error) {
	if len(invoiceIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(invoiceIDs))
	for _, id := range invoiceIDs {
		ids = append(ids, id.String())
	}

	const query = `
		SELECT id, organization_id, invoice_id, amount::text, currency, base_amount::text,
			status, paid_at, created_at
		FROM payments
		WHERE organization_id = $1 AND invoice_id = ANY($2::uuid[])
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("ledger: list payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var (
			p               Payment
			amount, baseAmt string
			status          string
			paidAt          pgtype.Timestamptz
		)
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.InvoiceID, &amount, &p.Currency, &baseAmt,
			&status, &paidAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		if p.Amount, err = money.Parse(amount); err != nil {
			return nil, fmt.Errorf("ledger: payment %s amount: %w", p.ID, err)
		}
		if p.BaseAmount, err = money.Parse(baseAmt); err != nil {
			return nil, fmt.Errorf("ledger: payment %s base amount: %w", p.ID, err)
		}
		p.Status = receivables.PaymentStatus(status)
		p.PaidAt = timePtr(paidAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// SaveAgingSnapshot upserts the aging result for an organisation and day.
func (r *Repository) SaveAgingSnapshot(ctx context.Context, snap AgingSnapshot) error {
	const query = `
		INSERT INTO aging_snapshots (
			organization_id, as_of, base_currency, current_amount, thirty_days,
			sixty_days, ninety_days, over_90_days, invoice_count, created_at
		) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9, NOW())
		ON CONFLICT (organization_id, as_of) DO UPDATE SET
			base_currency = EXCLUDED.base_currency,
			current_amount = EXCLUDED.current_amount,
			thirty_days = EXCLUDED.thirty_days,
			sixty_days = EXCLUDED.sixty_days,
			ninety_days = EXCLUDED.ninety_days,
			over_90_days = EXCLUDED.over_90_days,
			invoice_count = EXCLUDED.invoice_count,
			created_at = NOW()`

	b := snap.Buckets
	_, err := r.db.Exec(ctx, query,
		snap.OrganizationID,
		pgtype.Date{Time: snap.AsOf, Valid: !snap.AsOf.IsZero()},
		snap.BaseCurrency,
		b.Current.String(),
		b.ThirtyDays.String(),
		b.SixtyDays.String(),
		b.NinetyDays.String(),
		b.Over90Days.String(),
		snap.InvoiceCount,
	)
	if err != nil {
		return fmt.Errorf("ledger: save aging snapshot: %w", err)
	}
	return nil
}

// --- Helpers ---

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var (
		inv                                Invoice
		clientID                           pgtype.UUID
		subtotal, tax, total, rate, status string
		issuedAt                           pgtype.Timestamptz
	)
	err := row.Scan(
		&inv.ID, &inv.OrganizationID, &clientID, &inv.ClientName, &inv.Number, &inv.Currency,
		&subtotal, &tax, &total, &rate,
		&status, &issuedAt, &inv.DueDate, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	amounts := []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&inv.Subtotal, subtotal},
		{&inv.TaxAmount, tax},
		{&inv.Total, total},
		{&inv.ExchangeRate, rate},
	}
	for _, a := range amounts {
		v, err := money.Parse(a.raw)
		if err != nil {
			return nil, fmt.Errorf("ledger: invoice %s: %w", inv.Number, err)
		}
		*a.dst = v
	}
	if clientID.Valid {
		id := uuid.UUID(clientID.Bytes)
		inv.ClientID = &id
	}
	inv.Status = receivables.InvoiceStatus(status)
	inv.IssuedAt = timePtr(issuedAt)
	return &inv, nil
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
