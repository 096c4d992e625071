package ar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-finance/internal/platform/db"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// PgRepository provides PostgreSQL backed persistence for invoices and payments.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

const invoiceColumns = `id, number, client_id, project_id, quotation_id, currency, issue_date, due_date,
	subtotal, tax_amount, total, paid_amount, balance_amount, status, sent, sent_at, version,
	created_at, updated_at`

// NextInvoiceNumber draws the next number from invoice_number_seq.
func (r *PgRepository) NextInvoiceNumber(ctx context.Context) (string, error) {
	var number string
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT 'INV-' || to_char(NOW(), 'YYYYMM') || '-' || lpad(nextval('invoice_number_seq')::text, 6, '0')`,
	).Scan(&number)
	return number, err
}

// CreateInvoice inserts a new invoice with an empty ledger.
func (r *PgRepository) CreateInvoice(ctx context.Context, input IssueInvoiceInput, status Status) (*Invoice, error) {
	var sentAt pgtype.Timestamptz
	if !input.Draft {
		sentAt = pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}
	}
	query := `
		INSERT INTO invoices (
			number, client_id, project_id, quotation_id, currency, issue_date, due_date,
			subtotal, tax_amount, total, paid_amount, balance_amount, status, sent, sent_at,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $10, $11, $12, $13, 1, NOW(), NOW())
		RETURNING ` + invoiceColumns

	row := db.Conn(ctx, r.pool).QueryRow(ctx, query,
		input.Number,
		input.ClientID,
		input.ProjectID,
		input.QuotationID,
		input.Currency,
		input.IssueDate,
		input.DueDate,
		input.Subtotal,
		input.TaxAmount,
		input.Total,
		string(status),
		!input.Draft,
		sentAt,
	)
	inv, err := scanInvoice(row)
	if err != nil {
		if db.IsUniqueViolation(err) && input.QuotationID != nil {
			return nil, fmt.Errorf("%w: quotation %d already has an invoice", shared.ErrAlreadyConverted, *input.QuotationID)
		}
		return nil, fmt.Errorf("ar: insert invoice: %w", err)
	}
	return inv, nil
}

// GetInvoice loads one invoice.
func (r *PgRepository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("ar: get invoice: %w", err)
	}
	return inv, nil
}

// ListInvoices returns invoices, optionally for one client, newest first.
func (r *PgRepository) ListInvoices(ctx context.Context, clientID int64) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE ($1::bigint = 0 OR client_id = $1)
		ORDER BY issue_date DESC, id DESC`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("ar: list invoices: %w", err)
	}
	return collectInvoices(rows)
}

// ListOutstanding returns sent invoices that still carry a balance.
func (r *PgRepository) ListOutstanding(ctx context.Context) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE sent AND balance_amount > 0
		ORDER BY due_date, id`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ar: list outstanding: %w", err)
	}
	return collectInvoices(rows)
}

// ListPayments returns the payments of an invoice ordered by date.
func (r *PgRepository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, number, invoice_id, amount, paid_at, method, COALESCE(reference, ''), created_at
		FROM payments
		WHERE invoice_id = $1
		ORDER BY paid_at, id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("ar: list payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.Number, &p.InvoiceID, &p.Amount, &p.PaidAt, &p.Method, &p.Reference, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// InsertPayment stores a payment.
func (r *PgRepository) InsertPayment(ctx context.Context, payment Payment) (*Payment, error) {
	var reference pgtype.Text
	if payment.Reference != "" {
		reference = pgtype.Text{String: payment.Reference, Valid: true}
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO payments (number, invoice_id, amount, paid_at, method, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`,
		payment.Number, payment.InvoiceID, payment.Amount, payment.PaidAt, payment.Method, reference,
	).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ar: insert payment: %w", err)
	}
	return &payment, nil
}

// UpdateLedger writes the derived ledger fields if the row is still at version.
func (r *PgRepository) UpdateLedger(ctx context.Context, id, version int64, update LedgerUpdate) (int64, error) {
	var next int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE invoices
		SET paid_amount = $3, balance_amount = $4, status = $5, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version`,
		id, version, update.PaidAmount, update.BalanceAmount, string(update.Status),
	).Scan(&next)
	return next, versionError("invoice", id, err)
}

// MarkSent flags the invoice as sent if the row is still at version.
func (r *PgRepository) MarkSent(ctx context.Context, id, version int64, sentAt time.Time, status Status) (int64, error) {
	var next int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE invoices
		SET sent = TRUE, sent_at = $3, status = $4, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND NOT sent
		RETURNING version`,
		id, version, sentAt, string(status),
	).Scan(&next)
	return next, versionError("invoice", id, err)
}

// UpdateStatus persists a re-derived status. The version is left alone since
// status is a function of the ledger and the clock.
func (r *PgRepository) UpdateStatus(ctx context.Context, id int64, status Status) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1 AND status <> $2`,
		id, string(status))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func versionError(entity string, id int64, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows), db.IsSerializationFailure(err):
		return fmt.Errorf("%w: %s %d was modified concurrently", shared.ErrConcurrentModification, entity, id)
	default:
		return fmt.Errorf("ar: update %s %d: %w", entity, id, err)
	}
}

func collectInvoices(rows pgx.Rows) ([]Invoice, error) {
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

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var (
		inv    Invoice
		status string
	)
	err := row.Scan(
		&inv.ID, &inv.Number, &inv.ClientID, &inv.ProjectID, &inv.QuotationID, &inv.Currency,
		&inv.IssueDate, &inv.DueDate, &inv.Subtotal, &inv.TaxAmount, &inv.Total,
		&inv.PaidAmount, &inv.BalanceAmount, &status, &inv.Sent, &inv.SentAt, &inv.Version,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Status = Status(status)
	return &inv, nil
}
