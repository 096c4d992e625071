package quotations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-finance/internal/platform/db"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

type Repository interface {
	NextNumber(ctx context.Context) (string, error)
	Create(ctx context.Context, q Quotation) (*Quotation, error)
	Get(ctx context.Context, id int64) (*Quotation, error)
	List(ctx context.Context, clientID int64) ([]Quotation, error)
	UpdateStatus(ctx context.Context, id, version int64, status Status, at time.Time) (int64, error)
	LinkInvoice(ctx context.Context, id, version, invoiceID int64, at time.Time) (int64, error)
	ListSentExpiringBefore(ctx context.Context, date time.Time) ([]Quotation, error)
	MarkExpired(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const quotationColumns = `id, number, client_id, project_id, currency, issue_date, expiry_date,
	subtotal, tax_amount, total, status, invoice_id, sent_at, decided_at, converted_at, version,
	created_at, updated_at`

func (r *repository) NextNumber(ctx context.Context) (string, error) {
	var number string
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT 'QUO-' || to_char(NOW(), 'YYYYMM') || '-' || lpad(nextval('quotation_number_seq')::text, 6, '0')`,
	).Scan(&number)
	return number, err
}

func (r *repository) Create(ctx context.Context, q Quotation) (*Quotation, error) {
	conn := db.Conn(ctx, r.pool)
	row := conn.QueryRow(ctx, `
		INSERT INTO quotations (
			number, client_id, project_id, currency, issue_date, expiry_date,
			subtotal, tax_amount, total, status, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, NOW(), NOW())
		RETURNING `+quotationColumns,
		q.Number, q.ClientID, q.ProjectID, q.Currency, q.IssueDate, q.ExpiryDate,
		q.Subtotal, q.TaxAmount, q.Total, string(q.Status),
	)
	created, err := scanQuotation(row)
	if err != nil {
		return nil, fmt.Errorf("create quotation: %w", err)
	}

	for _, line := range q.Lines {
		line.QuotationID = created.ID
		err := conn.QueryRow(ctx, `
			INSERT INTO quotation_lines (
				quotation_id, description, quantity, unit_price, discount_percent, tax_percent,
				discount_amount, tax_amount, line_total, line_order
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			line.QuotationID, line.Description, line.Quantity, line.UnitPrice, line.DiscountPercent,
			line.TaxPercent, line.DiscountAmount, line.TaxAmount, line.LineTotal, line.LineOrder,
		).Scan(&line.ID)
		if err != nil {
			return nil, fmt.Errorf("insert quotation line: %w", err)
		}
		created.Lines = append(created.Lines, line)
	}
	return created, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Quotation, error) {
	conn := db.Conn(ctx, r.pool)
	q, err := scanQuotation(conn.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, `
		SELECT id, quotation_id, description, quantity, unit_price, discount_percent, tax_percent,
			discount_amount, tax_amount, line_total, line_order
		FROM quotation_lines
		WHERE quotation_id = $1
		ORDER BY line_order, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.QuotationID, &l.Description, &l.Quantity, &l.UnitPrice,
			&l.DiscountPercent, &l.TaxPercent, &l.DiscountAmount, &l.TaxAmount, &l.LineTotal, &l.LineOrder); err != nil {
			return nil, err
		}
		q.Lines = append(q.Lines, l)
	}
	return q, rows.Err()
}

func (r *repository) List(ctx context.Context, clientID int64) ([]Quotation, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+quotationColumns+` FROM quotations
		WHERE ($1::bigint = 0 OR client_id = $1)
		ORDER BY issue_date DESC, id DESC`, clientID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repository) UpdateStatus(ctx context.Context, id, version int64, status Status, at time.Time) (int64, error) {
	var next int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE quotations
		SET status = $3,
			sent_at = CASE WHEN $3 = 'sent' THEN $4 ELSE sent_at END,
			decided_at = CASE WHEN $3 IN ('approved', 'rejected') THEN $4 ELSE decided_at END,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version`,
		id, version, string(status), at,
	).Scan(&next)
	if err != nil {
		return 0, conflictError(id, err)
	}
	return next, nil
}

func (r *repository) LinkInvoice(ctx context.Context, id, version, invoiceID int64, at time.Time) (int64, error) {
	conn := db.Conn(ctx, r.pool)
	var next int64
	err := conn.QueryRow(ctx, `
		UPDATE quotations
		SET invoice_id = $3, converted_at = $4, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND invoice_id IS NULL
		RETURNING version`,
		id, version, invoiceID, at,
	).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		var linked *int64
		if scanErr := conn.QueryRow(ctx, `SELECT invoice_id FROM quotations WHERE id = $1`, id).Scan(&linked); scanErr == nil && linked != nil {
			return 0, fmt.Errorf("%w: quotation %d produced invoice %d", shared.ErrAlreadyConverted, id, *linked)
		}
	}
	if err != nil {
		return 0, conflictError(id, err)
	}
	return next, nil
}

func (r *repository) ListSentExpiringBefore(ctx context.Context, date time.Time) ([]Quotation, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+quotationColumns+` FROM quotations
		WHERE status = 'sent' AND expiry_date < $1
		ORDER BY expiry_date, id`, date)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repository) MarkExpired(ctx context.Context, id int64) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE quotations SET status = 'expired', updated_at = NOW() WHERE id = $1 AND status = 'sent'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func conflictError(id int64, err error) error {
	if errors.Is(err, pgx.ErrNoRows) || db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: quotation %d was modified concurrently", shared.ErrConcurrentModification, id)
	}
	return err
}

func collect(rows pgx.Rows) ([]Quotation, error) {
	defer rows.Close()
	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func scanQuotation(row pgx.Row) (*Quotation, error) {
	var (
		q      Quotation
		status string
	)
	if err := row.Scan(&q.ID, &q.Number, &q.ClientID, &q.ProjectID, &q.Currency, &q.IssueDate, &q.ExpiryDate,
		&q.Subtotal, &q.TaxAmount, &q.Total, &status, &q.InvoiceID, &q.SentAt, &q.DecidedAt, &q.ConvertedAt,
		&q.Version, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	q.Status = Status(status)
	return &q, nil
}
