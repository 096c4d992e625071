package expenses

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-finance/internal/platform/db"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// PgRepository persists expenses in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

const expenseColumns = `id, number, client_id, project_id, employee_id, category, description, amount,
	expense_date, is_recurring, recurrence, anchor_date, next_due_date, payment_status, last_paid_at,
	version, created_at, updated_at`

func (r *PgRepository) NextNumber(ctx context.Context) (string, error) {
	var number string
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT 'EXP-' || to_char(NOW(), 'YYYYMM') || '-' || lpad(nextval('expense_number_seq')::text, 6, '0')`,
	).Scan(&number)
	return number, err
}

func (r *PgRepository) Create(ctx context.Context, e Expense) (*Expense, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO expenses (
			number, client_id, project_id, employee_id, category, description, amount, expense_date,
			is_recurring, recurrence, anchor_date, next_due_date, payment_status, last_paid_at,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, NOW(), NOW())
		RETURNING `+expenseColumns,
		e.Number, e.ClientID, e.ProjectID, e.EmployeeID, e.Category, e.Description, e.Amount, e.ExpenseDate,
		e.IsRecurring, recurrenceParam(e.Recurrence), e.AnchorDate, e.NextDueDate, string(e.PaymentStatus), e.LastPaidAt,
	)
	created, err := scanExpense(row)
	if err != nil {
		return nil, fmt.Errorf("expenses: insert: %w", err)
	}
	return created, nil
}

func (r *PgRepository) Get(ctx context.Context, id int64) (*Expense, error) {
	e, err := scanExpense(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: expense %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("expenses: get: %w", err)
	}
	return e, nil
}

func (r *PgRepository) List(ctx context.Context, category string, recurringOnly bool) ([]Expense, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE ($1::text = '' OR lower(category) = lower($1))
			AND (NOT $2::boolean OR is_recurring)
		ORDER BY expense_date DESC, id DESC`, category, recurringOnly)
	if err != nil {
		return nil, fmt.Errorf("expenses: list: %w", err)
	}
	return collect(rows)
}

// ListOpen returns every expense whose stored status may drift with the clock.
func (r *PgRepository) ListOpen(ctx context.Context) ([]Expense, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE is_recurring OR payment_status <> 'paid'
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("expenses: list open: %w", err)
	}
	return collect(rows)
}

// Update writes the mutable fields when the row is still at e.Version.
func (r *PgRepository) Update(ctx context.Context, e Expense) (int64, error) {
	var next int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE expenses
		SET expense_date = $3, recurrence = $4, anchor_date = $5, next_due_date = $6,
			payment_status = $7, last_paid_at = $8, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version`,
		e.ID, e.Version, e.ExpenseDate, recurrenceParam(e.Recurrence), e.AnchorDate, e.NextDueDate,
		string(e.PaymentStatus), e.LastPaidAt,
	).Scan(&next)
	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, pgx.ErrNoRows), db.IsSerializationFailure(err):
		return 0, fmt.Errorf("%w: expense %d was modified concurrently", shared.ErrConcurrentModification, e.ID)
	default:
		return 0, fmt.Errorf("expenses: update %d: %w", e.ID, err)
	}
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id int64, status PaymentStatus) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE expenses SET payment_status = $2, updated_at = NOW() WHERE id = $1 AND payment_status <> $2`,
		id, string(status))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func recurrenceParam(r Recurrence) pgtype.Text {
	if r == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: string(r), Valid: true}
}

func collect(rows pgx.Rows) ([]Expense, error) {
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanExpense(row pgx.Row) (*Expense, error) {
	var (
		e          Expense
		recurrence pgtype.Text
		status     string
	)
	err := row.Scan(&e.ID, &e.Number, &e.ClientID, &e.ProjectID, &e.EmployeeID, &e.Category, &e.Description,
		&e.Amount, &e.ExpenseDate, &e.IsRecurring, &recurrence, &e.AnchorDate, &e.NextDueDate, &status,
		&e.LastPaidAt, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if recurrence.Valid {
		e.Recurrence = Recurrence(recurrence.String)
	}
	e.PaymentStatus = PaymentStatus(status)
	return &e, nil
}
