package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-finance/internal/ar"
	"github.com/odyssey-erp/odyssey-finance/internal/expenses"
	"github.com/odyssey-erp/odyssey-finance/internal/money"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/db"
)

// PgRepository reads report rows from PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the report reader.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

// InvoicesIssued returns invoices with issue_date inside p.
func (r *PgRepository) InvoicesIssued(ctx context.Context, p money.Period) ([]ar.Invoice, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, number, client_id, project_id, total, paid_amount, balance_amount, issue_date, due_date, sent
		FROM invoices
		WHERE issue_date >= $1 AND issue_date < $2
		ORDER BY issue_date, id`, dateParam(p.Start), dateParam(p.EndExclusive()))
	if err != nil {
		return nil, fmt.Errorf("analytics: invoices: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ar.Invoice, error) {
		var inv ar.Invoice
		err := row.Scan(&inv.ID, &inv.Number, &inv.ClientID, &inv.ProjectID, &inv.Total, &inv.PaidAmount,
			&inv.BalanceAmount, &inv.IssueDate, &inv.DueDate, &inv.Sent)
		return inv, err
	})
}

// Receipts returns payments dated inside p together with the invoice client.
func (r *PgRepository) Receipts(ctx context.Context, p money.Period) ([]Receipt, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT p.id, p.invoice_id, i.client_id, p.amount, p.paid_at, p.method
		FROM payments p
		JOIN invoices i ON i.id = p.invoice_id
		WHERE p.paid_at >= $1 AND p.paid_at < $2
		ORDER BY p.paid_at, p.id`, dateParam(p.Start), dateParam(p.EndExclusive()))
	if err != nil {
		return nil, fmt.Errorf("analytics: receipts: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Receipt, error) {
		var rc Receipt
		err := row.Scan(&rc.PaymentID, &rc.InvoiceID, &rc.ClientID, &rc.Amount, &rc.PaidAt, &rc.Method)
		return rc, err
	})
}

// Expenses returns expenses dated inside p.
func (r *PgRepository) Expenses(ctx context.Context, p money.Period) ([]expenses.Expense, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, number, category, amount, expense_date, is_recurring
		FROM expenses
		WHERE expense_date >= $1 AND expense_date < $2
		ORDER BY expense_date, id`, dateParam(p.Start), dateParam(p.EndExclusive()))
	if err != nil {
		return nil, fmt.Errorf("analytics: expenses: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (expenses.Expense, error) {
		var e expenses.Expense
		err := row.Scan(&e.ID, &e.Number, &e.Category, &e.Amount, &e.ExpenseDate, &e.IsRecurring)
		return e, err
	})
}

func dateParam(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}
