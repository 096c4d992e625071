// Package expenses records business expenses and schedules recurring ones.
package expenses

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recurrence is the period unit of a recurring expense.
type Recurrence string

const (
	Weekly    Recurrence = "weekly"
	Monthly   Recurrence = "monthly"
	Quarterly Recurrence = "quarterly"
	Yearly    Recurrence = "yearly"
)

// Valid reports whether r is a known rule.
func (r Recurrence) Valid() bool {
	switch r {
	case Weekly, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

// PaymentStatus enumerates expense payment states.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPaid    PaymentStatus = "paid"
	StatusOverdue PaymentStatus = "overdue"
)

// Expense is a cost incurred on a date, optionally repeating. AnchorDate is the
// occurrence NextDueDate is computed from; both are nil for one-off expenses.
type Expense struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	ClientID      *int64          `json:"client_id,omitempty"`
	ProjectID     *int64          `json:"project_id,omitempty"`
	EmployeeID    *int64          `json:"employee_id,omitempty"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	ExpenseDate   time.Time       `json:"expense_date"`
	IsRecurring   bool            `json:"is_recurring"`
	Recurrence    Recurrence      `json:"recurrence,omitempty"`
	AnchorDate    *time.Time      `json:"anchor_date,omitempty"`
	NextDueDate   *time.Time      `json:"next_due_date,omitempty"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	LastPaidAt    *time.Time      `json:"last_paid_at,omitempty"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// RegisterInput carries a new expense.
type RegisterInput struct {
	Number      string
	ClientID    *int64
	ProjectID   *int64
	EmployeeID  *int64
	Category    string
	Description string
	Amount      decimal.Decimal
	ExpenseDate time.Time
	IsRecurring bool
	Recurrence  Recurrence
}

// ListFilter narrows expense listings. PaymentStatus is matched after derivation.
type ListFilter struct {
	Category      string
	PaymentStatus PaymentStatus
	RecurringOnly bool
	Limit         int
}
