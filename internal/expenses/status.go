package expenses

import (
	"time"

	"github.com/odyssey-erp/odyssey-finance/internal/money"
)

// DueDate is the date the open installment is payable: NextDueDate for recurring
// expenses, ExpenseDate otherwise.
func DueDate(e Expense) time.Time {
	if e.IsRecurring && e.NextDueDate != nil {
		return *e.NextDueDate
	}
	return e.ExpenseDate
}

// EffectivePaymentStatus derives the payment status as of now. A one-off paid
// expense stays paid. Anything else past its due date is overdue.
func EffectivePaymentStatus(e Expense, now time.Time) PaymentStatus {
	if !e.IsRecurring && e.PaymentStatus == StatusPaid {
		return StatusPaid
	}
	if money.DateAfter(now, DueDate(e)) {
		return StatusOverdue
	}
	if e.PaymentStatus == StatusPaid {
		return StatusPaid
	}
	return StatusPending
}

// Derived returns a copy with the read-time payment status applied.
func (e Expense) Derived(now time.Time) Expense {
	e.PaymentStatus = EffectivePaymentStatus(e, now)
	return e
}
