package ar

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/money"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Ledger is the paid/balance position of an invoice.
type Ledger struct {
	Total   decimal.Decimal
	Paid    decimal.Decimal
	Balance decimal.Decimal
	Excess  decimal.Decimal
}

// Settled reports whether nothing remains to be collected.
func (l Ledger) Settled() bool { return l.Balance.IsZero() }

// OverpaymentError is returned when payments exceed the invoice total.
// It matches shared.ErrOverpayment.
type OverpaymentError struct {
	Total  decimal.Decimal
	Paid   decimal.Decimal
	Excess decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("overpayment: paid %s against total %s (excess %s)",
		e.Paid.StringFixed(money.Scale), e.Total.StringFixed(money.Scale), e.Excess.StringFixed(money.Scale))
}

// Is makes errors.Is(err, shared.ErrOverpayment) true.
func (e *OverpaymentError) Is(target error) bool { return target == shared.ErrOverpayment }

// ProblemFields exposes the amounts to HTTP clients.
func (e *OverpaymentError) ProblemFields() map[string]any {
	return map[string]any{
		"total":  e.Total.StringFixed(money.Scale),
		"paid":   e.Paid.StringFixed(money.Scale),
		"excess": e.Excess.StringFixed(money.Scale),
	}
}

// Reconcile sums the payments against total. When the payments exceed the total
// the ledger is still returned with a zero balance and the excess populated,
// together with an *OverpaymentError. Payments dated before the invoice was
// issued are counted like any other.
func Reconcile(total decimal.Decimal, payments []Payment) (Ledger, error) {
	if !total.IsPositive() {
		return Ledger{}, fmt.Errorf("%w: invoice total %s must be greater than zero", shared.ErrInvalidAmount, total.String())
	}
	amounts := make([]decimal.Decimal, 0, len(payments))
	for _, p := range payments {
		if err := money.RequirePositive(p.Amount); err != nil {
			return Ledger{}, fmt.Errorf("payment %s: %w", p.Number, err)
		}
		amounts = append(amounts, p.Amount)
	}

	total = money.Round(total)
	paid := money.Sum(amounts...)
	ledger := Ledger{
		Total:   total,
		Paid:    paid,
		Balance: money.Max(decimal.Zero, total.Sub(paid)),
		Excess:  money.Max(decimal.Zero, paid.Sub(total)),
	}
	if ledger.Excess.IsPositive() {
		return ledger, &OverpaymentError{Total: total, Paid: paid, Excess: ledger.Excess}
	}
	return ledger, nil
}

// SortPayments orders payments by payment date, then by ID.
func SortPayments(payments []Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		if !payments[i].PaidAt.Equal(payments[j].PaidAt) {
			return payments[i].PaidAt.Before(payments[j].PaidAt)
		}
		return payments[i].ID < payments[j].ID
	})
}
