package expenses

import (
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-finance/internal/money"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// ErrInvalidRecurrence indicates an unknown recurrence rule.
var ErrInvalidRecurrence = fmt.Errorf("%w: invalid recurrence rule", shared.ErrValidation)

// NextDueDate advances anchor by one period of rule. Month based rules keep the
// day of month, clamping to the last day of shorter months.
func NextDueDate(anchor time.Time, rule Recurrence) (time.Time, error) {
	anchor = money.DateOf(anchor)
	switch rule {
	case Weekly:
		return money.AddDays(anchor, 7), nil
	case Monthly:
		return money.AddMonthsClamped(anchor, 1), nil
	case Quarterly:
		return money.AddMonthsClamped(anchor, 3), nil
	case Yearly:
		return money.AddYearsClamped(anchor, 1), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidRecurrence, rule)
	}
}

// Schedule recomputes AnchorDate and NextDueDate from the expense's own fields.
// One-off expenses have both cleared.
func Schedule(e *Expense) error {
	if !e.IsRecurring {
		e.Recurrence = ""
		e.AnchorDate = nil
		e.NextDueDate = nil
		return nil
	}
	if e.AnchorDate == nil {
		anchor := money.DateOf(e.ExpenseDate)
		e.AnchorDate = &anchor
	}
	next, err := NextDueDate(*e.AnchorDate, e.Recurrence)
	if err != nil {
		return err
	}
	e.NextDueDate = &next
	return nil
}

// Roll moves the anchor onto the current due date and schedules the next one.
func Roll(e *Expense) error {
	if !e.IsRecurring {
		return errors.New("expenses: cannot roll a one-off expense")
	}
	if e.NextDueDate == nil {
		if err := Schedule(e); err != nil {
			return err
		}
	}
	anchor := *e.NextDueDate
	e.AnchorDate = &anchor
	next, err := NextDueDate(anchor, e.Recurrence)
	if err != nil {
		return err
	}
	e.NextDueDate = &next
	return nil
}
