package quotations

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-finance/internal/money"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// EffectiveStatus is the status as of now: a sent quotation whose expiry date
// has passed reads as expired. Other statuses are returned unchanged.
func EffectiveStatus(q Quotation, now time.Time) Status {
	if q.Status == StatusSent && money.DateAfter(now, q.ExpiryDate) {
		return StatusExpired
	}
	return q.Status
}

// Apply validates action against the quotation and returns the next status.
// Actions on an expired quotation fail with shared.ErrExpired; actions from any
// other terminal state, or out of order, fail with shared.ErrInvalidTransition.
func Apply(q Quotation, action Action, now time.Time) (Status, error) {
	current := EffectiveStatus(q, now)
	if current == StatusExpired {
		return "", fmt.Errorf("%w: quotation %s expired on %s", shared.ErrExpired, q.Number, money.FormatDate(q.ExpiryDate))
	}

	switch action {
	case ActionSend:
		if current != StatusDraft {
			return "", invalid(q, current, action)
		}
		if money.DateAfter(now, q.ExpiryDate) {
			return "", fmt.Errorf("%w: quotation %s expired on %s", shared.ErrExpired, q.Number, money.FormatDate(q.ExpiryDate))
		}
		return StatusSent, nil
	case ActionApprove, ActionReject:
		if current != StatusSent {
			return "", invalid(q, current, action)
		}
		if action == ActionApprove {
			return StatusApproved, nil
		}
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", shared.ErrValidation, action)
	}
}

// CanConvert reports why q may not become an invoice, or nil.
func CanConvert(q Quotation, now time.Time) error {
	if q.InvoiceID != nil {
		return fmt.Errorf("%w: quotation %s produced invoice %d", shared.ErrAlreadyConverted, q.Number, *q.InvoiceID)
	}
	if status := EffectiveStatus(q, now); status != StatusApproved {
		return fmt.Errorf("%w: quotation %s is %s", shared.ErrNotApproved, q.Number, status)
	}
	return nil
}

func invalid(q Quotation, from Status, action Action) error {
	return fmt.Errorf("%w: cannot %s quotation %s in status %s", shared.ErrInvalidTransition, action, q.Number, from)
}
