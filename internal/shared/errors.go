package shared

import "errors"

var (
	// ErrNotFound indicates no record exists for the given identifier.
	ErrNotFound = errors.New("not found")
	// ErrInvalidAmount indicates a non-positive or malformed payment or expense amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrOverpayment indicates payments would exceed the invoice total.
	ErrOverpayment = errors.New("overpayment")
	// ErrInvalidTransition indicates a state machine move that is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrExpired indicates the quotation is past its expiry date.
	ErrExpired = errors.New("quotation expired")
	// ErrNotApproved indicates conversion of a quotation that is not approved.
	ErrNotApproved = errors.New("quotation not approved")
	// ErrAlreadyConverted indicates the quotation already produced an invoice.
	ErrAlreadyConverted = errors.New("quotation already converted")
	// ErrConcurrentModification indicates a write against a stale version.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrValidation indicates malformed input outside the amount rules.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a request replayed with an idempotency key already used.
	ErrDuplicate = errors.New("duplicate request")
)
