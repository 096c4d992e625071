package shared

import "context"

// Transactor runs fn in a transaction carried by the returned context.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log AuditLog) error
}

// IdempotencyPort claims request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// ReportInvalidator drops cached reports after ledger or expense writes.
type ReportInvalidator interface {
	Invalidate(ctx context.Context) error
}

// EventObserver counts engine outcomes such as rejected overpayments.
type EventObserver interface {
	ObserveEngineEvent(event, outcome string)
}
