package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-finance/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Sweep kinds accepted in StatusSweepPayload.Kinds.
const (
	KindInvoices    = "invoices"
	KindQuotations  = "quotations"
	KindExpenses    = "expenses"
	KindIdempotency = "idempotency"
)

const defaultIdempotencyRetention = 72 * time.Hour

// StatusSyncer persists derived statuses and reports how many rows changed.
type StatusSyncer interface {
	SyncStatuses(ctx context.Context) (int, error)
}

// QuotationExpirer marks sent quotations past their expiry as expired.
type QuotationExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// IdempotencyCleaner drops claimed request keys older than the retention.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// StatusSweepJob keeps stored statuses in line with the ones derived on read,
// so list filters in SQL see overdue and expired rows.
type StatusSweepJob struct {
	Invoices    StatusSyncer
	Quotations  QuotationExpirer
	Expenses    StatusSyncer
	Idempotency IdempotencyCleaner
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewStatusSweepJob wires dependencies for the sweep handler. Nil ports are skipped.
func NewStatusSweepJob(invoices StatusSyncer, quotations QuotationExpirer, expenses StatusSyncer, idem IdempotencyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatusSweepJob {
	return &StatusSweepJob{
		Invoices:    invoices,
		Quotations:  quotations,
		Expenses:    expenses,
		Idempotency: idem,
		Logger:      logger,
		Metrics:     metrics,
	}
}

// Handle processes sweep tasks.
func (j *StatusSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("status sweep: handler not configured")
	}
	var payload StatusSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("status sweep: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run executes the sweep and returns the number of rows touched per kind.
func (j *StatusSweepJob) Run(ctx context.Context, payload StatusSweepPayload) (map[string]int, error) {
	tracker := j.metrics().Track(TaskStatusSweep)
	logger := j.logger()
	logger.Info("starting status sweep", slog.Any("kinds", payload.Kinds))

	counts := make(map[string]int)
	var errs []error
	for _, kind := range sweepKinds(payload.Kinds) {
		n, err := j.sweep(ctx, kind, payload)
		if err != nil {
			logger.Error("sweep failed", slog.String("kind", kind), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		counts[kind] = n
		j.metrics().AddSwept(kind, n)
	}
	err := tracker.End(errors.Join(errs...))
	if err == nil {
		logger.Info("status sweep completed", slog.Any("changed", counts))
	}
	return counts, err
}

func (j *StatusSweepJob) sweep(ctx context.Context, kind string, payload StatusSweepPayload) (int, error) {
	switch kind {
	case KindInvoices:
		if j.Invoices == nil {
			return 0, nil
		}
		return j.Invoices.SyncStatuses(ctx)
	case KindQuotations:
		if j.Quotations == nil {
			return 0, nil
		}
		return j.Quotations.ExpireStale(ctx)
	case KindExpenses:
		if j.Expenses == nil {
			return 0, nil
		}
		return j.Expenses.SyncStatuses(ctx)
	case KindIdempotency:
		if j.Idempotency == nil {
			return 0, nil
		}
		retention := defaultIdempotencyRetention
		if payload.IdempotencyHours > 0 {
			retention = time.Duration(payload.IdempotencyHours) * time.Hour
		}
		n, err := j.Idempotency.Cleanup(ctx, retention)
		return int(n), err
	}
	return 0, fmt.Errorf("unknown kind %q", kind)
}

func sweepKinds(requested []string) []string {
	if len(requested) == 0 {
		return []string{KindInvoices, KindQuotations, KindExpenses, KindIdempotency}
	}
	return requested
}

func validKind(kind string) bool {
	switch kind {
	case KindInvoices, KindQuotations, KindExpenses, KindIdempotency:
		return true
	}
	return false
}

func (j *StatusSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStatusSweep))
	}
	return slog.Default().With(slog.String("job", TaskStatusSweep))
}

func (j *StatusSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
