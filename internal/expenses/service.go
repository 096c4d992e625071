package expenses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-finance/internal/money"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Repository abstracts expense persistence.
type Repository interface {
	NextNumber(ctx context.Context) (string, error)
	Create(ctx context.Context, e Expense) (*Expense, error)
	Get(ctx context.Context, id int64) (*Expense, error)
	List(ctx context.Context, category string, recurringOnly bool) ([]Expense, error)
	ListOpen(ctx context.Context) ([]Expense, error)
	Update(ctx context.Context, e Expense) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status PaymentStatus) (bool, error)
}

// Service coordinates expense writes and due-date scheduling.
type Service struct {
	repo        Repository
	tx          shared.Transactor
	audit       shared.AuditPort
	invalidator shared.ReportInvalidator
	observer    shared.EventObserver
	clock       shared.Clock
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo Repository, tx shared.Transactor, audit shared.AuditPort) *Service {
	return &Service{repo: repo, tx: tx, audit: audit, clock: shared.SystemClock, logger: slog.Default()}
}

// WithClock overrides the clock.
func (s *Service) WithClock(clock shared.Clock) { s.clock = shared.ClockOrSystem(clock) }

// WithLogger overrides the logger.
func (s *Service) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetReportInvalidator registers the report cache to bump after writes.
func (s *Service) SetReportInvalidator(inv shared.ReportInvalidator) { s.invalidator = inv }

// SetObserver registers the metrics sink.
func (s *Service) SetObserver(o shared.EventObserver) { s.observer = o }

// Register stores a new expense, scheduling its first due date when recurring.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Expense, error) {
	if err := money.RequirePositive(input.Amount); err != nil {
		return nil, fmt.Errorf("expense amount: %w", err)
	}
	category := strings.TrimSpace(input.Category)
	if category == "" {
		return nil, fmt.Errorf("%w: category required", shared.ErrValidation)
	}
	if input.ExpenseDate.IsZero() {
		input.ExpenseDate = s.clock.Now()
	}
	e := Expense{
		Number:        input.Number,
		ClientID:      input.ClientID,
		ProjectID:     input.ProjectID,
		EmployeeID:    input.EmployeeID,
		Category:      category,
		Description:   strings.TrimSpace(input.Description),
		Amount:        money.Round(input.Amount),
		ExpenseDate:   money.DateOf(input.ExpenseDate),
		IsRecurring:   input.IsRecurring,
		Recurrence:    input.Recurrence,
		PaymentStatus: StatusPending,
	}
	if e.IsRecurring && !e.Recurrence.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecurrence, e.Recurrence)
	}
	if err := Schedule(&e); err != nil {
		return nil, err
	}

	var created *Expense
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if e.Number == "" {
			number, err := s.repo.NextNumber(ctx)
			if err != nil {
				return fmt.Errorf("expenses: next number: %w", err)
			}
			e.Number = number
		}
		var err error
		created, err = s.repo.Create(ctx, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, "expense.register", created.ID, map[string]any{"amount": created.Amount.String(), "recurring": created.IsRecurring})
	derived := created.Derived(s.clock.Now())
	return &derived, nil
}

// Get returns the expense with its payment status derived for the current date.
func (s *Service) Get(ctx context.Context, id int64) (*Expense, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	derived := e.Derived(s.clock.Now())
	return &derived, nil
}

// List returns expenses with derived payment statuses.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Expense, error) {
	rows, err := s.repo.List(ctx, strings.TrimSpace(filter.Category), filter.RecurringOnly)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]Expense, 0, len(rows))
	for _, e := range rows {
		e = e.Derived(now)
		if filter.PaymentStatus != "" && e.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// ComputeNextDueDate recomputes the next due date from the stored anchor and
// rule, persisting it when it differs. It returns nil for one-off expenses.
func (s *Service) ComputeNextDueDate(ctx context.Context, id int64) (*time.Time, error) {
	var next *time.Time
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		before := e.NextDueDate
		if err := Schedule(e); err != nil {
			return err
		}
		next = e.NextDueDate
		if sameDate(before, e.NextDueDate) {
			return nil
		}
		_, err = s.repo.Update(ctx, *e)
		return err
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// ChangeExpenseDate moves the expense date and, for recurring expenses,
// re-anchors the schedule on it.
func (s *Service) ChangeExpenseDate(ctx context.Context, id int64, date time.Time, expectedVersion int64) (*Expense, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: expense date required", shared.ErrValidation)
	}
	updated, err := s.mutate(ctx, id, expectedVersion, func(e *Expense) error {
		e.ExpenseDate = money.DateOf(date)
		e.AnchorDate = nil
		return Schedule(e)
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, "expense.change_date", id, map[string]any{"expense_date": money.FormatDate(updated.ExpenseDate)})
	return updated, nil
}

// RecordPayment marks the open installment paid. One-off expenses become paid;
// recurring expenses roll their anchor onto the paid due date and schedule the
// next one.
func (s *Service) RecordPayment(ctx context.Context, id int64, paidAt time.Time, expectedVersion int64) (*Expense, error) {
	if paidAt.IsZero() {
		paidAt = s.clock.Now()
	}
	paidOn := money.DateOf(paidAt)
	updated, err := s.mutate(ctx, id, expectedVersion, func(e *Expense) error {
		if !e.IsRecurring {
			if e.PaymentStatus == StatusPaid {
				return fmt.Errorf("%w: expense %s already paid", shared.ErrInvalidTransition, e.Number)
			}
		} else if err := Roll(e); err != nil {
			return err
		}
		e.PaymentStatus = StatusPaid
		e.LastPaidAt = &paidOn
		return nil
	})
	if err != nil {
		s.observe("expense_payment", outcomeOf(err))
		return nil, err
	}
	s.observe("expense_payment", "recorded")
	meta := map[string]any{"paid_at": money.FormatDate(paidOn)}
	if updated.NextDueDate != nil {
		meta["next_due_date"] = money.FormatDate(*updated.NextDueDate)
	}
	s.afterWrite(ctx, "expense.pay", id, meta)
	return updated, nil
}

// SyncStatuses persists derived payment statuses that have drifted.
func (s *Service) SyncStatuses(ctx context.Context) (int, error) {
	rows, err := s.repo.ListOpen(ctx)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	changed := 0
	for _, e := range rows {
		status := EffectivePaymentStatus(e, now)
		if status == e.PaymentStatus {
			continue
		}
		ok, err := s.repo.UpdateStatus(ctx, e.ID, status)
		if err != nil {
			return changed, fmt.Errorf("expenses: sync status of %d: %w", e.ID, err)
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

func (s *Service) mutate(ctx context.Context, id, expectedVersion int64, apply func(e *Expense) error) (*Expense, error) {
	var out *Expense
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && e.Version != expectedVersion {
			return fmt.Errorf("%w: expense %d is at version %d", shared.ErrConcurrentModification, id, e.Version)
		}
		if err := apply(e); err != nil {
			return err
		}
		version, err := s.repo.Update(ctx, *e)
		if err != nil {
			return err
		}
		e.Version = version
		derived := e.Derived(s.clock.Now())
		out = &derived
		return nil
	})
	return out, err
}

func (s *Service) afterWrite(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate report cache", slog.Any("error", err))
		}
	}
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "expense",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.clock.Now(),
	})
	if err != nil {
		s.logger.Warn("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) observe(event, outcome string) {
	if s.observer != nil {
		s.observer.ObserveEngineEvent(event, outcome)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, shared.ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, shared.ErrInvalidTransition):
		return "already_paid"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return money.DateOf(*a).Equal(money.DateOf(*b))
}
