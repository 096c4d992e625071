package ar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-finance/internal/money"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Repository abstracts invoice and payment persistence. Implementations must
// join the transaction carried by ctx.
type Repository interface {
	NextInvoiceNumber(ctx context.Context) (string, error)
	CreateInvoice(ctx context.Context, input IssueInvoiceInput, status Status) (*Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, clientID int64) ([]Invoice, error)
	ListOutstanding(ctx context.Context) ([]Invoice, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	InsertPayment(ctx context.Context, payment Payment) (*Payment, error)
	UpdateLedger(ctx context.Context, id, version int64, update LedgerUpdate) (int64, error)
	MarkSent(ctx context.Context, id, version int64, sentAt time.Time, status Status) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (bool, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	PaymentTermsDays int
	DefaultCurrency  string
}

const (
	defaultPaymentTermsDays = 30
	defaultCurrency         = "IDR"
	idempotencyModule       = "ar.payment"
)

// Service coordinates the invoice ledger.
type Service struct {
	repo        Repository
	tx          shared.Transactor
	audit       shared.AuditPort
	idempotency shared.IdempotencyPort
	invalidator shared.ReportInvalidator
	observer    shared.EventObserver
	clock       shared.Clock
	logger      *slog.Logger
	cfg         ServiceConfig
}

// NewService builds Service.
func NewService(repo Repository, tx shared.Transactor, audit shared.AuditPort, idem shared.IdempotencyPort, cfg ServiceConfig) *Service {
	if cfg.PaymentTermsDays <= 0 {
		cfg.PaymentTermsDays = defaultPaymentTermsDays
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = defaultCurrency
	}
	return &Service{
		repo:        repo,
		tx:          tx,
		audit:       audit,
		idempotency: idem,
		clock:       shared.SystemClock,
		logger:      slog.Default(),
		cfg:         cfg,
	}
}

// WithClock overrides the clock used for status derivation.
func (s *Service) WithClock(clock shared.Clock) {
	s.clock = shared.ClockOrSystem(clock)
}

// WithLogger overrides the logger.
func (s *Service) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetReportInvalidator registers the report cache to bump after ledger writes.
func (s *Service) SetReportInvalidator(inv shared.ReportInvalidator) {
	s.invalidator = inv
}

// SetObserver registers the metrics sink for engine outcomes.
func (s *Service) SetObserver(o shared.EventObserver) {
	s.observer = o
}

// PaymentTermsDays reports the default number of days between issue and due date.
func (s *Service) PaymentTermsDays() int { return s.cfg.PaymentTermsDays }

// DefaultCurrency is the currency applied when a document names none.
func (s *Service) DefaultCurrency() string { return s.cfg.DefaultCurrency }

// IssueInvoice creates an invoice, either as a draft or already sent.
func (s *Service) IssueInvoice(ctx context.Context, input IssueInvoiceInput) (*Invoice, error) {
	inv, err := s.issue(ctx, input)
	if err != nil {
		return nil, err
	}
	s.invalidateReports(ctx)
	return inv, nil
}

// IssueInvoiceInTx creates an invoice as part of the caller's transaction.
// Reports are not invalidated; the caller does that once its transaction commits.
func (s *Service) IssueInvoiceInTx(ctx context.Context, input IssueInvoiceInput) (*Invoice, error) {
	return s.issue(ctx, input)
}

func (s *Service) issue(ctx context.Context, input IssueInvoiceInput) (*Invoice, error) {
	if input.ClientID == 0 {
		return nil, fmt.Errorf("%w: client required", shared.ErrValidation)
	}
	if input.IssueDate.IsZero() {
		input.IssueDate = s.clock.Now()
	}
	input.IssueDate = money.DateOf(input.IssueDate)
	if input.DueDate.IsZero() {
		input.DueDate = money.AddDays(input.IssueDate, s.cfg.PaymentTermsDays)
	}
	input.DueDate = money.DateOf(input.DueDate)
	if input.DueDate.Before(input.IssueDate) {
		return nil, fmt.Errorf("%w: due date before issue date", shared.ErrValidation)
	}
	if err := money.RequirePositive(input.Total); err != nil {
		return nil, fmt.Errorf("invoice total: %w", err)
	}
	input.Total = money.Round(input.Total)
	if input.Subtotal.IsZero() && input.TaxAmount.IsZero() {
		input.Subtotal = input.Total
	}
	input.Subtotal = money.Round(input.Subtotal)
	input.TaxAmount = money.Round(input.TaxAmount)
	if !input.Subtotal.Add(input.TaxAmount).Equal(input.Total) {
		return nil, fmt.Errorf("%w: subtotal %s plus tax %s does not equal total %s",
			shared.ErrValidation, input.Subtotal, input.TaxAmount, input.Total)
	}
	if input.Currency == "" {
		input.Currency = s.cfg.DefaultCurrency
	}
	input.Currency = strings.ToUpper(input.Currency)

	if input.Number == "" {
		number, err := s.repo.NextInvoiceNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("ar: next invoice number: %w", err)
		}
		input.Number = number
	}

	status := DeriveStatus(input.Total, input.Total, input.DueDate, s.clock.Now(), input.Draft)
	inv, err := s.repo.CreateInvoice(ctx, input, status)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "invoice.issue", inv.ID, map[string]any{"number": inv.Number, "total": inv.Total.String()})
	derived := inv.Derived(s.clock.Now())
	return &derived, nil
}

// SendInvoice marks a draft invoice as sent.
func (s *Service) SendInvoice(ctx context.Context, id, expectedVersion int64) (*Invoice, error) {
	var sent *Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		inv, err := s.repo.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && inv.Version != expectedVersion {
			return fmt.Errorf("%w: invoice %d is at version %d", shared.ErrConcurrentModification, id, inv.Version)
		}
		if inv.Sent {
			return fmt.Errorf("%w: invoice %s already sent", shared.ErrInvalidTransition, inv.Number)
		}
		now := s.clock.Now()
		status := DeriveStatus(inv.BalanceAmount, inv.Total, inv.DueDate, now, false)
		version, err := s.repo.MarkSent(ctx, inv.ID, inv.Version, now, status)
		if err != nil {
			return err
		}
		inv.Sent = true
		inv.SentAt = &now
		inv.Version = version
		inv.Status = status
		sent = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, "invoice.send", sent.ID, nil)
	return sent, nil
}

// GetInvoice returns the invoice with its status derived for the current date.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	derived := inv.Derived(s.clock.Now())
	return &derived, nil
}

// ListInvoices derives each invoice's status before applying the status filter,
// so list and detail views agree.
func (s *Service) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	invoices, err := s.repo.ListInvoices(ctx, filter.ClientID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]Invoice, 0, len(invoices))
	for _, inv := range invoices {
		inv = inv.Derived(now)
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		out = append(out, inv)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// ListPayments returns the invoice's payments ordered by date.
func (s *Service) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	if _, err := s.repo.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	SortPayments(payments)
	return payments, nil
}

// ReconcileInvoice recomputes the ledger from the stored payments. An
// overpaid invoice yields the reconciliation together with an *OverpaymentError.
func (s *Service) ReconcileInvoice(ctx context.Context, id int64) (Reconciliation, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Reconciliation{}, err
	}
	payments, err := s.repo.ListPayments(ctx, id)
	if err != nil {
		return Reconciliation{}, err
	}
	ledger, recErr := Reconcile(inv.Total, payments)
	var over *OverpaymentError
	if recErr != nil && !errors.As(recErr, &over) {
		return Reconciliation{}, recErr
	}
	rec := Reconciliation{
		InvoiceID:     inv.ID,
		Total:         ledger.Total,
		PaidAmount:    ledger.Paid,
		BalanceAmount: ledger.Balance,
		Excess:        ledger.Excess,
		Status:        DeriveStatus(ledger.Balance, ledger.Total, inv.DueDate, s.clock.Now(), !inv.Sent),
		PaymentCount:  len(payments),
		Version:       inv.Version,
	}
	if over != nil {
		s.logger.Warn("invoice overpaid", slog.Int64("invoice_id", inv.ID), slog.String("excess", over.Excess.String()))
		return rec, recErr
	}
	return rec, nil
}

// RecordPayment applies a payment to an invoice. Non-positive amounts and
// payments that would exceed the total are rejected without touching the
// ledger. The invoice row is updated with a version check, so a concurrent
// writer surfaces as shared.ErrConcurrentModification.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (*Payment, error) {
	if input.InvoiceID == 0 {
		return nil, fmt.Errorf("%w: invoice required", shared.ErrValidation)
	}
	if err := money.RequirePositive(input.Amount); err != nil {
		s.observe("payment", "invalid_amount")
		return nil, err
	}
	input.Method = strings.TrimSpace(input.Method)
	if input.Method == "" {
		return nil, fmt.Errorf("%w: payment method required", shared.ErrValidation)
	}
	now := s.clock.Now()
	if input.PaidAt.IsZero() {
		input.PaidAt = now
	}

	var (
		recorded *Payment
		ledger   Ledger
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
				return err
			}
		}
		inv, err := s.repo.GetInvoice(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if expected := input.ExpectedVersion; expected != 0 && inv.Version != expected {
			return fmt.Errorf("%w: invoice %d is at version %d, expected %d", shared.ErrConcurrentModification, inv.ID, inv.Version, expected)
		}
		if !inv.Sent {
			return fmt.Errorf("%w: invoice %s is still a draft", shared.ErrInvalidTransition, inv.Number)
		}
		existing, err := s.repo.ListPayments(ctx, inv.ID)
		if err != nil {
			return err
		}

		candidate := Payment{
			Number:    "PAY-" + strings.ToUpper(uuid.NewString()),
			InvoiceID: inv.ID,
			Amount:    money.Round(input.Amount),
			PaidAt:    money.DateOf(input.PaidAt),
			Method:    input.Method,
			Reference: strings.TrimSpace(input.Reference),
		}
		ledger, err = Reconcile(inv.Total, append(existing, candidate))
		if err != nil {
			return err
		}

		saved, err := s.repo.InsertPayment(ctx, candidate)
		if err != nil {
			return err
		}
		_, err = s.repo.UpdateLedger(ctx, inv.ID, inv.Version, LedgerUpdate{
			PaidAmount:    ledger.Paid,
			BalanceAmount: ledger.Balance,
			Status:        DeriveStatus(ledger.Balance, ledger.Total, inv.DueDate, now, false),
		})
		if err != nil {
			return err
		}
		recorded = saved
		return nil
	})
	if err != nil {
		s.observe("payment", outcomeOf(err))
		return nil, err
	}

	s.observe("payment", "recorded")
	s.afterWrite(ctx, "payment.record", recorded.InvoiceID, map[string]any{
		"payment": recorded.Number,
		"amount":  recorded.Amount.String(),
		"balance": ledger.Balance.String(),
	})
	return recorded, nil
}

// Aging buckets outstanding balances as of asOf.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingReport, error) {
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	invoices, err := s.repo.ListOutstanding(ctx)
	if err != nil {
		return AgingReport{}, err
	}
	return Aging(invoices, asOf), nil
}

// SyncStatuses persists the derived status of every outstanding invoice whose
// stored status has drifted, returning how many rows changed.
func (s *Service) SyncStatuses(ctx context.Context) (int, error) {
	invoices, err := s.repo.ListOutstanding(ctx)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	changed := 0
	for _, inv := range invoices {
		status := DeriveStatus(inv.BalanceAmount, inv.Total, inv.DueDate, now, !inv.Sent)
		if status == inv.Status {
			continue
		}
		updated, err := s.repo.UpdateStatus(ctx, inv.ID, status)
		if err != nil {
			return changed, fmt.Errorf("ar: sync status of invoice %d: %w", inv.ID, err)
		}
		if updated {
			changed++
		}
	}
	return changed, nil
}

func (s *Service) afterWrite(ctx context.Context, action string, invoiceID int64, meta map[string]any) {
	s.invalidateReports(ctx)
	s.recordAudit(ctx, action, invoiceID, meta)
}

func (s *Service) invalidateReports(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate report cache", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, invoiceID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(invoiceID, 10),
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
	case errors.Is(err, shared.ErrOverpayment):
		return "overpayment"
	case errors.Is(err, shared.ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, shared.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
