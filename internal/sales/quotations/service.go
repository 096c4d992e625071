package quotations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/ar"
	"github.com/odyssey-erp/odyssey-finance/internal/money"
	"github.com/odyssey-erp/odyssey-finance/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// InvoiceIssuer creates the invoice for a converted quotation inside the
// caller's transaction and supplies the ledger's default currency.
type InvoiceIssuer interface {
	IssueInvoiceInTx(ctx context.Context, input ar.IssueInvoiceInput) (*ar.Invoice, error)
	DefaultCurrency() string
}

type Service struct {
	repo        Repository
	tx          shared.Transactor
	invoices    InvoiceIssuer
	audit       shared.AuditPort
	invalidator shared.ReportInvalidator
	observer    shared.EventObserver
	clock       shared.Clock
	logger      *slog.Logger
}

func NewService(repo Repository, tx shared.Transactor, invoices InvoiceIssuer, audit shared.AuditPort) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		invoices: invoices,
		audit:    audit,
		clock:    shared.SystemClock,
		logger:   slog.Default(),
	}
}

func (s *Service) WithClock(clock shared.Clock) {
	s.clock = shared.ClockOrSystem(clock)
}

func (s *Service) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *Service) SetObserver(o shared.EventObserver) {
	s.observer = o
}

// SetReportInvalidator registers the report cache bumped once a conversion commits.
func (s *Service) SetReportInvalidator(inv shared.ReportInvalidator) {
	s.invalidator = inv
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*Quotation, error) {
	if input.ClientID == 0 {
		return nil, fmt.Errorf("%w: client required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	if input.IssueDate.IsZero() {
		input.IssueDate = s.clock.Now()
	}
	input.IssueDate = money.DateOf(input.IssueDate)
	input.ExpiryDate = money.DateOf(input.ExpiryDate)
	if input.ExpiryDate.Before(input.IssueDate) {
		return nil, fmt.Errorf("%w: expiry_date must not precede issue_date", shared.ErrValidation)
	}

	q := Quotation{
		Number:     input.Number,
		ClientID:   input.ClientID,
		ProjectID:  input.ProjectID,
		Currency:   strings.ToUpper(input.Currency),
		IssueDate:  input.IssueDate,
		ExpiryDate: input.ExpiryDate,
		Status:     StatusDraft,
	}
	if q.Currency == "" {
		q.Currency = strings.ToUpper(s.invoices.DefaultCurrency())
	}

	totals := make([]pricing.LineTotals, 0, len(input.Lines))
	for i, in := range input.Lines {
		if !in.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: line %d quantity must be positive", shared.ErrValidation, i+1)
		}
		if in.UnitPrice.IsNegative() || in.DiscountPercent.IsNegative() || in.TaxPercent.IsNegative() {
			return nil, fmt.Errorf("%w: line %d has a negative price or rate", shared.ErrValidation, i+1)
		}
		if in.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("%w: line %d discount above 100%%", shared.ErrValidation, i+1)
		}
		lt := pricing.CalculateLineTotals(in.Quantity, in.UnitPrice, in.DiscountPercent, in.TaxPercent)
		totals = append(totals, lt)
		q.Lines = append(q.Lines, Line{
			Description:     in.Description,
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			TaxPercent:      in.TaxPercent,
			DiscountAmount:  lt.Discount,
			TaxAmount:       lt.Tax,
			LineTotal:       lt.Total,
			LineOrder:       i + 1,
		})
	}
	q.Subtotal, q.TaxAmount, q.Total = pricing.Header(totals)
	if err := money.RequirePositive(q.Total); err != nil {
		return nil, fmt.Errorf("quotation total: %w", err)
	}

	var created *Quotation
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if q.Number == "" {
			number, err := s.repo.NextNumber(ctx)
			if err != nil {
				return fmt.Errorf("generate doc number: %w", err)
			}
			q.Number = number
		}
		var err error
		created, err = s.repo.Create(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "quotation.create", created.ID, map[string]any{"number": created.Number, "total": created.Total.String()})
	return created, nil
}

// Get returns the quotation with its status derived for the current date.
func (s *Service) Get(ctx context.Context, id int64) (*Quotation, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	derived := q.Derived(s.clock.Now())
	return &derived, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Quotation, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	rows, err := s.repo.List(ctx, filter.ClientID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]Quotation, 0, len(rows))
	for _, q := range rows {
		q = q.Derived(now)
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		out = append(out, q)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Transition applies a user action. expectedVersion, when non-zero, must match.
func (s *Service) Transition(ctx context.Context, id int64, action Action, expectedVersion int64) (*Quotation, error) {
	var result *Quotation
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && q.Version != expectedVersion {
			return fmt.Errorf("%w: quotation %d is at version %d", shared.ErrConcurrentModification, id, q.Version)
		}
		now := s.clock.Now()
		next, err := Apply(*q, action, now)
		if err != nil {
			return err
		}
		version, err := s.repo.UpdateStatus(ctx, q.ID, q.Version, next, now)
		if err != nil {
			return err
		}
		q.Status = next
		q.Version = version
		switch next {
		case StatusSent:
			q.SentAt = &now
		default:
			q.DecidedAt = &now
		}
		result = q
		return nil
	})
	if err != nil {
		s.observe("quotation_transition", string(action)+"_rejected")
		return nil, err
	}
	s.observe("quotation_transition", string(action))
	s.record(ctx, "quotation."+string(action), result.ID, map[string]any{"status": string(result.Status)})
	return result, nil
}

// ConvertToInvoice issues exactly one invoice for an approved quotation. The
// invoice insert and the back-reference are written in one transaction; a
// second attempt fails with shared.ErrAlreadyConverted.
func (s *Service) ConvertToInvoice(ctx context.Context, id int64, input ConvertInput) (*ar.Invoice, error) {
	var invoice *ar.Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if input.ExpectedVersion != 0 && q.Version != input.ExpectedVersion {
			return fmt.Errorf("%w: quotation %d is at version %d", shared.ErrConcurrentModification, id, q.Version)
		}
		now := s.clock.Now()
		if err := CanConvert(*q, now); err != nil {
			return err
		}
		issueDate := input.IssueDate
		if issueDate.IsZero() {
			issueDate = now
		}
		quotationID := q.ID
		invoice, err = s.invoices.IssueInvoiceInTx(ctx, ar.IssueInvoiceInput{
			ClientID:    q.ClientID,
			ProjectID:   q.ProjectID,
			QuotationID: &quotationID,
			Currency:    q.Currency,
			IssueDate:   issueDate,
			DueDate:     input.DueDate,
			Subtotal:    q.Subtotal,
			TaxAmount:   q.TaxAmount,
			Total:       q.Total,
			Draft:       input.Draft,
		})
		if err != nil {
			return fmt.Errorf("issue invoice for quotation %s: %w", q.Number, err)
		}
		_, err = s.repo.LinkInvoice(ctx, q.ID, q.Version, invoice.ID, now)
		return err
	})
	if err != nil {
		s.observe("quotation_conversion", outcomeOf(err))
		return nil, err
	}
	s.observe("quotation_conversion", "converted")
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate report cache", slog.Any("error", err))
		}
	}
	s.record(ctx, "quotation.convert", id, map[string]any{"invoice_id": invoice.ID, "invoice_number": invoice.Number})
	return invoice, nil
}

// ExpireStale persists the expired status of sent quotations past their
// expiry date so stored list filters match the derived status.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	rows, err := s.repo.ListSentExpiringBefore(ctx, money.DateOf(now))
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, q := range rows {
		if EffectiveStatus(q, now) != StatusExpired {
			continue
		}
		ok, err := s.repo.MarkExpired(ctx, q.ID)
		if err != nil {
			return expired, fmt.Errorf("expire quotation %d: %w", q.ID, err)
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "quotation",
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
	for _, c := range []struct {
		target  error
		outcome string
	}{
		{shared.ErrAlreadyConverted, "already_converted"},
		{shared.ErrNotApproved, "not_approved"},
		{shared.ErrConcurrentModification, "conflict"},
		{shared.ErrNotFound, "not_found"},
	} {
		if errors.Is(err, c.target) {
			return c.outcome
		}
	}
	return "error"
}
