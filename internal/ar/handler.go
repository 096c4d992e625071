package ar

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/money"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// IdempotencyHeader carries the client supplied key for payment replays.
const IdempotencyHeader = "Idempotency-Key"

// Handler manages AR endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers read routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.listInvoices)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Get("/invoices/{id}/reconciliation", h.reconcile)
	r.Get("/invoices/{id}/payments", h.listPayments)
	r.Get("/aging", h.aging)
}

// MountWriteRoutes registers routes that mutate the ledger.
func (h *Handler) MountWriteRoutes(r chi.Router) {
	r.Post("/invoices", h.issueInvoice)
	r.Post("/invoices/{id}/send", h.sendInvoice)
	r.Post("/invoices/{id}/payments", h.recordPayment)
}

type issueInvoiceRequest struct {
	Number    string `json:"number" validate:"omitempty,max=64"`
	ClientID  int64  `json:"client_id" validate:"required,gt=0"`
	ProjectID *int64 `json:"project_id" validate:"omitempty,gt=0"`
	Currency  string `json:"currency" validate:"omitempty,len=3,alpha"`
	IssueDate string `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate   string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Subtotal  string `json:"subtotal" validate:"omitempty,numeric"`
	TaxAmount string `json:"tax_amount" validate:"omitempty,numeric"`
	Total     string `json:"total" validate:"required"`
	Draft     bool   `json:"draft"`
}

type recordPaymentRequest struct {
	Amount          string `json:"amount" validate:"required"`
	PaidAt          string `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
	Method          string `json:"method" validate:"required,oneof=cash bank_transfer card cheque e_wallet other"`
	Reference       string `json:"reference" validate:"omitempty,max=128"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

type sendInvoiceRequest struct {
	ExpectedVersion int64 `json:"expected_version" validate:"gte=0"`
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	if raw := q.Get("client_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: client_id", shared.ErrValidation))
			return
		}
		filter.ClientID = id
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.RespondError(w, fmt.Errorf("%w: limit", shared.ErrValidation))
			return
		}
		filter.Limit = limit
	}
	invoices, err := h.service.ListInvoices(r.Context(), filter)
	if err != nil {
		h.fail(w, "list invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, "get invoice", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.ReconcileInvoice(r.Context(), id)
	if err != nil {
		var over *OverpaymentError
		if errors.As(err, &over) {
			httpx.JSON(w, http.StatusOK, map[string]any{"reconciliation": rec, "overpayment": over.ProblemFields()})
			return
		}
		h.fail(w, "reconcile invoice", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reconciliation": rec})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.fail(w, "list payments", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	var asOf time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := money.ParseDate(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: as_of must be YYYY-MM-DD", shared.ErrValidation))
			return
		}
		asOf = parsed
	}
	report, err := h.service.Aging(r.Context(), asOf)
	if err != nil {
		h.fail(w, "aging report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) issueInvoice(w http.ResponseWriter, r *http.Request) {
	var req issueInvoiceRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	total, err := money.ParseAmount(req.Total)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := IssueInvoiceInput{
		Number:    req.Number,
		ClientID:  req.ClientID,
		ProjectID: req.ProjectID,
		Currency:  req.Currency,
		Total:     total,
		Draft:     req.Draft,
	}
	if input.Subtotal, err = optionalAmount(req.Subtotal); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if input.TaxAmount, err = optionalAmount(req.TaxAmount); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if input.IssueDate, err = optionalDate("issue_date", req.IssueDate); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if input.DueDate, err = optionalDate("due_date", req.DueDate); err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoice, err := h.service.IssueInvoice(r.Context(), input)
	if err != nil {
		h.fail(w, "issue invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) sendInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req sendInvoiceRequest
	if r.ContentLength > 0 {
		if err := httpx.Bind(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	invoice, err := h.service.SendInvoice(r.Context(), id, req.ExpectedVersion)
	if err != nil {
		h.fail(w, "send invoice", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key != "" {
		if _, err := uuid.Parse(key); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %s must be a UUID", shared.ErrValidation, IdempotencyHeader))
			return
		}
	}
	var req recordPaymentRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	amount, err := money.ParseAmount(req.Amount)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := RecordPaymentInput{
		InvoiceID:       id,
		Amount:          amount,
		Method:          req.Method,
		Reference:       req.Reference,
		IdempotencyKey:  key,
		ExpectedVersion: req.ExpectedVersion,
	}
	if input.PaidAt, err = optionalDate("paid_at", req.PaidAt); err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.RecordPayment(r.Context(), input)
	if err != nil {
		h.fail(w, "record payment", err, slog.Int64("invoice_id", id))
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid invoice id", shared.ErrValidation))
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error, attrs ...any) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error(op, append(attrs, slog.Any("error", err))...)
	} else {
		h.logger.Debug(op, append(attrs, slog.Any("error", err))...)
	}
	httpx.RespondError(w, err)
}

func optionalAmount(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q", shared.ErrInvalidAmount, raw)
	}
	return money.Round(d), nil
}

func optionalDate(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := money.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", shared.ErrValidation, field)
	}
	return parsed, nil
}
