package expenses

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-finance/internal/money"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Handler exposes expense endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/expenses", h.list)
	r.Get("/expenses/{id}", h.show)
	r.Get("/expenses/{id}/next-due", h.nextDue)
}

func (h *Handler) MountWriteRoutes(r chi.Router) {
	r.Post("/expenses", h.register)
	r.Post("/expenses/{id}/date", h.changeDate)
	r.Post("/expenses/{id}/payments", h.pay)
}

type registerRequest struct {
	Number      string `json:"number" validate:"omitempty,max=64"`
	ClientID    *int64 `json:"client_id" validate:"omitempty,gt=0"`
	ProjectID   *int64 `json:"project_id" validate:"omitempty,gt=0"`
	EmployeeID  *int64 `json:"employee_id" validate:"omitempty,gt=0"`
	Category    string `json:"category" validate:"required,max=64"`
	Description string `json:"description" validate:"omitempty,max=512"`
	Amount      string `json:"amount" validate:"required"`
	ExpenseDate string `json:"expense_date" validate:"omitempty,datetime=2006-01-02"`
	IsRecurring bool   `json:"is_recurring"`
	Recurrence  string `json:"recurrence" validate:"omitempty,oneof=weekly monthly quarterly yearly"`
}

type changeDateRequest struct {
	ExpenseDate     string `json:"expense_date" validate:"required,datetime=2006-01-02"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

type payRequest struct {
	PaidAt          string `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Category:      q.Get("category"),
		PaymentStatus: PaymentStatus(q.Get("payment_status")),
		RecurringOnly: q.Get("recurring") == "true",
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.RespondError(w, fmt.Errorf("%w: limit", shared.ErrValidation))
			return
		}
		filter.Limit = limit
	}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list expenses", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expenses": list})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get expense", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) nextDue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	next, err := h.service.ComputeNextDueDate(r.Context(), id)
	if err != nil {
		h.fail(w, "compute next due date", err, slog.Int64("id", id))
		return
	}
	var body any
	if next != nil {
		body = money.FormatDate(*next)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"next_due_date": body})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	amount, err := money.ParseAmount(req.Amount)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := RegisterInput{
		Number:      req.Number,
		ClientID:    req.ClientID,
		ProjectID:   req.ProjectID,
		EmployeeID:  req.EmployeeID,
		Category:    req.Category,
		Description: req.Description,
		Amount:      amount,
		IsRecurring: req.IsRecurring,
		Recurrence:  Recurrence(req.Recurrence),
	}
	if req.ExpenseDate != "" {
		input.ExpenseDate, _ = money.ParseDate(req.ExpenseDate)
	}
	e, err := h.service.Register(r.Context(), input)
	if err != nil {
		h.fail(w, "register expense", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) changeDate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req changeDateRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := money.ParseDate(req.ExpenseDate)
	e, err := h.service.ChangeExpenseDate(r.Context(), id, date, req.ExpectedVersion)
	if err != nil {
		h.fail(w, "change expense date", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req payRequest
	if r.ContentLength > 0 {
		if err := httpx.Bind(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	var paidAt time.Time
	if req.PaidAt != "" {
		paidAt, _ = money.ParseDate(req.PaidAt)
	}
	e, err := h.service.RecordPayment(r.Context(), id, paidAt, req.ExpectedVersion)
	if err != nil {
		h.fail(w, "record expense payment", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error, attrs ...any) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error(op, append(attrs, slog.Any("error", err))...)
	}
	httpx.RespondError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid expense id", shared.ErrValidation))
		return 0, false
	}
	return id, true
}
