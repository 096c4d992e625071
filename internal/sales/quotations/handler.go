package quotations

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/money"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/quotations", h.List)
	r.Get("/quotations/{id}", h.Show)
}

func (h *Handler) MountWriteRoutes(r chi.Router) {
	r.Post("/quotations", h.Create)
	r.Post("/quotations/{id}/transitions", h.Transition)
	r.Post("/quotations/{id}/convert", h.Convert)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
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
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list quotations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quotations": list})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get quotation", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createQuotationRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateInput{
		Number:    req.Number,
		ClientID:  req.ClientID,
		ProjectID: req.ProjectID,
		Currency:  req.Currency,
	}
	input.IssueDate, _ = money.ParseDate(req.IssueDate)
	input.ExpiryDate, _ = money.ParseDate(req.ExpiryDate)
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			Description:     l.Description,
			Quantity:        decimalOrZero(l.Quantity),
			UnitPrice:       decimalOrZero(l.UnitPrice),
			DiscountPercent: decimalOrZero(l.DiscountPercent),
			TaxPercent:      decimalOrZero(l.TaxPercent),
		})
	}
	q, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, "create quotation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Transition(r.Context(), id, req.Action, req.ExpectedVersion)
	if err != nil {
		h.fail(w, "transition quotation", err, slog.Int64("id", id), slog.String("action", string(req.Action)))
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req convertRequest
	if r.ContentLength > 0 {
		if err := httpx.Bind(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	input := ConvertInput{Draft: req.Draft, ExpectedVersion: req.ExpectedVersion}
	if req.IssueDate != "" {
		input.IssueDate, _ = money.ParseDate(req.IssueDate)
	}
	if req.DueDate != "" {
		input.DueDate, _ = money.ParseDate(req.DueDate)
	}
	invoice, err := h.service.ConvertToInvoice(r.Context(), id, input)
	if err != nil {
		h.fail(w, "convert quotation", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
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
		httpx.RespondError(w, fmt.Errorf("%w: invalid quotation id", shared.ErrValidation))
		return 0, false
	}
	return id, true
}

func decimalOrZero(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}
