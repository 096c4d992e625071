package analytichttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-finance/internal/analytics"
	"github.com/odyssey-erp/odyssey-finance/internal/money"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

var (
	periodRegex = regexp.MustCompile(`^\d{4}-\d{2}$`)
	yearRegex   = regexp.MustCompile(`^\d{4}$`)
)

const requestTimeout = 5 * time.Second

// ReportService defines the report contract used by the handler.
type ReportService interface {
	BuildReport(ctx context.Context, from, to time.Time) (analytics.Report, error)
	MonthlyReport(ctx context.Context, year int, month time.Month) (analytics.Report, error)
	YearlyReport(ctx context.Context, year int) (analytics.Report, error)
}

// Handler serves accrual and cash reports as JSON.
type Handler struct {
	logger  *slog.Logger
	service ReportService
	now     func() time.Time
}

// NewHandler constructs the reporting HTTP handler.
func NewHandler(logger *slog.Logger, service ReportService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

func (h *Handler) handleRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDateParam(q.Get("from"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: from must be YYYY-MM-DD", shared.ErrValidation))
		return
	}
	to, err := parseDateParam(q.Get("to"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: to must be YYYY-MM-DD", shared.ErrValidation))
		return
	}
	if from.IsZero() || to.IsZero() {
		month := money.MonthPeriod(h.now().UTC().Year(), h.now().UTC().Month())
		if from.IsZero() {
			from = month.Start
		}
		if to.IsZero() {
			to = month.End
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	report, err := h.service.BuildReport(ctx, from, to)
	if err != nil {
		h.fail(w, "build report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleMonthly(w http.ResponseWriter, r *http.Request) {
	period := strings.TrimSpace(chi.URLParam(r, "period"))
	if !periodRegex.MatchString(period) {
		httpx.RespondError(w, fmt.Errorf("%w: period must be YYYY-MM", shared.ErrValidation))
		return
	}
	month, err := time.Parse("2006-01", period)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: period must be YYYY-MM", shared.ErrValidation))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	report, err := h.service.MonthlyReport(ctx, month.Year(), month.Month())
	if err != nil {
		h.fail(w, "monthly report", err, slog.String("period", period))
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleYearly(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "year"))
	if !yearRegex.MatchString(raw) {
		httpx.RespondError(w, fmt.Errorf("%w: year must be YYYY", shared.ErrValidation))
		return
	}
	year, _ := strconv.Atoi(raw)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	report, err := h.service.YearlyReport(ctx, year)
	if err != nil {
		h.fail(w, "yearly report", err, slog.Int("year", year))
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error, attrs ...any) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error(op, append(attrs, slog.Any("error", err))...)
	}
	httpx.RespondError(w, err)
}

func parseDateParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return money.ParseDate(raw)
}
