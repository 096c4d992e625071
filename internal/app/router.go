package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	analytichttp "github.com/odyssey-erp/odyssey-finance/internal/analytics/http"
	"github.com/odyssey-erp/odyssey-finance/internal/ar"
	"github.com/odyssey-erp/odyssey-finance/internal/expenses"
	"github.com/odyssey-erp/odyssey-finance/internal/observability"
	"github.com/odyssey-erp/odyssey-finance/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-finance/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	ARHandler        *ar.Handler
	QuotationHandler *quotations.Handler
	ExpenseHandler   *expenses.Handler
	AnalyticsHandler *analytichttp.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	perMinute := 60
	if params.Config != nil {
		perMinute = params.Config.RateLimitPerMinute
	}
	writeLimit := WriteLimiter(perMinute)

	r.Route("/api/v1", func(r chi.Router) {
		if params.ARHandler != nil {
			params.ARHandler.MountRoutes(r)
			r.With(writeLimit).Group(params.ARHandler.MountWriteRoutes)
		}
		if params.QuotationHandler != nil {
			params.QuotationHandler.MountRoutes(r)
			r.With(writeLimit).Group(params.QuotationHandler.MountWriteRoutes)
		}
		if params.ExpenseHandler != nil {
			params.ExpenseHandler.MountRoutes(r)
			r.With(writeLimit).Group(params.ExpenseHandler.MountWriteRoutes)
		}
		if params.AnalyticsHandler != nil {
			params.AnalyticsHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
