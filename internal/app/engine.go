package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-finance/internal/analytics"
	"github.com/odyssey-erp/odyssey-finance/internal/ar"
	"github.com/odyssey-erp/odyssey-finance/internal/expenses"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/db"
	"github.com/odyssey-erp/odyssey-finance/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
	"github.com/odyssey-erp/odyssey-finance/migrations"
)

// Engine holds the connected infrastructure and the domain services built on it.
// The HTTP server and the worker share one Engine layout.
type Engine struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client

	Invoices    *ar.Service
	Quotations  *quotations.Service
	Expenses    *expenses.Service
	Reports     *analytics.Service
	ReportCache *analytics.Cache
	Idempotency *shared.IdempotencyStore
}

// OpenEngine connects PostgreSQL and Redis, optionally applies migrations, and
// wires the services. Close releases the connections.
func OpenEngine(ctx context.Context, cfg *Config, logger *slog.Logger, observer shared.EventObserver) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PGDSN, migrations.FS, logger); err != nil {
			return nil, err
		}
	}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		pool.Close()
		return nil, err
	}

	engine := &Engine{Pool: pool, Redis: redisClient}
	engine.wire(cfg, logger, observer)
	return engine, nil
}

func (e *Engine) wire(cfg *Config, logger *slog.Logger, observer shared.EventObserver) {
	tx := db.NewTransactor(e.Pool)
	audit := shared.NewAuditLogger(e.Pool)
	e.Idempotency = shared.NewIdempotencyStore(e.Pool)

	e.ReportCache = analytics.NewCache(e.Redis, cfg.ReportCacheTTL)
	e.ReportCache.WithLogger(logger.With(slog.String("component", "report_cache")))
	e.Reports = analytics.NewService(analytics.NewRepository(e.Pool), e.ReportCache)
	e.Reports.WithLogger(logger.With(slog.String("component", "reports")))

	e.Invoices = ar.NewService(ar.NewRepository(e.Pool), tx, audit, e.Idempotency, ar.ServiceConfig{
		PaymentTermsDays: cfg.InvoicePaymentTermsDays,
		DefaultCurrency:  cfg.DefaultCurrency,
	})
	e.Invoices.WithLogger(logger.With(slog.String("component", "invoices")))
	e.Invoices.SetReportInvalidator(e.ReportCache)

	e.Quotations = quotations.NewService(quotations.NewRepository(e.Pool), tx, e.Invoices, audit)
	e.Quotations.WithLogger(logger.With(slog.String("component", "quotations")))
	e.Quotations.SetReportInvalidator(e.ReportCache)

	e.Expenses = expenses.NewService(expenses.NewRepository(e.Pool), tx, audit)
	e.Expenses.WithLogger(logger.With(slog.String("component", "expenses")))
	e.Expenses.SetReportInvalidator(e.ReportCache)

	if observer != nil {
		e.Invoices.SetObserver(observer)
		e.Quotations.SetObserver(observer)
		e.Expenses.SetObserver(observer)
		if builds, ok := observer.(analytics.BuildObserver); ok {
			e.Reports.SetBuildObserver(builds)
		}
	}
}

// Close releases the database pool and Redis client.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	var err error
	if e.Redis != nil {
		err = e.Redis.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	return err
}
