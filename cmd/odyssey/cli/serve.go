package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	analytichttp "github.com/odyssey-erp/odyssey-finance/internal/analytics/http"
	"github.com/odyssey-erp/odyssey-finance/internal/app"
	"github.com/odyssey-erp/odyssey-finance/internal/ar"
	"github.com/odyssey-erp/odyssey-finance/internal/expenses"
	"github.com/odyssey-erp/odyssey-finance/internal/observability"
	"github.com/odyssey-erp/odyssey-finance/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-finance/jobs"
)

func newServeCommand(loadConfig func() (*app.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *app.Config) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	engine, err := app.OpenEngine(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("engine close", slog.Any("error", err))
		}
	}()

	if err := engine.ReportCache.ListenForInvalidation(ctx, func(version int64) {
		logger.Debug("report cache bumped", slog.Int64("version", version))
	}); err != nil {
		logger.Warn("report invalidation listener", slog.Any("error", err))
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		ARHandler:        ar.NewHandler(logger, engine.Invoices),
		QuotationHandler: quotations.NewHandler(logger, engine.Quotations),
		ExpenseHandler:   expenses.NewHandler(logger, engine.Expenses),
		AnalyticsHandler: analytichttp.NewHandler(logger, engine.Reports),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
