package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-finance/internal/ar"
	"github.com/odyssey-erp/odyssey-finance/internal/expenses"
	"github.com/odyssey-erp/odyssey-finance/internal/money"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Repository loads the rows a report is built from.
type Repository interface {
	InvoicesIssued(ctx context.Context, p money.Period) ([]ar.Invoice, error)
	Receipts(ctx context.Context, p money.Period) ([]Receipt, error)
	Expenses(ctx context.Context, p money.Period) ([]expenses.Expense, error)
}

// BuildObserver records how long uncached report builds take.
type BuildObserver interface {
	ObserveReportBuild(kind string, took time.Duration)
}

// Service coordinates report building with the cache layer.
type Service struct {
	repo     Repository
	cache    *Cache
	clock    shared.Clock
	logger   *slog.Logger
	observer BuildObserver
	builds   singleflight.Group
}

// NewService wires a Repository with a Cache helper. A nil cache disables caching.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, clock: shared.SystemClock, logger: slog.Default()}
}

// WithClock overrides the clock used for status derivation and cache keys.
func (s *Service) WithClock(clock shared.Clock) { s.clock = shared.ClockOrSystem(clock) }

// WithLogger overrides the logger.
func (s *Service) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetBuildObserver installs a build timing sink.
func (s *Service) SetBuildObserver(o BuildObserver) { s.observer = o }

// BuildReport summarises the inclusive range [from, to].
func (s *Service) BuildReport(ctx context.Context, from, to time.Time) (Report, error) {
	p, err := money.NewPeriod(from, to)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	now := s.clock.Now()
	return s.cached(ctx, keyReport(p, now), func(ctx context.Context) (Report, error) {
		defer s.timeBuild("range", time.Now())
		input, err := s.load(ctx, p, now)
		if err != nil {
			return Report{}, err
		}
		return BuildPeriodReport(input), nil
	})
}

// MonthlyReport summarises one calendar month.
func (s *Service) MonthlyReport(ctx context.Context, year int, month time.Month) (Report, error) {
	p := money.MonthPeriod(year, month)
	return s.BuildReport(ctx, p.Start, p.End)
}

// YearlyReport summarises a calendar year with a month-by-month trend.
func (s *Service) YearlyReport(ctx context.Context, year int) (Report, error) {
	if year < 1 || year > 9999 {
		return Report{}, fmt.Errorf("%w: year %d out of range", shared.ErrValidation, year)
	}
	p := money.YearPeriod(year)
	now := s.clock.Now()
	return s.cached(ctx, keyYearly(year, now), func(ctx context.Context) (Report, error) {
		defer s.timeBuild("yearly", time.Now())
		input, err := s.load(ctx, p, now)
		if err != nil {
			return Report{}, err
		}
		report := BuildPeriodReport(input)
		report.Trend = BuildTrend(input)
		return report, nil
	})
}

// Warmup pre-builds the reports dashboards open first.
func (s *Service) Warmup(ctx context.Context) error {
	now := s.clock.Now()
	if _, err := s.MonthlyReport(ctx, now.Year(), now.Month()); err != nil {
		return fmt.Errorf("warm monthly report: %w", err)
	}
	if _, err := s.YearlyReport(ctx, now.Year()); err != nil {
		return fmt.Errorf("warm yearly report: %w", err)
	}
	return nil
}

// Invalidate drops every cached report.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) timeBuild(kind string, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveReportBuild(kind, time.Since(start))
	}
}

func (s *Service) load(ctx context.Context, p money.Period, now time.Time) (ReportInput, error) {
	input := ReportInput{Period: p, Now: now}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.repo.InvoicesIssued(ctx, p)
		if err != nil {
			return fmt.Errorf("load invoices: %w", err)
		}
		input.Invoices = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.repo.Receipts(ctx, p)
		if err != nil {
			return fmt.Errorf("load receipts: %w", err)
		}
		input.Receipts = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.repo.Expenses(ctx, p)
		if err != nil {
			return fmt.Errorf("load expenses: %w", err)
		}
		input.Expenses = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return ReportInput{}, err
	}
	return input, nil
}

// cached collapses concurrent builds of the same key and stores the result.
func (s *Service) cached(ctx context.Context, base string, build func(context.Context) (Report, error)) (Report, error) {
	key, err := s.cache.BuildKey(ctx, base)
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Any("error", err))
		return build(ctx)
	}
	ch := s.builds.DoChan(key, func() (any, error) {
		var report Report
		err := s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
			return build(ctx)
		})
		return report, err
	})
	select {
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Report{}, res.Err
		}
		return res.Val.(Report), nil
	}
}
