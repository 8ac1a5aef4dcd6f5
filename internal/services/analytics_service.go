package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/repositories"
)

const (
	dashboardDays   = 30
	dashboardLayout = "2006-01-02"
)

// ErrAnalyticsUnavailable indicates the dashboard aggregates could not be read.
var ErrAnalyticsUnavailable = errors.New("analytics: unavailable")

// AnalyticsServiceDeps wires the dashboard service.
type AnalyticsServiceDeps struct {
	Dashboard repositories.DashboardRepository
	Clock     func() time.Time
	Logger    Logger
}

type analyticsService struct {
	repo   repositories.DashboardRepository
	clock  func() time.Time
	logger Logger
}

var _ AnalyticsService = (*analyticsService)(nil)

// NewAnalyticsService builds the service behind the admin dashboard.
func NewAnalyticsService(deps AnalyticsServiceDeps) (AnalyticsService, error) {
	if deps.Dashboard == nil {
		return nil, errors.New("analytics service: dashboard repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &analyticsService{
		repo:   deps.Dashboard,
		clock:  utcClock(deps.Clock),
		logger: logger,
	}, nil
}

// Dashboard reports store-wide counts and a 30 day series ending today (UTC). Every day in the
// window is present. Revenue only counts orders whose payment completed.
func (s *analyticsService) Dashboard(ctx context.Context) (DashboardStats, error) {
	now := s.clock()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(dashboardDays - 1))

	var (
		stats  = DashboardStats{GeneratedAt: now}
		totals []domain.OrderRevenue
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalOrders, err = s.repo.CountOrders(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.PendingOrders, err = s.repo.CountOrders(gctx, domain.OrderStatusPending, domain.OrderStatusPaymentPending)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalProducts, err = s.repo.CountProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.ActiveUsers, err = s.repo.CountApprovedUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		totals, err = s.repo.OrderTotalsSince(gctx, since)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger(ctx, "analytics.dashboard.failed", map[string]any{"error": err.Error()})
		return DashboardStats{}, fmt.Errorf("%w: %v", ErrAnalyticsUnavailable, err)
	}

	stats.Daily = dailySeries(since, dashboardDays, totals)
	stats.TodayRevenue = stats.Daily[len(stats.Daily)-1].Revenue
	return stats, nil
}

func dailySeries(start time.Time, days int, totals []domain.OrderRevenue) []domain.DailyOrderStats {
	series := make([]domain.DailyOrderStats, days)
	index := make(map[string]int, days)
	for i := range series {
		date := start.AddDate(0, 0, i).Format(dashboardLayout)
		series[i] = domain.DailyOrderStats{Date: date, Revenue: decimal.Zero}
		index[date] = i
	}
	for _, t := range totals {
		i, ok := index[t.CreatedAt.UTC().Format(dashboardLayout)]
		if !ok {
			continue
		}
		series[i].Orders++
		if t.PaymentStatus == domain.PaymentStatusCompleted {
			series[i].Revenue = series[i].Revenue.Add(t.Total)
		}
	}
	for i := range series {
		series[i].Revenue = domain.RoundMoney(series[i].Revenue)
	}
	return series
}
