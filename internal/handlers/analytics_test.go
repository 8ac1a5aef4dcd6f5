package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/auth"
	"github.com/tradeshop/api/internal/services"
)

type stubAnalyticsService struct {
	stats services.DashboardStats
	err   error
}

func (s *stubAnalyticsService) Dashboard(context.Context) (services.DashboardStats, error) {
	return s.stats, s.err
}

func newAnalyticsRouter(analytics services.AnalyticsService) http.Handler {
	authn := newTestAuthenticator()
	h := NewAnalyticsHandlers(analytics)
	r := chi.NewRouter()
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(authn.RequireFirebaseAuth(), auth.RequireAdmin())
		h.AdminRoutes(admin)
	})
	return r
}

func TestAdminDashboard(t *testing.T) {
	analytics := &stubAnalyticsService{stats: services.DashboardStats{
		TotalOrders:   12,
		PendingOrders: 2,
		TotalProducts: 30,
		ActiveUsers:   8,
		TodayRevenue:  decimal.RequireFromString("310.5"),
		Daily: []domain.DailyOrderStats{
			{Date: "2026-06-29", Orders: 0, Revenue: decimal.Zero},
			{Date: "2026-06-30", Orders: 3, Revenue: decimal.RequireFromString("310.5")},
		},
		GeneratedAt: time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC),
	}}
	router := newAnalyticsRouter(analytics)

	if rr := doRequest(t, router, http.MethodGet, "/admin/dashboard", "shopper:USER", ""); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rr.Code)
	}

	rr := doRequest(t, router, http.MethodGet, "/admin/dashboard", "boss:ADMIN", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body dashboardResponse
	decodeBody(t, rr, &body)
	if body.TotalOrders != 12 || body.PendingOrders != 2 || body.TotalProducts != 30 || body.ActiveUsers != 8 {
		t.Fatalf("unexpected counts %+v", body)
	}
	if body.TodayRevenue != "310.50" || len(body.Daily) != 2 || body.Daily[0].Revenue != "0.00" || body.Daily[1].Orders != 3 {
		t.Fatalf("unexpected series %+v", body)
	}
	if body.GeneratedAt != "2026-06-30T12:00:00Z" {
		t.Fatalf("unexpected generated_at %q", body.GeneratedAt)
	}
}

func TestAdminDashboardUnavailable(t *testing.T) {
	router := newAnalyticsRouter(&stubAnalyticsService{err: fmt.Errorf("%w: timeout", services.ErrAnalyticsUnavailable)})
	rr := doRequest(t, router, http.MethodGet, "/admin/dashboard", "boss:ADMIN", "")
	if rr.Code != http.StatusServiceUnavailable || errorCodeOf(t, rr) != "analytics_unavailable" {
		t.Fatalf("expected 503 analytics_unavailable, got %d: %s", rr.Code, rr.Body.String())
	}
}
