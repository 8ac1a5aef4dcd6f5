package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tradeshop/api/internal/platform/httpx"
	"github.com/tradeshop/api/internal/services"
)

// AnalyticsHandlers serves the admin dashboard.
type AnalyticsHandlers struct {
	analytics services.AnalyticsService
}

// NewAnalyticsHandlers constructs a new AnalyticsHandlers instance.
func NewAnalyticsHandlers(analytics services.AnalyticsService) *AnalyticsHandlers {
	return &AnalyticsHandlers{analytics: analytics}
}

// AdminRoutes registers /dashboard under /admin. Callers apply authentication.
func (h *AnalyticsHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/dashboard", h.dashboard)
}

type dashboardResponse struct {
	TotalOrders   int64             `json:"total_orders"`
	PendingOrders int64             `json:"pending_orders"`
	TotalProducts int64             `json:"total_products"`
	ActiveUsers   int64             `json:"active_users"`
	TodayRevenue  string            `json:"today_revenue"`
	Daily         []dailyStatsEntry `json:"daily"`
	GeneratedAt   string            `json:"generated_at"`
}

type dailyStatsEntry struct {
	Date    string `json:"date"`
	Orders  int    `json:"orders"`
	Revenue string `json:"revenue"`
}

func (h *AnalyticsHandlers) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.analytics == nil {
		writeUnavailable(ctx, w, "analytics")
		return
	}
	stats, err := h.analytics.Dashboard(ctx)
	if err != nil {
		writeAnalyticsError(ctx, w, err)
		return
	}
	daily := make([]dailyStatsEntry, 0, len(stats.Daily))
	for _, d := range stats.Daily {
		daily = append(daily, dailyStatsEntry{Date: d.Date, Orders: d.Orders, Revenue: formatMoney(d.Revenue)})
	}
	writeJSONResponse(w, http.StatusOK, dashboardResponse{
		TotalOrders:   stats.TotalOrders,
		PendingOrders: stats.PendingOrders,
		TotalProducts: stats.TotalProducts,
		ActiveUsers:   stats.ActiveUsers,
		TodayRevenue:  formatMoney(stats.TodayRevenue),
		Daily:         daily,
		GeneratedAt:   formatTime(stats.GeneratedAt),
	})
}

func writeAnalyticsError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrAnalyticsUnavailable) {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "dashboard temporarily unavailable", http.StatusServiceUnavailable))
		return
	}
	writeFallbackError(ctx, w, "analytics_error", err)
}
