package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tradeshop/api/internal/services"
)

// InternalHandlers serves scheduler-triggered maintenance endpoints. Callers apply OIDC auth.
type InternalHandlers struct {
	orders services.OrderService
}

// NewInternalHandlers constructs a new InternalHandlers instance.
func NewInternalHandlers(orders services.OrderService) *InternalHandlers {
	return &InternalHandlers{orders: orders}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders:sweep", h.sweepOrders)
}

type sweepResponse struct {
	Scanned int `json:"scanned"`
	Failed  int `json:"failed"`
	Errors  int `json:"errors"`
}

func (h *InternalHandlers) sweepOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	report, err := h.orders.SweepStale(ctx)
	if err != nil {
		writeFallbackError(ctx, w, "sweep_failed", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, sweepResponse{
		Scanned: report.Scanned,
		Failed:  report.Failed,
		Errors:  report.Errors,
	})
}
