package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tradeshop/api/internal/services"
)

type unavailableRepoError struct{}

func (unavailableRepoError) Error() string       { return "connection refused" }
func (unavailableRepoError) IsNotFound() bool    { return false }
func (unavailableRepoError) IsConflict() bool    { return false }
func (unavailableRepoError) IsUnavailable() bool { return true }

func newInternalRouter(orders services.OrderService) http.Handler {
	r := chi.NewRouter()
	r.Route("/internal", NewInternalHandlers(orders).Routes)
	return r
}

func TestSweepOrdersReportsCounts(t *testing.T) {
	svc := &stubOrderService{sweep: services.SweepReport{Scanned: 4, Failed: 3, Errors: 1}}
	rr := doRequest(t, newInternalRouter(svc), http.MethodPost, "/internal/orders:sweep", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp sweepResponse
	decodeBody(t, rr, &resp)
	if resp.Scanned != 4 || resp.Failed != 3 || resp.Errors != 1 || svc.sweeps != 1 {
		t.Fatalf("unexpected report %+v (calls %d)", resp, svc.sweeps)
	}
}

func TestSweepOrdersErrors(t *testing.T) {
	svc := &stubOrderService{sweepErr: context.DeadlineExceeded}
	rr := doRequest(t, newInternalRouter(svc), http.MethodPost, "/internal/orders:sweep", "", "")
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rr.Code)
	}

	svc.sweepErr = unavailableRepoError{}
	rr = doRequest(t, newInternalRouter(svc), http.MethodPost, "/internal/orders:sweep", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	rr = doRequest(t, newInternalRouter(nil), http.MethodPost, "/internal/orders:sweep", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without service, got %d", rr.Code)
	}
}
