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
	"github.com/tradeshop/api/internal/payments"
	"github.com/tradeshop/api/internal/services"
)

type stubOrderService struct {
	createCmd  services.CreateOrderCommand
	createRes  services.OrderResult
	createErr  error
	confirmCmd services.ConfirmPaymentCommand
	confirmRes services.ConfirmPaymentResult
	confirmErr error
	order      services.Order
	getErr     error
	listFilter services.OrderListFilter
	listPage   domain.CursorPage[services.Order]
	updateCmd  services.AdminUpdateOrderCommand
	sweep      services.SweepReport
	sweepErr   error
	sweeps     int
}

func (s *stubOrderService) Create(_ context.Context, cmd services.CreateOrderCommand) (services.OrderResult, error) {
	s.createCmd = cmd
	return s.createRes, s.createErr
}

func (s *stubOrderService) ConfirmPayment(_ context.Context, cmd services.ConfirmPaymentCommand) (services.ConfirmPaymentResult, error) {
	s.confirmCmd = cmd
	return s.confirmRes, s.confirmErr
}

func (s *stubOrderService) Get(context.Context, string) (services.Order, error) {
	return s.order, s.getErr
}

func (s *stubOrderService) List(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	s.listFilter = filter
	return s.listPage, nil
}

func (s *stubOrderService) AdminUpdate(_ context.Context, cmd services.AdminUpdateOrderCommand) (services.Order, error) {
	s.updateCmd = cmd
	order := s.order
	if cmd.Status != nil {
		order.Status = *cmd.Status
	}
	return order, nil
}

func (s *stubOrderService) SweepStale(context.Context) (services.SweepReport, error) {
	s.sweeps++
	return s.sweep, s.sweepErr
}

func newOrderRouter(svc services.OrderService) http.Handler {
	r := chi.NewRouter()
	r.Route("/orders", NewOrderHandlers(newTestAuthenticator(), svc).Routes)
	return r
}

func sampleOrder(userID string) services.Order {
	variant := "var_1"
	return services.Order{
		ID:             "ord_1",
		UserID:         userID,
		Status:         domain.OrderStatusPaymentPending,
		PaymentStatus:  domain.PaymentStatusPending,
		Gateway:        domain.GatewayStripe,
		Subtotal:       decimal.RequireFromString("200"),
		ShippingCost:   decimal.RequireFromString("10"),
		DiscountAmount: decimal.RequireFromString("20"),
		Total:          decimal.RequireFromString("190"),
		AdminNotes:     "vip",
		Items: []domain.OrderItem{{
			ID: "itm_1", ProductID: "prd_1", VariantID: &variant, ProductName: "Tile",
			Quantity: 2, UnitPrice: decimal.RequireFromString("100"), LineTotal: decimal.RequireFromString("200"),
		}},
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestCreateOrderReturnsRedirect(t *testing.T) {
	svc := &stubOrderService{createRes: services.OrderResult{
		Order:          sampleOrder("u1"),
		RequiresAction: true,
		PaymentURL:     "https://checkout.example/s/1",
	}}
	body := `{"items":[{"product_id":" prd_1 ","variant_id":"var_1","quantity":2}],
		"shipping_address":{"street":"1 Main","city":"Austin","zip_code":"78701"},
		"coupon_code":"SAVE10","gateway":"stripe"}`

	rr := doRequest(t, newOrderRouter(svc), http.MethodPost, "/orders", "u1", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.createCmd.UserID != "u1" || svc.createCmd.Gateway != domain.GatewayStripe {
		t.Fatalf("unexpected command %+v", svc.createCmd)
	}
	if svc.createCmd.Items[0].ProductID != "prd_1" || svc.createCmd.ShippingAddress.ZipCode != "78701" {
		t.Fatalf("unexpected items or address %+v", svc.createCmd)
	}

	var resp struct {
		Order struct {
			Total      string `json:"total"`
			AdminNotes string `json:"admin_notes"`
			Items      []struct {
				VariantID string `json:"variant_id"`
				UnitPrice string `json:"unit_price"`
			} `json:"items"`
		} `json:"order"`
		RequiresAction bool   `json:"requires_action"`
		PaymentURL     string `json:"payment_url"`
	}
	decodeBody(t, rr, &resp)
	if !resp.RequiresAction || resp.PaymentURL != "https://checkout.example/s/1" {
		t.Fatalf("expected redirect, got %+v", resp)
	}
	if resp.Order.Total != "190.00" || resp.Order.Items[0].UnitPrice != "100.00" || resp.Order.Items[0].VariantID != "var_1" {
		t.Fatalf("unexpected order payload %+v", resp.Order)
	}
	if resp.Order.AdminNotes != "" {
		t.Fatalf("admin notes must be hidden from customers")
	}
}

func TestCreateOrderMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"insufficient balance", fmt.Errorf("%w: need 75", services.ErrWalletInsufficientBalance), http.StatusBadRequest, "insufficient_balance"},
		{"payment failed", fmt.Errorf("%w: declined", payments.ErrPaymentFailed), http.StatusBadRequest, "payment_failed"},
		{"coupon invalid", fmt.Errorf("%w: expired", services.ErrCouponInvalidInput), http.StatusBadRequest, "invalid_request"},
		{"product missing", fmt.Errorf("%w: product prd_9", services.ErrOrderNotFound), http.StatusNotFound, "order_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{createErr: tc.err}
			rr := doRequest(t, newOrderRouter(svc), http.MethodPost, "/orders", "u1",
				`{"items":[{"product_id":"prd_1","quantity":1}],"gateway":"WALLET"}`)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if code := errorCodeOf(t, rr); code != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, code)
			}
		})
	}
}

func TestCreateOrderValidatesBody(t *testing.T) {
	svc := &stubOrderService{}
	router := newOrderRouter(svc)

	if rr := doRequest(t, router, http.MethodPost, "/orders", "u1", `{"gateway":"WALLET"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without items, got %d", rr.Code)
	}
	if rr := doRequest(t, router, http.MethodPost, "/orders", "u1", `{"items":[{"product_id":"p","quantity":1}]}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without gateway, got %d", rr.Code)
	}
	if rr := doRequest(t, router, http.MethodPost, "/orders", "", `{}`); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
}

func TestListOrdersRequiresAdmin(t *testing.T) {
	svc := &stubOrderService{listPage: domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder("u2")}, NextPageToken: "next"}}
	router := newOrderRouter(svc)

	if rr := doRequest(t, router, http.MethodGet, "/orders", "u1", ""); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rr.Code)
	}

	rr := doRequest(t, router, http.MethodGet, "/orders?status=confirmed,SHIPPED&filter=total>=100&filter=created_at<2026-04-01T00:00:00Z&page_size=5", "admin:ADMIN", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	f := svc.listFilter
	if len(f.Status) != 2 || f.Status[0] != domain.OrderStatusConfirmed || f.Status[1] != domain.OrderStatusShipped {
		t.Fatalf("unexpected statuses %+v", f.Status)
	}
	if f.Total.From == nil || !f.Total.From.Equal(decimal.NewFromInt(100)) || f.Total.To != nil {
		t.Fatalf("unexpected total range %+v", f.Total)
	}
	if f.CreatedAt.To == nil || !f.CreatedAt.To.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created range %+v", f.CreatedAt)
	}
	if f.Pagination.PageSize != 5 || f.UserID != "" {
		t.Fatalf("unexpected paging %+v", f)
	}

	var resp struct {
		Items []struct {
			AdminNotes string `json:"admin_notes"`
		} `json:"items"`
		NextPageToken string `json:"next_page_token"`
	}
	decodeBody(t, rr, &resp)
	if len(resp.Items) != 1 || resp.Items[0].AdminNotes != "vip" || resp.NextPageToken != "next" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if rr := doRequest(t, router, http.MethodGet, "/orders?status=LOST", "admin:ADMIN", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}
	if rr := doRequest(t, router, http.MethodGet, "/orders?filter=user_id==x", "admin:ADMIN", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported filter, got %d", rr.Code)
	}
}

func TestMyOrdersScopesToCaller(t *testing.T) {
	svc := &stubOrderService{}
	rr := doRequest(t, newOrderRouter(svc), http.MethodGet, "/orders/my-orders", "u1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if svc.listFilter.UserID != "u1" {
		t.Fatalf("expected filter scoped to caller, got %q", svc.listFilter.UserID)
	}
}

func TestGetOrderOwnership(t *testing.T) {
	svc := &stubOrderService{order: sampleOrder("owner")}
	router := newOrderRouter(svc)

	if rr := doRequest(t, router, http.MethodGet, "/orders/ord_1", "owner", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected owner to read order, got %d", rr.Code)
	}
	if rr := doRequest(t, router, http.MethodGet, "/orders/ord_1", "admin:ADMIN", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected admin to read order, got %d", rr.Code)
	}
	if rr := doRequest(t, router, http.MethodGet, "/orders/ord_1", "stranger", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other users, got %d", rr.Code)
	}
}

func TestConfirmPayment(t *testing.T) {
	confirmed := sampleOrder("u1")
	confirmed.Status = domain.OrderStatusConfirmed
	svc := &stubOrderService{confirmRes: services.ConfirmPaymentResult{Order: confirmed, AlreadyConfirmed: true}}

	rr := doRequest(t, newOrderRouter(svc), http.MethodPost, "/orders/ord_1/confirm-payment", "u1", `{"transaction_id":"cs_1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.confirmCmd.OrderID != "ord_1" || svc.confirmCmd.TransactionID != "cs_1" || svc.confirmCmd.ActorID != "u1" || svc.confirmCmd.ActorIsAdmin {
		t.Fatalf("unexpected command %+v", svc.confirmCmd)
	}
	var resp struct {
		AlreadyConfirmed bool `json:"already_confirmed"`
	}
	decodeBody(t, rr, &resp)
	if !resp.AlreadyConfirmed {
		t.Fatalf("expected already_confirmed flag")
	}

	svc.confirmErr = services.ErrOrderForbidden
	if rr := doRequest(t, newOrderRouter(svc), http.MethodPost, "/orders/ord_1/confirm-payment", "u2", ""); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	svc.confirmErr = fmt.Errorf("%w: FAILED to CONFIRMED", services.ErrOrderInvalidTransition)
	if rr := doRequest(t, newOrderRouter(svc), http.MethodPost, "/orders/ord_1/confirm-payment", "u1", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAdminUpdateOrder(t *testing.T) {
	svc := &stubOrderService{order: sampleOrder("u1")}
	router := newOrderRouter(svc)

	rr := doRequest(t, router, http.MethodPatch, "/orders/ord_1", "admin:ADMIN", `{"status":"shipped","tracking_number":"1Z9"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.updateCmd.Status == nil || *svc.updateCmd.Status != domain.OrderStatusShipped || *svc.updateCmd.TrackingNumber != "1Z9" || svc.updateCmd.ActorID != "admin" {
		t.Fatalf("unexpected command %+v", svc.updateCmd)
	}

	if rr := doRequest(t, router, http.MethodPatch, "/orders/ord_1", "admin:ADMIN", `{"status":"teleported"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}
	if rr := doRequest(t, router, http.MethodPatch, "/orders/ord_1", "admin:ADMIN", `{}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty patch, got %d", rr.Code)
	}
	if rr := doRequest(t, router, http.MethodPatch, "/orders/ord_1", "u1", `{"status":"SHIPPED"}`); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rr.Code)
	}
}
