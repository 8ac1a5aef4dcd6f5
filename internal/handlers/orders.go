package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/payments"
	"github.com/tradeshop/api/internal/platform/auth"
	"github.com/tradeshop/api/internal/platform/httpx"
	"github.com/tradeshop/api/internal/platform/pagination"
	"github.com/tradeshop/api/internal/services"
)

const (
	maxOrderBodySize       = 32 * 1024
	maxOrderUpdateBodySize = 8 * 1024
)

var rangeOperators = []pagination.Operator{
	pagination.OperatorEqual,
	pagination.OperatorGreaterThan,
	pagination.OperatorGreaterEqual,
	pagination.OperatorLessThan,
	pagination.OperatorLessEqual,
}

var orderPageOptions = pagination.Options{
	DefaultPageSize: 20,
	MaxPageSize:     100,
	AllowedFilterFields: map[string][]pagination.Operator{
		"total":      rangeOperators,
		"created_at": rangeOperators,
	},
}

// OrderHandlers exposes order placement, confirmation and administration.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency guards order creation with the supplied middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	create := http.Handler(http.HandlerFunc(h.createOrder))
	if h.idempotency != nil {
		create = h.idempotency(create)
	}
	r.Method(http.MethodPost, "/", create)
	r.Get("/my-orders", h.listMyOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/confirm-payment", h.confirmPayment)

	r.Group(func(admin chi.Router) {
		admin.Use(auth.RequireAdmin())
		admin.Get("/", h.listAllOrders)
		admin.Patch("/{orderID}", h.updateOrder)
	})
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type shippingAddressPayload struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	ZipCode string `json:"zip_code"`
	Phone   string `json:"phone"`
}

type cardRequest struct {
	Number         string `json:"number"`
	ExpirationDate string `json:"expiration_date"`
	Code           string `json:"code"`
}

func (c *cardRequest) toCard() *payments.Card {
	if c == nil {
		return nil
	}
	return &payments.Card{
		Number:         strings.TrimSpace(c.Number),
		ExpirationDate: strings.TrimSpace(c.ExpirationDate),
		Code:           strings.TrimSpace(c.Code),
	}
}

type createOrderRequest struct {
	Items           []orderItemRequest     `json:"items"`
	ShippingAddress shippingAddressPayload `json:"shipping_address"`
	StoreCollection bool                   `json:"store_collection"`
	CouponCode      string                 `json:"coupon_code"`
	Notes           string                 `json:"notes"`
	Gateway         string                 `json:"gateway"`
	Card            *cardRequest           `json:"card"`
}

func (req createOrderRequest) toCommand(userID string) services.CreateOrderCommand {
	items := make([]services.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItemInput{
			ProductID: strings.TrimSpace(item.ProductID),
			VariantID: strings.TrimSpace(item.VariantID),
			Quantity:  item.Quantity,
		})
	}
	addr := req.ShippingAddress
	return services.CreateOrderCommand{
		UserID: userID,
		Items:  items,
		ShippingAddress: domain.ShippingAddress{
			Street:  strings.TrimSpace(addr.Street),
			City:    strings.TrimSpace(addr.City),
			State:   strings.TrimSpace(addr.State),
			Country: strings.TrimSpace(addr.Country),
			ZipCode: strings.TrimSpace(addr.ZipCode),
			Phone:   strings.TrimSpace(addr.Phone),
		},
		StoreCollection: req.StoreCollection,
		CouponCode:      strings.TrimSpace(req.CouponCode),
		Notes:           req.Notes,
		Gateway:         parseGateway(req.Gateway),
		Card:            req.Card.toCard(),
	}
}

type createOrderResponse struct {
	Order          orderPayload `json:"order"`
	RequiresAction bool         `json:"requires_action"`
	PaymentURL     string       `json:"payment_url,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, &req, false) {
		return
	}
	if len(req.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "items are required", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Gateway) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "gateway is required", http.StatusBadRequest))
		return
	}

	result, err := h.orders.Create(ctx, req.toCommand(identity.UID))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, createOrderResponse{
		Order:          buildOrderPayload(result.Order, identity.IsAdmin()),
		RequiresAction: result.RequiresAction,
		PaymentURL:     result.PaymentURL,
	})
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	h.listOrders(w, r, identity.UID, false)
}

func (h *OrderHandlers) listAllOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, strings.TrimSpace(r.URL.Query().Get("user_id")), true)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request, userID string, admin bool) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}

	params, ok := parsePage(w, r, orderPageOptions)
	if !ok {
		return
	}
	statuses, err := parseOrderStatuses(r.URL.Query()["status"])
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	totalRange, createdRange, err := orderRanges(params)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.List(ctx, services.OrderListFilter{
		UserID:     userID,
		Status:     statuses,
		Total:      totalRange,
		CreatedAt:  createdRange,
		Pagination: toPagination(params),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order, admin))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !identity.CanAccessUser(order.UserID) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, identity.IsAdmin())})
}

type confirmPaymentRequest struct {
	TransactionID string `json:"transaction_id"`
}

type confirmPaymentResponse struct {
	Order            orderPayload `json:"order"`
	AlreadyConfirmed bool         `json:"already_confirmed"`
}

func (h *OrderHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}
	var req confirmPaymentRequest
	if !decodeJSONBody(w, r, maxOrderUpdateBodySize, &req, true) {
		return
	}

	result, err := h.orders.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		OrderID:       orderID,
		TransactionID: strings.TrimSpace(req.TransactionID),
		ActorID:       identity.UID,
		ActorIsAdmin:  identity.IsAdmin(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, confirmPaymentResponse{
		Order:            buildOrderPayload(result.Order, identity.IsAdmin()),
		AlreadyConfirmed: result.AlreadyConfirmed,
	})
}

type updateOrderRequest struct {
	Status         *string `json:"status"`
	TrackingNumber *string `json:"tracking_number"`
	AdminNotes     *string `json:"admin_notes"`
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}
	var req updateOrderRequest
	if !decodeJSONBody(w, r, maxOrderUpdateBodySize, &req, false) {
		return
	}

	cmd := services.AdminUpdateOrderCommand{
		OrderID:        orderID,
		TrackingNumber: req.TrackingNumber,
		AdminNotes:     req.AdminNotes,
		ActorID:        identity.UID,
	}
	if req.Status != nil {
		status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(*req.Status)))
		if !status.Valid() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("unknown status %q", *req.Status), http.StatusBadRequest))
			return
		}
		cmd.Status = &status
	}
	if cmd.Status == nil && cmd.TrackingNumber == nil && cmd.AdminNotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "no updatable fields supplied", http.StatusBadRequest))
		return
	}

	order, err := h.orders.AdminUpdate(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, true)})
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID               string                 `json:"id"`
	UserID           string                 `json:"user_id"`
	Status           string                 `json:"status"`
	PaymentStatus    string                 `json:"payment_status"`
	Gateway          string                 `json:"gateway"`
	Subtotal         string                 `json:"subtotal"`
	ShippingCost     string                 `json:"shipping_cost"`
	DiscountAmount   string                 `json:"discount_amount"`
	Total            string                 `json:"total"`
	CouponCode       string                 `json:"coupon_code,omitempty"`
	ShippingAddress  shippingAddressPayload `json:"shipping_address"`
	StoreCollection  bool                   `json:"store_collection"`
	PaymentReference string                 `json:"payment_reference,omitempty"`
	TrackingNumber   string                 `json:"tracking_number,omitempty"`
	Notes            string                 `json:"notes,omitempty"`
	AdminNotes       string                 `json:"admin_notes,omitempty"`
	Items            []orderItemPayload     `json:"items"`
	CreatedAt        string                 `json:"created_at"`
	UpdatedAt        string                 `json:"updated_at,omitempty"`
	ConfirmedAt      string                 `json:"confirmed_at,omitempty"`
}

type orderItemPayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	VariantID   string `json:"variant_id,omitempty"`
	ProductName string `json:"product_name"`
	SKU         string `json:"sku,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

func buildOrderPayload(order services.Order, admin bool) orderPayload {
	addr := order.ShippingAddress
	payload := orderPayload{
		ID:               order.ID,
		UserID:           order.UserID,
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		Gateway:          string(order.Gateway),
		Subtotal:         formatMoney(order.Subtotal),
		ShippingCost:     formatMoney(order.ShippingCost),
		DiscountAmount:   formatMoney(order.DiscountAmount),
		Total:            formatMoney(order.Total),
		CouponCode:       order.CouponCode,
		StoreCollection:  order.StoreCollection,
		PaymentReference: order.PaymentReference,
		TrackingNumber:   order.TrackingNumber,
		Notes:            order.Notes,
		ShippingAddress: shippingAddressPayload{
			Street:  addr.Street,
			City:    addr.City,
			State:   addr.State,
			Country: addr.Country,
			ZipCode: addr.ZipCode,
			Phone:   addr.Phone,
		},
		Items:       make([]orderItemPayload, 0, len(order.Items)),
		CreatedAt:   formatTime(order.CreatedAt),
		UpdatedAt:   formatTime(order.UpdatedAt),
		ConfirmedAt: formatTimePtr(order.ConfirmedAt),
	}
	if admin {
		payload.AdminNotes = order.AdminNotes
	}
	for _, item := range order.Items {
		p := orderItemPayload{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			UnitPrice:   formatMoney(item.UnitPrice),
			LineTotal:   formatMoney(item.LineTotal),
		}
		if item.VariantID != nil {
			p.VariantID = *item.VariantID
		}
		payload.Items = append(payload.Items, p)
	}
	return payload
}

func parseGateway(raw string) domain.PaymentGateway {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if normalized == "AUTHORIZENET" {
		normalized = string(domain.GatewayAuthorizeNet)
	}
	return domain.PaymentGateway(normalized)
}

func parseOrderStatuses(values []string) ([]domain.OrderStatus, error) {
	var out []domain.OrderStatus
	seen := make(map[domain.OrderStatus]struct{})
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToUpper(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			status := domain.OrderStatus(trimmed)
			if !status.Valid() {
				return nil, fmt.Errorf("unknown status %q", part)
			}
			if _, dup := seen[status]; dup {
				continue
			}
			seen[status] = struct{}{}
			out = append(out, status)
		}
	}
	return out, nil
}

// orderRanges folds total and created_at filters into inclusive ranges.
func orderRanges(params pagination.Params) (domain.RangeQuery[decimal.Decimal], domain.RangeQuery[time.Time], error) {
	var (
		total   domain.RangeQuery[decimal.Decimal]
		created domain.RangeQuery[time.Time]
	)
	for _, f := range params.Lookup("total") {
		value, err := decimal.NewFromString(f.Value)
		if err != nil {
			return total, created, fmt.Errorf("total filter must be numeric")
		}
		applyRange(&total, f.Op, value)
	}
	for _, f := range params.Lookup("created_at") {
		ts, err := parseTimeParam(f.Value)
		if err != nil {
			return total, created, fmt.Errorf("created_at filter %s", err.Error())
		}
		applyRange(&created, f.Op, ts)
	}
	return total, created, nil
}

func applyRange[T comparable](rng *domain.RangeQuery[T], op pagination.Operator, value T) {
	switch op {
	case pagination.OperatorGreaterEqual, pagination.OperatorGreaterThan:
		rng.From = &value
	case pagination.OperatorLessEqual, pagination.OperatorLessThan:
		rng.To = &value
	case pagination.OperatorEqual:
		rng.From = &value
		to := value
		rng.To = &to
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrCouponInvalidInput),
		errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrWalletInsufficientBalance):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_balance", "insufficient wallet balance", http.StatusBadRequest))
	case errors.Is(err, payments.ErrUnsupportedGateway):
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_gateway", err.Error(), http.StatusBadRequest))
	case errors.Is(err, payments.ErrCardRequired):
		httpx.WriteError(ctx, w, httpx.NewError("card_required", "card details are required", http.StatusBadRequest))
	case errors.Is(err, payments.ErrPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment processing failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "order belongs to another user", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		writeFallbackError(ctx, w, "order_error", err)
	}
}
