package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/auth"
	"github.com/tradeshop/api/internal/platform/httpx"
	"github.com/tradeshop/api/internal/platform/pagination"
	"github.com/tradeshop/api/internal/services"
)

const maxCouponBodySize = 32 * 1024

var couponPageOptions = pagination.Options{DefaultPageSize: 50, MaxPageSize: 200}

// CouponHandlers exposes coupon validation for shoppers and coupon administration.
type CouponHandlers struct {
	authn    *auth.Authenticator
	coupons  services.CouponService
	validate rateLimiter
}

// CouponHandlersOption customises coupon handlers.
type CouponHandlersOption func(*CouponHandlers)

// WithCouponValidateRateLimit caps how many codes a single caller may try per window.
func WithCouponValidateRateLimit(limit int, window time.Duration) CouponHandlersOption {
	return func(h *CouponHandlers) {
		h.validate = newKeyedRateLimiter(limit, window, time.Now)
	}
}

// NewCouponHandlers constructs a new CouponHandlers instance.
func NewCouponHandlers(authn *auth.Authenticator, coupons services.CouponService, opts ...CouponHandlersOption) *CouponHandlers {
	h := &CouponHandlers{
		authn:   authn,
		coupons: coupons,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /coupons endpoints.
func (h *CouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/validate", h.validateCoupon)
	r.Get("/eligible", h.eligibleCoupons)

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(auth.RequireAdmin())
		admin.Post("/", h.createCoupon)
		admin.Get("/", h.listCoupons)
		admin.Get("/{couponID}", h.getCoupon)
		admin.Patch("/{couponID}", h.updateCoupon)
		admin.Delete("/{couponID}", h.deleteCoupon)
		admin.Get("/{couponID}/stats", h.couponStats)
	})
}

type validateCouponRequest struct {
	Code        string          `json:"code"`
	OrderAmount decimal.Decimal `json:"order_amount"`
}

type couponValidationResponse struct {
	Valid    bool           `json:"valid"`
	Discount string         `json:"discount"`
	Message  string         `json:"message,omitempty"`
	Coupon   *couponPayload `json:"coupon,omitempty"`
}

func (h *CouponHandlers) validateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.validate != nil && !h.validate.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many coupon attempts", http.StatusTooManyRequests))
		return
	}
	var req validateCouponRequest
	if !decodeJSONBody(w, r, maxCouponBodySize, &req, false) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code is required", http.StatusBadRequest))
		return
	}

	result, err := h.coupons.Validate(ctx, services.ValidateCouponCommand{
		Code:        req.Code,
		OrderAmount: req.OrderAmount,
		UserID:      identity.UID,
	})
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}

	resp := couponValidationResponse{
		Valid:    result.Valid,
		Discount: formatMoney(result.Discount),
		Message:  result.Message,
	}
	if result.Coupon != nil {
		payload := buildCouponPayload(*result.Coupon, false)
		resp.Coupon = &payload
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CouponHandlers) eligibleCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	coupons, err := h.coupons.Eligible(ctx, identity.UID)
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	items := make([]couponPayload, 0, len(coupons))
	for _, c := range coupons {
		items = append(items, buildCouponPayload(c, false))
	}
	writeJSONResponse(w, http.StatusOK, couponListResponse{Items: items})
}

type couponRequest struct {
	Code                  *string          `json:"code"`
	Name                  *string          `json:"name"`
	Description           *string          `json:"description"`
	Type                  *string          `json:"type"`
	Value                 *decimal.Decimal `json:"value"`
	EligibilityType       *string          `json:"eligibility_type"`
	EligibleRoles         *[]string        `json:"eligible_roles"`
	EligibleUserIDs       *[]string        `json:"eligible_user_ids"`
	ValidFrom             *time.Time       `json:"valid_from"`
	ValidUntil            *time.Time       `json:"valid_until"`
	MaxUsage              *int             `json:"max_usage"`
	MaxUsagePerUser       *int             `json:"max_usage_per_user"`
	MinimumOrderAmount    *decimal.Decimal `json:"minimum_order_amount"`
	MaximumDiscountAmount *decimal.Decimal `json:"maximum_discount_amount"`
	Active                *bool            `json:"active"`
}

func (req couponRequest) couponType() *domain.CouponType {
	if req.Type == nil {
		return nil
	}
	t := domain.CouponType(strings.ToUpper(strings.TrimSpace(*req.Type)))
	return &t
}

func (req couponRequest) eligibilityType() *domain.CouponEligibilityType {
	if req.EligibilityType == nil {
		return nil
	}
	t := domain.CouponEligibilityType(strings.ToUpper(strings.TrimSpace(*req.EligibilityType)))
	return &t
}

func (req couponRequest) roles() *[]domain.UserRole {
	if req.EligibleRoles == nil {
		return nil
	}
	roles := make([]domain.UserRole, 0, len(*req.EligibleRoles))
	for _, raw := range *req.EligibleRoles {
		roles = append(roles, domain.UserRole(strings.ToUpper(strings.TrimSpace(raw))))
	}
	return &roles
}

func (h *CouponHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req couponRequest
	if !decodeJSONBody(w, r, maxCouponBodySize, &req, false) {
		return
	}
	if req.Code == nil || req.Type == nil || req.Value == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code, type and value are required", http.StatusBadRequest))
		return
	}

	cmd := services.CreateCouponCommand{
		Code:                  *req.Code,
		Name:                  derefString(req.Name),
		Description:           derefString(req.Description),
		Type:                  *req.couponType(),
		Value:                 *req.Value,
		ValidFrom:             req.ValidFrom,
		ValidUntil:            req.ValidUntil,
		MaxUsage:              req.MaxUsage,
		MaxUsagePerUser:       req.MaxUsagePerUser,
		MinimumOrderAmount:    req.MinimumOrderAmount,
		MaximumDiscountAmount: req.MaximumDiscountAmount,
		Active:                req.Active,
		ActorID:               identity.UID,
	}
	if t := req.eligibilityType(); t != nil {
		cmd.EligibilityType = *t
	}
	if roles := req.roles(); roles != nil {
		cmd.EligibleRoles = *roles
	}
	if req.EligibleUserIDs != nil {
		cmd.EligibleUserIDs = *req.EligibleUserIDs
	}

	coupon, err := h.coupons.Create(ctx, cmd)
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, couponResponse{Coupon: buildCouponPayload(coupon, true)})
}

func (h *CouponHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	params, ok := parsePage(w, r, couponPageOptions)
	if !ok {
		return
	}
	activeOnly, err := parseBoolParam(r.URL.Query().Get("active"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	page, err := h.coupons.List(ctx, services.CouponListFilter{
		ActiveOnly: activeOnly != nil && *activeOnly,
		Pagination: toPagination(params),
	})
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	items := make([]couponPayload, 0, len(page.Items))
	for _, c := range page.Items {
		items = append(items, buildCouponPayload(c, true))
	}
	writeJSONResponse(w, http.StatusOK, couponListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *CouponHandlers) getCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	coupon, err := h.coupons.Get(ctx, chi.URLParam(r, "couponID"))
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, couponResponse{Coupon: buildCouponPayload(coupon, true)})
}

func (h *CouponHandlers) updateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	var req couponRequest
	if !decodeJSONBody(w, r, maxCouponBodySize, &req, false) {
		return
	}
	coupon, err := h.coupons.Update(ctx, services.UpdateCouponCommand{
		CouponID:              chi.URLParam(r, "couponID"),
		Code:                  req.Code,
		Name:                  req.Name,
		Description:           req.Description,
		Type:                  req.couponType(),
		Value:                 req.Value,
		EligibilityType:       req.eligibilityType(),
		EligibleRoles:         req.roles(),
		EligibleUserIDs:       req.EligibleUserIDs,
		ValidFrom:             req.ValidFrom,
		ValidUntil:            req.ValidUntil,
		MaxUsage:              req.MaxUsage,
		MaxUsagePerUser:       req.MaxUsagePerUser,
		MinimumOrderAmount:    req.MinimumOrderAmount,
		MaximumDiscountAmount: req.MaximumDiscountAmount,
		Active:                req.Active,
	})
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, couponResponse{Coupon: buildCouponPayload(coupon, true)})
}

func (h *CouponHandlers) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	if err := h.coupons.Delete(ctx, chi.URLParam(r, "couponID")); err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type couponStatsResponse struct {
	Coupon             couponPayload `json:"coupon"`
	TotalUsage         int           `json:"total_usage"`
	UniqueUsers        int           `json:"unique_users"`
	TotalDiscountGiven string        `json:"total_discount_given"`
}

func (h *CouponHandlers) couponStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	stats, err := h.coupons.Stats(ctx, chi.URLParam(r, "couponID"))
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, couponStatsResponse{
		Coupon:             buildCouponPayload(stats.Coupon, true),
		TotalUsage:         stats.TotalUsage,
		UniqueUsers:        stats.UniqueUsers,
		TotalDiscountGiven: formatMoney(stats.TotalDiscountGiven),
	})
}

type couponResponse struct {
	Coupon couponPayload `json:"coupon"`
}

type couponListResponse struct {
	Items         []couponPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type couponPayload struct {
	ID                    string   `json:"id"`
	Code                  string   `json:"code"`
	Name                  string   `json:"name,omitempty"`
	Description           string   `json:"description,omitempty"`
	Type                  string   `json:"type"`
	Value                 string   `json:"value"`
	EligibilityType       string   `json:"eligibility_type"`
	EligibleRoles         []string `json:"eligible_roles,omitempty"`
	EligibleUserIDs       []string `json:"eligible_user_ids,omitempty"`
	ValidFrom             string   `json:"valid_from,omitempty"`
	ValidUntil            string   `json:"valid_until,omitempty"`
	UsageCount            *int     `json:"usage_count,omitempty"`
	MaxUsage              *int     `json:"max_usage,omitempty"`
	MaxUsagePerUser       *int     `json:"max_usage_per_user,omitempty"`
	MinimumOrderAmount    *string  `json:"minimum_order_amount,omitempty"`
	MaximumDiscountAmount *string  `json:"maximum_discount_amount,omitempty"`
	Active                bool     `json:"active"`
	CreatedBy             string   `json:"created_by,omitempty"`
	CreatedAt             string   `json:"created_at,omitempty"`
	UpdatedAt             string   `json:"updated_at,omitempty"`
}

// buildCouponPayload hides targeting and usage details from non-admin callers.
func buildCouponPayload(c services.Coupon, admin bool) couponPayload {
	payload := couponPayload{
		ID:                    c.ID,
		Code:                  c.Code,
		Name:                  c.Name,
		Description:           c.Description,
		Type:                  string(c.Type),
		Value:                 c.Value.String(),
		EligibilityType:       string(c.EligibilityType),
		ValidFrom:             formatTimePtr(c.ValidFrom),
		ValidUntil:            formatTimePtr(c.ValidUntil),
		MaxUsagePerUser:       c.MaxUsagePerUser,
		MinimumOrderAmount:    formatMoneyPtr(c.MinimumOrderAmount),
		MaximumDiscountAmount: formatMoneyPtr(c.MaximumDiscountAmount),
		Active:                c.Active,
	}
	if !admin {
		return payload
	}
	usage := c.UsageCount
	payload.UsageCount = &usage
	payload.MaxUsage = c.MaxUsage
	payload.EligibleUserIDs = cloneStrings(c.EligibleUserIDs)
	for _, role := range c.EligibleRoles {
		payload.EligibleRoles = append(payload.EligibleRoles, string(role))
	}
	payload.CreatedBy = c.CreatedBy
	payload.CreatedAt = formatTime(c.CreatedAt)
	payload.UpdatedAt = formatTime(c.UpdatedAt)
	return payload
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func writeCouponError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCouponInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponExhausted):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_exhausted", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCouponConflict):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_conflict", "coupon code already exists", http.StatusConflict))
	default:
		writeFallbackError(ctx, w, "coupon_error", err)
	}
}
