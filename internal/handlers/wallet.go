package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tradeshop/api/internal/payments"
	"github.com/tradeshop/api/internal/platform/auth"
	"github.com/tradeshop/api/internal/platform/httpx"
	"github.com/tradeshop/api/internal/platform/pagination"
	"github.com/tradeshop/api/internal/services"
)

const maxWalletBodySize = 8 * 1024

var transactionPageOptions = pagination.Options{DefaultPageSize: 50, MaxPageSize: 200}

// WalletHandlers exposes wallet balances, the ledger and credit repayment.
type WalletHandlers struct {
	authn       *auth.Authenticator
	wallets     services.WalletService
	payments    services.PaymentService
	idempotency func(http.Handler) http.Handler
}

// WalletHandlersOption customises WalletHandlers.
type WalletHandlersOption func(*WalletHandlers)

// WithWalletPayments enables gateway verification of out-of-band payments.
func WithWalletPayments(svc services.PaymentService) WalletHandlersOption {
	return func(h *WalletHandlers) {
		h.payments = svc
	}
}

// WithWalletIdempotency guards repayments with the supplied middleware.
func WithWalletIdempotency(mw func(http.Handler) http.Handler) WalletHandlersOption {
	return func(h *WalletHandlers) {
		h.idempotency = mw
	}
}

// NewWalletHandlers constructs a new WalletHandlers instance.
func NewWalletHandlers(authn *auth.Authenticator, wallets services.WalletService, opts ...WalletHandlersOption) *WalletHandlers {
	h := &WalletHandlers{
		authn:   authn,
		wallets: wallets,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /wallet endpoints.
func (h *WalletHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	repay := http.Handler(http.HandlerFunc(h.repayDues))
	if h.idempotency != nil {
		repay = h.idempotency(repay)
	}
	r.Method(http.MethodPost, "/repay-dues", repay)
	r.Patch("/verify-payment/{transactionID}/{gateway}", h.verifyPayment)
	r.Get("/{userID}", h.getWallet)
	r.Get("/{userID}/transactions", h.listTransactions)

	r.Group(func(admin chi.Router) {
		admin.Use(auth.RequireAdmin())
		admin.Post("/{userID}/credit", h.creditWallet)
		admin.Patch("/{userID}/balance", h.setBalance)
		admin.Post("/{userID}/clear-due", h.clearDue)
	})
}

func (h *WalletHandlers) getWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wallets == nil {
		writeUnavailable(ctx, w, "wallet")
		return
	}
	userID, ok := h.authorizedUser(w, r)
	if !ok {
		return
	}
	wallet, err := h.wallets.Get(ctx, userID)
	if err != nil {
		writeWalletError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, walletResponse{Wallet: buildWalletPayload(wallet)})
}

func (h *WalletHandlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wallets == nil {
		writeUnavailable(ctx, w, "wallet")
		return
	}
	userID, ok := h.authorizedUser(w, r)
	if !ok {
		return
	}
	params, ok := parsePage(w, r, transactionPageOptions)
	if !ok {
		return
	}
	page, err := h.wallets.Transactions(ctx, userID, toPagination(params))
	if err != nil {
		writeWalletError(ctx, w, err)
		return
	}
	items := make([]transactionPayload, 0, len(page.Items))
	for _, txn := range page.Items {
		items = append(items, buildTransactionPayload(txn))
	}
	writeJSONResponse(w, http.StatusOK, transactionListResponse{Items: items, NextPageToken: page.NextPageToken})
}

// authorizedUser resolves the {userID} path parameter and checks the caller may act on it.
func (h *WalletHandlers) authorizedUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return "", false
	}
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "user id is required", http.StatusBadRequest))
		return "", false
	}
	if !identity.CanAccessUser(userID) {
		writeForbidden(r.Context(), w)
		return "", false
	}
	return userID, true
}

type creditWalletRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func (h *WalletHandlers) creditWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wallets == nil {
		writeUnavailable(ctx, w, "wallet")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req creditWalletRequest
	if !decodeJSONBody(w, r, maxWalletBodySize, &req, false) {
		return
	}
	wallet, err := h.wallets.Credit(ctx, services.CreditWalletCommand{
		UserID:      chi.URLParam(r, "userID"),
		Amount:      req.Amount,
		Description: req.Description,
		ActorID:     identity.UID,
	})
	if err != nil {
		writeWalletError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, walletResponse{Wallet: buildWalletPayload(wallet)})
}

type setBalanceRequest struct {
	Balance *decimal.Decimal `json:"balance"`
}

func (h *WalletHandlers) setBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wallets == nil {
		writeUnavailable(ctx, w, "wallet")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req setBalanceRequest
	if !decodeJSONBody(w, r, maxWalletBodySize, &req, false) {
		return
	}
	if req.Balance == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "balance is required", http.StatusBadRequest))
		return
	}
	wallet, err := h.wallets.SetBalance(ctx, services.SetBalanceCommand{
		UserID:    chi.URLParam(r, "userID"),
		Balance:   *req.Balance,
		ActorID:   identity.UID,
		ActorName: firstNonEmpty(identity.Name, identity.Email, identity.UID),
	})
	if err != nil {
		writeWalletError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, walletResponse{Wallet: buildWalletPayload(wallet)})
}

func (h *WalletHandlers) clearDue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wallets == nil {
		writeUnavailable(ctx, w, "wallet")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	wallet, err := h.wallets.ClearDue(ctx, services.ClearDueCommand{
		UserID:  chi.URLParam(r, "userID"),
		ActorID: identity.UID,
	})
	if err != nil {
		writeWalletError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, walletResponse{Wallet: buildWalletPayload(wallet)})
}

type repayDuesRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Gateway string          `json:"gateway"`
	Card    *cardRequest    `json:"card"`
}

type repayDuesResponse struct {
	Wallet         *walletPayload `json:"wallet,omitempty"`
	RequiresAction bool           `json:"requires_action"`
	PaymentURL     string         `json:"payment_url,omitempty"`
	TransactionID  string         `json:"transaction_id,omitempty"`
}

func (h *WalletHandlers) repayDues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wallets == nil {
		writeUnavailable(ctx, w, "wallet")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req repayDuesRequest
	if !decodeJSONBody(w, r, maxWalletBodySize, &req, false) {
		return
	}
	if strings.TrimSpace(req.Gateway) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "gateway is required", http.StatusBadRequest))
		return
	}

	result, err := h.wallets.RepayDues(ctx, services.RepayDuesCommand{
		UserID:  identity.UID,
		Amount:  req.Amount,
		Gateway: parseGateway(req.Gateway),
		Card:    req.Card.toCard(),
	})
	if err != nil {
		writeWalletError(ctx, w, err)
		return
	}

	resp := repayDuesResponse{
		RequiresAction: result.RequiresAction,
		PaymentURL:     result.PaymentURL,
		TransactionID:  result.TransactionID,
	}
	if !result.RequiresAction {
		payload := buildWalletPayload(result.Wallet)
		resp.Wallet = &payload
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

type verifyPaymentResponse struct {
	Paid             bool           `json:"paid"`
	Purpose          string         `json:"purpose"`
	AlreadyProcessed bool           `json:"already_processed"`
	Order            *orderPayload  `json:"order,omitempty"`
	Wallet           *walletPayload `json:"wallet,omitempty"`
}

func (h *WalletHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	result, err := h.payments.VerifyPayment(ctx, services.VerifyPaymentCommand{
		TransactionID: strings.TrimSpace(chi.URLParam(r, "transactionID")),
		Gateway:       parseGateway(chi.URLParam(r, "gateway")),
		ActorID:       identity.UID,
		ActorIsAdmin:  identity.IsAdmin(),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildVerifyPaymentResponse(result, identity.IsAdmin()))
}

func buildVerifyPaymentResponse(result services.PaymentVerificationResult, admin bool) verifyPaymentResponse {
	resp := verifyPaymentResponse{
		Paid:             result.Paid,
		Purpose:          string(result.Purpose),
		AlreadyProcessed: result.AlreadyProcessed,
	}
	if result.Order != nil {
		payload := buildOrderPayload(*result.Order, admin)
		resp.Order = &payload
	}
	if result.Wallet != nil {
		payload := buildWalletPayload(*result.Wallet)
		resp.Wallet = &payload
	}
	return resp
}

type walletResponse struct {
	Wallet walletPayload `json:"wallet"`
}

type walletPayload struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Balance   string `json:"balance"`
	CreditDue string `json:"credit_due"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func buildWalletPayload(wallet services.Wallet) walletPayload {
	return walletPayload{
		ID:        wallet.ID,
		UserID:    wallet.UserID,
		Balance:   formatMoney(wallet.Balance),
		CreditDue: formatMoney(wallet.CreditDue),
		CreatedAt: formatTime(wallet.CreatedAt),
		UpdatedAt: formatTime(wallet.UpdatedAt),
	}
}

type transactionListResponse struct {
	Items         []transactionPayload `json:"items"`
	NextPageToken string               `json:"next_page_token,omitempty"`
}

type transactionPayload struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Amount               string `json:"amount"`
	Description          string `json:"description,omitempty"`
	PaymentMethod        string `json:"payment_method,omitempty"`
	PaymentTransactionID string `json:"payment_transaction_id,omitempty"`
	CreatedAt            string `json:"created_at"`
}

func buildTransactionPayload(txn services.Transaction) transactionPayload {
	return transactionPayload{
		ID:                   txn.ID,
		Type:                 string(txn.Type),
		Amount:               formatMoney(txn.Amount),
		Description:          txn.Description,
		PaymentMethod:        string(txn.PaymentMethod),
		PaymentTransactionID: txn.PaymentTransactionID,
		CreatedAt:            formatTime(txn.CreatedAt),
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func writeWalletError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrWalletInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrWalletInsufficientBalance):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_balance", err.Error(), http.StatusBadRequest))
	case errors.Is(err, payments.ErrUnsupportedGateway):
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_gateway", err.Error(), http.StatusBadRequest))
	case errors.Is(err, payments.ErrCardRequired):
		httpx.WriteError(ctx, w, httpx.NewError("card_required", "card details are required", http.StatusBadRequest))
	case errors.Is(err, payments.ErrPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment processing failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrWalletNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("wallet_not_found", "wallet not found", http.StatusNotFound))
	case errors.Is(err, services.ErrWalletConflict):
		httpx.WriteError(ctx, w, httpx.NewError("wallet_conflict", err.Error(), http.StatusConflict))
	default:
		writeFallbackError(ctx, w, "wallet_error", err)
	}
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentNotCompleted):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_completed", "payment has not been completed", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentForbidden):
		writeForbidden(ctx, w)
	case errors.Is(err, payments.ErrWebhookSignature):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrOrderInvalidTransition),
		errors.Is(err, services.ErrOrderForbidden):
		writeOrderError(ctx, w, err)
	case errors.Is(err, services.ErrWalletNotFound),
		errors.Is(err, services.ErrWalletInvalidInput),
		errors.Is(err, services.ErrWalletConflict),
		errors.Is(err, payments.ErrUnsupportedGateway),
		errors.Is(err, payments.ErrPaymentFailed):
		writeWalletError(ctx, w, err)
	default:
		writeFallbackError(ctx, w, "payment_error", err)
	}
}
