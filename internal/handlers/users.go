package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/auth"
	"github.com/tradeshop/api/internal/platform/httpx"
	"github.com/tradeshop/api/internal/platform/pagination"
	"github.com/tradeshop/api/internal/services"
)

const maxUserBodySize = 8 * 1024

var userPageOptions = pagination.Options{DefaultPageSize: 50, MaxPageSize: 200}

// UserHandlers exposes the caller's profile and user administration.
type UserHandlers struct {
	authn   *auth.Authenticator
	users   services.UserService
	wallets services.WalletService
}

// NewUserHandlers constructs a new UserHandlers instance. wallets may be nil.
func NewUserHandlers(authn *auth.Authenticator, users services.UserService, wallets services.WalletService) *UserHandlers {
	return &UserHandlers{
		authn:   authn,
		users:   users,
		wallets: wallets,
	}
}

// MeRoutes registers the /me endpoints.
func (h *UserHandlers) MeRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getMe)
}

// AdminRoutes registers user administration under /admin. Callers apply authentication.
func (h *UserHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/users", h.listUsers)
	r.Patch("/users/{userID}", h.updateUser)
	r.Delete("/users/{userID}", h.deleteUser)
	r.Get("/emails", h.listAdminEmails)
	r.Post("/emails", h.addAdminEmail)
	r.Delete("/emails/{emailID}", h.deleteAdminEmail)
}

type meResponse struct {
	User   userPayload    `json:"user"`
	Wallet *walletPayload `json:"wallet,omitempty"`
}

func (h *UserHandlers) getMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUnavailable(ctx, w, "user")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	user, err := h.users.Get(ctx, identity.UID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	resp := meResponse{User: buildUserPayload(user)}
	if h.wallets != nil {
		wallet, err := h.wallets.Get(ctx, identity.UID)
		switch {
		case err == nil:
			payload := buildWalletPayload(wallet)
			resp.Wallet = &payload
		case !errors.Is(err, services.ErrWalletNotFound):
			writeWalletError(ctx, w, err)
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *UserHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUnavailable(ctx, w, "user")
		return
	}
	params, ok := parsePage(w, r, userPageOptions)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := services.UserListFilter{Pagination: toPagination(params)}
	if raw := strings.TrimSpace(query.Get("role")); raw != "" {
		role, err := parseRole(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		filter.Role = &role
	}
	approved, err := parseBoolParam(query.Get("approved"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.Approved = approved

	page, err := h.users.List(ctx, filter)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	items := make([]userPayload, 0, len(page.Items))
	for _, u := range page.Items {
		items = append(items, buildUserPayload(u))
	}
	writeJSONResponse(w, http.StatusOK, userListResponse{Items: items, NextPageToken: page.NextPageToken})
}

type updateUserRequest struct {
	Role     *string `json:"role"`
	Approved *bool   `json:"approved"`
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
}

func (h *UserHandlers) updateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUnavailable(ctx, w, "user")
		return
	}
	var req updateUserRequest
	if !decodeJSONBody(w, r, maxUserBodySize, &req, false) {
		return
	}
	cmd := services.AdminUpdateUserCommand{
		UserID:   chi.URLParam(r, "userID"),
		Approved: req.Approved,
		Name:     req.Name,
		Phone:    req.Phone,
	}
	if req.Role != nil {
		role, err := parseRole(*req.Role)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		cmd.Role = &role
	}
	user, err := h.users.AdminUpdate(ctx, cmd)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

// deleteUser refuses to let an administrator delete their own account.
func (h *UserHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUnavailable(ctx, w, "user")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	if userID == identity.UID {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cannot delete your own account", http.StatusBadRequest))
		return
	}
	if err := h.users.Delete(ctx, userID); err != nil {
		writeUserError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandlers) listAdminEmails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUnavailable(ctx, w, "user")
		return
	}
	emails, err := h.users.ListAdminEmails(ctx)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	items := make([]adminEmailPayload, 0, len(emails))
	for _, e := range emails {
		items = append(items, buildAdminEmailPayload(e))
	}
	writeJSONResponse(w, http.StatusOK, adminEmailListResponse{Items: items})
}

type addAdminEmailRequest struct {
	Email string `json:"email"`
}

func (h *UserHandlers) addAdminEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUnavailable(ctx, w, "user")
		return
	}
	var req addAdminEmailRequest
	if !decodeJSONBody(w, r, maxUserBodySize, &req, false) {
		return
	}
	entry, err := h.users.AddAdminEmail(ctx, req.Email)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildAdminEmailPayload(entry))
}

func (h *UserHandlers) deleteAdminEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUnavailable(ctx, w, "user")
		return
	}
	if err := h.users.DeleteAdminEmail(ctx, chi.URLParam(r, "emailID")); err != nil {
		writeUserError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type userResponse struct {
	User userPayload `json:"user"`
}

type userListResponse struct {
	Items         []userPayload `json:"items"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

type userPayload struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role"`
	Approved  bool   `json:"approved"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func buildUserPayload(u services.User) userPayload {
	return userPayload{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Role:      string(u.Role),
		Approved:  u.Approved,
		CreatedAt: formatTime(u.CreatedAt),
		UpdatedAt: formatTime(u.UpdatedAt),
	}
}

type adminEmailListResponse struct {
	Items []adminEmailPayload `json:"items"`
}

type adminEmailPayload struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at,omitempty"`
}

func buildAdminEmailPayload(e services.AdminEmail) adminEmailPayload {
	return adminEmailPayload{ID: e.ID, Email: e.Email, CreatedAt: formatTime(e.CreatedAt)}
}

func parseRole(raw string) (domain.UserRole, error) {
	role := domain.UserRole(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

func writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "user or email not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "email already registered", http.StatusConflict))
	default:
		writeFallbackError(ctx, w, "user_error", err)
	}
}
