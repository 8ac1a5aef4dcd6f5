package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/auth"
	"github.com/tradeshop/api/internal/platform/httpx"
	"github.com/tradeshop/api/internal/platform/pagination"
	"github.com/tradeshop/api/internal/repositories"
)

// decodeJSONBody reads and decodes the request body into dst, writing the error response itself
// when it fails. An empty body is accepted when allowEmpty is set.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any, allowEmpty bool) bool {
	ctx := r.Context()
	body, err := httpx.ReadBody(r, limit)
	switch {
	case errors.Is(err, httpx.ErrEmptyBody) && allowEmpty:
		return true
	case errors.Is(err, httpx.ErrBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return false
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", strings.ReplaceAll(name, "_", " ")+" service unavailable", http.StatusServiceUnavailable))
}

func writeForbidden(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions", http.StatusForbidden))
}

// parsePage reads page_size, page_token and filter= parameters, writing a 400 on failure.
func parsePage(w http.ResponseWriter, r *http.Request, opts pagination.Options) (pagination.Params, bool) {
	params, err := pagination.FromRequest(r, opts)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return pagination.Params{}, false
	}
	return pagination.Must(params), true
}

func toPagination(params pagination.Params) domain.Pagination {
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}
}

func parseBoolParam(raw string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return nil, nil
	case "true", "1", "yes":
		v := true
		return &v, nil
	case "false", "0", "no":
		v := false
		return &v, nil
	}
	return nil, fmt.Errorf("invalid boolean %q", raw)
}

func parseTimeParam(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse("2006-01-02", value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("must be RFC3339 timestamp")
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func formatMoney(amount decimal.Decimal) string {
	return domain.RoundMoney(amount).StringFixed(2)
}

func formatMoneyPtr(amount *decimal.Decimal) *string {
	if amount == nil {
		return nil
	}
	s := formatMoney(*amount)
	return &s
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// writeFallbackError maps errors no handler-specific case claimed.
func writeFallbackError(ctx context.Context, w http.ResponseWriter, code string, err error) {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "storage temporarily unavailable", http.StatusServiceUnavailable))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError(code, "failed to process request", http.StatusInternalServerError))
}
