package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tradeshop/api/internal/platform/auth"
	"github.com/tradeshop/api/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	maxKeyLength      = 255
)

type guard struct {
	store    Store
	header   string
	ttl      time.Duration
	methods  map[string]bool
	now      func() time.Time
	logger   *zap.Logger
	optional bool
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*guard)

// WithHeader sets the request header carrying the key.
func WithHeader(name string) MiddlewareOption {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

// WithTTL sets how long completed responses stay replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithMethods limits the guarded HTTP methods. The default guards POST, PUT, PATCH and DELETE.
func WithMethods(methods ...string) MiddlewareOption {
	return func(g *guard) {
		set := make(map[string]bool, len(methods))
		for _, m := range methods {
			if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
				set[m] = true
			}
		}
		if len(set) > 0 {
			g.methods = set
		}
	}
}

// WithLogger sets the logger used for store failures.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(g *guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithOptionalKey lets requests without a key through unguarded instead of rejecting them.
func WithOptionalKey() MiddlewareOption {
	return func(g *guard) { g.optional = true }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MiddlewareOption {
	return func(g *guard) {
		if now != nil {
			g.now = now
		}
	}
}

// Middleware makes keyed mutating requests safe to retry. The first request for a key runs the
// handler and its response is stored; repeats with the same body replay that response, repeats
// with a different body get 409, and repeats while the first is still running get 409. Keys are
// scoped to the authenticated caller. 5xx responses release the key so the client can retry.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	g := &guard{
		store:  store,
		header: defaultHeaderName,
		ttl:    DefaultTTL,
		methods: map[string]bool{
			http.MethodPost:   true,
			http.MethodPut:    true,
			http.MethodPatch:  true,
			http.MethodDelete: true,
		},
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next)
		})
	}
}

func (g *guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if !g.methods[r.Method] {
		next.ServeHTTP(w, r)
		return
	}
	key := strings.TrimSpace(r.Header.Get(g.header))
	switch {
	case key == "" && g.optional:
		next.ServeHTTP(w, r)
		return
	case key == "":
		respondError(w, r, http.StatusBadRequest, "idempotency_key_required", "missing "+g.header+" header")
		return
	case !validKey(key):
		respondError(w, r, http.StatusBadRequest, "invalid_idempotency_key", g.header+" must be 1-255 printable characters")
		return
	}

	body, err := bufferBody(r)
	if err != nil {
		if errors.Is(err, httpx.ErrBodyTooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
			return
		}
		respondError(w, r, http.StatusBadRequest, "invalid_request", "unable to read request body")
		return
	}

	requester := requesterOf(r.Context())
	scoped := scopedKey(key, requester)
	fp := fingerprint(r, body, requester)
	logger := g.logger.With(zap.String("idempotency_key", key), zap.String("requester", requester))

	reservation, err := g.store.Reserve(r.Context(), scoped, fp, g.now().UTC(), g.ttl)
	switch {
	case errors.Is(err, ErrFingerprintMismatch):
		respondError(w, r, http.StatusConflict, "idempotency_key_conflict", "idempotency key already used for a different request")
		return
	case err != nil:
		logger.Error("idempotency reserve failed", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "idempotency_store_error", "unable to process idempotency key")
		return
	}
	switch reservation.State {
	case ReservationStateCompleted:
		replay(w, reservation.Record)
		return
	case ReservationStatePending:
		respondError(w, r, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
		return
	}

	rec := &bufferedResponse{header: make(http.Header)}
	next.ServeHTTP(rec, r)

	if rec.statusCode() >= http.StatusInternalServerError {
		g.release(r.Context(), logger, scoped, fp)
		rec.flushTo(w, logger)
		return
	}
	resp := Response{Status: rec.statusCode(), Headers: rec.header.Clone(), Body: rec.body.Bytes()}
	if err := g.store.SaveResponse(r.Context(), scoped, fp, resp, g.now().UTC(), g.ttl); err != nil {
		logger.Error("idempotency persist failed", zap.Error(err))
		g.release(r.Context(), logger, scoped, fp)
		respondError(w, r, http.StatusInternalServerError, "idempotency_store_error", "unable to persist idempotency state")
		return
	}
	rec.flushTo(w, logger)
}

func (g *guard) release(ctx context.Context, logger *zap.Logger, key, fp string) {
	if err := g.store.Release(context.WithoutCancel(ctx), key, fp); err != nil {
		logger.Warn("idempotency release failed", zap.Error(err))
	}
}

func validKey(key string) bool {
	if len(key) > maxKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return false
		}
	}
	return true
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := httpx.ReadBody(r, httpx.DefaultBodyLimit)
	if err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// fingerprint binds a key to one request shape: method, path, query, content type, caller and body.
func fingerprint(r *http.Request, body []byte, requester string) string {
	h := sha256.New()
	for _, part := range []string{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Content-Type"), requester} {
		_, _ = io.WriteString(h, part)
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func requesterOf(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.UID != "" {
		return identity.UID
	}
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc.Subject != "" {
		return "svc:" + svc.Subject
	}
	return "anonymous"
}

func scopedKey(key, requester string) string {
	return requester + "|" + key
}

func replay(w http.ResponseWriter, record Record) {
	header := w.Header()
	for name, values := range record.ResponseHeaders {
		header[name] = append([]string(nil), values...)
	}
	header.Set(replayHeaderName, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}

// bufferedResponse holds the handler's response until the outcome has been stored.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedResponse) flushTo(w http.ResponseWriter, logger *zap.Logger) {
	for name, values := range b.header {
		w.Header()[name] = values
	}
	w.WriteHeader(b.statusCode())
	if _, err := w.Write(b.body.Bytes()); err != nil {
		logger.Warn("idempotency flush failed", zap.Error(err))
	}
}
