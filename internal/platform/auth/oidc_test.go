package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testAudience = "https://shop.example.com/internal"
	testIssuer   = "https://accounts.google.com"
)

type jwksServer struct {
	mu       sync.Mutex
	keys     []jose.JSONWebKey
	requests atomic.Int32
	server   *httptest.Server
}

func newJWKSServer(t *testing.T, maxAge string, keys ...jose.JSONWebKey) *jwksServer {
	t.Helper()
	s := &jwksServer{keys: keys}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.mu.Lock()
		set := jose.JSONWebKeySet{Keys: append([]jose.JSONWebKey(nil), s.keys...)}
		s.mu.Unlock()
		if maxAge != "" {
			w.Header().Set("Cache-Control", "public, max-age="+maxAge)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *jwksServer) publish(keys ...jose.JSONWebKey) {
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
}

func newSigningKey(t *testing.T, kid string) (*rsa.PrivateKey, jose.JSONWebKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, jose.JSONWebKey{Key: &key.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}
}

func signServiceToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func schedulerClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"aud":   testAudience,
		"iss":   testIssuer,
		"sub":   "1122334455",
		"email": "Scheduler@shop-prod.iam.gserviceaccount.com",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
}

func TestJWKSCacheHonoursMaxAge(t *testing.T) {
	_, jwk := newSigningKey(t, "k1")
	srv := newJWKSServer(t, "60", jwk)

	now := time.Unix(1_700_000_000, 0)
	cache := NewJWKSCache(srv.server.URL, WithJWKSClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key, err := cache.Key(ctx, "k1")
		if err != nil {
			t.Fatalf("key: %v", err)
		}
		if _, ok := key.(*rsa.PublicKey); !ok {
			t.Fatalf("expected *rsa.PublicKey, got %T", key)
		}
	}
	if got := srv.requests.Load(); got != 1 {
		t.Fatalf("expected one fetch while fresh, got %d", got)
	}

	now = now.Add(61 * time.Second)
	if _, err := cache.Key(ctx, "k1"); err != nil {
		t.Fatalf("key after expiry: %v", err)
	}
	if got := srv.requests.Load(); got != 2 {
		t.Fatalf("expected refetch after max-age, got %d fetches", got)
	}
}

func TestJWKSCacheRefetchesOnRotation(t *testing.T) {
	_, first := newSigningKey(t, "k1")
	_, second := newSigningKey(t, "k2")
	srv := newJWKSServer(t, "3600", first)

	now := time.Unix(1_700_000_000, 0)
	cache := NewJWKSCache(srv.server.URL, WithJWKSClock(func() time.Time { return now }))
	ctx := context.Background()

	if _, err := cache.Key(ctx, "k1"); err != nil {
		t.Fatalf("key: %v", err)
	}
	srv.publish(first, second)

	if _, err := cache.Key(ctx, "k2"); !errors.Is(err, ErrJWKSKeyNotFound) {
		t.Fatalf("expected unknown kid within refetch window, got %v", err)
	}

	now = now.Add(minJWKSRefetchWait)
	if _, err := cache.Key(ctx, "k2"); err != nil {
		t.Fatalf("expected rotated key after refetch: %v", err)
	}
	if got := srv.requests.Load(); got != 2 {
		t.Fatalf("expected two fetches, got %d", got)
	}
}

func TestJWKSCacheServesStaleKeyWhenIssuerDown(t *testing.T) {
	_, jwk := newSigningKey(t, "k1")
	srv := newJWKSServer(t, "10", jwk)

	now := time.Unix(1_700_000_000, 0)
	cache := NewJWKSCache(srv.server.URL, WithJWKSClock(func() time.Time { return now }))
	if _, err := cache.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("key: %v", err)
	}

	srv.server.Close()
	now = now.Add(time.Minute)
	if _, err := cache.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("expected stale key, got %v", err)
	}
}

func TestCacheMaxAge(t *testing.T) {
	cases := map[string]time.Duration{
		"public, max-age=300, must-revalidate": 5 * time.Minute,
		"MAX-AGE=20":                          20 * time.Second,
		"no-cache":                            0,
		"max-age=abc":                         0,
	}
	for header, want := range cases {
		got, _ := cacheMaxAge(header)
		if got != want {
			t.Fatalf("cacheMaxAge(%q) = %s, want %s", header, got, want)
		}
	}
}

type oidcFixture struct {
	validator *OIDCValidator
	key       *rsa.PrivateKey
	now       time.Time
	logs      *observer.ObservedLogs
	jwks      *jwksServer
}

func newOIDCFixture(t *testing.T, opts ...OIDCOption) *oidcFixture {
	t.Helper()
	key, jwk := newSigningKey(t, "svc-key")
	srv := newJWKSServer(t, "600", jwk)
	now := time.Unix(1_700_000_000, 0)
	core, logs := observer.New(zapcore.WarnLevel)
	clock := func() time.Time { return now }

	opts = append([]OIDCOption{WithOIDCLogger(zap.New(core)), WithOIDCClock(clock)}, opts...)
	validator := NewOIDCValidator(NewJWKSCache(srv.server.URL, WithJWKSClock(clock)), opts...)
	return &oidcFixture{validator: validator, key: key, now: now, logs: logs, jwks: srv}
}

func (f *oidcFixture) serve(t *testing.T, token string, header string) (*httptest.ResponseRecorder, *ServiceIdentity) {
	t.Helper()
	var identity *ServiceIdentity
	handler := f.validator.RequireOIDC(testAudience, []string{testIssuer, "https://cloud.google.com/iap"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ = ServiceIdentityFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

	req := httptest.NewRequest(http.MethodPost, "/internal/orders:sweep", nil)
	if token != "" {
		if header == iapAssertionHeader {
			req.Header.Set(iapAssertionHeader, token)
		} else {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, identity
}

func (f *oidcFixture) lastReason() string {
	entries := f.logs.FilterMessage("service token rejected").All()
	if len(entries) == 0 {
		return ""
	}
	reason, _ := entries[len(entries)-1].ContextMap()["reason"].(string)
	return reason
}

func TestRequireOIDCAcceptsSchedulerToken(t *testing.T) {
	f := newOIDCFixture(t)
	token := signServiceToken(t, f.key, "svc-key", schedulerClaims(f.now))

	rr, identity := f.serve(t, token, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if identity == nil || identity.Subject != "1122334455" || identity.Email != "scheduler@shop-prod.iam.gserviceaccount.com" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if identity.Issuer != testIssuer || identity.Audience != testAudience {
		t.Fatalf("unexpected issuer/audience %+v", identity)
	}
}

func TestRequireOIDCReadsIAPAssertion(t *testing.T) {
	f := newOIDCFixture(t)
	claims := schedulerClaims(f.now)
	claims["iss"] = "https://cloud.google.com/iap"
	token := signServiceToken(t, f.key, "svc-key", claims)

	if rr, _ := f.serve(t, token, iapAssertionHeader); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestRequireOIDCRejections(t *testing.T) {
	otherKey, _ := newSigningKey(t, "svc-key")

	cases := []struct {
		name   string
		mutate func(jwt.MapClaims)
		key    *rsa.PrivateKey
		status int
		reason string
	}{
		{name: "wrong audience", mutate: func(c jwt.MapClaims) { c["aud"] = "https://elsewhere" }, status: http.StatusUnauthorized, reason: "audience_mismatch"},
		{name: "untrusted issuer", mutate: func(c jwt.MapClaims) { c["iss"] = "https://evil.example" }, status: http.StatusUnauthorized, reason: "issuer_mismatch"},
		{name: "expired", mutate: func(c jwt.MapClaims) { c["exp"] = time.Unix(1_700_000_000, 0).Add(-time.Second).Unix() }, status: http.StatusUnauthorized, reason: "expired"},
		{name: "issued in future", mutate: func(c jwt.MapClaims) { c["iat"] = time.Unix(1_700_000_000, 0).Add(time.Hour).Unix() }, status: http.StatusUnauthorized, reason: "not_yet_valid"},
		{name: "bad signature", key: otherKey, status: http.StatusUnauthorized, reason: "signature_invalid"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newOIDCFixture(t)
			claims := schedulerClaims(f.now)
			if tc.mutate != nil {
				tc.mutate(claims)
			}
			key := f.key
			if tc.key != nil {
				key = tc.key
			}
			rr, identity := f.serve(t, signServiceToken(t, key, "svc-key", claims), "")
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if identity != nil {
				t.Fatalf("handler should not run")
			}
			if got := f.lastReason(); got != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, got)
			}
		})
	}
}

func TestRequireOIDCMissingToken(t *testing.T) {
	f := newOIDCFixture(t)
	rr, _ := f.serve(t, "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "unauthenticated" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRequireOIDCRestrictsInvokers(t *testing.T) {
	f := newOIDCFixture(t, WithAllowedServiceAccounts(" deploy@shop-prod.iam.gserviceaccount.com "))
	token := signServiceToken(t, f.key, "svc-key", schedulerClaims(f.now))

	rr, _ := f.serve(t, token, "")
	if rr.Code != http.StatusForbidden || f.lastReason() != "caller_not_allowed" {
		t.Fatalf("expected 403 caller_not_allowed, got %d %q", rr.Code, f.lastReason())
	}

	WithAllowedServiceAccounts("SCHEDULER@shop-prod.iam.gserviceaccount.com")(f.validator)
	if rr, _ := f.serve(t, token, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected allowed invoker to pass, got %d", rr.Code)
	}
}

func TestRequireOIDCJWKSUnavailable(t *testing.T) {
	f := newOIDCFixture(t)
	f.jwks.server.Close()
	token := signServiceToken(t, f.key, "svc-key", schedulerClaims(f.now))

	rr, _ := f.serve(t, token, "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if f.lastReason() != "jwks_unavailable" {
		t.Fatalf("expected jwks_unavailable, got %q", f.lastReason())
	}
}
