package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/httpx"
)

const (
	defaultRoleClaim     = "role"
	defaultEmailClaim    = "email"
	defaultNameClaim     = "name"
	defaultPhoneClaim    = "phone_number"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the provided Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// ProvisionFunc loads or creates the stored user for a verified identity.
type ProvisionFunc func(ctx context.Context, identity *Identity) (domain.User, error)

// Authenticator wires Firebase token verification into HTTP middleware.
type Authenticator struct {
	verifier  TokenVerifier
	provision ProvisionFunc

	roleClaim string
	timeout   time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithProvisioner loads the stored user after verification; its role replaces the claim role.
func WithProvisioner(fn ProvisionFunc) Option {
	return func(a *Authenticator) {
		a.provision = fn
	}
}

// WithRoleClaim overrides the custom claim used for role extraction.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		claim = strings.TrimSpace(claim)
		if claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithVerificationTimeout sets the timeout used when verifying tokens and provisioning users.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:  verifier,
		roleClaim: defaultRoleClaim,
		timeout:   defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth verifies the Authorization bearer token and stores the identity in the
// request context.
func (a *Authenticator) RequireFirebaseAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.authenticate(r)
			if err != nil {
				httpx.WriteError(r.Context(), w, err.(httpx.Error))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// authenticate returns an httpx.Error when the request cannot be authenticated.
func (a *Authenticator) authenticate(r *http.Request) (*Identity, error) {
	raw, ok := extractBearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized)
	}
	if a == nil || a.verifier == nil {
		return nil, httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusUnauthorized)
	}

	ctx, cancel := a.contextWithTimeout(r.Context())
	defer cancel()

	token, err := a.verifier.VerifyIDToken(ctx, raw)
	if err != nil {
		return nil, verificationError(err)
	}
	identity := a.identityFromToken(token)
	if a.provision == nil {
		return identity, nil
	}
	user, err := a.provision(ctx, identity)
	if err != nil {
		return nil, httpx.NewError("user_unavailable", "unable to load user profile", http.StatusServiceUnavailable)
	}
	if user.Role.Valid() {
		identity.Role = user.Role
	}
	return identity, nil
}

func (a *Authenticator) identityFromToken(token *firebaseauth.Token) *Identity {
	identity := &Identity{
		UID:       token.UID,
		Email:     claimAsString(token.Claims, defaultEmailClaim),
		Name:      claimAsString(token.Claims, defaultNameClaim),
		Phone:     claimAsString(token.Claims, defaultPhoneClaim),
		ClaimRole: roleFromClaims(token.Claims, a.roleClaim),
		Role:      domain.RoleUser,
		token:     token,
	}
	if identity.ClaimRole != "" {
		identity.Role = identity.ClaimRole
	}
	return identity
}

// RequireAdmin rejects requests whose identity is not an administrator. It must run after
// RequireFirebaseAuth.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			if !identity.IsAdmin() {
				respondAuthError(w, r, http.StatusForbidden, "forbidden", "admin role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a == nil || a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// roleFromClaims accepts a single role string or a list, returning the first known role.
func roleFromClaims(claims map[string]interface{}, key string) domain.UserRole {
	var candidates []interface{}
	switch v := claims[key].(type) {
	case string:
		candidates = []interface{}{v}
	case []interface{}:
		candidates = v
	case []string:
		for _, item := range v {
			candidates = append(candidates, item)
		}
	}
	for _, candidate := range candidates {
		str, _ := candidate.(string)
		if role := domain.UserRole(strings.ToUpper(strings.TrimSpace(str))); role.Valid() {
			return role
		}
	}
	return ""
}

func claimAsString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}

func verificationError(err error) httpx.Error {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		return httpx.NewError("token_expired", "firebase id token expired", http.StatusUnauthorized)
	case errors.Is(err, ErrTokenInvalid), firebaseauth.IsIDTokenInvalid(err):
		return httpx.NewError("invalid_token", "firebase id token invalid", http.StatusUnauthorized)
	default:
		return httpx.NewError("invalid_token", "firebase id token verification failed", http.StatusUnauthorized)
	}
}
