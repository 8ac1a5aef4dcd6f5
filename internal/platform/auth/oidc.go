package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

const iapAssertionHeader = "X-Goog-Iap-Jwt-Assertion"

// ServiceIdentity is the verified caller of an internal endpoint.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string
}

type serviceIdentityKey struct{}

// WithServiceIdentity stores identity on ctx.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityKey{}, identity)
}

// ServiceIdentityFromContext returns the identity stored by RequireOIDC.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityKey{}).(*ServiceIdentity)
	return identity, ok && identity != nil
}

type serviceClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// OIDCValidator checks Google-signed ID tokens presented by schedulers and IAP.
type OIDCValidator struct {
	cache   *JWKSCache
	logger  *zap.Logger
	now     func() time.Time
	invoker map[string]struct{}
}

// OIDCOption configures an OIDCValidator.
type OIDCOption func(*OIDCValidator)

// NewOIDCValidator returns a validator resolving signing keys from cache.
func NewOIDCValidator(cache *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	v := &OIDCValidator{cache: cache, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// WithOIDCLogger sets the validator logger.
func WithOIDCLogger(logger *zap.Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithAllowedServiceAccounts limits accepted callers to the listed service account emails.
// Without any entries every correctly signed token for the audience is accepted.
func WithAllowedServiceAccounts(emails ...string) OIDCOption {
	return func(v *OIDCValidator) {
		for _, email := range emails {
			email = strings.ToLower(strings.TrimSpace(email))
			if email == "" {
				continue
			}
			if v.invoker == nil {
				v.invoker = make(map[string]struct{}, len(emails))
			}
			v.invoker[email] = struct{}{}
		}
	}
}

// WithOIDCClock overrides the time source used for expiry checks.
func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// RequireOIDC rejects requests lacking a valid token for audience issued by one of issuers.
// Without an audience or issuers every request is refused with 503. The token is read from
// the Authorization bearer or the IAP assertion header.
func (v *OIDCValidator) RequireOIDC(audience string, issuers []string) func(http.Handler) http.Handler {
	audience = strings.TrimSpace(audience)
	trusted := make([]string, 0, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			trusted = append(trusted, issuer)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil || v.cache == nil || audience == "" || len(trusted) == 0 {
				respondAuthError(w, r, http.StatusServiceUnavailable, "verification_unavailable", "service authentication not configured")
				return
			}
			raw := oidcToken(r)
			if raw == "" {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "service token missing")
				return
			}

			claims, status, reason := v.verify(r.Context(), raw, audience, trusted)
			if status != 0 {
				v.logger.Warn("service token rejected", zap.String("reason", reason), zap.String("path", r.URL.Path))
				code := "invalid_token"
				switch status {
				case http.StatusServiceUnavailable:
					code = "verification_unavailable"
				case http.StatusForbidden:
					code = "forbidden"
				}
				respondAuthError(w, r, status, code, "service token rejected: "+reason)
				return
			}

			identity := &ServiceIdentity{
				Subject:  claims.Subject,
				Email:    strings.ToLower(claims.Email),
				Issuer:   claims.Issuer,
				Audience: audience,
			}
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(r.Context(), identity)))
		})
	}
}

// verify returns a non-zero status with a short reason when the token is rejected.
func (v *OIDCValidator) verify(ctx context.Context, raw, audience string, issuers []string) (*serviceClaims, int, string) {
	claims := &serviceClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(raw, claims, v.cache.Keyfunc(ctx)); err != nil {
		if errors.Is(err, ErrJWKSFetchFailed) {
			return nil, http.StatusServiceUnavailable, "jwks_unavailable"
		}
		return nil, http.StatusUnauthorized, "signature_invalid"
	}

	now := v.now()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, http.StatusUnauthorized, "expired"
	}
	if !claims.VerifyIssuedAt(now.Add(time.Minute), false) || !claims.VerifyNotBefore(now.Add(time.Minute), false) {
		return nil, http.StatusUnauthorized, "not_yet_valid"
	}
	if !matchesAny(issuers, claims.VerifyIssuer) {
		return nil, http.StatusUnauthorized, "issuer_mismatch"
	}
	if !claims.VerifyAudience(audience, true) {
		return nil, http.StatusUnauthorized, "audience_mismatch"
	}
	if len(v.invoker) > 0 {
		if _, ok := v.invoker[strings.ToLower(strings.TrimSpace(claims.Email))]; !ok {
			return nil, http.StatusForbidden, "caller_not_allowed"
		}
	}
	return claims, 0, ""
}

func matchesAny(values []string, check func(string, bool) bool) bool {
	for _, value := range values {
		if check(value, true) {
			return true
		}
	}
	return false
}

func oidcToken(r *http.Request) string {
	if token, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return strings.TrimSpace(r.Header.Get(iapAssertionHeader))
}
