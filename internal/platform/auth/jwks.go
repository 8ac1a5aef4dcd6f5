package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrJWKSKeyNotFound is returned when no published key matches the token kid.
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed wraps transport and decoding failures while loading the key set.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

const (
	defaultJWKSTTL     = 15 * time.Minute
	minJWKSRefetchWait = 30 * time.Second
)

// JWKSCache loads a JSON Web Key Set on first use and keeps it for the lifetime advertised by
// the issuer's Cache-Control header. Unknown key IDs trigger a refetch at most every 30s.
type JWKSCache struct {
	url    string
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
	ttl    time.Duration

	mu        sync.RWMutex
	keys      map[string]any
	expiresAt time.Time
	fetchedAt time.Time

	group singleflight.Group
}

// JWKSOption configures a JWKSCache.
type JWKSOption func(*JWKSCache)

// NewJWKSCache returns a cache for the key set published at url.
func NewJWKSCache(url string, opts ...JWKSOption) *JWKSCache {
	c := &JWKSCache{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: zap.NewNop(),
		now:    time.Now,
		ttl:    defaultJWKSTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// WithJWKSHTTPClient replaces the HTTP client used for fetches.
func WithJWKSHTTPClient(client *http.Client) JWKSOption {
	return func(c *JWKSCache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithJWKSLogger sets the cache logger.
func WithJWKSLogger(logger *zap.Logger) JWKSOption {
	return func(c *JWKSCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithJWKSTTL sets the lifetime used when the response carries no max-age.
func WithJWKSTTL(ttl time.Duration) JWKSOption {
	return func(c *JWKSCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithJWKSClock overrides the time source.
func WithJWKSClock(now func() time.Time) JWKSOption {
	return func(c *JWKSCache) {
		if now != nil {
			c.now = now
		}
	}
}

// Keyfunc adapts the cache to jwt parsing. Only RS256 tokens carrying a kid are accepted.
func (c *JWKSCache) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		return c.Key(ctx, kid)
	}
}

// Key returns the public key published under kid.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	key, found, fresh, recent := c.lookup(kid)
	if found && fresh {
		return key, nil
	}
	if found || !fresh || !recent {
		if err := c.load(ctx); err != nil {
			if found {
				// keep serving the expired key while the issuer is unreachable
				c.logger.Warn("jwks refresh failed; using cached key", zap.Error(err))
				return key, nil
			}
			return nil, err
		}
		if key, found, _, _ = c.lookup(kid); found {
			return key, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) lookup(kid string) (key any, found, fresh, recent bool) {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, found = c.keys[kid]
	fresh = c.keys != nil && now.Before(c.expiresAt)
	recent = !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < minJWKSRefetchWait
	return key, found, fresh, recent
}

func (c *JWKSCache) load(ctx context.Context) error {
	_, err, _ := c.group.Do("jwks", func() (any, error) {
		return nil, c.fetch(ctx)
	})
	return err
}

func (c *JWKSCache) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]any, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID != "" && jwk.Valid() && jwk.IsPublic() {
			keys[jwk.KeyID] = jwk.Key
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: no usable keys", ErrJWKSFetchFailed)
	}

	ttl := c.ttl
	if maxAge, ok := cacheMaxAge(resp.Header.Get("Cache-Control")); ok {
		ttl = maxAge
	}
	now := c.now()
	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = now
	c.expiresAt = now.Add(ttl)
	c.mu.Unlock()

	c.logger.Debug("jwks loaded", zap.Int("keys", len(keys)), zap.Duration("ttl", ttl))
	return nil
}

func cacheMaxAge(header string) (time.Duration, bool) {
	for _, directive := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(strings.Trim(value, `" `))
		if err != nil || seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	return 0, false
}
