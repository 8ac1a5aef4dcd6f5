package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 10 * time.Minute
	meterName           = "github.com/tradeshop/api/internal/platform/secrets"
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (secretManagerClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references against Secret Manager. Values are cached for a TTL so
// rotated gateway credentials are picked up without a restart. Local runs without credentials read
// a dotenv-style fallback file instead.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	clock      func() time.Time
	ttl        time.Duration

	env            string
	defaultProject string
	projectMap     map[string]string
	versionPins    map[string]string

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cachedSecret

	resolutions metric.Int64Counter
	latency     metric.Float64Histogram
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

type fetcherConfig struct {
	logger       *zap.Logger
	env          string
	defaultProj  string
	projectMap   map[string]string
	versionPins  map[string]string
	fallbackPath string
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
	ttl          time.Duration
	clock        func() time.Time
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithEnvironment selects the key used to look up per-environment projects and version pins.
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) { cfg.env = strings.ToLower(strings.TrimSpace(env)) }
}

// WithDefaultProject sets the project used when no environment mapping matches.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.defaultProj = strings.TrimSpace(projectID) }
}

// WithProjectMap supplies environment-specific project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(cfg *fetcherConfig) { cfg.projectMap = copyStringMap(m) }
}

// WithFallbackFile overrides the dotenv file consulted when Secret Manager is unreachable.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

// WithMeter injects an OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = m }
}

// WithSecretManagerClient injects a preconfigured client.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// WithClientOptions forwards options to the Secret Manager client constructor.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// WithVersionPins sets explicit versions keyed by canonical reference, optionally prefixed "env:".
func WithVersionPins(pins map[string]string) Option {
	return func(cfg *fetcherConfig) { cfg.versionPins = copyStringMap(pins) }
}

// WithCacheTTL bounds how long a resolved value is reused. Zero or negative keeps the default.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *fetcherConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithClock overrides the time source used for cache expiry.
func WithClock(clock func() time.Time) Option {
	return func(cfg *fetcherConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is not fatal: resolution falls back
// to the local file.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		env:          defaultEnvironment,
		fallbackPath: defaultFallbackPath,
		ttl:          defaultCacheTTL,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.env == "" {
		cfg.env = defaultEnvironment
	}
	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	f := &Fetcher{
		client:         cfg.client,
		logger:         cfg.logger,
		clock:          cfg.clock,
		ttl:            cfg.ttl,
		env:            cfg.env,
		defaultProject: cfg.defaultProj,
		projectMap:     copyStringMap(cfg.projectMap),
		versionPins:    copyStringMap(cfg.versionPins),
		fallbackPath:   cfg.fallbackPath,
		cache:          make(map[string]cachedSecret),
	}

	var err error
	if f.resolutions, err = meter.Int64Counter("secrets.resolutions",
		metric.WithDescription("Secret resolutions by source")); err != nil {
		f.logger.Warn("secrets: resolution counter unavailable", zap.Error(err))
	}
	if f.latency, err = meter.Float64Histogram("secrets.resolve.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret resolution")); err != nil {
		f.logger.Warn("secrets: latency histogram unavailable", zap.Error(err))
	}

	if f.client == nil {
		client, err := newSecretManagerClient(ctx, cfg.clientOpts...)
		if err != nil {
			f.logger.Warn("secrets: secret manager unavailable; using fallback file", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f == nil || !f.ownsClient || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// Resolve returns the secret value for ref. Concurrent lookups of the same reference share a
// single remote call.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := f.clock()
	parsed, err := ParseReference(ref)
	if err != nil {
		return "", err
	}
	version := f.version(parsed)
	key := parsed.Canonical + "#" + version

	if value, ok := f.cached(key); ok {
		f.record(ctx, parsed, "cache", start)
		return value, nil
	}

	result, err, _ := f.group.Do(key, func() (any, error) {
		value, source, err := f.load(ctx, parsed, version)
		if err != nil {
			return nil, err
		}
		f.store(key, value)
		return resolved{value: value, source: source}, nil
	})
	if err != nil {
		f.record(ctx, parsed, "error", start)
		return "", err
	}
	res := result.(resolved)
	f.record(ctx, parsed, res.source, start)
	return res.value, nil
}

type resolved struct {
	value  string
	source string
}

func (f *Fetcher) load(ctx context.Context, ref Reference, version string) (string, string, error) {
	project := f.project(ref)
	if project != "" && f.client != nil {
		value, err := f.fetchRemote(ctx, ref, project, version)
		if err == nil {
			return value, "remote", nil
		}
		if !shouldFallback(err) {
			return "", "", fmt.Errorf("secrets: fetch %s: %w", ref.Canonical, err)
		}
		f.logger.Debug("secrets: remote fetch failed; trying fallback file",
			zap.String("secret", ref.masked()), zap.Error(err))
	}
	value, ok := f.lookupFallback(ref)
	if !ok {
		return "", "", fmt.Errorf("secrets: %s not found in fallback file", ref.Canonical)
	}
	return value, "fallback", nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, ref Reference, project, version string) (string, error) {
	resp, err := f.client.AccessSecretVersion(ctx,
		&secretmanagerpb.AccessSecretVersionRequest{Name: ref.resource(project, version)},
		gax.WithRetry(func() gax.Retryer {
			return gax.OnCodes([]codes.Code{codes.Unavailable, codes.ResourceExhausted}, gax.Backoff{
				Initial:    100 * time.Millisecond,
				Max:        time.Second,
				Multiplier: 2,
			})
		}),
	)
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", errors.New("empty secret payload")
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) project(ref Reference) string {
	if ref.Project != "" {
		return ref.Project
	}
	if id := strings.TrimSpace(f.projectMap[f.env]); id != "" {
		return id
	}
	return f.defaultProject
}

func (f *Fetcher) version(ref Reference) string {
	if ref.Version != "" {
		return ref.Version
	}
	for _, key := range []string{f.env + ":" + ref.Canonical, ref.Canonical} {
		if pin := strings.TrimSpace(f.versionPins[key]); pin != "" {
			return pin
		}
	}
	return latestVersion
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.cache[key]
	if !ok || !f.clock().Before(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = cachedSecret{value: value, expiresAt: f.clock().Add(f.ttl)}
	f.mu.Unlock()
}

func (f *Fetcher) lookupFallback(ref Reference) (string, bool) {
	f.fallbackOnce.Do(func() {
		f.fallback = map[string]string{}
		if f.fallbackPath == "" {
			return
		}
		values, err := godotenv.Read(f.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				f.logger.Warn("secrets: unable to read fallback file", zap.String("path", f.fallbackPath), zap.Error(err))
			}
			return
		}
		f.fallback = values
	})
	value, ok := f.fallback[ref.envKey()]
	return value, ok
}

func (f *Fetcher) record(ctx context.Context, ref Reference, source string, start time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("secret", ref.masked()),
	)
	if f.resolutions != nil {
		f.resolutions.Add(ctx, 1, attrs)
	}
	if f.latency != nil {
		f.latency.Record(ctx, float64(f.clock().Sub(start))/float64(time.Millisecond), attrs)
	}
}

// shouldFallback reports whether err means Secret Manager is unreachable for this caller rather
// than the secret being absent.
func shouldFallback(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

func copyStringMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
