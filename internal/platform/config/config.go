package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultDatabaseDriver       = "postgres"
	defaultDatabaseMaxOpen      = 20
	defaultDatabaseMaxIdle      = 5
	defaultDatabaseConnLifetime = 30 * time.Minute
	defaultCurrency             = "usd"
	defaultPayPalBaseURL        = "https://api-m.sandbox.paypal.com"
	defaultAuthorizeNetURL      = "https://apitest.authorize.net/xml/v1/request.api"
	defaultGatewayTimeout       = 20 * time.Second
	defaultShippingPolicy       = "percentage"
	defaultShippingRate         = "0.05"
	defaultShippingMinimum      = "10.00"
	defaultShippingFreeFrom     = "2500.00"
	defaultSweepInterval        = 24 * time.Hour
	defaultSweepStaleAfter      = 24 * time.Hour
	defaultSweepBatchSize       = 200
	defaultNotificationsBackend = "log"
	defaultNotificationsTopic   = "shop-notifications"
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer       = "https://accounts.google.com"
	defaultIdempotencyBackend   = "memory"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Database      DatabaseConfig
	Storage       StorageConfig
	Payments      PaymentsConfig
	Shipping      ShippingConfig
	Sweep         SweepConfig
	Notifications NotificationsConfig
	Redis         RedisConfig
	Security      SecurityConfig
	Idempotency   IdempotencyConfig
	Metrics       MetricsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	CheckRevoked    bool
}

// FirestoreConfig locates the Firestore database backing idempotency records.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
	LogQueries      bool
}

// StorageConfig lists buckets used for catalog media.
type StorageConfig struct {
	MediaBucket       string
	SignerCredentials string
}

// PaymentsConfig collects gateway credentials and redirect targets.
type PaymentsConfig struct {
	Currency     string
	SuccessURL   string
	CancelURL    string
	Timeout      time.Duration
	Stripe       StripeConfig
	PayPal       PayPalConfig
	AuthorizeNet AuthorizeNetConfig
}

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
}

// PayPalConfig holds PayPal REST credentials.
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
}

// AuthorizeNetConfig holds merchant authentication values.
type AuthorizeNetConfig struct {
	LoginID        string
	TransactionKey string
	Endpoint       string
}

// ShippingConfig describes the active shipping policy.
type ShippingConfig struct {
	Policy        string
	Rate          decimal.Decimal
	Minimum       decimal.Decimal
	FreeThreshold decimal.Decimal
	PolicyFile    string
}

// SweepConfig controls the stale payment sweep.
type SweepConfig struct {
	Enabled    bool
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

// NotificationsConfig selects where notification messages are published.
type NotificationsConfig struct {
	Backend      string
	Topic        string
	KafkaBrokers []string
}

// RedisConfig locates the Redis instance used for idempotency records.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification.
type OIDCConfig struct {
	JWKSURL   string
	Audience  string
	Audiences map[string]string
	Issuers   []string

	// AllowedInvokers restricts /internal callers to these service account emails when set.
	AllowedInvokers []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Backend          string
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// MetricsConfig toggles the Prometheus endpoint at /metrics.
type MetricsConfig struct {
	Enabled bool
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed identifiers safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that takes precedence over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Payments.Stripe.APIKey") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// Load assembles configuration from defaults, .env, the process environment, the explicit env map
// and Secret Manager references, in increasing order of precedence.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	lookup, err := newLookup(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
			CheckRevoked:    boolWithDefault(lookup, "API_FIREBASE_CHECK_REVOKED", false),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(stringWithDefault(lookup, "API_DATABASE_DRIVER", defaultDatabaseDriver)),
			DSN:             stringWithDefault(lookup, "API_DATABASE_DSN", ""),
			MaxOpenConns:    intWithDefault(lookup, "API_DATABASE_MAX_OPEN_CONNS", defaultDatabaseMaxOpen),
			MaxIdleConns:    intWithDefault(lookup, "API_DATABASE_MAX_IDLE_CONNS", defaultDatabaseMaxIdle),
			ConnMaxLifetime: durationWithDefault(lookup, "API_DATABASE_CONN_MAX_LIFETIME", defaultDatabaseConnLifetime),
			AutoMigrate:     boolWithDefault(lookup, "API_DATABASE_AUTO_MIGRATE", false),
			LogQueries:      boolWithDefault(lookup, "API_DATABASE_LOG_QUERIES", false),
		},
		Storage: StorageConfig{
			MediaBucket:       stringWithDefault(lookup, "API_STORAGE_MEDIA_BUCKET", ""),
			SignerCredentials: stringWithDefault(lookup, "API_STORAGE_SIGNER_CREDENTIALS", ""),
		},
		Payments: PaymentsConfig{
			Currency:   strings.ToLower(stringWithDefault(lookup, "API_PAYMENTS_CURRENCY", defaultCurrency)),
			SuccessURL: stringWithDefault(lookup, "API_PAYMENTS_SUCCESS_URL", ""),
			CancelURL:  stringWithDefault(lookup, "API_PAYMENTS_CANCEL_URL", ""),
			Timeout:    durationWithDefault(lookup, "API_PAYMENTS_TIMEOUT", defaultGatewayTimeout),
			Stripe: StripeConfig{
				APIKey:        stringWithDefault(lookup, "API_PAYMENTS_STRIPE_API_KEY", ""),
				WebhookSecret: stringWithDefault(lookup, "API_PAYMENTS_STRIPE_WEBHOOK_SECRET", ""),
			},
			PayPal: PayPalConfig{
				ClientID:     stringWithDefault(lookup, "API_PAYMENTS_PAYPAL_CLIENT_ID", ""),
				ClientSecret: stringWithDefault(lookup, "API_PAYMENTS_PAYPAL_CLIENT_SECRET", ""),
				BaseURL:      stringWithDefault(lookup, "API_PAYMENTS_PAYPAL_BASE_URL", defaultPayPalBaseURL),
			},
			AuthorizeNet: AuthorizeNetConfig{
				LoginID:        stringWithDefault(lookup, "API_PAYMENTS_AUTHORIZENET_LOGIN_ID", ""),
				TransactionKey: stringWithDefault(lookup, "API_PAYMENTS_AUTHORIZENET_TRANSACTION_KEY", ""),
				Endpoint:       stringWithDefault(lookup, "API_PAYMENTS_AUTHORIZENET_ENDPOINT", defaultAuthorizeNetURL),
			},
		},
		Shipping: ShippingConfig{
			Policy:        strings.ToLower(stringWithDefault(lookup, "API_SHIPPING_POLICY", defaultShippingPolicy)),
			Rate:          decimalWithDefault(lookup, "API_SHIPPING_RATE", defaultShippingRate),
			Minimum:       decimalWithDefault(lookup, "API_SHIPPING_MINIMUM", defaultShippingMinimum),
			FreeThreshold: decimalWithDefault(lookup, "API_SHIPPING_FREE_THRESHOLD", defaultShippingFreeFrom),
			PolicyFile:    stringWithDefault(lookup, "API_SHIPPING_POLICY_FILE", ""),
		},
		Sweep: SweepConfig{
			Enabled:    boolWithDefault(lookup, "API_SWEEP_ENABLED", true),
			Interval:   durationWithDefault(lookup, "API_SWEEP_INTERVAL", defaultSweepInterval),
			StaleAfter: durationWithDefault(lookup, "API_SWEEP_STALE_AFTER", defaultSweepStaleAfter),
			BatchSize:  intWithDefault(lookup, "API_SWEEP_BATCH_SIZE", defaultSweepBatchSize),
		},
		Notifications: NotificationsConfig{
			Backend:      strings.ToLower(stringWithDefault(lookup, "API_NOTIFICATIONS_BACKEND", defaultNotificationsBackend)),
			Topic:        stringWithDefault(lookup, "API_NOTIFICATIONS_TOPIC", defaultNotificationsTopic),
			KafkaBrokers: csvWithDefault(lookup, "API_NOTIFICATIONS_KAFKA_BROKERS"),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "API_REDIS_DB", 0),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:   stringWithDefault(lookup, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:  stringWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Audiences: mapWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCES"),
				Issuers:   csvWithDefault(lookup, "API_SECURITY_OIDC_ISSUERS"),

				AllowedInvokers: csvWithDefault(lookup, "API_SECURITY_OIDC_ALLOWED_INVOKERS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Backend:          strings.ToLower(stringWithDefault(lookup, "API_IDEMPOTENCY_BACKEND", defaultIdempotencyBackend)),
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Metrics: MetricsConfig{
			Enabled: boolWithDefault(lookup, "API_METRICS_ENABLED", true),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}
	if cfg.Security.OIDC.Audience == "" {
		if audience, ok := cfg.Security.OIDC.Audiences[cfg.Security.Environment]; ok {
			cfg.Security.OIDC.Audience = audience
		}
	}

	if cfg.Shipping.PolicyFile != "" {
		if err := applyShippingFile(&cfg.Shipping); err != nil {
			return Config{}, err
		}
	}

	resolved, err := resolveSecrets(ctx, &cfg, options.secret)
	if err != nil {
		return Config{}, err
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecrets(ctx context.Context, cfg *Config, resolver SecretResolver) (map[string]string, error) {
	fields := []struct {
		name  string
		field *string
	}{
		{"Database.DSN", &cfg.Database.DSN},
		{"Storage.SignerCredentials", &cfg.Storage.SignerCredentials},
		{"Payments.Stripe.APIKey", &cfg.Payments.Stripe.APIKey},
		{"Payments.Stripe.WebhookSecret", &cfg.Payments.Stripe.WebhookSecret},
		{"Payments.PayPal.ClientSecret", &cfg.Payments.PayPal.ClientSecret},
		{"Payments.AuthorizeNet.TransactionKey", &cfg.Payments.AuthorizeNet.TransactionKey},
		{"Redis.Password", &cfg.Redis.Password},
	}
	resolved := make(map[string]string, len(fields))
	for _, target := range fields {
		value, err := resolveSecret(ctx, *target.field, resolver)
		if err != nil {
			return nil, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}
	return resolved, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		invalid = append(invalid, "Firebase.ProjectID")
	}
	switch cfg.Database.Driver {
	case "postgres", "mysql":
	default:
		invalid = append(invalid, "Database.Driver")
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		invalid = append(invalid, "Database.DSN")
	}
	switch cfg.Shipping.Policy {
	case "percentage", "free":
	default:
		invalid = append(invalid, "Shipping.Policy")
	}
	if cfg.Shipping.Rate.IsNegative() || cfg.Shipping.Minimum.IsNegative() || cfg.Shipping.FreeThreshold.IsNegative() {
		invalid = append(invalid, "Shipping")
	}
	if cfg.Sweep.Interval <= 0 {
		invalid = append(invalid, "Sweep.Interval")
	}
	if cfg.Sweep.StaleAfter <= 0 {
		invalid = append(invalid, "Sweep.StaleAfter")
	}
	if cfg.Sweep.BatchSize <= 0 {
		invalid = append(invalid, "Sweep.BatchSize")
	}
	switch cfg.Notifications.Backend {
	case "log", "pubsub":
	case "kafka":
		if len(cfg.Notifications.KafkaBrokers) == 0 {
			invalid = append(invalid, "Notifications.KafkaBrokers")
		}
	default:
		invalid = append(invalid, "Notifications.Backend")
	}
	switch cfg.Idempotency.Backend {
	case "memory", "firestore":
	case "redis":
		if cfg.Redis.Addr == "" {
			invalid = append(invalid, "Redis.Addr")
		}
	default:
		invalid = append(invalid, "Idempotency.Backend")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		invalid = append(invalid, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		invalid = append(invalid, "Idempotency.CleanupBatchSize")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if strings.TrimSpace(resolved[trimmed]) == "" {
			missing = append(missing, trimmed)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}
