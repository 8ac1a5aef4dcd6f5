package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/di"
	"github.com/tradeshop/api/internal/payments"
	"github.com/tradeshop/api/internal/platform/auth"
	"github.com/tradeshop/api/internal/platform/config"
	pfirestore "github.com/tradeshop/api/internal/platform/firestore"
	"github.com/tradeshop/api/internal/platform/idempotency"
	"github.com/tradeshop/api/internal/platform/jobs"
	"github.com/tradeshop/api/internal/platform/observability"
	"github.com/tradeshop/api/internal/platform/secrets"
	"github.com/tradeshop/api/internal/platform/storage"
	"github.com/tradeshop/api/internal/repositories"
	"github.com/tradeshop/api/internal/repositories/sqlstore"
	"github.com/tradeshop/api/internal/services"
)

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newPaymentDispatcher(cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (*payments.Dispatcher, *payments.StripeGateway, error) {
	log := payments.Logger(di.ServiceLogger(logger))
	gateways := make(map[domain.PaymentGateway]payments.Gateway, 3)

	var stripeGateway *payments.StripeGateway
	if strings.TrimSpace(cfg.Payments.Stripe.APIKey) != "" {
		gw, err := payments.NewStripeGateway(payments.StripeConfig{
			APIKey:        cfg.Payments.Stripe.APIKey,
			WebhookSecret: cfg.Payments.Stripe.WebhookSecret,
			Currency:      cfg.Payments.Currency,
			SuccessURL:    cfg.Payments.SuccessURL,
			CancelURL:     cfg.Payments.CancelURL,
			Logger:        log,
		})
		if err != nil {
			return nil, nil, err
		}
		stripeGateway = gw
		gateways[domain.GatewayStripe] = gw
	} else {
		logger.Warn("payments: stripe disabled; API key not configured")
	}

	if strings.TrimSpace(cfg.Payments.PayPal.ClientID) != "" {
		gw, err := payments.NewPayPalGateway(payments.PayPalConfig{
			ClientID:     cfg.Payments.PayPal.ClientID,
			ClientSecret: cfg.Payments.PayPal.ClientSecret,
			BaseURL:      cfg.Payments.PayPal.BaseURL,
			Currency:     cfg.Payments.Currency,
			SuccessURL:   cfg.Payments.SuccessURL,
			CancelURL:    cfg.Payments.CancelURL,
			Timeout:      cfg.Payments.Timeout,
			Logger:       log,
		})
		if err != nil {
			return nil, nil, err
		}
		gateways[domain.GatewayPayPal] = gw
	}

	if strings.TrimSpace(cfg.Payments.AuthorizeNet.LoginID) != "" {
		gw, err := payments.NewAuthorizeNetGateway(payments.AuthorizeNetConfig{
			LoginID:        cfg.Payments.AuthorizeNet.LoginID,
			TransactionKey: cfg.Payments.AuthorizeNet.TransactionKey,
			Endpoint:       cfg.Payments.AuthorizeNet.Endpoint,
			Timeout:        cfg.Payments.Timeout,
			Logger:         log,
		})
		if err != nil {
			return nil, nil, err
		}
		gateways[domain.GatewayAuthorizeNet] = gw
	}

	opts := []payments.DispatcherOption{payments.WithLogger(log)}
	if metrics != nil {
		opts = append(opts, payments.WithMetrics(metrics))
	}
	dispatcher, err := payments.NewDispatcher(gateways, opts...)
	if err != nil {
		return nil, nil, err
	}
	return dispatcher, stripeGateway, nil
}

func newNotificationPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (services.NotificationPublisher, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(cfg.Notifications.Backend)) {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, traceProjectID(cfg))
		if err != nil {
			return nil, noop, fmt.Errorf("pubsub client: %w", err)
		}
		publisher, err := jobs.NewPubSubNotificationPublisher(client.Topic(cfg.Notifications.Topic))
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return publisher, func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("pubsub publisher close error", zap.Error(err))
			}
			_ = client.Close()
		}, nil
	case "kafka":
		writer, err := jobs.NewKafkaWriter(cfg.Notifications.KafkaBrokers, cfg.Notifications.Topic)
		if err != nil {
			return nil, noop, err
		}
		publisher, err := jobs.NewKafkaNotificationPublisher(writer)
		if err != nil {
			_ = writer.Close()
			return nil, noop, err
		}
		return publisher, func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("kafka publisher close error", zap.Error(err))
			}
		}, nil
	default:
		publisher, err := jobs.NewLogNotificationPublisher(logger.Named("notifications"))
		if err != nil {
			return nil, noop, err
		}
		return publisher, noop, nil
	}
}

type mediaStorage struct {
	uploads *storage.Client
	objects *storage.Objects
}

func newMediaStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (mediaStorage, func(), error) {
	var media mediaStorage
	noop := func() {}
	if strings.TrimSpace(cfg.Storage.MediaBucket) == "" {
		logger.Warn("storage: media bucket not configured; image uploads disabled")
		return media, noop, nil
	}

	if creds := strings.TrimSpace(cfg.Storage.SignerCredentials); creds != "" {
		signer, err := storage.NewSignerFromCredentials(creds)
		if err != nil {
			return media, noop, fmt.Errorf("storage signer: %w", err)
		}
		uploads, err := storage.NewClient(signer)
		if err != nil {
			return media, noop, err
		}
		media.uploads = uploads
	}

	gcsClient, err := gcs.NewClient(ctx)
	if err != nil {
		return media, noop, fmt.Errorf("storage client: %w", err)
	}
	objects, err := storage.NewObjects(gcsClient)
	if err != nil {
		_ = gcsClient.Close()
		return media, noop, err
	}
	media.objects = objects
	return media, func() {
		if err := gcsClient.Close(); err != nil {
			logger.Warn("storage client close error", zap.Error(err))
		}
	}, nil
}

func newIdempotencyStore(ctx context.Context, cfg config.Config) (idempotency.Store, func(), []repositories.DependencyCheck, error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(cfg.Idempotency.Backend)) {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		check := repositories.DependencyCheck{
			Name:     "redis",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		}
		return idempotency.NewRedisStore(client), func() { _ = client.Close() }, []repositories.DependencyCheck{check}, nil
	case "firestore":
		client, err := pfirestore.NewClient(ctx, cfg.Firestore)
		if err != nil {
			return nil, noop, nil, fmt.Errorf("firestore client: %w", err)
		}
		check := repositories.DependencyCheck{
			Name:     "firestore",
			Timeout:  1500 * time.Millisecond,
			Optional: true,
			Check: func(ctx context.Context) error {
				iter := client.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		}
		return idempotency.NewFirestoreStore(client), func() { _ = client.Close() }, []repositories.DependencyCheck{check}, nil
	default:
		return idempotency.NewMemoryStore(), noop, nil, nil
	}
}

func newHealthRepository(registry *sqlstore.Registry, fetcher *secrets.Fetcher, extra []repositories.DependencyCheck) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, len(extra)+2)
	if registry != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "database",
			Timeout: 1500 * time.Millisecond,
			Check:   registry.Ping,
		})
	}
	checks = append(checks, extra...)
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:     "secretManager",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func provisionUser(users services.UserService) auth.ProvisionFunc {
	return func(ctx context.Context, identity *auth.Identity) (domain.User, error) {
		return users.EnsureUser(ctx, services.EnsureUserCommand{
			UserID: identity.UID,
			Email:  identity.Email,
			Name:   identity.Name,
			Phone:  identity.Phone,
		})
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(logger))
	validator := auth.NewOIDCValidator(cache,
		auth.WithOIDCLogger(logger),
		auth.WithAllowedServiceAccounts(cfg.Security.OIDC.AllowedInvokers...),
	)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
		secrets.WithMeter(otel.Meter("github.com/tradeshop/api/secrets")),
	}
	if projects := parseKeyValueList(lookup("API_SECRET_PROJECT_IDS"), true); len(projects) > 0 {
		opts = append(opts, secrets.WithProjectMap(projects))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := secretVersionPins(lookup("API_SECRET_VERSION_PINS")); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secret-backed settings that must resolve for the enabled gateways.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"Database.DSN"}
	has := func(key string) bool {
		return env != nil && strings.TrimSpace(env[key]) != ""
	}
	if has("API_PAYMENTS_STRIPE_API_KEY") {
		required = append(required, "Payments.Stripe.APIKey", "Payments.Stripe.WebhookSecret")
	}
	if has("API_PAYMENTS_PAYPAL_CLIENT_ID") {
		required = append(required, "Payments.PayPal.ClientSecret")
	}
	if has("API_PAYMENTS_AUTHORIZENET_LOGIN_ID") {
		required = append(required, "Payments.AuthorizeNet.TransactionKey")
	}
	if has("API_STORAGE_MEDIA_BUCKET") && has("API_STORAGE_SIGNER_CREDENTIALS") {
		required = append(required, "Storage.SignerCredentials")
	}
	return uniqueStrings(required)
}

func parseKeyValueList(raw string, lowerKeys bool) map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if lowerKeys {
			key = strings.ToLower(key)
		}
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

// secretVersionPins normalises "[env:]name=version" pairs into secret:// references.
func secretVersionPins(raw string) map[string]string {
	pins := make(map[string]string)
	for ref, version := range parseKeyValueList(raw, false) {
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		switch {
		case strings.HasPrefix(ref, "sm://"):
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		case !strings.HasPrefix(ref, "secret://"):
			ref = "secret://" + ref
		}
		pins[prefix+ref] = version
	}
	return pins
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
