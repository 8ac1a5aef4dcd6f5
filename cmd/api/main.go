package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tradeshop/api/internal/di"
	"github.com/tradeshop/api/internal/handlers"
	"github.com/tradeshop/api/internal/platform/auth"
	"github.com/tradeshop/api/internal/platform/config"
	"github.com/tradeshop/api/internal/platform/database"
	"github.com/tradeshop/api/internal/platform/idempotency"
	"github.com/tradeshop/api/internal/platform/observability"
	"github.com/tradeshop/api/internal/repositories/sqlstore"
)

const (
	couponValidateLimit  = 20
	couponValidateWindow = time.Minute
	shutdownTimeout      = 10 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	db, err := database.Open(cfg.Database, logger.Named("database"))
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	registry, err := sqlstore.NewRegistry(db)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := registry.Migrate(ctx); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	dispatcher, stripeGateway, err := newPaymentDispatcher(cfg, logger.Named("payments"), metrics)
	if err != nil {
		logger.Fatal("failed to initialise payment gateways", zap.Error(err))
	}

	publisher, closePublisher, err := newNotificationPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise notification publisher", zap.Error(err))
	}
	defer closePublisher()

	media, closeMedia, err := newMediaStorage(ctx, cfg, logger.Named("storage"))
	if err != nil {
		logger.Fatal("failed to initialise media storage", zap.Error(err))
	}
	defer closeMedia()

	idemStore, closeIdem, idemCheck, err := newIdempotencyStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	defer closeIdem()

	healthRepo, err := newHealthRepository(registry, fetcher, idemCheck)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}

	infra := di.Infrastructure{
		Payments:   dispatcher,
		Publisher:  publisher,
		Identities: firebaseVerifier,
		Health:     healthRepo,
		Build:      buildInfo,
		Metrics:    metrics,
		Logger:     logger,
		Clock:      time.Now,
	}
	if stripeGateway != nil {
		infra.Stripe = stripeGateway
	}
	if media.uploads != nil {
		infra.Uploads = media.uploads
	}
	if media.objects != nil {
		infra.Objects = media.objects
	}

	container, err := di.NewContainer(ctx, cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()
	svc := container.Services

	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithProvisioner(provisionUser(svc.Users)))

	idemMiddleware := idempotency.Middleware(
		idemStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
		idempotency.WithOptionalKey(),
	)

	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, handlers.WithOrderIdempotency(idemMiddleware))
	couponHandlers := handlers.NewCouponHandlers(authenticator, svc.Coupons,
		handlers.WithCouponValidateRateLimit(couponValidateLimit, couponValidateWindow))
	walletHandlers := handlers.NewWalletHandlers(authenticator, svc.Wallets,
		handlers.WithWalletPayments(svc.Payments),
		handlers.WithWalletIdempotency(idemMiddleware),
	)
	catalogHandlers := handlers.NewCatalogHandlers(svc.Catalog)
	userHandlers := handlers.NewUserHandlers(authenticator, svc.Users, svc.Wallets)
	webhookHandlers := handlers.NewWebhookHandlers(svc.Payments)
	internalHandlers := handlers.NewInternalHandlers(svc.Orders)
	analyticsHandlers := handlers.NewAnalyticsHandlers(svc.Analytics)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}
	if metrics != nil {
		middlewares = append(middlewares, metrics.HTTPMiddleware)
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(catalogHandlers.ProductRoutes),
		handlers.WithCategoryRoutes(catalogHandlers.CategoryRoutes),
		handlers.WithMeRoutes(userHandlers.MeRoutes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithCouponRoutes(couponHandlers.Routes),
		handlers.WithWalletRoutes(walletHandlers.Routes),
		handlers.WithAdminMiddlewares(authenticator.RequireFirebaseAuth(), auth.RequireAdmin()),
		handlers.WithAdminRoutes(func(r chi.Router) {
			catalogHandlers.AdminRoutes(r)
			userHandlers.AdminRoutes(r)
			analyticsHandlers.AdminRoutes(r)
		}),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidc := buildOIDCMiddleware(logger.Named("auth"), cfg); oidc != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidc))
	}
	if metrics != nil {
		opts = append(opts, handlers.WithMetricsHandler(metrics.Handler()))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(opts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)
	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	group.Go(func() error {
		serverLogger.Info("tradeshop api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.Sweep.Enabled {
		sweeper := orderSweeper{
			orders:   svc.Orders,
			interval: cfg.Sweep.Interval,
			logger:   logger.Named("sweep"),
		}
		group.Go(func() error { return sweeper.Run(groupCtx) })
	}
	if cfg.Idempotency.CleanupInterval > 0 {
		cleaner := idempotency.Cleaner{
			Store:    idemStore,
			Interval: cfg.Idempotency.CleanupInterval,
			Batch:    cfg.Idempotency.CleanupBatchSize,
			Logger:   logger.Named("idempotency"),
		}
		group.Go(func() error { return cleaner.Run(groupCtx) })
	}

	if err := group.Wait(); err != nil {
		logger.Error("api stopped with error", zap.Error(err))
	}
}
