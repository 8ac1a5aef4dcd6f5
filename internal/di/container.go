package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/config"
	"github.com/tradeshop/api/internal/platform/observability"
	"github.com/tradeshop/api/internal/platform/requestctx"
	"github.com/tradeshop/api/internal/repositories"
	"github.com/tradeshop/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Users     services.UserService
	Wallets   services.WalletService
	Coupons   services.CouponService
	Orders    services.OrderService
	Payments  services.PaymentService
	Catalog   services.CatalogService
	Analytics services.AnalyticsService
	Notifier  services.Notifier
	System    services.SystemService
}

// Infrastructure carries the adapters built from external clients. Nil fields disable the
// features that depend on them.
type Infrastructure struct {
	Payments   services.PaymentDispatcher
	Stripe     services.StripeWebhookParser
	Publisher  services.NotificationPublisher
	Uploads    services.ImageUploadSigner
	Objects    services.ObjectChecker
	Identities services.IdentityDeleter
	Health     repositories.HealthRepository
	Build      services.BuildInfo
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies from the repository registry and adapters.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Payments == nil {
		return nil, errors.New("payment dispatcher is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}

	shipping, err := domain.NewShippingPolicy(domain.ShippingRule{
		Policy:        cfg.Shipping.Policy,
		Rate:          cfg.Shipping.Rate,
		Minimum:       cfg.Shipping.Minimum,
		FreeThreshold: cfg.Shipping.FreeThreshold,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping policy: %w", err)
	}

	if infra.Publisher != nil {
		notifier, err := services.NewNotifier(services.NotifierDeps{
			Publisher:   infra.Publisher,
			AdminEmails: reg.AdminEmails(),
			Currency:    cfg.Payments.Currency,
			Clock:       clock,
			Logger:      ServiceLogger(logger.Named("notifications")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notifier: %w", err)
		}
		svc.Notifier = notifier
	}

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:       reg.Users(),
		Wallets:     reg.Wallets(),
		AdminEmails: reg.AdminEmails(),
		UnitOfWork:  reg,
		Identities:  infra.Identities,
		Clock:       clock,
		Logger:      ServiceLogger(logger.Named("users")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	couponSvc, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons:    reg.Coupons(),
		Usage:      reg.CouponUsage(),
		Users:      reg.Users(),
		UnitOfWork: reg,
		Clock:      clock,
		Metrics:    infra.Metrics,
		Logger:     ServiceLogger(logger.Named("coupons")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coupon service: %w", err)
	}
	svc.Coupons = couponSvc

	walletSvc, err := services.NewWalletService(services.WalletServiceDeps{
		Users:        reg.Users(),
		Wallets:      reg.Wallets(),
		Transactions: reg.Transactions(),
		Cards:        reg.Cards(),
		Payments:     infra.Payments,
		Notifier:     svc.Notifier,
		UnitOfWork:   reg,
		Clock:        clock,
		Metrics:      infra.Metrics,
		Logger:       ServiceLogger(logger.Named("wallet")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build wallet service: %w", err)
	}
	svc.Wallets = walletSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Users:        reg.Users(),
		Products:     reg.Products(),
		Orders:       reg.Orders(),
		Wallets:      reg.Wallets(),
		Transactions: reg.Transactions(),
		Cards:        reg.Cards(),
		Coupons:      couponSvc,
		Payments:     infra.Payments,
		Notifier:     svc.Notifier,
		Shipping:     shipping,
		UnitOfWork:   reg,
		Clock:        clock,
		Metrics:      infra.Metrics,
		Logger:       ServiceLogger(logger.Named("orders")),
		Currency:     cfg.Payments.Currency,
		StaleAfter:   cfg.Sweep.StaleAfter,
		SweepBatch:   cfg.Sweep.BatchSize,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Payments: infra.Payments,
		Stripe:   infra.Stripe,
		Orders:   orderSvc,
		Wallets:  walletSvc,
		Metrics:  infra.Metrics,
		Logger:   ServiceLogger(logger.Named("payments")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:   reg.Products(),
		Categories: reg.Categories(),
		Uploads:    infra.Uploads,
		Objects:    infra.Objects,
		Bucket:     cfg.Storage.MediaBucket,
		UnitOfWork: reg,
		Clock:      clock,
		Logger:     ServiceLogger(logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	analyticsSvc, err := services.NewAnalyticsService(services.AnalyticsServiceDeps{
		Dashboard: reg.Dashboard(),
		Clock:     clock,
		Logger:    ServiceLogger(logger.Named("analytics")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build analytics service: %w", err)
	}
	svc.Analytics = analyticsSvc

	if infra.Health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: infra.Health,
			Clock:            clock,
			Build:            infra.Build,
			Logger:           ServiceLogger(logger.Named("system")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// ServiceLogger adapts a zap logger to the structured event logger used by services.
func ServiceLogger(logger *zap.Logger) services.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+2)
		zFields = append(zFields, zap.String("event", event))
		if traceID := requestctx.TraceID(ctx); traceID != "" {
			zFields = append(zFields, zap.String("traceId", traceID))
		}
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info(event, zFields...)
	}
}
