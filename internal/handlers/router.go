package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tradeshop/api/internal/platform/httpx"
)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 60 * time.Second
)

// groupOrder lists every route group under /api/v1 in mount order.
var groupOrder = []string{"/products", "/categories", "/me", "/orders", "/coupons", "/wallet", "/admin", "/webhooks", "/internal"}

// RouteRegistrar registers a group's routes.
type RouteRegistrar func(r chi.Router)

type routeGroup struct {
	routes      RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	metrics     http.Handler
	groups      map[string]*routeGroup
}

func (c *routerConfig) group(path string) *routeGroup {
	g, ok := c.groups[path]
	if !ok {
		g = &routeGroup{}
		c.groups[path] = g
	}
	return g
}

// Option configures NewRouter.
type Option func(*routerConfig)

// NewRouter builds the HTTP surface: health endpoints and /metrics at the root, the storefront, admin,
// webhook and internal groups under /api/v1. Groups without routes answer 501.
func NewRouter(opts ...Option) chi.Router {
	cfg := &routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(requestTimeout),
		},
		groups: make(map[string]*routeGroup, len(groupOrder)),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", req.Method+" not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	r.Route(apiPrefix, func(api chi.Router) {
		for _, path := range groupOrder {
			g := cfg.group(path)
			api.Route(path, func(sub chi.Router) {
				for _, mw := range g.middlewares {
					if mw != nil {
						sub.Use(mw)
					}
				}
				if g.routes == nil {
					notImplemented(sub, path)
					return
				}
				g.routes(sub)
			})
		}
	})
	return r
}

func withRoutes(path string, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.group(path).routes = reg }
}

func withGroupMiddlewares(path string, mw []func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		g := cfg.group(path)
		g.middlewares = append(g.middlewares, mw...)
	}
}

// WithMiddlewares appends global middleware after request ID, real IP and timeout.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

// WithHealthHandlers replaces the /healthz and /readyz handlers.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithMetricsHandler serves h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) { cfg.metrics = h }
}

func WithProductRoutes(reg RouteRegistrar) Option  { return withRoutes("/products", reg) }
func WithCategoryRoutes(reg RouteRegistrar) Option { return withRoutes("/categories", reg) }
func WithMeRoutes(reg RouteRegistrar) Option       { return withRoutes("/me", reg) }
func WithOrderRoutes(reg RouteRegistrar) Option    { return withRoutes("/orders", reg) }
func WithCouponRoutes(reg RouteRegistrar) Option   { return withRoutes("/coupons", reg) }
func WithWalletRoutes(reg RouteRegistrar) Option   { return withRoutes("/wallet", reg) }
func WithAdminRoutes(reg RouteRegistrar) Option    { return withRoutes("/admin", reg) }
func WithWebhookRoutes(reg RouteRegistrar) Option  { return withRoutes("/webhooks", reg) }
func WithInternalRoutes(reg RouteRegistrar) Option { return withRoutes("/internal", reg) }

// WithAdminMiddlewares guards /admin, typically with authentication and the admin role check.
func WithAdminMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return withGroupMiddlewares("/admin", mw)
}

// WithWebhookMiddlewares wraps /webhooks.
func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return withGroupMiddlewares("/webhooks", mw)
}

// WithInternalMiddlewares guards /internal, typically with OIDC service authentication.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return withGroupMiddlewares("/internal", mw)
}

func notImplemented(r chi.Router, group string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", group[1:]+" routes not implemented", http.StatusNotImplemented))
	}
	r.HandleFunc("/", handler)
	r.HandleFunc("/*", handler)
}
