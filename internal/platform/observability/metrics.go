package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "tradeshop"

// Metrics holds the business and HTTP collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	orders   *prometheus.CounterVec
	payments *prometheus.CounterVec
	coupons  *prometheus.CounterVec
	wallet   *prometheus.CounterVec
	sweep    *prometheus.CounterVec
	requests *prometheus.HistogramVec
}

// NewMetrics registers collectors on a dedicated registry, including Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "orders_total",
			Help:      "Orders by lifecycle event and resulting status.",
		}, []string{"event", "status"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "payments_total",
			Help:      "Payment dispatch outcomes by gateway.",
		}, []string{"gateway", "outcome"}),
		coupons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "coupon_validations_total",
			Help:      "Coupon validation results.",
		}, []string{"result"}),
		wallet: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "wallet_mutations_total",
			Help:      "Wallet ledger mutations by transaction type.",
		}, []string{"type"}),
		sweep: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "order_sweep_total",
			Help:      "Stale order sweep results.",
		}, []string{"outcome"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.orders, m.payments, m.coupons, m.wallet, m.sweep, m.requests,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) OrderEvent(event, status string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(event, status).Inc()
}

func (m *Metrics) PaymentOutcome(gateway, outcome string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(gateway, outcome).Inc()
}

func (m *Metrics) CouponValidation(result string) {
	if m == nil {
		return
	}
	m.coupons.WithLabelValues(result).Inc()
}

func (m *Metrics) WalletMutation(txType string) {
	if m == nil {
		return
	}
	m.wallet.WithLabelValues(txType).Inc()
}

func (m *Metrics) SweepOutcome(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweep.WithLabelValues(outcome).Add(float64(n))
}

// HTTPMiddleware observes request latency labelled by the chi route pattern.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(clean(r.Method, 10), routePattern(r), strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
