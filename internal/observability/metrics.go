package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the HTTP and fulfillment Prometheus metrics of the API process.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	ordersTotal       *prometheus.CounterVec
	orderFailures     *prometheus.CounterVec
	lowStockAlerts    *prometheus.CounterVec
	notificationsSent *prometheus.CounterVec
}

// NewMetrics initialises the registry and collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventra_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventra_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventra_orders_created_total",
		Help: "Orders committed, by order type.",
	}, []string{"type"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventra_order_failures_total",
		Help: "Order creations rejected, by reason.",
	}, []string{"reason"})
	lowStock := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventra_low_stock_alerts_total",
		Help: "Low-stock alerts raised by stock adjustments, by entity kind.",
	}, []string{"kind"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventra_notifications_total",
		Help: "Notifications dispatched, by type and outcome.",
	}, []string{"type", "outcome"})
	registry.MustRegister(requests, duration, orders, failures, lowStock, notifications)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		ordersTotal:       orders,
		orderFailures:     failures,
		lowStockAlerts:    lowStock,
		notificationsSent: notifications,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// OrderCreated counts a committed order.
func (m *Metrics) OrderCreated(orderType string) {
	if m == nil {
		return
	}
	m.ordersTotal.WithLabelValues(orderType).Inc()
}

// OrderFailed counts a rejected order.
func (m *Metrics) OrderFailed(reason string) {
	if m == nil {
		return
	}
	m.orderFailures.WithLabelValues(reason).Inc()
}

// LowStock counts raised low-stock alerts.
func (m *Metrics) LowStock(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.lowStockAlerts.WithLabelValues(kind).Add(float64(n))
}

// NotificationSent counts a dispatched notification.
func (m *Metrics) NotificationSent(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.notificationsSent.WithLabelValues(kind, outcome).Inc()
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming responses working behind the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
