package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "inventra_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "inventra_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestDomainCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.OrderCreated("SALE")
	metrics.OrderCreated("SALE")
	metrics.OrderFailed("insufficient_stock")
	metrics.LowStock("part", 3)
	metrics.LowStock("part", 0)
	metrics.NotificationSent("LOW_STOCK", nil)
	metrics.NotificationSent("LOW_STOCK", errors.New("smtp down"))

	if got := testutil.ToFloat64(metrics.ordersTotal.WithLabelValues("SALE")); got != 2 {
		t.Fatalf("expected 2 SALE orders, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.lowStockAlerts.WithLabelValues("part")); got != 3 {
		t.Fatalf("expected 3 low stock alerts, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.notificationsSent.WithLabelValues("LOW_STOCK", "error")); got != 1 {
		t.Fatalf("expected one failed notification, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.OrderCreated("STOCK")
	metrics.LowStock("product", 1)
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
