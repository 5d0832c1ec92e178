package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/inventra/inventra/internal/platform/cache"
	"github.com/inventra/inventra/internal/rbac"
)

type stubSource struct {
	loads atomic.Int32
	fail  error
}

func (s *stubSource) Sales(context.Context) (SalesSummary, error) {
	s.loads.Add(1)
	return SalesSummary{TotalAmount: decimal.RequireFromString("1250.50"), Orders: 4}, s.fail
}

func (s *stubSource) Inventory(context.Context) (InventorySummary, error) {
	return InventorySummary{TotalQuantity: 900, Parts: 12}, nil
}

func (s *stubSource) FewestParts(_ context.Context, limit int) ([]PartStock, error) {
	out := []PartStock{{PartID: "p9", Name: "Spring", Quantity: 1}, {PartID: "p2", Name: "Nut", Quantity: 3}, {PartID: "p4", Name: "Pin", Quantity: 7}}
	return out[:limit], nil
}

func (s *stubSource) TopProducts(_ context.Context, limit int) ([]ProductSales, error) {
	if limit != topProductsLimit {
		return nil, errors.New("unexpected limit")
	}
	return []ProductSales{{ProductID: "W-1", Name: "Widget", UnitsSold: 40}}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMetricsAssemblesAllSections(t *testing.T) {
	svc := NewService(&stubSource{}, nil, discardLogger())
	m, err := svc.Metrics(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1250.5", m.Sales.TotalAmount.String())
	require.Equal(t, int64(900), m.Inventory.TotalQuantity)
	require.Len(t, m.FewestParts, fewestPartsLimit)
	require.Equal(t, "W-1", m.TopProducts[0].ProductID)
}

func TestMetricsPropagatesSourceErrors(t *testing.T) {
	svc := NewService(&stubSource{fail: errors.New("db down")}, nil, discardLogger())
	_, err := svc.Metrics(context.Background())
	require.Error(t, err)
}

func TestWarmRefreshesCachedPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	src := &stubSource{}
	svc := NewService(src, cache.NewVersioned(client, "dashboard", time.Minute), discardLogger())

	_, err := svc.Metrics(context.Background())
	require.NoError(t, err)
	_, err = svc.Metrics(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), src.loads.Load())

	require.NoError(t, svc.Warm(context.Background()))
	require.Equal(t, int32(2), src.loads.Load())
	_, err = svc.Metrics(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), src.loads.Load())
}

func TestHandlerRequiresDashboardCapability(t *testing.T) {
	svc := NewService(&stubSource{}, nil, discardLogger())
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := rbac.Role(r.Header.Get("X-Role"))
			next.ServeHTTP(w, r.WithContext(rbac.WithPrincipal(r.Context(), rbac.Principal{UserID: "u-1", Role: role})))
		})
	})
	NewHandler(discardLogger(), svc, rbac.Middleware{}).MountRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Role", "STORE")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Role", "OWNER")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"topFewestPartsData"`)
}
