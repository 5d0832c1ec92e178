// Package dashboard serves the owner dashboard aggregates.
package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	fewestPartsLimit = 3
	topProductsLimit = 10
)

// SalesSummary totals sale orders.
type SalesSummary struct {
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Orders      int64           `json:"orders"`
}

// InventorySummary totals on-hand parts.
type InventorySummary struct {
	TotalQuantity int64 `json:"totalQuantity"`
	Parts         int64 `json:"parts"`
}

// PartStock is one of the lowest-stock parts.
type PartStock struct {
	PartID       string `json:"partId"`
	Name         string `json:"partName"`
	Quantity     int64  `json:"quantity"`
	ReorderPoint int64  `json:"reorderPoint"`
}

// ProductSales is a product ranked by units sold.
type ProductSales struct {
	ProductID string `json:"productId"`
	Name      string `json:"productName"`
	UnitsSold int64  `json:"unitsSold"`
}

// Metrics is the dashboard payload.
type Metrics struct {
	Sales       SalesSummary     `json:"salesSummaryData"`
	Inventory   InventorySummary `json:"inventorySummaryData"`
	TopProducts []ProductSales   `json:"topProductsSummaryData"`
	FewestParts []PartStock      `json:"topFewestPartsData"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// Source provides the raw aggregates.
type Source interface {
	Sales(ctx context.Context) (SalesSummary, error)
	Inventory(ctx context.Context) (InventorySummary, error)
	FewestParts(ctx context.Context, limit int) ([]PartStock, error)
	TopProducts(ctx context.Context, limit int) ([]ProductSales, error)
}

// Cache memoises the assembled payload.
type Cache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// Service assembles dashboard metrics.
type Service struct {
	source Source
	cache  Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service. cache may be nil.
func NewService(source Source, cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, logger: logger, now: time.Now}
}

// Metrics returns the dashboard payload, from cache when warm.
func (s *Service) Metrics(ctx context.Context) (Metrics, error) {
	if s.cache == nil {
		return s.load(ctx)
	}
	key, err := s.cache.BuildKey(ctx, "metrics")
	if err != nil {
		s.logger.Warn("dashboard cache key", slog.Any("error", err))
		return s.load(ctx)
	}
	var out Metrics
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.load(ctx)
	})
	return out, err
}

// Warm discards the cached payload and computes a fresh one.
func (s *Service) Warm(ctx context.Context) error {
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			return err
		}
	}
	_, err := s.Metrics(ctx)
	return err
}

func (s *Service) load(ctx context.Context) (Metrics, error) {
	var m Metrics
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		m.Sales, err = s.source.Sales(gctx)
		return err
	})
	g.Go(func() (err error) {
		m.Inventory, err = s.source.Inventory(gctx)
		return err
	})
	g.Go(func() (err error) {
		m.FewestParts, err = s.source.FewestParts(gctx, fewestPartsLimit)
		return err
	})
	g.Go(func() (err error) {
		m.TopProducts, err = s.source.TopProducts(gctx, topProductsLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return Metrics{}, err
	}
	m.GeneratedAt = s.now().UTC()
	return m, nil
}
