package perf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"golang.org/x/sync/errgroup"

	"github.com/inventra/inventra/internal/fulfillment"
	jobmetrics "github.com/inventra/inventra/internal/jobs"
	"github.com/inventra/inventra/internal/observability"
	"github.com/inventra/inventra/jobs"
)

// serialStock runs each batch as one transaction under a store-wide lock. Writes are
// staged and only published when the batch succeeds.
type serialStock struct {
	mu    sync.Mutex
	parts map[string]fulfillment.StockItem
}

type stagedTx struct {
	t      *testing.T
	parts  map[string]fulfillment.StockItem
	staged map[string]int64
}

func (tx *stagedTx) LockPart(_ context.Context, id string) (fulfillment.StockItem, error) {
	item, ok := tx.parts[id]
	if !ok {
		return fulfillment.StockItem{}, fmt.Errorf("%w: part %s", fulfillment.ErrNotFound, id)
	}
	return item, nil
}

func (tx *stagedTx) LockProduct(_ context.Context, id string) (fulfillment.StockItem, error) {
	return fulfillment.StockItem{}, fmt.Errorf("%w: product %s", fulfillment.ErrNotFound, id)
}

func (tx *stagedTx) SetPartQuantity(_ context.Context, id string, qty int64) error {
	if qty < 0 {
		tx.t.Errorf("part %s written negative: %d", id, qty)
	}
	tx.staged[id] = qty
	return nil
}

func (tx *stagedTx) SetProductQuantity(context.Context, string, int64) error {
	return errors.New("no products in this store")
}

func (s *serialStock) inTx(t *testing.T, fn func(*stagedTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &stagedTx{t: t, parts: s.parts, staged: map[string]int64{}}
	if err := fn(tx); err != nil {
		return err
	}
	for id, qty := range tx.staged {
		item := s.parts[id]
		item.Quantity = qty
		s.parts[id] = item
	}
	return nil
}

func (s *serialStock) ListLowStock(context.Context) ([]fulfillment.LowStockAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]fulfillment.StockItem, 0, len(s.parts))
	for _, item := range s.parts {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return fulfillment.LowStock(items), nil
}

type digestRecorder struct {
	alerts []fulfillment.LowStockAlert
}

func (d *digestRecorder) NotifyLowStockDigest(_ context.Context, alerts []fulfillment.LowStockAlert) error {
	d.alerts = alerts
	return nil
}

func TestConcurrentOrdersConserveStockAndFeedDigest(t *testing.T) {
	const (
		orders  = 48
		initial = 60
		restock = 5
		sale    = 9
	)
	partIDs := []string{"P-0", "P-1", "P-2"}
	store := &serialStock{parts: map[string]fulfillment.StockItem{}}
	for _, id := range partIDs {
		store.parts[id] = fulfillment.StockItem{Kind: fulfillment.KindPart, ID: id, Name: id, Quantity: initial, ReorderPoint: 20}
	}
	metrics := observability.NewMetrics()

	var mu sync.Mutex
	committed := map[string]int64{}
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(8)
	for i := range orders {
		g.Go(func() error {
			partID := partIDs[i%len(partIDs)]
			dir, orderType, qty := fulfillment.Decrease, "SALE", int64(sale)
			if i%2 == 0 {
				dir, orderType, qty = fulfillment.Increase, "STOCK", restock
			}
			// Split across two lines so aggregation is part of the path under test.
			deltas, err := fulfillment.Aggregate([]fulfillment.OrderLine{
				{PartID: partID, Quantity: qty - 1},
				{PartID: partID, Quantity: 1},
			})
			if err != nil {
				return err
			}
			var adj fulfillment.Adjustment
			err = store.inTx(t, func(tx *stagedTx) error {
				adj, err = fulfillment.ApplyDeltas(ctx, tx, deltas, dir)
				return err
			})
			var short *fulfillment.InsufficientStockError
			switch {
			case errors.As(err, &short):
				metrics.OrderFailed("insufficient_stock")
				return nil
			case err != nil:
				return err
			}
			metrics.OrderCreated(orderType)
			metrics.LowStock(string(fulfillment.KindPart), len(adj.LowStock))
			mu.Lock()
			if dir == fulfillment.Increase {
				committed[partID] += qty
			} else {
				committed[partID] -= qty
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("order batch failed unexpectedly: %v", err)
	}

	for _, id := range partIDs {
		got := store.parts[id].Quantity
		if want := initial + committed[id]; got != want {
			t.Fatalf("part %s: quantity %d, committed deltas imply %d", id, got, want)
		}
		if got < 0 {
			t.Fatalf("part %s went negative: %d", id, got)
		}
	}

	families, err := metrics.Registerer().(prometheus.Gatherer).Gather()
	if err != nil {
		t.Fatalf("gather order metrics: %v", err)
	}
	restocked := metricValue(t, families, "inventra_orders_created_total", map[string]string{"type": "STOCK"})
	if restocked != orders/2 {
		t.Fatalf("every restock must commit, got %v of %d", restocked, orders/2)
	}
	sold := optionalMetric(families, "inventra_orders_created_total", map[string]string{"type": "SALE"})
	rejected := optionalMetric(families, "inventra_order_failures_total", map[string]string{"reason": "insufficient_stock"})
	if sold+rejected != orders/2 {
		t.Fatalf("sales committed %v + rejected %v != %d", sold, rejected, orders/2)
	}

	reg := prometheus.NewRegistry()
	digestMetrics := jobmetrics.NewMetrics(reg)
	recorder := &digestRecorder{}
	job := &jobs.LowStockDigestJob{
		Source:   store,
		Notifier: recorder,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  digestMetrics,
	}
	task, err := jobs.NewScheduledTask(jobs.TaskLowStockDigest, time.Now())
	if err != nil {
		t.Fatalf("build digest task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("digest: %v", err)
	}
	for _, alert := range recorder.alerts {
		if alert.Quantity > alert.ReorderPoint || alert.Quantity != store.parts[alert.ID].Quantity {
			t.Fatalf("digest alert %+v does not match final stock %+v", alert, store.parts[alert.ID])
		}
	}
	jobFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather job metrics: %v", err)
	}
	if len(recorder.alerts) > 0 {
		processed := metricValue(t, jobFamilies, "inventra_job_items_processed_total", map[string]string{"job": jobs.TaskLowStockDigest})
		if int(processed) != len(recorder.alerts) {
			t.Fatalf("digest processed %v, alerted %d", processed, len(recorder.alerts))
		}
	}
	if runs := metricValue(t, jobFamilies, "inventra_jobs_total", map[string]string{"job": jobs.TaskLowStockDigest, "status": "success"}); runs != 1 {
		t.Fatalf("digest runs = %v", runs)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	v, ok := lookupMetric(families, name, labels)
	if !ok {
		t.Fatalf("metric %s with labels %v not found", name, labels)
	}
	return v
}

func optionalMetric(families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	v, _ := lookupMetric(families, name, labels)
	return v
}

func lookupMetric(families []*dto.MetricFamily, name string, labels map[string]string) (float64, bool) {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchesLabels(metric, labels) {
				return metric.GetCounter().GetValue(), true
			}
		}
	}
	return 0, false
}

func matchesLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		want, ok := labels[lp.GetName()]
		if !ok {
			continue
		}
		if lp.GetValue() != want {
			return false
		}
		matched++
	}
	return matched == len(labels)
}
