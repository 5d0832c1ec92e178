package fulfillment

import (
	"context"
	"fmt"
	"sort"
)

// StockStore reads and writes quantities inside the caller's transaction. Lock methods
// must hold a row lock until the transaction ends and return an error wrapping
// ErrNotFound for unknown ids.
type StockStore interface {
	LockPart(ctx context.Context, id string) (StockItem, error)
	LockProduct(ctx context.Context, id string) (StockItem, error)
	SetPartQuantity(ctx context.Context, id string, qty int64) error
	SetProductQuantity(ctx context.Context, id string, qty int64) error
}

// ApplyDeltas applies aggregated deltas one entity at a time, parts before products and
// ids in sorted order so concurrent batches lock rows in the same sequence. A decrease
// that would leave any entity negative aborts with *InsufficientStockError before that
// entity is written; the caller's transaction discards earlier writes.
func ApplyDeltas(ctx context.Context, store StockStore, deltas Deltas, dir Direction) (Adjustment, error) {
	if dir != Increase && dir != Decrease {
		return Adjustment{}, fmt.Errorf("%w: unknown direction %q", ErrValidation, dir)
	}
	var adj Adjustment
	for _, id := range sortedKeys(deltas.Parts) {
		item, err := adjust(ctx, KindPart, id, deltas.Parts[id], dir, store.LockPart, store.SetPartQuantity)
		if err != nil {
			return Adjustment{}, err
		}
		adj.Parts = append(adj.Parts, item)
	}
	for _, id := range sortedKeys(deltas.Products) {
		item, err := adjust(ctx, KindProduct, id, deltas.Products[id], dir, store.LockProduct, store.SetProductQuantity)
		if err != nil {
			return Adjustment{}, err
		}
		adj.Products = append(adj.Products, item)
	}
	adj.LowStock = LowStock(append(append([]StockItem{}, adj.Parts...), adj.Products...))
	return adj, nil
}

func adjust(
	ctx context.Context,
	kind EntityKind,
	id string,
	qty int64,
	dir Direction,
	lock func(context.Context, string) (StockItem, error),
	set func(context.Context, string, int64) error,
) (StockItem, error) {
	if qty <= 0 {
		return StockItem{}, fmt.Errorf("%w: %s %s: delta must be positive", ErrValidation, kind, id)
	}
	item, err := lock(ctx, id)
	if err != nil {
		return StockItem{}, err
	}
	next, ok := addQuantity(item.Quantity, qty)
	if dir == Increase && !ok {
		return StockItem{}, fmt.Errorf("%w: %s %s: quantity %d plus %d is too large", ErrValidation, kind, id, item.Quantity, qty)
	}
	if dir == Decrease {
		next = item.Quantity - qty
		if next < 0 {
			return StockItem{}, &InsufficientStockError{
				Kind:      kind,
				ID:        id,
				Name:      item.Name,
				Available: item.Quantity,
				Requested: qty,
			}
		}
	}
	if err := set(ctx, id, next); err != nil {
		return StockItem{}, fmt.Errorf("fulfillment: set %s %s quantity: %w", kind, id, err)
	}
	item.Kind = kind
	item.Quantity = next
	return item, nil
}

// LowStock returns one alert per entity whose quantity is at or below its reorder
// point. When an entity appears more than once the lowest quantity wins.
func LowStock(items []StockItem) []LowStockAlert {
	type key struct {
		kind EntityKind
		id   string
	}
	index := make(map[key]int)
	var alerts []LowStockAlert
	for _, item := range items {
		if item.Quantity > item.ReorderPoint {
			continue
		}
		k := key{item.Kind, item.ID}
		if i, ok := index[k]; ok {
			if item.Quantity < alerts[i].Quantity {
				alerts[i].Quantity = item.Quantity
			}
			continue
		}
		index[k] = len(alerts)
		alerts = append(alerts, LowStockAlert{
			Kind:         item.Kind,
			ID:           item.ID,
			Name:         item.Name,
			Quantity:     item.Quantity,
			ReorderPoint: item.ReorderPoint,
		})
	}
	return alerts
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ReorderCrossed reports whether an edit from before to after should raise a low-stock
// alert: the entity is now at or below its reorder point and either the reorder point
// changed or the quantity changed from above it.
func ReorderCrossed(before, after StockItem) bool {
	if after.Quantity > after.ReorderPoint {
		return false
	}
	if after.ReorderPoint != before.ReorderPoint {
		return true
	}
	return after.Quantity != before.Quantity && before.Quantity > before.ReorderPoint
}
