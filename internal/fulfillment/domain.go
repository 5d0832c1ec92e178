// Package fulfillment holds the order fulfillment engine: BOM diffing, cost
// evaluation, line aggregation and transactional stock adjustment. Everything here is
// free of HTTP and notification concerns; persistence is reached only through the
// StockStore port.
package fulfillment

import (
	"fmt"

	"github.com/inventra/inventra/internal/platform/httpx"
)

// ChangeType tells whether a BOM delta adds or removes parts relative to the canonical BOM.
type ChangeType string

const (
	// ChangeAddition means the submitted BOM uses more of a part.
	ChangeAddition ChangeType = "addition"
	// ChangeRemoval means the submitted BOM uses less of a part.
	ChangeRemoval ChangeType = "removal"
)

// Direction selects whether deltas are added to or subtracted from stock.
type Direction string

const (
	Increase Direction = "increase"
	Decrease Direction = "decrease"
)

// EntityKind distinguishes inventory parts from products.
type EntityKind string

const (
	KindPart    EntityKind = "part"
	KindProduct EntityKind = "product"
)

// MaxQuantity bounds every single quantity the engine accepts. Sums of bounded
// quantities are still checked for overflow.
const MaxQuantity int64 = 1_000_000_000

// BOMLine is one component of a canonical or submitted bill of materials.
type BOMLine struct {
	PartID   string `json:"partId" validate:"required"`
	Quantity int64  `json:"quantity" validate:"gt=0,lte=1000000000"`
}

// BOMDelta is the difference for one part between a canonical and a submitted BOM.
// Quantity is always positive; ChangeType carries the sign.
type BOMDelta struct {
	PartID     string     `json:"partId"`
	Quantity   int64      `json:"quantity"`
	ChangeType ChangeType `json:"changeType"`
}

// OrderLine is either a raw part line or a product line. A nil BOM means the product
// is sold with its canonical BOM; a non-nil, possibly empty, BOM overrides it.
type OrderLine struct {
	PartID    string    `json:"partId,omitempty"`
	ProductID string    `json:"productId,omitempty"`
	Quantity  int64     `json:"quantity"`
	BOM       []BOMLine `json:"bom"`
}

// HasOverride reports whether the line carries a submitted BOM.
func (l OrderLine) HasOverride() bool {
	return l.BOM != nil
}

// Deltas are aggregated stock changes keyed by part and product id.
type Deltas struct {
	Parts    map[string]int64
	Products map[string]int64
}

// NewDeltas returns empty, writable deltas.
func NewDeltas() Deltas {
	return Deltas{Parts: map[string]int64{}, Products: map[string]int64{}}
}

// Empty reports whether no entity would be touched.
func (d Deltas) Empty() bool {
	return len(d.Parts) == 0 && len(d.Products) == 0
}

// StockItem is the stock-relevant projection of a part or product row.
type StockItem struct {
	Kind         EntityKind `json:"kind"`
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Quantity     int64      `json:"quantity"`
	ReorderPoint int64      `json:"reorderPoint"`
}

// LowStockAlert reports an entity whose final quantity is at or below its reorder point.
type LowStockAlert struct {
	Kind         EntityKind `json:"kind"`
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Quantity     int64      `json:"quantity"`
	ReorderPoint int64      `json:"reorderPoint"`
}

// Alert reports item as a low-stock alert regardless of its threshold.
func (item StockItem) Alert() LowStockAlert {
	return LowStockAlert{Kind: item.Kind, ID: item.ID, Name: item.Name, Quantity: item.Quantity, ReorderPoint: item.ReorderPoint}
}

// Adjustment is the outcome of applying deltas.
type Adjustment struct {
	Parts    []StockItem     `json:"updatedParts"`
	Products []StockItem     `json:"updatedProducts"`
	LowStock []LowStockAlert `json:"lowStock,omitempty"`
}

// Error aliases so callers can match engine failures without importing httpx.
var (
	ErrValidation        = httpx.ErrValidation
	ErrNotFound          = httpx.ErrNotFound
	ErrInsufficientStock = httpx.ErrInsufficientStock
)

// InsufficientStockError names the entity a decrease would drive negative.
type InsufficientStockError struct {
	Kind      EntityKind
	ID        string
	Name      string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient quantity for %s %s (%s). Available: %d, Requested: %d",
		e.Kind, e.ID, e.Name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
