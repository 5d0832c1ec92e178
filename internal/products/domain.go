package products

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/inventra/inventra/internal/fulfillment"
	"github.com/inventra/inventra/internal/shared"
)

// DefaultReorderPoint applies when a product is created without one.
const DefaultReorderPoint int64 = 50

// Product is a finished good assembled from parts.
type Product struct {
	ProductID    string                `json:"productId"`
	Name         string                `json:"productName"`
	BasePrice    decimal.Decimal       `json:"basePrice"`
	Quantity     int64                 `json:"quantity"`
	BOM          []fulfillment.BOMLine `json:"bom"`
	ReorderPoint int64                 `json:"reorderPoint"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// StockItem projects the product for stock threshold checks.
func (p Product) StockItem() fulfillment.StockItem {
	return fulfillment.StockItem{Kind: fulfillment.KindProduct, ID: p.ProductID, Name: p.Name, Quantity: p.Quantity, ReorderPoint: p.ReorderPoint}
}

// Pricing returns the inputs the order pricer needs.
func (p Product) Pricing() fulfillment.ProductPrice {
	return fulfillment.ProductPrice{BasePrice: p.BasePrice, BOM: p.BOM}
}

// Summary is the light listing used by order forms.
type Summary struct {
	ProductID string                `json:"productId"`
	Name      string                `json:"productName"`
	BasePrice decimal.Decimal       `json:"basePrice"`
	Quantity  int64                 `json:"quantity"`
	BOM       []fulfillment.BOMLine `json:"bom"`
}

// CreateInput describes a new product.
type CreateInput struct {
	ProductID    string                `json:"productId" validate:"required,max=64"`
	Name         string                `json:"productName" validate:"required,max=200"`
	BasePrice    decimal.Decimal       `json:"basePrice"`
	Quantity     *int64                `json:"quantity" validate:"required,gte=0"`
	BOM          []fulfillment.BOMLine `json:"bom" validate:"required,dive"`
	ReorderPoint *int64                `json:"reorderPoint" validate:"omitempty,gte=0"`
}

// UpdateInput carries a partial product update. A present bom replaces the whole list.
type UpdateInput struct {
	Name         *string                `json:"productName" validate:"omitempty,min=1,max=200"`
	BasePrice    *decimal.Decimal       `json:"basePrice"`
	Quantity     *int64                 `json:"quantity" validate:"omitempty,gte=0"`
	BOM          *[]fulfillment.BOMLine `json:"bom"`
	ReorderPoint *int64                 `json:"reorderPoint" validate:"omitempty,gte=0"`
}

// DeleteInput lists products to remove.
type DeleteInput struct {
	ProductIDs []string `json:"productIds" validate:"required,min=1,dive,required"`
}

// ListFilter narrows the product listing.
type ListFilter struct {
	shared.PageRequest
}

// BOMChange itemises how a bill of materials was edited.
type BOMChange struct {
	Added    []fulfillment.BOMLine `json:"added,omitempty"`
	Removed  []fulfillment.BOMLine `json:"removed,omitempty"`
	Modified []BOMModification     `json:"modified,omitempty"`
}

// BOMModification is a part whose per-unit quantity changed.
type BOMModification struct {
	PartID      string `json:"partId"`
	OldQuantity int64  `json:"oldQuantity"`
	NewQuantity int64  `json:"newQuantity"`
}

// Empty reports whether nothing changed.
func (c BOMChange) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// CompareBOM lists parts added, removed and re-quantified between two BOMs.
func CompareBOM(before, after []fulfillment.BOMLine) BOMChange {
	var change BOMChange
	old := make(map[string]int64, len(before))
	for _, l := range before {
		old[l.PartID] = l.Quantity
	}
	seen := make(map[string]bool, len(after))
	for _, l := range after {
		seen[l.PartID] = true
		prev, ok := old[l.PartID]
		switch {
		case !ok:
			change.Added = append(change.Added, l)
		case prev != l.Quantity:
			change.Modified = append(change.Modified, BOMModification{PartID: l.PartID, OldQuantity: prev, NewQuantity: l.Quantity})
		}
	}
	for _, l := range before {
		if !seen[l.PartID] {
			change.Removed = append(change.Removed, l)
		}
	}
	return change
}
