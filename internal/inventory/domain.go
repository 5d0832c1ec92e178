package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/inventra/inventra/internal/fulfillment"
	"github.com/inventra/inventra/internal/shared"
)

// DefaultReorderPoint applies when a part is created without one.
const DefaultReorderPoint int64 = 50

// Part is an inventory part (raw material or component).
type Part struct {
	PartID       string          `json:"partId"`
	Name         string          `json:"partName"`
	Price        decimal.Decimal `json:"partPrice"`
	Quantity     int64           `json:"partQuantity"`
	Unit         string          `json:"partUoM"`
	ReorderPoint int64           `json:"reorderPoint"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// StockItem projects the part for stock threshold checks.
func (p Part) StockItem() fulfillment.StockItem {
	return fulfillment.StockItem{Kind: fulfillment.KindPart, ID: p.PartID, Name: p.Name, Quantity: p.Quantity, ReorderPoint: p.ReorderPoint}
}

// PartSummary is the light listing used by order and product forms.
type PartSummary struct {
	PartID   string          `json:"partId"`
	Name     string          `json:"partName"`
	Price    decimal.Decimal `json:"partPrice"`
	Quantity int64           `json:"partQuantity"`
	Unit     string          `json:"partUoM"`
}

// CreateInput describes a new part.
type CreateInput struct {
	PartID       string          `json:"partId" validate:"required,max=64"`
	Name         string          `json:"partName" validate:"required,max=200"`
	Price        decimal.Decimal `json:"partPrice"`
	Quantity     *int64          `json:"partQuantity" validate:"required,gte=0"`
	Unit         string          `json:"partUoM" validate:"required,max=20"`
	ReorderPoint *int64          `json:"reorderPoint" validate:"omitempty,gte=0"`
}

// UpdateInput carries a partial part update.
type UpdateInput struct {
	Name         *string          `json:"partName" validate:"omitempty,min=1,max=200"`
	Price        *decimal.Decimal `json:"partPrice"`
	Quantity     *int64           `json:"partQuantity" validate:"omitempty,gte=0"`
	Unit         *string          `json:"partUoM" validate:"omitempty,min=1,max=20"`
	ReorderPoint *int64           `json:"reorderPoint" validate:"omitempty,gte=0"`
}

// DeleteInput lists parts to remove. Force deletes parts still named by product BOMs.
type DeleteInput struct {
	PartIDs []string `json:"partIds" validate:"required,min=1,dive,required"`
	Force   bool     `json:"force"`
}

// DeleteResult reports removed parts and any BOM references left dangling.
type DeleteResult struct {
	Deleted    int64               `json:"deleted"`
	References map[string][]string `json:"references,omitempty"`
}

// ListFilter narrows the part listing.
type ListFilter struct {
	shared.PageRequest
}
