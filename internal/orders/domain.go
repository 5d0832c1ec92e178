// Package orders creates, lists and exports SALE and STOCK orders. Create drives the
// fulfillment engine inside one database transaction and hands notification work back
// to the caller as post-commit hooks.
package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/inventra/inventra/internal/fulfillment"
	"github.com/inventra/inventra/internal/shared"
)

// Type distinguishes stock-consuming sales from stock-receiving replenishments.
type Type string

const (
	TypeSale  Type = "SALE"
	TypeStock Type = "STOCK"
)

// Direction maps the order type onto a stock adjustment direction.
func (t Type) Direction() fulfillment.Direction {
	if t == TypeSale {
		return fulfillment.Decrease
	}
	return fulfillment.Increase
}

// Accepted payment methods.
const (
	PaymentCash     = "CASH"
	PaymentCard     = "CARD"
	PaymentTransfer = "TRANSFER"
	PaymentCredit   = "CREDIT"
)

// Order is a persisted order. Lines are kept exactly as submitted.
type Order struct {
	ID            string                  `json:"orderId"`
	Type          Type                    `json:"orderType"`
	Items         []fulfillment.OrderLine `json:"orderItems"`
	CustomerID    *string                 `json:"customerId,omitempty"`
	CustomerName  *string                 `json:"customerName,omitempty"`
	PaymentMethod *string                 `json:"paymentMethod,omitempty"`
	TotalAmount   *decimal.Decimal        `json:"totalAmount,omitempty"`
	Notes         string                  `json:"notes"`
	AgentID       string                  `json:"salesAgentId"`
	AgentName     string                  `json:"salesAgentName"`
	CreatedAt     time.Time               `json:"createdAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
}

// CreateInput is the order creation request.
type CreateInput struct {
	Type          string                  `json:"orderType" validate:"required,oneof=SALE STOCK"`
	Items         []fulfillment.OrderLine `json:"orderItems" validate:"required,min=1"`
	CustomerID    string                  `json:"customerId" validate:"omitempty,uuid"`
	PaymentMethod string                  `json:"paymentMethod" validate:"omitempty,oneof=CASH CARD TRANSFER CREDIT"`
	Notes         string                  `json:"notes" validate:"max=2000"`
}

// Hook is deferred work that must only run once the order has committed.
type Hook func(ctx context.Context)

// Result is what Create reports back.
type Result struct {
	Order           Order                       `json:"order"`
	TotalAmount     *decimal.Decimal            `json:"totalAmount,omitempty"`
	UpdatedParts    []fulfillment.StockItem     `json:"updatedParts"`
	UpdatedProducts []fulfillment.StockItem     `json:"updatedProducts"`
	LowStock        []fulfillment.LowStockAlert `json:"lowStock,omitempty"`
	Hooks           []Hook                      `json:"-"`
}

// DeleteInput lists orders to remove.
type DeleteInput struct {
	OrderIDs []string `json:"orderIds" validate:"required,min=1,dive,uuid"`
}

// DeleteResult reports how many orders went away.
type DeleteResult struct {
	Deleted int64  `json:"deleted"`
	Hooks   []Hook `json:"-"`
}

// ListFilter narrows the order listing. Search matches customer and agent names, the
// order type and part or product ids inside the lines.
type ListFilter struct {
	shared.PageRequest
}
