package notifications

import (
	"fmt"
	"time"

	"github.com/inventra/inventra/internal/fulfillment"
	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
)

// Type classifies a notification.
type Type string

const (
	TypeOrderSale       Type = "ORDER_SALE"
	TypeOrderStock      Type = "ORDER_STOCK"
	TypeOrderDelete     Type = "ORDER_DELETE"
	TypeLowStock        Type = "LOW_STOCK"
	TypeLowStockDigest  Type = "LOW_STOCK_DIGEST"
	TypeProductCreate   Type = "PRODUCT_CREATE"
	TypeProductUpdate   Type = "PRODUCT_UPDATE"
	TypeProductDelete   Type = "PRODUCT_DELETE"
	TypeInventoryCreate Type = "INVENTORY_CREATE"
	TypeInventoryUpdate Type = "INVENTORY_UPDATE"
	TypeInventoryDelete Type = "INVENTORY_DELETE"
)

// RecipientRoles returns the roles that receive notifications of type t.
func RecipientRoles(t Type) []rbac.Role {
	switch t {
	case TypeLowStock, TypeLowStockDigest, TypeOrderSale, TypeOrderStock:
		return []rbac.Role{rbac.RoleAdmin, rbac.RoleOwner}
	default:
		return []rbac.Role{rbac.RoleOwner}
	}
}

// Row is a label/value pair rendered in the email body.
type Row struct {
	Label string
	Value string
}

// Event is a notification request before fan-out to recipients.
type Event struct {
	Type      Type
	Title     string
	Content   string
	OrderID   string
	ProductID string
	PartID    string
	// Rows are extra details shown only in the email.
	Rows []Row
}

// Validate checks the event carries a type and an entity reference. Digests
// summarise many entities and carry none.
func (e Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("%w: notification type required", httpx.ErrValidation)
	}
	if e.Type == TypeLowStockDigest {
		return nil
	}
	if e.OrderID == "" && e.ProductID == "" && e.PartID == "" {
		return fmt.Errorf("%w: at least one of orderId, productId or partId is required", httpx.ErrValidation)
	}
	return nil
}

// Notification is one persisted message for one receiver.
type Notification struct {
	ID         string    `json:"notificationId"`
	ReceiverID string    `json:"receiverId"`
	Type       Type      `json:"type"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	OrderID    *string   `json:"orderId,omitempty"`
	ProductID  *string   `json:"productId,omitempty"`
	PartID     *string   `json:"partId,omitempty"`
	IsRead     bool      `json:"isRead"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Recipient is a user selected to receive a notification.
type Recipient struct {
	UserID   string
	FullName string
	Email    string
}

// MarkReadInput lists notifications to flag as read.
type MarkReadInput struct {
	NotificationIDs []string `json:"notificationIds" validate:"required,min=1,dive,uuid"`
}

// LowStockEvent builds the LOW_STOCK notification for one alert.
func LowStockEvent(alert fulfillment.LowStockAlert) Event {
	label := "Part"
	ev := Event{Type: TypeLowStock}
	if alert.Kind == fulfillment.KindProduct {
		label = "Product"
		ev.ProductID = alert.ID
	} else {
		ev.PartID = alert.ID
	}
	ev.Title = fmt.Sprintf("Low stock: %s", alert.Name)
	ev.Content = fmt.Sprintf("%s %s (%s) is low on stock: %d left, reorder point %d", label, alert.Name, alert.ID, alert.Quantity, alert.ReorderPoint)
	ev.Rows = []Row{
		{Label: "Item", Value: alert.Name},
		{Label: "ID", Value: alert.ID},
		{Label: "Type", Value: label},
		{Label: "Current quantity", Value: fmt.Sprint(alert.Quantity)},
		{Label: "Reorder point", Value: fmt.Sprint(alert.ReorderPoint)},
	}
	return ev
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
