// Package redirection hands out the order deep links printed as QR codes on parts and
// products. A link is generated on first request and then kept on the item so printed
// codes stay valid.
package redirection

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/inventra/inventra/internal/platform/httpx"
)

// ItemType names the table an order link points into.
type ItemType string

const (
	ItemProduct ItemType = "product"
	ItemPart    ItemType = "part"
)

// ParseItemType accepts "product" or "part".
func ParseItemType(raw string) (ItemType, error) {
	switch t := ItemType(strings.ToLower(strings.TrimSpace(raw))); t {
	case ItemProduct, ItemPart:
		return t, nil
	default:
		return "", fmt.Errorf("%w: itemType must be product or part", httpx.ErrValidation)
	}
}

// CreateInput is the body of POST /create.
type CreateInput struct {
	ID        string `json:"id" validate:"required,max=64"`
	ItemType  string `json:"itemType" validate:"omitempty,oneof=product part"`
	OrderType string `json:"orderType" validate:"omitempty,oneof=SALE STOCK"`
}

// BuildURL returns the frontend order page preloaded with the item.
func BuildURL(base string, item ItemType, id, orderType string) string {
	q := url.Values{}
	q.Set("id", id)
	q.Set("orderType", orderType)
	q.Set("itemType", string(item))
	return strings.TrimRight(base, "/") + "/orders?" + q.Encode()
}
