package redirection

import (
	"context"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// Store is the persistence port of Service.
type Store interface {
	Get(ctx context.Context, item ItemType, id string) (string, error)
	Ensure(ctx context.Context, item ItemType, id, candidate string) (string, error)
}

// QR image bounds in pixels.
const (
	DefaultQRSize = 300
	MinQRSize     = 64
	MaxQRSize     = 1024
)

// Service issues order links.
type Service struct {
	store   Store
	baseURL string
}

// NewService constructs Service; baseURL is the frontend origin.
func NewService(store Store, baseURL string) *Service {
	return &Service{store: store, baseURL: baseURL}
}

// Ensure returns the item's order link, generating it on first use. An existing link
// is returned unchanged even when orderType differs.
func (s *Service) Ensure(ctx context.Context, in CreateInput) (string, error) {
	item := ItemProduct
	if in.ItemType != "" {
		parsed, err := ParseItemType(in.ItemType)
		if err != nil {
			return "", err
		}
		item = parsed
	}
	orderType := in.OrderType
	if orderType == "" {
		orderType = "STOCK"
	}
	return s.store.Ensure(ctx, item, in.ID, BuildURL(s.baseURL, item, in.ID, orderType))
}

// Get returns the stored link without generating one.
func (s *Service) Get(ctx context.Context, item ItemType, id string) (string, error) {
	return s.store.Get(ctx, item, id)
}

// QRCode renders the item's order link as a PNG, generating the link if needed.
func (s *Service) QRCode(ctx context.Context, item ItemType, id string, size int) ([]byte, error) {
	if size < MinQRSize || size > MaxQRSize {
		size = DefaultQRSize
	}
	link, err := s.Ensure(ctx, CreateInput{ID: id, ItemType: string(item)})
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("redirection: encode qr: %w", err)
	}
	return png, nil
}
