package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inventra/inventra/internal/fulfillment"
	"github.com/inventra/inventra/internal/platform/httpx"
)

// TxStock implements fulfillment.StockStore on an open transaction using row locks.
type TxStock struct {
	tx dbtx
}

// NewTxStock binds the stock store to tx.
func NewTxStock(tx pgx.Tx) *TxStock {
	return &TxStock{tx: tx}
}

var _ fulfillment.StockStore = (*TxStock)(nil)

// LockPart reads a part and holds its row lock until the transaction ends.
func (s *TxStock) LockPart(ctx context.Context, id string) (fulfillment.StockItem, error) {
	return s.lock(ctx, fulfillment.KindPart, `SELECT name, quantity, reorder_point FROM inventory_parts WHERE part_id = $1 FOR UPDATE`, id)
}

// LockProduct reads a product and holds its row lock until the transaction ends.
func (s *TxStock) LockProduct(ctx context.Context, id string) (fulfillment.StockItem, error) {
	return s.lock(ctx, fulfillment.KindProduct, `SELECT name, quantity, reorder_point FROM products WHERE product_id = $1 FOR UPDATE`, id)
}

func (s *TxStock) lock(ctx context.Context, kind fulfillment.EntityKind, query, id string) (fulfillment.StockItem, error) {
	item := fulfillment.StockItem{Kind: kind, ID: id}
	err := s.tx.QueryRow(ctx, query, id).Scan(&item.Name, &item.Quantity, &item.ReorderPoint)
	if errors.Is(err, pgx.ErrNoRows) {
		return fulfillment.StockItem{}, fmt.Errorf("%w: %s %s", httpx.ErrNotFound, kind, id)
	}
	return item, err
}

// SetPartQuantity writes a part's new quantity.
func (s *TxStock) SetPartQuantity(ctx context.Context, id string, qty int64) error {
	return s.set(ctx, `UPDATE inventory_parts SET quantity = $2, updated_at = NOW() WHERE part_id = $1`, id, qty)
}

// SetProductQuantity writes a product's new quantity.
func (s *TxStock) SetProductQuantity(ctx context.Context, id string, qty int64) error {
	return s.set(ctx, `UPDATE products SET quantity = $2, updated_at = NOW() WHERE product_id = $1`, id, qty)
}

func (s *TxStock) set(ctx context.Context, query, id string, qty int64) error {
	tag, err := s.tx.Exec(ctx, query, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", httpx.ErrNotFound, id)
	}
	return nil
}
