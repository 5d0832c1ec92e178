package redirection

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inventra/inventra/internal/platform/httpx"
)

type querier interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Repository reads and stores order links on parts and products.
type Repository struct {
	db querier
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

var statements = map[ItemType]struct{ get, ensure string }{
	ItemProduct: {
		get: `SELECT COALESCE(order_redirect_url, '') FROM products WHERE product_id = $1`,
		ensure: `UPDATE products SET order_redirect_url = COALESCE(order_redirect_url, $2)
			WHERE product_id = $1 RETURNING order_redirect_url`,
	},
	ItemPart: {
		get: `SELECT COALESCE(order_redirect_url, '') FROM inventory_parts WHERE part_id = $1`,
		ensure: `UPDATE inventory_parts SET order_redirect_url = COALESCE(order_redirect_url, $2)
			WHERE part_id = $1 RETURNING order_redirect_url`,
	},
}

// Get returns the stored link, empty when none was generated yet.
func (r *Repository) Get(ctx context.Context, item ItemType, id string) (string, error) {
	var link string
	err := r.db.QueryRow(ctx, statements[item].get, id).Scan(&link)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s %s", httpx.ErrNotFound, item, id)
	}
	return link, err
}

// Ensure stores candidate unless the item already has a link, and returns the link
// that is kept.
func (r *Repository) Ensure(ctx context.Context, item ItemType, id, candidate string) (string, error) {
	var link string
	err := r.db.QueryRow(ctx, statements[item].ensure, id, candidate).Scan(&link)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s %s", httpx.ErrNotFound, item, id)
	}
	return link, err
}
