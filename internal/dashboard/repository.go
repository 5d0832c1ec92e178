package dashboard

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inventra/inventra/internal/platform/db"
)

type querier interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Repository runs the dashboard aggregates against PostgreSQL.
type Repository struct {
	db querier
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Sales sums sale totals and counts sale orders.
func (r *Repository) Sales(ctx context.Context) (SalesSummary, error) {
	var out SalesSummary
	var total pgtype.Numeric
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount), 0), COUNT(*) FROM orders WHERE order_type = 'SALE'`).Scan(&total, &out.Orders)
	out.TotalAmount = db.Decimal(total)
	return out, err
}

// Inventory sums on-hand part quantities.
func (r *Repository) Inventory(ctx context.Context) (InventorySummary, error) {
	var out InventorySummary
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0)::bigint, COUNT(*) FROM inventory_parts`).Scan(&out.TotalQuantity, &out.Parts)
	return out, err
}

// FewestParts returns the parts with the least stock.
func (r *Repository) FewestParts(ctx context.Context, limit int) ([]PartStock, error) {
	rows, err := r.db.Query(ctx, `SELECT part_id, name, quantity, reorder_point FROM inventory_parts ORDER BY quantity ASC, part_id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PartStock{}
	for rows.Next() {
		var p PartStock
		if err := rows.Scan(&p.PartID, &p.Name, &p.Quantity, &p.ReorderPoint); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TopProducts ranks products by units sold across sale orders.
func (r *Repository) TopProducts(ctx context.Context, limit int) ([]ProductSales, error) {
	rows, err := r.db.Query(ctx, `
		SELECT line->>'productId' AS product_id,
		       COALESCE(p.name, line->>'productId'),
		       SUM((line->>'quantity')::bigint)::bigint AS units
		FROM orders o
		CROSS JOIN LATERAL jsonb_array_elements(o.items) line
		LEFT JOIN products p ON p.product_id = line->>'productId'
		WHERE o.order_type = 'SALE' AND line ? 'productId'
		GROUP BY 1, 2
		ORDER BY units DESC, product_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ProductSales{}
	for rows.Next() {
		var p ProductSales
		if err := rows.Scan(&p.ProductID, &p.Name, &p.UnitsSold); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
