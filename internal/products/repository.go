package products

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/inventra/inventra/internal/fulfillment"
	"github.com/inventra/inventra/internal/platform/db"
	"github.com/inventra/inventra/internal/platform/httpx"
)

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Repository persists products in PostgreSQL.
type Repository struct {
	db dbtx
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const productColumns = `product_id, name, base_price, quantity, bom, reorder_point, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var price pgtype.Numeric
	var bom []byte
	if err := row.Scan(&p.ProductID, &p.Name, &price, &p.Quantity, &bom, &p.ReorderPoint, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	p.BasePrice = db.Decimal(price)
	if err := json.Unmarshal(bom, &p.BOM); err != nil {
		return Product{}, fmt.Errorf("decode bom of %s: %w", p.ProductID, err)
	}
	if p.BOM == nil {
		p.BOM = []fulfillment.BOMLine{}
	}
	return p, nil
}

func collect(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func encodeBOM(bom []fulfillment.BOMLine) ([]byte, error) {
	if bom == nil {
		bom = []fulfillment.BOMLine{}
	}
	return json.Marshal(bom)
}

// Get loads a product by id.
func (r *Repository) Get(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE product_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: product %s", httpx.ErrNotFound, id)
	}
	return p, err
}

// GetMany loads the products that exist among ids.
func (r *Repository) GetMany(ctx context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE product_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	list, err := collect(rows)
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		out[p.ProductID] = p
	}
	return out, nil
}

// Create inserts a product.
func (r *Repository) Create(ctx context.Context, p Product) (Product, error) {
	bom, err := encodeBOM(p.BOM)
	if err != nil {
		return Product{}, err
	}
	created, err := scanProduct(r.db.QueryRow(ctx, `INSERT INTO products (product_id, name, base_price, quantity, bom, reorder_point)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+productColumns,
		p.ProductID, p.Name, db.Numeric(p.BasePrice), p.Quantity, bom, p.ReorderPoint))
	if db.IsUniqueViolation(err) {
		return Product{}, fmt.Errorf("%w: product %s", httpx.ErrDuplicate, p.ProductID)
	}
	return created, err
}

// Update applies column updates to a product.
func (r *Repository) Update(ctx context.Context, id string, updates map[string]any) (Product, error) {
	if len(updates) == 0 {
		return r.Get(ctx, id)
	}
	sets := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+1)
	for _, col := range []string{"name", "base_price", "quantity", "bom", "reorder_point"} {
		v, ok := updates[col]
		if !ok {
			continue
		}
		switch typed := v.(type) {
		case decimal.Decimal:
			v = db.Numeric(typed)
		case []fulfillment.BOMLine:
			raw, err := encodeBOM(typed)
			if err != nil {
				return Product{}, err
			}
			v = raw
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE products SET %s WHERE product_id = $%d RETURNING `+productColumns, strings.Join(sets, ", "), len(args))
	p, err := scanProduct(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: product %s", httpx.ErrNotFound, id)
	}
	return p, err
}

// Delete removes products and returns the deleted rows.
func (r *Repository) Delete(ctx context.Context, ids []string) ([]Product, error) {
	rows, err := r.db.Query(ctx, `DELETE FROM products WHERE product_id = ANY($1) RETURNING `+productColumns, ids)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// List returns up to filter.Limit+1 products ordered by recency, with the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	var conditions []string
	var args []any
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR product_id ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM products "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if clause, cargs := filter.KeysetClause("updated_at", "product_id", len(args)+1); clause != "" {
		args = append(args, cargs...)
		conditions = append(conditions, clause)
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filter.Limit+1)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM products %s ORDER BY updated_at DESC, product_id ASC LIMIT $%d`, productColumns, where, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	list, err := collect(rows)
	return list, total, err
}

// All returns every product, newest first.
func (r *Repository) All(ctx context.Context) ([]Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC, product_id`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// PartNames resolves part names for the ids that exist.
func (r *Repository) PartNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT part_id, name FROM inventory_parts WHERE part_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}
