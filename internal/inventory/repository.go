package inventory

import (
	"context"
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

// Repository persists inventory parts in PostgreSQL.
type Repository struct {
	db dbtx
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const partColumns = `part_id, name, price, quantity, unit, reorder_point, created_at, updated_at`

func scanPart(row pgx.Row) (Part, error) {
	var p Part
	var price pgtype.Numeric
	if err := row.Scan(&p.PartID, &p.Name, &price, &p.Quantity, &p.Unit, &p.ReorderPoint, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Part{}, err
	}
	p.Price = db.Decimal(price)
	return p, nil
}

// Get loads a part by id.
func (r *Repository) Get(ctx context.Context, id string) (Part, error) {
	p, err := scanPart(r.db.QueryRow(ctx, `SELECT `+partColumns+` FROM inventory_parts WHERE part_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Part{}, fmt.Errorf("%w: part %s", httpx.ErrNotFound, id)
	}
	return p, err
}

// Create inserts a part.
func (r *Repository) Create(ctx context.Context, p Part) (Part, error) {
	created, err := scanPart(r.db.QueryRow(ctx, `INSERT INTO inventory_parts (part_id, name, price, quantity, unit, reorder_point)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+partColumns,
		p.PartID, p.Name, db.Numeric(p.Price), p.Quantity, p.Unit, p.ReorderPoint))
	if db.IsUniqueViolation(err) {
		return Part{}, fmt.Errorf("%w: part %s", httpx.ErrDuplicate, p.PartID)
	}
	return created, err
}

// Update applies column updates to a part.
func (r *Repository) Update(ctx context.Context, id string, updates map[string]any) (Part, error) {
	if len(updates) == 0 {
		return r.Get(ctx, id)
	}
	sets := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+1)
	for _, col := range []string{"name", "price", "quantity", "unit", "reorder_point"} {
		v, ok := updates[col]
		if !ok {
			continue
		}
		if d, isDecimal := v.(decimal.Decimal); isDecimal {
			v = db.Numeric(d)
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE inventory_parts SET %s WHERE part_id = $%d RETURNING `+partColumns, strings.Join(sets, ", "), len(args))
	p, err := scanPart(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Part{}, fmt.Errorf("%w: part %s", httpx.ErrNotFound, id)
	}
	return p, err
}

// Delete removes parts and returns the deleted rows.
func (r *Repository) Delete(ctx context.Context, ids []string) ([]Part, error) {
	rows, err := r.db.Query(ctx, `DELETE FROM inventory_parts WHERE part_id = ANY($1) RETURNING `+partColumns, ids)
	if err != nil {
		return nil, err
	}
	return collectParts(rows)
}

// BOMReferences maps each given part id to the products whose BOM names it.
func (r *Repository) BOMReferences(ctx context.Context, ids []string) (map[string][]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT item->>'partId', product_id
		FROM products, jsonb_array_elements(bom) AS item
		WHERE item->>'partId' = ANY($1)
		ORDER BY 1, 2`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	refs := make(map[string][]string)
	for rows.Next() {
		var partID, productID string
		if err := rows.Scan(&partID, &productID); err != nil {
			return nil, err
		}
		refs[partID] = append(refs[partID], productID)
	}
	return refs, rows.Err()
}

// List returns up to filter.Limit+1 parts ordered by recency, with the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Part, int, error) {
	var conditions []string
	var args []any
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR part_id ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM inventory_parts "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if clause, cargs := filter.KeysetClause("updated_at", "part_id", len(args)+1); clause != "" {
		args = append(args, cargs...)
		conditions = append(conditions, clause)
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filter.Limit+1)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM inventory_parts %s ORDER BY updated_at DESC, part_id ASC LIMIT $%d`, partColumns, where, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	parts, err := collectParts(rows)
	return parts, total, err
}

// ListSummaries returns every part ordered by name.
func (r *Repository) ListSummaries(ctx context.Context) ([]PartSummary, error) {
	rows, err := r.db.Query(ctx, `SELECT part_id, name, price, quantity, unit FROM inventory_parts ORDER BY name, part_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PartSummary
	for rows.Next() {
		var s PartSummary
		var price pgtype.Numeric
		if err := rows.Scan(&s.PartID, &s.Name, &price, &s.Quantity, &s.Unit); err != nil {
			return nil, err
		}
		s.Price = db.Decimal(price)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Each streams every part, newest first, to fn.
func (r *Repository) Each(ctx context.Context, fn func(Part) error) error {
	rows, err := r.db.Query(ctx, `SELECT `+partColumns+` FROM inventory_parts ORDER BY created_at DESC, part_id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Prices returns unit prices for the given part ids; unknown ids are absent.
func (r *Repository) Prices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT part_id, price FROM inventory_parts WHERE part_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var price pgtype.Numeric
		if err := rows.Scan(&id, &price); err != nil {
			return nil, err
		}
		out[id] = db.Decimal(price)
	}
	return out, rows.Err()
}

// ListLowStock returns parts and products at or below their reorder point.
func (r *Repository) ListLowStock(ctx context.Context) ([]fulfillment.LowStockAlert, error) {
	rows, err := r.db.Query(ctx, `SELECT 'part', part_id, name, quantity, reorder_point FROM inventory_parts WHERE quantity <= reorder_point
		UNION ALL
		SELECT 'product', product_id, name, quantity, reorder_point FROM products WHERE quantity <= reorder_point
		ORDER BY 1, 4, 2`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fulfillment.LowStockAlert
	for rows.Next() {
		var a fulfillment.LowStockAlert
		var kind string
		if err := rows.Scan(&kind, &a.ID, &a.Name, &a.Quantity, &a.ReorderPoint); err != nil {
			return nil, err
		}
		a.Kind = fulfillment.EntityKind(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}

func collectParts(rows pgx.Rows) ([]Part, error) {
	defer rows.Close()
	var out []Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
