package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inventra/inventra/internal/platform/httpx"
)

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Repository persists customers in PostgreSQL.
type Repository struct {
	db dbtx
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const customerColumns = `id::text, company_name, address, phone_number, registration_number, post_code, email, created_at, updated_at`

// updatable lists the columns Update may touch, in statement order.
var updatable = []string{"company_name", "address", "phone_number", "registration_number", "post_code", "email"}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.CompanyName, &c.Address, &c.PhoneNumber, &c.RegistrationNumber, &c.PostCode, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// Get loads a customer by id.
func (r *Repository) Get(ctx context.Context, id string) (Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id::text = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("%w: customer %s", httpx.ErrNotFound, id)
	}
	return c, err
}

// Create inserts a customer.
func (r *Repository) Create(ctx context.Context, c Customer) (Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `INSERT INTO customers (company_name, address, phone_number, registration_number, post_code, email)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+customerColumns,
		c.CompanyName, c.Address, c.PhoneNumber, c.RegistrationNumber, c.PostCode, c.Email))
}

// Update applies column updates to a customer.
func (r *Repository) Update(ctx context.Context, id string, updates map[string]any) (Customer, error) {
	if len(updates) == 0 {
		return r.Get(ctx, id)
	}
	sets := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+1)
	for _, col := range updatable {
		v, ok := updates[col]
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE customers SET %s WHERE id::text = $%d RETURNING `+customerColumns, strings.Join(sets, ", "), len(args))
	c, err := scanCustomer(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("%w: customer %s", httpx.ErrNotFound, id)
	}
	return c, err
}

// Delete removes customers. Orders keep the stored customer name.
func (r *Repository) Delete(ctx context.Context, ids []string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM customers WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// List returns up to filter.Limit+1 customers ordered by recency, with the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Customer, int, error) {
	var conditions []string
	var args []any
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(company_name ILIKE $%[1]d OR email ILIKE $%[1]d OR registration_number ILIKE $%[1]d OR phone_number ILIKE $%[1]d)", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customers "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if clause, cargs := filter.KeysetClause("updated_at", "id::text", len(args)+1); clause != "" {
		args = append(args, cargs...)
		conditions = append(conditions, clause)
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filter.Limit+1)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM customers %s ORDER BY updated_at DESC, id::text ASC LIMIT $%d`, customerColumns, where, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}
