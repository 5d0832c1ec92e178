package orders

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

	"github.com/inventra/inventra/internal/fulfillment"
	"github.com/inventra/inventra/internal/inventory"
	"github.com/inventra/inventra/internal/platform/db"
	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/shared"
)

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Repository persists orders in PostgreSQL.
type Repository struct {
	db dbtx
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const orderColumns = `id::text, order_type, items, customer_id::text, customer_name, payment_method, total_amount, notes, COALESCE(agent_id::text, ''), agent_name, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var typ string
	var items []byte
	var total pgtype.Numeric
	if err := row.Scan(&o.ID, &typ, &items, &o.CustomerID, &o.CustomerName, &o.PaymentMethod, &total, &o.Notes, &o.AgentID, &o.AgentName, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.Type = Type(typ)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return Order{}, fmt.Errorf("decode items of order %s: %w", o.ID, err)
	}
	if total.Valid {
		d := db.Decimal(total)
		o.TotalAmount = &d
	}
	return o, nil
}

func collect(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Insert writes a new order row.
func (r *Repository) Insert(ctx context.Context, o Order) (Order, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return Order{}, err
	}
	var total pgtype.Numeric
	if o.TotalAmount != nil {
		total = db.Numeric(*o.TotalAmount)
	}
	return scanOrder(r.db.QueryRow(ctx, `INSERT INTO orders
		(id, order_type, items, customer_id, customer_name, payment_method, total_amount, notes, agent_id, agent_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING `+orderColumns,
		o.ID, string(o.Type), items, o.CustomerID, o.CustomerName, o.PaymentMethod, total, o.Notes, o.AgentID, o.AgentName))
}

// Get loads an order by id.
func (r *Repository) Get(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id::text = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: order %s", httpx.ErrNotFound, id)
	}
	return o, err
}

// Delete removes orders and returns the deleted rows. Stock is left untouched.
func (r *Repository) Delete(ctx context.Context, ids []string) ([]Order, error) {
	rows, err := r.db.Query(ctx, `DELETE FROM orders WHERE id = ANY($1::uuid[]) RETURNING `+orderColumns, ids)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// List returns up to filter.Limit+1 orders ordered by recency, with the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	var conditions []string
	var args []any
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%", strings.ToUpper(search))
		like, exact := len(args)-1, len(args)
		conditions = append(conditions, fmt.Sprintf(`(customer_name ILIKE $%[1]d OR agent_name ILIKE $%[1]d OR order_type = $%[2]d
			OR EXISTS (SELECT 1 FROM jsonb_array_elements(items) line
				WHERE line->>'partId' ILIKE $%[1]d OR line->>'productId' ILIKE $%[1]d))`, like, exact))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if clause, cargs := filter.KeysetClause("updated_at", "id::text", len(args)+1); clause != "" {
		args = append(args, cargs...)
		conditions = append(conditions, clause)
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filter.Limit+1)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY updated_at DESC, id::text ASC LIMIT $%d`, orderColumns, where, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	list, err := collect(rows)
	return list, total, err
}

// Each streams every order, newest first.
func (r *Repository) Each(ctx context.Context, fn func(Order) error) error {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Store is the PostgreSQL-backed write path for order creation.
type Store struct {
	pool        db.Beginner
	idempotency *shared.IdempotencyStore
	attempts    int
}

// NewStore builds Store. attempts bounds serialization-failure replays.
func NewStore(pool *pgxpool.Pool, idempotency *shared.IdempotencyStore, attempts int) *Store {
	return &Store{pool: pool, idempotency: idempotency, attempts: attempts}
}

// InTx runs fn in one repeatable-read transaction, replaying it on serialization failures.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return db.WithTxRetry(ctx, s.pool, s.attempts, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxStore{tx: tx, idempotency: s.idempotency.WithTx(tx)})
	})
}

type pgTxStore struct {
	tx          pgx.Tx
	idempotency *shared.IdempotencyStore
}

func (s *pgTxStore) Stock() fulfillment.StockStore {
	return inventory.NewTxStock(s.tx)
}

func (s *pgTxStore) ClaimKey(ctx context.Context, key string) error {
	return s.idempotency.CheckAndInsert(ctx, key, "orders")
}

func (s *pgTxStore) Insert(ctx context.Context, o Order) (Order, error) {
	return (&Repository{db: s.tx}).Insert(ctx, o)
}
