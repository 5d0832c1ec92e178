package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inventra/inventra/internal/platform/db"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/shared"
)

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Repository persists notifications in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// RecipientsByRoles returns every user holding one of the roles.
func (r *Repository) RecipientsByRoles(ctx context.Context, roles []rbac.Role) ([]Recipient, error) {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	rows, err := r.db.Query(ctx, `SELECT id::text, full_name, email FROM users WHERE role = ANY($1) ORDER BY id`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Recipient
	for rows.Next() {
		var rc Recipient
		if err := rows.Scan(&rc.UserID, &rc.FullName, &rc.Email); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// Insert stores notifications atomically.
func (r *Repository) Insert(ctx context.Context, items []Notification) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, n := range items {
			batch.Queue(`INSERT INTO notifications (id, receiver_id, type, title, content, order_id, product_id, part_id, is_read, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				n.ID, n.ReceiverID, string(n.Type), n.Title, n.Content, n.OrderID, n.ProductID, n.PartID, n.IsRead, n.CreatedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

const notificationColumns = `id::text, receiver_id::text, type, title, content, order_id::text, product_id, part_id, is_read, created_at`

// List returns up to page.Limit+1 notifications for a receiver, newest first.
func (r *Repository) List(ctx context.Context, receiverID string, page shared.PageRequest) ([]Notification, error) {
	conditions := []string{"receiver_id = $1"}
	args := []any{receiverID}
	if clause, cargs := page.KeysetClause("created_at", "id::text", len(args)+1); clause != "" {
		conditions = append(conditions, clause)
		args = append(args, cargs...)
	}
	args = append(args, page.Limit+1)
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC, id::text ASC LIMIT $%d`,
		notificationColumns, strings.Join(conditions, " AND "), len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var n Notification
		var kind string
		if err := rows.Scan(&n.ID, &n.ReceiverID, &kind, &n.Title, &n.Content, &n.OrderID, &n.ProductID, &n.PartID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = Type(kind)
		out = append(out, n)
	}
	return out, rows.Err()
}

// UnreadCount counts unread notifications for a receiver.
func (r *Repository) UnreadCount(ctx context.Context, receiverID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE receiver_id = $1 AND NOT is_read`, receiverID).Scan(&n)
	return n, err
}

// MarkRead flags the receiver's notifications with the given ids as read.
func (r *Repository) MarkRead(ctx context.Context, receiverID string, ids []string) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE receiver_id = $1 AND id = ANY($2::uuid[])`, receiverID, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkAllRead flags every notification of the receiver as read.
func (r *Repository) MarkAllRead(ctx context.Context, receiverID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE receiver_id = $1 AND NOT is_read`, receiverID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
