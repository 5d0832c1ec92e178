package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

// Repository reads audit_logs.
type Repository struct {
	db querier
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const timelineQuery = `
SELECT a.occurred_at, COALESCE(a.actor_id, ''), COALESCE(u.full_name, ''), a.action, a.entity, a.entity_id, a.meta
FROM audit_logs a
LEFT JOIN users u ON u.id::text = a.actor_id
WHERE ($1::timestamptz IS NULL OR a.occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR a.occurred_at < $2)
  AND ($3::text IS NULL OR a.actor_id = $3 OR u.username = $3)
  AND ($4::text IS NULL OR a.entity = $4)
  AND ($5::text IS NULL OR a.action = $5)
ORDER BY a.occurred_at DESC, a.id DESC`

// Window returns up to limit rows after skipping offset.
func (r *Repository) Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	args := append(filterArgs(f), offset, limit)
	rows, err := r.db.Query(ctx, timelineQuery+` OFFSET $6 LIMIT $7`, args...)
	if err != nil {
		return nil, err
	}
	out := []TimelineRow{}
	err = scanRows(rows, func(row TimelineRow) error {
		out = append(out, row)
		return nil
	})
	return out, err
}

// Each streams every row matching f.
func (r *Repository) Each(ctx context.Context, f TimelineFilters, fn func(TimelineRow) error) error {
	rows, err := r.db.Query(ctx, timelineQuery, filterArgs(f)...)
	if err != nil {
		return err
	}
	return scanRows(rows, fn)
}

func scanRows(rows pgx.Rows, fn func(TimelineRow) error) error {
	defer rows.Close()
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.At, &row.ActorID, &row.ActorName, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return err
			}
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func filterArgs(f TimelineFilters) []any {
	var to time.Time
	if !f.To.IsZero() {
		to = f.To.AddDate(0, 0, 1)
	}
	return []any{toPgTime(f.From), toPgTime(to), optionalText(f.Actor), optionalText(f.Entity), optionalText(f.Action)}
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
