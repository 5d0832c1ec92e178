package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inventra/inventra/internal/platform/db"
	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
)

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db dbtx
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const userColumns = `id::text, username, email, full_name, role, created_at, updated_at`

func scanUser(row pgx.Row, extra ...any) (User, error) {
	var u User
	var role string
	dest := append([]any{&u.ID, &u.Username, &u.Email, &u.FullName, &role, &u.CreatedAt, &u.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, httpx.ErrNotFound
		}
		return User{}, err
	}
	u.Role = rbac.Role(role)
	return u, nil
}

// Get loads a user by id.
func (r *Repository) Get(ctx context.Context, id string) (User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, httpx.ErrNotFound) {
		return User{}, fmt.Errorf("%w: user %s", httpx.ErrNotFound, id)
	}
	return u, err
}

// FindCredentials loads a user and password hash by username.
func (r *Repository) FindCredentials(ctx context.Context, username string) (Credentials, error) {
	var c Credentials
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+`, password_hash FROM users WHERE username = $1`, username), &c.PasswordHash)
	if err != nil {
		return Credentials{}, err
	}
	c.User = u
	return c, nil
}

// UsernameExists reports whether the username is taken.
func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	return exists, err
}

// Create inserts a user.
func (r *Repository) Create(ctx context.Context, u User, passwordHash string) (User, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO users (username, email, full_name, role, password_hash)
		VALUES ($1, $2, $3, $4, $5) RETURNING `+userColumns,
		u.Username, u.Email, u.FullName, string(u.Role), passwordHash)
	created, err := scanUser(row)
	if db.IsUniqueViolation(err) {
		return User{}, fmt.Errorf("%w: username %s", httpx.ErrDuplicate, u.Username)
	}
	return created, err
}

// Update applies column updates to a user.
func (r *Repository) Update(ctx context.Context, id string, updates map[string]any) (User, error) {
	if len(updates) == 0 {
		return r.Get(ctx, id)
	}
	sets := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+1)
	for _, col := range []string{"full_name", "email", "role", "password_hash"} {
		v, ok := updates[col]
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING `+userColumns, strings.Join(sets, ", "), len(args))
	u, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, httpx.ErrNotFound) {
		return User{}, fmt.Errorf("%w: user %s", httpx.ErrNotFound, id)
	}
	return u, err
}

// Delete removes users by id and reports how many rows went away.
func (r *Repository) Delete(ctx context.Context, ids []string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// List returns a page of users ordered by recency.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	var conditions []string
	var args []any
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(username ILIKE $%d OR full_name ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM users "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if clause, cargs := filter.KeysetClause("updated_at", "id::text", len(args)+1); clause != "" {
		args = append(args, cargs...)
		conditions = append(conditions, clause)
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filter.Limit+1)
	query := fmt.Sprintf(`SELECT %s FROM users %s ORDER BY updated_at DESC, id::text ASC LIMIT $%d`, userColumns, where, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}
