package shared

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/inventra/inventra/internal/platform/httpx"
)

const (
	// DefaultPageSize is used when the client sends no limit.
	DefaultPageSize = 20
	// MaxPageSize caps the limit a client may request.
	MaxPageSize = 100
)

// Cursor marks the last row of a page in (updated_at DESC, id ASC) order.
type Cursor struct {
	UpdatedAt time.Time `json:"u"`
	ID        string    `json:"i"`
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token produced by Cursor.Encode. An empty token yields nil.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", httpx.ErrValidation)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.ID == "" {
		return nil, fmt.Errorf("%w: malformed cursor", httpx.ErrValidation)
	}
	return &c, nil
}

// PageRequest carries keyset pagination and free-text search parameters.
type PageRequest struct {
	Limit  int
	Cursor *Cursor
	Search string
}

// NewPageRequest parses raw query values, clamping the limit.
func NewPageRequest(limit, cursor, search string) (PageRequest, error) {
	req := PageRequest{Limit: DefaultPageSize, Search: search}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return PageRequest{}, fmt.Errorf("%w: limit must be a positive integer", httpx.ErrValidation)
		}
		req.Limit = min(n, MaxPageSize)
	}
	c, err := DecodeCursor(cursor)
	if err != nil {
		return PageRequest{}, err
	}
	req.Cursor = c
	return req, nil
}

// KeysetClause returns the predicate selecting rows after the cursor, using
// placeholders starting at argPos, or an empty string without a cursor.
func (p PageRequest) KeysetClause(updatedCol, idCol string, argPos int) (string, []any) {
	if p.Cursor == nil {
		return "", nil
	}
	clause := fmt.Sprintf("(%[1]s < $%[3]d OR (%[1]s = $%[3]d AND %[2]s > $%[4]d))", updatedCol, idCol, argPos, argPos+1)
	return clause, []any{p.Cursor.UpdatedAt, p.Cursor.ID}
}

// Page is one slice of a keyset-paginated listing.
type Page[T any] struct {
	Data        []T    `json:"data"`
	NextCursor  string `json:"nextCursor,omitempty"`
	Total       int    `json:"total"`
	HasNextPage bool   `json:"hasNextPage"`
}

// NewPage trims rows fetched with limit+1 and derives the next cursor.
func NewPage[T any](rows []T, total, limit int, cursorOf func(T) Cursor) Page[T] {
	page := Page[T]{Data: rows, Total: total}
	if page.Data == nil {
		page.Data = []T{}
	}
	if limit > 0 && len(rows) > limit {
		page.Data = rows[:limit]
		page.HasNextPage = true
		page.NextCursor = cursorOf(page.Data[limit-1]).Encode()
	}
	return page
}
