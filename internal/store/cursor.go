package store

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/coremodel/coremodel/internal/model"
)

// Pagination limits shared by backends and callers.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Cursor is the decoded keyset position of a paginated listing.
type Cursor struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// EncodeCursor encodes a pagination cursor to URL-safe base64.
func EncodeCursor(c Cursor) string {
	data, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor decodes a cursor produced by EncodeCursor.
// An empty string decodes to nil.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, ErrInvalidCursor
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return nil, ErrInvalidCursor
	}

	return &c, nil
}

// ClampPageSize normalizes a requested page size.
func ClampPageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// NextCursor trims a page fetched with limit+1 rows and returns the cursor
// of the following page, or "" when there is none.
func NextCursor(users []*model.User, limit int) ([]*model.User, string) {
	if len(users) <= limit {
		return users, ""
	}
	users = users[:limit]
	last := users[len(users)-1]
	return users, EncodeCursor(Cursor{ID: last.ID, CreatedAt: last.CreatedAt})
}
