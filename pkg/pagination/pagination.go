// Package pagination implements keyset paging over journal-like tables ordered
// by (created_at DESC, id DESC). Cursors are opaque URL-safe tokens.
package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLimit is the page size when the caller sends none.
	DefaultLimit = 25
	// MaxLimit caps any page.
	MaxLimit = 100

	cursorVersion = "v1"
)

// ErrInvalidCursor is returned for tokens this package did not issue.
var ErrInvalidCursor = errors.New("invalid cursor")

// Params holds the paging inputs read from a request.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the sort key of the last row on a page. The next page starts
// strictly after it.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit applies DefaultLimit and MaxLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer is the row count to fetch: one extra row tells whether a
// next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor renders cursor as an opaque token.
func EncodeCursor(cursor Cursor) string {
	payload := cursorVersion + "|" + cursor.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + cursor.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes a token from EncodeCursor. An empty token means the first
// page and yields a nil cursor.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parts := strings.Split(string(decoded), "|")
	if len(parts) != 3 || parts[0] != cursorVersion {
		return nil, ErrInvalidCursor
	}
	createdAt, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, ErrInvalidCursor
	}
	id, err := uuid.Parse(parts[2])
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: createdAt, ID: id}, nil
}

// Trim cuts rows fetched with LimitWithBuffer down to one page and returns the
// cursor for the next page, or "" on the last page.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	page := rows[:limit]
	return page, EncodeCursor(key(page[limit-1]))
}
