// Package pagination implements opaque keyset cursors over the
// (created_at DESC, id DESC) ordering. The encoded form is a public wire
// contract: base64 of "<RFC3339 timestamp>|<id>".
package pagination

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/halden-labs/application_layer/internal/errors"
)

// MaxLimit caps the page size. Requests beyond the cap are rejected, not
// truncated.
const MaxLimit = 50

// Cursor is the keyset position of the last item of the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode serializes the cursor into its opaque wire form.
func Encode(c Cursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor. Any string not produced by Encode yields a
// BadRequest, never a silent empty position.
func Decode(raw string) (Cursor, error) {
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Cursor{}, errors.BadRequest("invalid cursor")
	}
	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 || parts[1] == "" {
		return Cursor{}, errors.BadRequest("invalid cursor")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Cursor{}, errors.BadRequest("invalid cursor")
	}
	return Cursor{CreatedAt: ts, ID: parts[1]}, nil
}

// ValidateLimit enforces 1..MaxLimit as a hard precondition.
func ValidateLimit(limit int) error {
	if limit <= 0 {
		return errors.BadRequest("page size must be positive")
	}
	if limit > MaxLimit {
		return errors.BadRequest("page size must not exceed 50")
	}
	return nil
}
