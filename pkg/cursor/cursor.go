// Package cursor implements the opaque keyset pagination token used by the
// gallery read path. A cursor encodes the sort key of
// the last row on a page so the next page can resume with a predicate
// comparison instead of an OFFSET.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/pixforge/genflow/pkg/apierr"
	"github.com/pixforge/genflow/pkg/models"
)

// currentVersion is the only cursor payload version this build accepts.
const currentVersion = 1

// Cursor is the decoded keyset pagination token.
type Cursor struct {
	CreatedAt time.Time     `json:"created_at"`
	ID        int64         `json:"id"`
	Source    models.Source `json:"source"`
	V         int           `json:"v"`
}

// payload is the wire shape: created_at is serialized with microsecond
// precision, distinct from Go's default RFC3339Nano.
type payload struct {
	CreatedAt string `json:"created_at"`
	ID        int64  `json:"id"`
	Source    string `json:"source"`
	V         int    `json:"v"`
}

const microTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Encode serializes a cursor as JSON then base64url without padding.
func Encode(c Cursor) string {
	p := payload{
		CreatedAt: c.CreatedAt.UTC().Format(microTimeLayout),
		ID:        c.ID,
		Source:    string(c.Source),
		V:         currentVersion,
	}
	raw, err := json.Marshal(p)
	if err != nil {
		// payload is a closed, always-marshalable shape; a failure here
		// indicates a programming error, not a runtime condition.
		panic("cursor: marshal failure: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses an opaque cursor string produced by Encode. A malformed
// token or version mismatch fails with a bad_cursor error.
func Decode(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, apierr.BadCursor("malformed cursor encoding")
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Cursor{}, apierr.BadCursor("malformed cursor payload")
	}

	if p.V != currentVersion {
		return Cursor{}, apierr.BadCursor("unsupported cursor version")
	}

	createdAt, err := time.Parse(microTimeLayout, p.CreatedAt)
	if err != nil {
		// fall back to RFC3339Nano for cursors produced before microsecond
		// formatting was pinned down; still a valid v1 payload.
		createdAt, err = time.Parse(time.RFC3339Nano, p.CreatedAt)
		if err != nil {
			return Cursor{}, apierr.BadCursor("malformed cursor timestamp")
		}
	}

	source := models.Source(p.Source)
	if p.Source != "" && !source.Valid() {
		return Cursor{}, apierr.BadCursor("malformed cursor source")
	}

	return Cursor{
		CreatedAt: createdAt,
		ID:        p.ID,
		Source:    source,
		V:         p.V,
	}, nil
}
