// Package pagination implements stateless keyset pagination over the
// (created_at DESC, id DESC) ordering used by document listings.
//
// A cursor is base64url-encoded JSON {last_value, last_id, direction}. The
// server keeps no cursor state; a cursor that cannot be decoded is treated as
// the start of the listing.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction is the paging direction a cursor points in.
type Direction string

// Cursor directions
const (
	DirectionNext Direction = "next"
	DirectionPrev Direction = "prev"
)

// Limits applied to the requested page size.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// ErrInvalidCursor is returned by Decode for malformed tokens.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the decoded form of a pagination token.
type Cursor struct {
	LastValue time.Time `json:"last_value"`
	LastID    uuid.UUID `json:"last_id"`
	Direction Direction `json:"direction"`
}

// Encode returns the opaque token for c.
func Encode(c Cursor) string {
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(raw)
}

// Decode parses a token produced by Encode.
func Decode(token string) (Cursor, error) {
	var c Cursor
	raw, err := base64.URLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return c, ErrInvalidCursor
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	if c.LastValue.IsZero() || c.LastID == uuid.Nil {
		return Cursor{}, ErrInvalidCursor
	}
	switch c.Direction {
	case DirectionNext, DirectionPrev:
	default:
		return Cursor{}, ErrInvalidCursor
	}
	return c, nil
}

// DecodeOrStart decodes token and reports whether a usable cursor was
// found. Empty and invalid tokens both yield (nil, false).
func DecodeOrStart(token string) (*Cursor, bool) {
	if token == "" {
		return nil, false
	}
	c, err := Decode(token)
	if err != nil {
		return nil, false
	}
	return &c, true
}

// ClampLimit bounds a requested page size to [1, MaxLimit], substituting
// DefaultLimit for non-positive values.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
