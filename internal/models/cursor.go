package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor marks a position in a conversation's history. Pages return messages
// strictly older than the cursor in (CreatedAt, Seq) order.
type Cursor struct {
	CreatedAt time.Time
	Seq       int64
}

// Encode renders the cursor as an opaque token.
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + ":" + strconv.FormatInt(c.Seq, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// After reports whether the cursor sits after m, i.e. m belongs to the page
// that starts at the cursor.
func (c Cursor) After(m Message) bool {
	if m.CreatedAt.Equal(c.CreatedAt) {
		return m.ID < c.Seq
	}
	return m.CreatedAt.Before(c.CreatedAt)
}

// ParseCursor decodes a token produced by Encode. A plain RFC 3339 timestamp
// is accepted as well and selects everything strictly older than it.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, token); err == nil {
		return &Cursor{CreatedAt: ts, Seq: math.MinInt64}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	nanos, seq, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	s, err := strconv.ParseInt(seq, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return &Cursor{CreatedAt: time.Unix(0, n).UTC(), Seq: s}, nil
}
