package models

import (
	"errors"
	"strings"
	"time"
)

// ContentType is derived from the attached media, if any.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentVideo ContentType = "video"
)

// DeliveryState of a message. For groups it reaches a state only once every
// recipient has.
type DeliveryState string

const (
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateRead      DeliveryState = "read"
)

// Rank orders delivery states so that they only ever move forward.
func (s DeliveryState) Rank() int {
	switch s {
	case StateDelivered:
		return 1
	case StateRead:
		return 2
	default:
		return 0
	}
}

var ErrEmptyContent = errors.New("message needs text or media")

// Message is a persisted message. ID is assigned in insertion order and
// breaks ties between equal CreatedAt values.
type Message struct {
	ID             int64         `db:"id" json:"id"`
	ConversationID int64         `db:"conversation_id" json:"conversation_id"`
	SenderID       int64         `db:"sender_id" json:"sender_id"`
	Text           string        `db:"body" json:"text,omitempty"`
	MediaURL       string        `db:"media_url" json:"media_url,omitempty"`
	ContentType    ContentType   `db:"content_type" json:"content_type"`
	DeliveryState  DeliveryState `db:"delivery_state" json:"delivery_state"`
	Deleted        bool          `db:"deleted" json:"-"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	Reactions      []Reaction    `db:"-" json:"reactions,omitempty"`
}

// Position returns the pagination position of m.
func (m Message) Position() Cursor {
	return Cursor{CreatedAt: m.CreatedAt, Seq: m.ID}
}

// Reaction is a single user's emoji on a message; one per user.
type Reaction struct {
	MessageID int64     `db:"message_id" json:"message_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Emoji     string    `db:"emoji" json:"emoji"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewMessage is the input of an append.
type NewMessage struct {
	ConversationID int64
	SenderID       int64
	Text           string
	MediaURL       string
	ContentType    ContentType
}

// Normalize trims the text, derives a missing content type and enforces that
// at least one of text or media is present.
func (n NewMessage) Normalize() (NewMessage, error) {
	n.Text = strings.TrimSpace(n.Text)
	n.MediaURL = strings.TrimSpace(n.MediaURL)
	if n.Text == "" && n.MediaURL == "" {
		return n, ErrEmptyContent
	}
	if n.MediaURL == "" {
		n.ContentType = ContentText
	} else if n.ContentType != ContentImage && n.ContentType != ContentVideo {
		n.ContentType = ContentImage
	}
	return n, nil
}

// Page is one slice of history, oldest message first.
type Page struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// NewPage builds a page from messages read newest-first with the given limit.
func NewPage(newestFirst []Message, limit int) Page {
	msgs := make([]Message, len(newestFirst))
	for i, m := range newestFirst {
		msgs[len(newestFirst)-1-i] = m
	}
	page := Page{Messages: msgs, HasMore: limit > 0 && len(msgs) == limit}
	if page.HasMore {
		page.NextCursor = msgs[0].Position().Encode()
	}
	return page
}
