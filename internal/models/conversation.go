package models

import (
	"fmt"
	"time"
)

// Conversation is either a direct chat between exactly two users or a named
// group with an admin.
type Conversation struct {
	ID            int64     `db:"id" json:"id"`
	IsGroup       bool      `db:"is_group" json:"is_group"`
	GroupName     *string   `db:"group_name" json:"group_name,omitempty"`
	GroupAdmin    *int64    `db:"group_admin" json:"group_admin,omitempty"`
	LastMessageID *int64    `db:"last_message_id" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`

	// Participants doubles as the unread counter table: one entry per
	// current participant.
	Participants []Participant `db:"-" json:"participants"`
	LastMessage  *Message      `db:"-" json:"last_message,omitempty"`
}

// Participant is a member of a conversation together with their unread
// counter. LastReadMessageID is the read watermark: messages of others with a
// greater id are unread.
type Participant struct {
	ConversationID    int64      `db:"conversation_id" json:"-"`
	UserID            int64      `db:"user_id" json:"user_id"`
	UnreadCount       int        `db:"unread_count" json:"unread_count"`
	LastReadAt        *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
	LastReadMessageID int64      `db:"last_read_message_id" json:"-"`
	JoinedAt          time.Time  `db:"joined_at" json:"joined_at"`
}

// HasParticipant reports whether userID currently belongs to the conversation.
func (c Conversation) HasParticipant(userID int64) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// UnreadFor returns the unread counter of userID, or 0 for non-participants.
func (c Conversation) UnreadFor(userID int64) int {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p.UnreadCount
		}
	}
	return 0
}

// IsAdmin reports whether userID administers the group.
func (c Conversation) IsAdmin(userID int64) bool {
	return c.IsGroup && c.GroupAdmin != nil && *c.GroupAdmin == userID
}

// ParticipantIDs lists the ids of all participants.
func (c Conversation) ParticipantIDs() []int64 {
	ids := make([]int64, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// DirectKey normalizes an unordered pair of users into the key that is
// unique across direct conversations.
func DirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// ResolveStatus tells callers whether a direct conversation was created by
// the call or already existed.
type ResolveStatus string

const (
	ResolveCreated ResolveStatus = "created"
	ResolveFound   ResolveStatus = "found"
)
