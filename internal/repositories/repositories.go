package repositories

import (
	"context"
	"errors"

	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotParticipant       = errors.New("user is not a participant")
	ErrAlreadyParticipant   = errors.New("user is already a participant")
)

// ConversationRepository persists conversations and their participants.
type ConversationRepository interface {
	// FindDirect returns the direct conversation of the pair, or
	// ErrConversationNotFound.
	FindDirect(ctx context.Context, userA, userB int64) (models.Conversation, error)
	// CreateDirect inserts the direct conversation of the pair. If another
	// writer won the race it returns the winner with created=false.
	CreateDirect(ctx context.Context, userA, userB int64) (conv models.Conversation, created bool, err error)
	CreateGroup(ctx context.Context, adminID int64, name string, participantIDs []int64) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	ListForUser(ctx context.Context, userID int64) ([]models.Conversation, error)
	AddParticipant(ctx context.Context, conversationID, userID int64) error
	RemoveParticipant(ctx context.Context, conversationID, userID int64) error
}

// MessageRepository persists messages and their per-message state.
type MessageRepository interface {
	// Append stores the message, moves the conversation's last message
	// pointer and increments every other participant's unread counter, all
	// in one unit.
	Append(ctx context.Context, msg models.NewMessage) (models.Message, error)
	// Page returns up to limit non-deleted messages older than cursor,
	// oldest first.
	Page(ctx context.Context, conversationID int64, cursor *models.Cursor, limit int) (models.Page, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	// SoftDelete tombstones a message of senderID and rolls back the unread
	// increments it caused for participants who had not read it yet.
	SoftDelete(ctx context.Context, conversationID, messageID, senderID int64) (models.Message, error)
	// SetReaction upserts the user's reaction; an empty emoji removes it.
	SetReaction(ctx context.Context, messageID, userID int64, emoji string) error
	// AdvanceState records that userID has reached state for every message
	// of others in the conversation and promotes messages whose recipients
	// all have. It returns the number of promoted messages.
	AdvanceState(ctx context.Context, conversationID, userID int64, state models.DeliveryState) (int64, error)
}

// UnreadRepository owns the per-participant unread counters outside the
// append path.
type UnreadRepository interface {
	// Reset zeroes the counter with a single keyed write.
	Reset(ctx context.Context, conversationID, userID int64) error
	Unread(ctx context.Context, conversationID, userID int64) (int, error)
	// Recompute rebuilds the counters of a conversation from the message
	// log. Repair only.
	Recompute(ctx context.Context, conversationID int64) error
	ConversationIDs(ctx context.Context) ([]int64, error)
}

// UserDirectory answers existence questions about users owned by the
// identity service.
type UserDirectory interface {
	MissingUsers(ctx context.Context, ids []int64) ([]int64, error)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
