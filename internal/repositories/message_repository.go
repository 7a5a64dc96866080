package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append runs the whole write path in one transaction. Locking the
// conversation row serializes appends per conversation, so created_at and id
// grow together and last_message_id always points at the newest message.
func (r *MessageRepo) Append(ctx context.Context, in models.NewMessage) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	if err := lockConversation(ctx, tx, in.ConversationID, lockUpdate); err != nil {
		return models.Message{}, err
	}

	var member bool
	if err := tx.GetContext(ctx, &member, `SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`,
		in.ConversationID, in.SenderID); err != nil {
		return models.Message{}, err
	}
	if !member {
		return models.Message{}, ErrNotParticipant
	}

	var msg models.Message
	if err := tx.GetContext(ctx, &msg, `INSERT INTO messages (conversation_id, sender_id, body, media_url, content_type)
        VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5) RETURNING `+messageColumns,
		in.ConversationID, in.SenderID, in.Text, in.MediaURL, in.ContentType); err != nil {
		return models.Message{}, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_id=$2, updated_at=$3 WHERE id=$1`,
		in.ConversationID, msg.ID, msg.CreatedAt); err != nil {
		return models.Message{}, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversation_participants SET unread_count = unread_count + 1
        WHERE conversation_id=$1 AND user_id<>$2`, in.ConversationID, in.SenderID); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Page reads newest-first from the history index and returns the page
// oldest-first.
func (r *MessageRepo) Page(ctx context.Context, conversationID int64, cursor *models.Cursor, limit int) (models.Page, error) {
	var (
		msgs []models.Message
		err  error
	)
	if cursor == nil {
		err = r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE conversation_id=$1 AND deleted=FALSE
            ORDER BY created_at DESC, id DESC LIMIT $2`, conversationID, limit)
	} else {
		err = r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE conversation_id=$1 AND deleted=FALSE
            AND (created_at < $2 OR (created_at = $2 AND id < $3))
            ORDER BY created_at DESC, id DESC LIMIT $4`, conversationID, cursor.CreatedAt, cursor.Seq, limit)
	}
	if err != nil {
		return models.Page{}, err
	}
	if err := attachReactions(ctx, r.db, msgs); err != nil {
		return models.Page{}, err
	}
	return models.NewPage(msgs, limit), nil
}

// GetMessage retrieves a single message, deleted or not.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	msgs, err := messagesByID(ctx, r.db, []int64{messageID})
	if err != nil {
		return models.Message{}, err
	}
	msg, ok := msgs[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, nil
}

// SoftDelete marks a message deleted for everyone.
func (r *MessageRepo) SoftDelete(ctx context.Context, conversationID, messageID, senderID int64) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	if err := lockConversation(ctx, tx, conversationID, lockUpdate); err != nil {
		return models.Message{}, err
	}

	var msg models.Message
	err = tx.GetContext(ctx, &msg, `UPDATE messages SET deleted=TRUE
        WHERE id=$1 AND conversation_id=$2 AND sender_id=$3 AND deleted=FALSE
        RETURNING `+messageColumns, messageID, conversationID, senderID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversation_participants SET unread_count = GREATEST(unread_count - 1, 0)
        WHERE conversation_id=$1 AND user_id<>$2 AND last_read_message_id < $3`,
		conversationID, senderID, msg.ID); err != nil {
		return models.Message{}, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_id = (
            SELECT id FROM messages WHERE conversation_id=$1 AND deleted=FALSE ORDER BY created_at DESC, id DESC LIMIT 1)
        WHERE id=$1 AND last_message_id=$2`, conversationID, messageID); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// SetReaction keeps one reaction per user; the latest write wins.
func (r *MessageRepo) SetReaction(ctx context.Context, messageID, userID int64, emoji string) error {
	if emoji == "" {
		_, err := r.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2`, messageID, userID)
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)
        ON CONFLICT (message_id, user_id) DO UPDATE SET emoji = EXCLUDED.emoji, updated_at = NOW()`, messageID, userID, emoji)
	return err
}

// AdvanceState writes receipts for userID and promotes messages whose
// recipients have all reached the state.
func (r *MessageRepo) AdvanceState(ctx context.Context, conversationID, userID int64, state models.DeliveryState) (int64, error) {
	var reached, lower string
	switch state {
	case models.StateRead:
		reached, lower = `('read')`, `('sent', 'delivered')`
	case models.StateDelivered:
		reached, lower = `('delivered', 'read')`, `('sent')`
	default:
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO message_receipts (message_id, user_id, state)
        SELECT m.id, $2, $3 FROM messages m
        WHERE m.conversation_id=$1 AND m.sender_id<>$2 AND m.deleted=FALSE
        AND NOT EXISTS (SELECT 1 FROM message_receipts r WHERE r.message_id=m.id AND r.user_id=$2 AND r.state IN `+reached+`)
        ON CONFLICT (message_id, user_id) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`,
		conversationID, userID, state); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `UPDATE messages m SET delivery_state=$2
        WHERE m.conversation_id=$1 AND m.deleted=FALSE AND m.delivery_state IN `+lower+`
        AND NOT EXISTS (
            SELECT 1 FROM conversation_participants p
            WHERE p.conversation_id=m.conversation_id AND p.user_id<>m.sender_id
            AND NOT EXISTS (SELECT 1 FROM message_receipts r WHERE r.message_id=m.id AND r.user_id=p.user_id AND r.state IN `+reached+`)
        )`, conversationID, state)
	if err != nil {
		return 0, err
	}
	promoted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return promoted, nil
}
