package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// UnreadRepo is a sqlx implementation of UnreadRepository.
type UnreadRepo struct {
	db *sqlx.DB
}

// NewUnreadRepo constructs an UnreadRepo.
func NewUnreadRepo(db *sqlx.DB) *UnreadRepo {
	return &UnreadRepo{db: db}
}

// Reset zeroes the counter and moves the watermark to the newest message.
// The share lock waits out an in-flight append, so an increment is either
// covered by the watermark or lands after the reset.
func (r *UnreadRepo) Reset(ctx context.Context, conversationID, userID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := lockConversation(ctx, tx, conversationID, lockShare); err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return ErrNotParticipant
		}
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE conversation_participants SET unread_count=0, last_read_at=clock_timestamp(),
        last_read_message_id=(SELECT COALESCE(MAX(id), 0) FROM messages WHERE conversation_id=$1)
        WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotParticipant
	}
	return tx.Commit()
}

// Unread returns the current counter.
func (r *UnreadRepo) Unread(ctx context.Context, conversationID, userID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT unread_count FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2`,
		conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotParticipant
	}
	return count, err
}

// Recompute recounts every participant's unread messages from the log. It
// holds the conversation row exclusively so no append lands mid-count.
func (r *UnreadRepo) Recompute(ctx context.Context, conversationID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := lockConversation(ctx, tx, conversationID, lockUpdate); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversation_participants p SET unread_count = (
            SELECT COUNT(*) FROM messages m
            WHERE m.conversation_id = p.conversation_id
            AND m.sender_id <> p.user_id
            AND m.deleted = FALSE
            AND m.id > p.last_read_message_id)
        WHERE p.conversation_id=$1`, conversationID); err != nil {
		return err
	}
	return tx.Commit()
}

// ConversationIDs lists every conversation, for the reconciler.
func (r *UnreadRepo) ConversationIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM conversations ORDER BY id`)
	return ids, err
}
