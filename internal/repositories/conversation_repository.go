package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"messaging-service/internal/models"
)

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// FindDirect looks the pair up through its normalized key.
func (r *ConversationRepo) FindDirect(ctx context.Context, userA, userB int64) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE direct_key=$1`, models.DirectKey(userA, userB))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	return r.load(ctx, conv)
}

// CreateDirect inserts the conversation and both participants in one
// transaction. The unique direct_key makes a concurrent insert wait for the
// winner and then do nothing, in which case the winner's row is returned.
func (r *ConversationRepo) CreateDirect(ctx context.Context, userA, userB int64) (models.Conversation, bool, error) {
	if userA == userB {
		return models.Conversation{}, false, errors.New("cannot create chat with self")
	}
	key := models.DirectKey(userA, userB)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, false, err
	}
	defer tx.Rollback()

	var conv models.Conversation
	err = tx.GetContext(ctx, &conv, `INSERT INTO conversations (is_group, direct_key) VALUES (FALSE, $1)
        ON CONFLICT (direct_key) DO NOTHING RETURNING `+conversationColumns, key)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		conv, err := r.FindDirect(ctx, userA, userB)
		return conv, false, err
	}
	if err != nil {
		return models.Conversation{}, false, err
	}

	for _, id := range []int64{userA, userB} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`, conv.ID, id); err != nil {
			return models.Conversation{}, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Conversation{}, false, err
	}
	conv, err = r.load(ctx, conv)
	return conv, true, err
}

// CreateGroup creates a group and its participants atomically.
func (r *ConversationRepo) CreateGroup(ctx context.Context, adminID int64, name string, participantIDs []int64) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	var conv models.Conversation
	if err := tx.GetContext(ctx, &conv, `INSERT INTO conversations (is_group, group_name, group_admin) VALUES (TRUE, $1, $2)
        RETURNING `+conversationColumns, name, adminID); err != nil {
		return models.Conversation{}, err
	}

	ids := lo.Uniq(append([]int64{adminID}, participantIDs...))
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`, conv.ID, id); err != nil {
			return models.Conversation{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return r.load(ctx, conv)
}

// GetConversation fetches a conversation with participants and last message.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	return r.load(ctx, conv)
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`, conversationID, userID)
	return exists, err
}

// ListForUser returns the user's conversations, most recent activity first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]models.Conversation, error) {
	query := `SELECT c.id, c.is_group, c.group_name, c.group_admin, c.last_message_id, c.created_at, c.updated_at
        FROM conversations c
        INNER JOIN conversation_participants p ON p.conversation_id = c.id
        WHERE p.user_id=$1
        ORDER BY c.updated_at DESC, c.id DESC`
	var convs []models.Conversation
	if err := r.db.SelectContext(ctx, &convs, query, userID); err != nil {
		return nil, err
	}
	if err := hydrate(ctx, r.db, convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// AddParticipant appends a user to a group. The newcomer starts with nothing
// unread: the watermark is taken under a share lock on the conversation, so
// no append can slip between it and the insert.
func (r *ConversationRepo) AddParticipant(ctx context.Context, conversationID, userID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := lockConversation(ctx, tx, conversationID, lockShare); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, last_read_at, last_read_message_id)
        VALUES ($1, $2, NOW(), (SELECT COALESCE(MAX(id), 0) FROM messages WHERE conversation_id=$1))`, conversationID, userID)
	if isUniqueViolation(err) {
		return ErrAlreadyParticipant
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveParticipant drops a user and their counter from a group.
func (r *ConversationRepo) RemoveParticipant(ctx context.Context, conversationID, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
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
	return nil
}

func (r *ConversationRepo) load(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	convs := []models.Conversation{conv}
	if err := hydrate(ctx, r.db, convs); err != nil {
		return models.Conversation{}, err
	}
	return convs[0], nil
}
