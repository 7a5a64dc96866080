package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

const conversationColumns = `id, is_group, group_name, group_admin, last_message_id, created_at, updated_at`

const participantColumns = `conversation_id, user_id, unread_count, last_read_at, last_read_message_id, joined_at`

const messageColumns = `id, conversation_id, sender_id, COALESCE(body, '') AS body, COALESCE(media_url, '') AS media_url,
        content_type, delivery_state, deleted, created_at`

type lockMode string

// Appends and repairs take the conversation row exclusively; readers of the
// watermark share it, which orders them against appends.
const (
	lockUpdate lockMode = "FOR UPDATE"
	lockShare  lockMode = "FOR SHARE"
)

// lockConversation locks the conversation row for the rest of tx.
func lockConversation(ctx context.Context, tx *sqlx.Tx, conversationID int64, mode lockMode) error {
	var locked int64
	err := tx.GetContext(ctx, &locked, `SELECT id FROM conversations WHERE id=$1 `+string(mode), conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrConversationNotFound
	}
	return err
}

// participantsByConversation loads participants for a set of conversations.
func participantsByConversation(ctx context.Context, q sqlx.QueryerContext, conversationIDs []int64) (map[int64][]models.Participant, error) {
	result := make(map[int64][]models.Participant, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT `+participantColumns+` FROM conversation_participants
        WHERE conversation_id IN (?) ORDER BY conversation_id, user_id`, conversationIDs)
	if err != nil {
		return nil, err
	}
	var rows []models.Participant
	if err := sqlx.SelectContext(ctx, q, &rows, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return nil, err
	}
	for _, p := range rows {
		result[p.ConversationID] = append(result[p.ConversationID], p)
	}
	return result, nil
}

// messagesByID loads messages, including deleted ones, with their reactions.
func messagesByID(ctx context.Context, q sqlx.QueryerContext, ids []int64) (map[int64]models.Message, error) {
	result := make(map[int64]models.Message, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT `+messageColumns+` FROM messages WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []models.Message
	if err := sqlx.SelectContext(ctx, q, &rows, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return nil, err
	}
	if err := attachReactions(ctx, q, rows); err != nil {
		return nil, err
	}
	for _, m := range rows {
		result[m.ID] = m
	}
	return result, nil
}

// attachReactions fills Reactions on msgs in place.
func attachReactions(ctx context.Context, q sqlx.QueryerContext, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	query, args, err := sqlx.In(`SELECT message_id, user_id, emoji, updated_at FROM message_reactions
        WHERE message_id IN (?) ORDER BY message_id, updated_at, user_id`, ids)
	if err != nil {
		return err
	}
	var reactions []models.Reaction
	if err := sqlx.SelectContext(ctx, q, &reactions, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return err
	}
	byMessage := make(map[int64][]models.Reaction, len(msgs))
	for _, r := range reactions {
		byMessage[r.MessageID] = append(byMessage[r.MessageID], r)
	}
	for i := range msgs {
		msgs[i].Reactions = byMessage[msgs[i].ID]
	}
	return nil
}

// hydrate attaches participants and last messages to conversations.
func hydrate(ctx context.Context, q sqlx.QueryerContext, convs []models.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(convs))
	lastIDs := make([]int64, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
		if c.LastMessageID != nil {
			lastIDs = append(lastIDs, *c.LastMessageID)
		}
	}
	participants, err := participantsByConversation(ctx, q, ids)
	if err != nil {
		return err
	}
	last, err := messagesByID(ctx, q, lastIDs)
	if err != nil {
		return err
	}
	for i := range convs {
		convs[i].Participants = participants[convs[i].ID]
		if convs[i].LastMessageID != nil {
			if m, ok := last[*convs[i].LastMessageID]; ok && !m.Deleted {
				convs[i].LastMessage = &m
			}
		}
	}
	return nil
}
