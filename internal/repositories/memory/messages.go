package memory

import (
	"context"
	"sort"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

func (s *Store) Append(ctx context.Context, in models.NewMessage) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[in.ConversationID]
	if !ok {
		return models.Message{}, repositories.ErrConversationNotFound
	}
	if _, member := conv.participants[in.SenderID]; !member {
		return models.Message{}, repositories.ErrNotParticipant
	}

	// Creation time never goes backwards within a conversation.
	now := s.now()
	if last, ok := s.lastCreated[conv.ID]; ok && now.Before(last) {
		now = last
	}
	s.lastCreated[conv.ID] = now

	s.nextMessageID++
	msg := &models.Message{
		ID:             s.nextMessageID,
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Text:           in.Text,
		MediaURL:       in.MediaURL,
		ContentType:    in.ContentType,
		DeliveryState:  models.StateSent,
		CreatedAt:      now,
	}
	s.messages[msg.ID] = msg
	s.byConversation[conv.ID] = append(s.byConversation[conv.ID], msg.ID)

	conv.LastMessageID = &msg.ID
	conv.UpdatedAt = now
	for id, p := range conv.participants {
		if id != in.SenderID {
			p.UnreadCount++
		}
	}
	return *msg, nil
}

func (s *Store) Page(ctx context.Context, conversationID int64, cursor *models.Cursor, limit int) (models.Page, error) {
	if err := ctx.Err(); err != nil {
		return models.Page{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var newestFirst []models.Message
	for _, id := range s.byConversation[conversationID] {
		m := s.messages[id]
		if m.Deleted || (cursor != nil && !cursor.After(*m)) {
			continue
		}
		newestFirst = append(newestFirst, s.messageCopy(m))
	}
	sort.Slice(newestFirst, func(i, j int) bool {
		a, b := newestFirst[i], newestFirst[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	if limit > 0 && len(newestFirst) > limit {
		newestFirst = newestFirst[:limit]
	}
	return models.NewPage(newestFirst, limit), nil
}

func (s *Store) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return s.messageCopy(m), nil
}

func (s *Store) SoftDelete(ctx context.Context, conversationID, messageID, senderID int64) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.Message{}, repositories.ErrConversationNotFound
	}
	m, ok := s.messages[messageID]
	if !ok || m.ConversationID != conversationID || m.SenderID != senderID || m.Deleted {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	m.Deleted = true

	for id, p := range conv.participants {
		if id == senderID || p.LastReadMessageID >= m.ID {
			continue
		}
		if p.UnreadCount > 0 {
			p.UnreadCount--
		}
	}

	if conv.LastMessageID != nil && *conv.LastMessageID == messageID {
		conv.LastMessageID = nil
		var newest *models.Message
		for _, id := range s.byConversation[conversationID] {
			cand := s.messages[id]
			if cand.Deleted {
				continue
			}
			if newest == nil || cand.CreatedAt.After(newest.CreatedAt) ||
				(cand.CreatedAt.Equal(newest.CreatedAt) && cand.ID > newest.ID) {
				newest = cand
			}
		}
		if newest != nil {
			id := newest.ID
			conv.LastMessageID = &id
		}
	}
	return s.messageCopy(m), nil
}

func (s *Store) SetReaction(ctx context.Context, messageID, userID int64, emoji string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[messageID]; !ok {
		return repositories.ErrMessageNotFound
	}
	if emoji == "" {
		delete(s.reactions[messageID], userID)
		return nil
	}
	if s.reactions[messageID] == nil {
		s.reactions[messageID] = make(map[int64]models.Reaction)
	}
	s.reactions[messageID][userID] = models.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji, UpdatedAt: s.now()}
	return nil
}

func (s *Store) AdvanceState(ctx context.Context, conversationID, userID int64, state models.DeliveryState) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if state.Rank() == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return 0, repositories.ErrConversationNotFound
	}
	ids := s.byConversation[conversationID]
	for _, id := range ids {
		m := s.messages[id]
		if m.Deleted || m.SenderID == userID {
			continue
		}
		if s.receipts[id] == nil {
			s.receipts[id] = make(map[int64]models.DeliveryState)
		}
		if s.receipts[id][userID].Rank() < state.Rank() {
			s.receipts[id][userID] = state
		}
	}

	var promoted int64
	for _, id := range ids {
		m := s.messages[id]
		if m.Deleted || m.DeliveryState.Rank() >= state.Rank() {
			continue
		}
		reached := true
		for pid := range conv.participants {
			if pid != m.SenderID && s.receipts[id][pid].Rank() < state.Rank() {
				reached = false
				break
			}
		}
		if reached {
			m.DeliveryState = state
			promoted++
		}
	}
	return promoted, nil
}

// Reset zeroes the counter and moves the read watermark to the newest
// message.
func (s *Store) Reset(ctx context.Context, conversationID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.participant(conversationID, userID)
	if err != nil {
		return err
	}
	now := s.now()
	p.UnreadCount = 0
	p.LastReadAt = &now
	p.LastReadMessageID = s.latestMessageID(conversationID)
	return nil
}

func (s *Store) Unread(ctx context.Context, conversationID, userID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.participant(conversationID, userID)
	if err != nil {
		return 0, err
	}
	return p.UnreadCount, nil
}

func (s *Store) Recompute(ctx context.Context, conversationID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return repositories.ErrConversationNotFound
	}
	for uid, p := range conv.participants {
		count := 0
		for _, id := range s.byConversation[conversationID] {
			m := s.messages[id]
			if m.Deleted || m.SenderID == uid || m.ID <= p.LastReadMessageID {
				continue
			}
			count++
		}
		p.UnreadCount = count
	}
	return nil
}

func (s *Store) ConversationIDs(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) participant(conversationID, userID int64) (*models.Participant, error) {
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, repositories.ErrNotParticipant
	}
	p, ok := conv.participants[userID]
	if !ok {
		return nil, repositories.ErrNotParticipant
	}
	return p, nil
}

func (s *Store) messageCopy(m *models.Message) models.Message {
	out := *m
	out.Reactions = nil
	if rs := s.reactions[m.ID]; len(rs) > 0 {
		out.Reactions = make([]models.Reaction, 0, len(rs))
		for _, r := range rs {
			out.Reactions = append(out.Reactions, r)
		}
		sort.Slice(out.Reactions, func(i, j int) bool { return out.Reactions[i].UserID < out.Reactions[j].UserID })
	}
	return out
}
