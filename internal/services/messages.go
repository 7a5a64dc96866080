package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"messaging-service/internal/apperr"
	"messaging-service/internal/media"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// SendMessageInput is one message submitted by a participant. Attachment,
// when set, is stored first and replaces MediaURL.
type SendMessageInput struct {
	ConversationID int64              `validate:"gt=0"`
	SenderID       int64              `validate:"gt=0"`
	Text           string             `validate:"max=4000"`
	MediaURL       string             `validate:"max=2048"`
	ContentType    models.ContentType `validate:"omitempty,oneof=text image video"`
	Attachment     *media.Upload      `validate:"-"`
}

// SendMessage validates, persists and then broadcasts a message. The stored
// message is returned whatever happens to the broadcast; nothing is
// broadcast when persisting fails.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (models.Message, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "chat.send_message")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("conversation.id", in.ConversationID),
		attribute.Int64("sender.id", in.SenderID),
	)

	msg, err := s.sendMessage(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Message(err))
		observability.IncMessageIngested(string(in.ContentType), string(apperr.KindOf(err)))
		return models.Message{}, err
	}
	observability.IncMessageIngested(string(msg.ContentType), "ok")
	span.SetAttributes(attribute.Int64("message.id", msg.ID))
	return msg, nil
}

func (s *ChatService) sendMessage(ctx context.Context, in SendMessageInput) (models.Message, error) {
	if err := s.validate.Struct(in); err != nil {
		return models.Message{}, s.validationError(err)
	}
	if err := s.requireParticipant(ctx, in.ConversationID, in.SenderID); err != nil {
		return models.Message{}, err
	}

	if in.Attachment != nil {
		file, err := s.storeAttachment(ctx, *in.Attachment)
		if err != nil {
			return models.Message{}, err
		}
		in.MediaURL = media.URL(s.opts.MediaBaseURL, file.ID)
		in.ContentType = file.ContentType
	}

	draft, err := models.NewMessage{
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Text:           in.Text,
		MediaURL:       in.MediaURL,
		ContentType:    in.ContentType,
	}.Normalize()
	if err != nil {
		return models.Message{}, apperr.Invalid("message text or media is required")
	}

	var msg models.Message
	err = s.storeCall(ctx, "append", func(ctx context.Context) error {
		var err error
		msg, err = s.msgs.Append(ctx, draft)
		return err
	})
	if err != nil {
		s.log.Error("message append failed", "conversation_id", in.ConversationID, "sender_id", in.SenderID, "error", err)
		return models.Message{}, mapStoreErr(err, "failed to store message")
	}

	stored := msg
	s.hub.BroadcastToRoom(msg.ConversationID, models.ServerEvent{
		Type:           models.EventMessageReceived,
		ConversationID: msg.ConversationID,
		UserID:         msg.SenderID,
		Message:        &stored,
	})
	s.publish(ctx, "message.created", msg)
	return msg, nil
}

func (s *ChatService) storeAttachment(ctx context.Context, upload media.Upload) (media.File, error) {
	if s.media == nil {
		return media.File{}, apperr.Invalid("attachments are not enabled")
	}
	upload.Filename = strings.TrimSpace(upload.Filename)
	var file media.File
	err := s.storeCall(ctx, "media_save", func(ctx context.Context) error {
		var err error
		file, err = s.media.Save(ctx, upload)
		return err
	})
	switch {
	case errors.Is(err, media.ErrUnsupportedMedia):
		return media.File{}, apperr.Invalid(media.ErrUnsupportedMedia.Error())
	case errors.Is(err, media.ErrTooLarge):
		return media.File{}, apperr.Wrap(apperr.KindInvalidArgument, media.ErrTooLarge.Error(), media.ErrTooLarge)
	case err != nil:
		return media.File{}, mapStoreErr(err, "failed to store attachment")
	}
	return file, nil
}

// GetMessages returns one page of history, oldest first. An empty cursor
// starts from the newest message.
func (s *ChatService) GetMessages(ctx context.Context, conversationID, userID int64, cursorToken string, limit int) (models.Page, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return models.Page{}, err
	}
	cursor, err := models.ParseCursor(cursorToken)
	if err != nil {
		return models.Page{}, apperr.Invalid("invalid cursor")
	}
	switch {
	case limit <= 0:
		limit = s.opts.PageDefaultLimit
	case limit > s.opts.PageMaxLimit:
		limit = s.opts.PageMaxLimit
	}

	var page models.Page
	err = s.storeCall(ctx, "page", func(ctx context.Context) error {
		var err error
		page, err = s.msgs.Page(ctx, conversationID, cursor, limit)
		return err
	})
	if err != nil {
		return models.Page{}, mapStoreErr(err, "failed to load messages")
	}
	if page.Messages == nil {
		page.Messages = []models.Message{}
	}
	return page, nil
}

// MarkRead zeroes the reader's unread counter and records read receipts.
func (s *ChatService) MarkRead(ctx context.Context, conversationID, userID int64) error {
	err := s.storeCall(ctx, "reset_unread", func(ctx context.Context) error {
		return s.unread.Reset(ctx, conversationID, userID)
	})
	if err != nil {
		return s.membershipError(ctx, err, conversationID, "failed to reset unread count")
	}
	observability.IncUnreadReset()

	s.advance(ctx, conversationID, userID, models.StateRead, models.EventMessagesRead)
	return nil
}

// MarkDelivered records that the user's client has received the
// conversation's messages.
func (s *ChatService) MarkDelivered(ctx context.Context, conversationID, userID int64) error {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	s.advance(ctx, conversationID, userID, models.StateDelivered, models.EventMessagesDelivered)
	return nil
}

// advance updates receipts. Receipts are secondary to the counter, so
// failures are logged and not returned.
func (s *ChatService) advance(ctx context.Context, conversationID, userID int64, state models.DeliveryState, event models.EventType) {
	err := s.storeCall(ctx, "advance_state", func(ctx context.Context) error {
		_, err := s.msgs.AdvanceState(ctx, conversationID, userID, state)
		return err
	})
	if err != nil {
		s.log.Warn("delivery state update failed", "conversation_id", conversationID, "user_id", userID, "state", state, "error", err)
		return
	}
	s.hub.BroadcastToRoom(conversationID, models.ServerEvent{
		Type:           event,
		ConversationID: conversationID,
		UserID:         userID,
		State:          state,
	})
}

// Unread returns the caller's counter for a conversation.
func (s *ChatService) Unread(ctx context.Context, conversationID, userID int64) (int, error) {
	var count int
	err := s.storeCall(ctx, "unread", func(ctx context.Context) error {
		var err error
		count, err = s.unread.Unread(ctx, conversationID, userID)
		return err
	})
	if err != nil {
		return 0, s.membershipError(ctx, err, conversationID, "failed to load unread count")
	}
	return count, nil
}

// React sets or, with an empty emoji, clears the caller's reaction.
func (s *ChatService) React(ctx context.Context, conversationID, messageID, userID int64, emoji string) (models.Reaction, error) {
	emoji = strings.TrimSpace(emoji)
	if err := s.validate.Var(emoji, "max=32"); err != nil {
		return models.Reaction{}, apperr.Invalid("invalid emoji")
	}
	if _, err := s.messageIn(ctx, conversationID, messageID, userID); err != nil {
		return models.Reaction{}, err
	}

	err := s.storeCall(ctx, "set_reaction", func(ctx context.Context) error {
		return s.msgs.SetReaction(ctx, messageID, userID, emoji)
	})
	if err != nil {
		return models.Reaction{}, mapStoreErr(err, "failed to save reaction")
	}

	reaction := models.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}
	s.hub.BroadcastToRoom(conversationID, models.ServerEvent{
		Type:           models.EventReactionUpdated,
		ConversationID: conversationID,
		UserID:         userID,
		MessageID:      messageID,
		Reaction:       &reaction,
	})
	return reaction, nil
}

// DeleteMessage tombstones one of the caller's own messages for everyone.
func (s *ChatService) DeleteMessage(ctx context.Context, conversationID, messageID, userID int64) error {
	msg, err := s.messageIn(ctx, conversationID, messageID, userID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return apperr.Forbidden("only the sender can delete a message")
	}

	err = s.storeCall(ctx, "soft_delete", func(ctx context.Context) error {
		_, err := s.msgs.SoftDelete(ctx, conversationID, messageID, userID)
		return err
	})
	if err != nil {
		return mapStoreErr(err, "failed to delete message")
	}

	s.hub.BroadcastToRoom(conversationID, models.ServerEvent{
		Type:           models.EventMessageDeleted,
		ConversationID: conversationID,
		UserID:         userID,
		MessageID:      messageID,
	})
	s.publish(ctx, "message.deleted", map[string]int64{"conversation_id": conversationID, "message_id": messageID})
	return nil
}

// messageIn loads a live message of the conversation on behalf of a
// participant.
func (s *ChatService) messageIn(ctx context.Context, conversationID, messageID, userID int64) (models.Message, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return models.Message{}, err
	}
	var msg models.Message
	err := s.storeCall(ctx, "get_message", func(ctx context.Context) error {
		var err error
		msg, err = s.msgs.GetMessage(ctx, messageID)
		return err
	})
	if err != nil {
		return models.Message{}, mapStoreErr(err, "failed to load message")
	}
	if msg.ConversationID != conversationID || msg.Deleted {
		return models.Message{}, apperr.NotFound("message not found")
	}
	return msg, nil
}

// membershipError distinguishes a missing conversation from a non-member
// after a keyed counter write matched no row.
func (s *ChatService) membershipError(ctx context.Context, err error, conversationID int64, msg string) error {
	if !errors.Is(err, repositories.ErrNotParticipant) {
		return mapStoreErr(err, msg)
	}
	if _, getErr := s.getConversation(ctx, conversationID); getErr != nil {
		return getErr
	}
	return apperr.Forbidden("not a participant of this conversation")
}
