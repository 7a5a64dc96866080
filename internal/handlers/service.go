package handlers

import (
	"context"

	"messaging-service/internal/models"
	"messaging-service/internal/services"
)

// ChatService is the slice of the service layer the HTTP handlers call.
type ChatService interface {
	ResolveOrCreateDirect(ctx context.Context, requesterID, otherID int64) (models.Conversation, models.ResolveStatus, error)
	ResolveGroup(ctx context.Context, groupID, requesterID int64) (models.Conversation, error)
	CreateGroup(ctx context.Context, in services.CreateGroupInput) (models.Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error)
	AddParticipant(ctx context.Context, groupID, adminID, userID int64) (models.Conversation, error)
	RemoveParticipant(ctx context.Context, groupID, adminID, userID int64) (models.Conversation, error)

	SendMessage(ctx context.Context, in services.SendMessageInput) (models.Message, error)
	GetMessages(ctx context.Context, conversationID, userID int64, cursor string, limit int) (models.Page, error)
	MarkRead(ctx context.Context, conversationID, userID int64) error
	MarkDelivered(ctx context.Context, conversationID, userID int64) error
	Unread(ctx context.Context, conversationID, userID int64) (int, error)
	React(ctx context.Context, conversationID, messageID, userID int64, emoji string) (models.Reaction, error)
	DeleteMessage(ctx context.Context, conversationID, messageID, userID int64) error
}
