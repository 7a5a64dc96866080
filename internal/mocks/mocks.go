package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
	"messaging-service/internal/services"
)

type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) ResolveOrCreateDirect(ctx context.Context, requesterID, otherID int64) (models.Conversation, models.ResolveStatus, error) {
	args := m.Called(ctx, requesterID, otherID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	var status models.ResolveStatus
	if val := args.Get(1); val != nil {
		status = val.(models.ResolveStatus)
	}
	return conv, status, args.Error(2)
}

func (m *ChatServiceMock) ResolveGroup(ctx context.Context, groupID, requesterID int64) (models.Conversation, error) {
	args := m.Called(ctx, groupID, requesterID)
	return conversation(args.Get(0)), args.Error(1)
}

func (m *ChatServiceMock) CreateGroup(ctx context.Context, in services.CreateGroupInput) (models.Conversation, error) {
	args := m.Called(ctx, in)
	return conversation(args.Get(0)), args.Error(1)
}

func (m *ChatServiceMock) ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ChatServiceMock) AddParticipant(ctx context.Context, groupID, adminID, userID int64) (models.Conversation, error) {
	args := m.Called(ctx, groupID, adminID, userID)
	return conversation(args.Get(0)), args.Error(1)
}

func (m *ChatServiceMock) RemoveParticipant(ctx context.Context, groupID, adminID, userID int64) (models.Conversation, error) {
	args := m.Called(ctx, groupID, adminID, userID)
	return conversation(args.Get(0)), args.Error(1)
}

func (m *ChatServiceMock) SendMessage(ctx context.Context, in services.SendMessageInput) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatServiceMock) GetMessages(ctx context.Context, conversationID, userID int64, cursor string, limit int) (models.Page, error) {
	args := m.Called(ctx, conversationID, userID, cursor, limit)
	var page models.Page
	if val := args.Get(0); val != nil {
		page = val.(models.Page)
	}
	return page, args.Error(1)
}

func (m *ChatServiceMock) MarkRead(ctx context.Context, conversationID, userID int64) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

func (m *ChatServiceMock) MarkDelivered(ctx context.Context, conversationID, userID int64) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

func (m *ChatServiceMock) Unread(ctx context.Context, conversationID, userID int64) (int, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Int(0), args.Error(1)
}

func (m *ChatServiceMock) React(ctx context.Context, conversationID, messageID, userID int64, emoji string) (models.Reaction, error) {
	args := m.Called(ctx, conversationID, messageID, userID, emoji)
	var reaction models.Reaction
	if val := args.Get(0); val != nil {
		reaction = val.(models.Reaction)
	}
	return reaction, args.Error(1)
}

func (m *ChatServiceMock) DeleteMessage(ctx context.Context, conversationID, messageID, userID int64) error {
	args := m.Called(ctx, conversationID, messageID, userID)
	return args.Error(0)
}

func conversation(val any) models.Conversation {
	if val == nil {
		return models.Conversation{}
	}
	return val.(models.Conversation)
}
