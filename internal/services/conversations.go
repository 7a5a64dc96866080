package services

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/lo"

	"messaging-service/internal/apperr"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

const minGroupParticipants = 3

// CreateGroupInput is the request to create a group conversation.
type CreateGroupInput struct {
	CreatorID      int64   `validate:"gt=0"`
	Name           string  `validate:"required"`
	ParticipantIDs []int64 `validate:"dive,gt=0"`
}

// ResolveOrCreateDirect returns the direct conversation of the pair,
// creating it when missing. Concurrent callers converge on a single row.
func (s *ChatService) ResolveOrCreateDirect(ctx context.Context, requesterID, otherID int64) (models.Conversation, models.ResolveStatus, error) {
	if otherID <= 0 {
		return models.Conversation{}, "", apperr.Invalid("user_id is required")
	}
	if requesterID == otherID {
		return models.Conversation{}, "", apperr.Invalid("cannot start a conversation with yourself")
	}

	var conv models.Conversation
	err := s.storeCall(ctx, "find_direct", func(ctx context.Context) error {
		var err error
		conv, err = s.convs.FindDirect(ctx, requesterID, otherID)
		return err
	})
	if err == nil {
		return conv, models.ResolveFound, nil
	}
	if !errors.Is(err, repositories.ErrConversationNotFound) {
		return models.Conversation{}, "", mapStoreErr(err, "failed to resolve conversation")
	}

	if err := s.requireUsers(ctx, []int64{otherID}, func(missing []int64) error {
		return apperr.NotFound("user not found")
	}); err != nil {
		return models.Conversation{}, "", err
	}

	var created bool
	err = s.storeCall(ctx, "create_direct", func(ctx context.Context) error {
		var err error
		conv, created, err = s.convs.CreateDirect(ctx, requesterID, otherID)
		return err
	})
	if err != nil {
		return models.Conversation{}, "", mapStoreErr(err, "failed to create conversation")
	}
	if !created {
		return conv, models.ResolveFound, nil
	}

	s.log.Info("direct conversation created", "conversation_id", conv.ID, "user_id", requesterID, "peer_id", otherID)
	s.publish(ctx, "conversation.created", conv)
	return conv, models.ResolveCreated, nil
}

// ResolveGroup returns the group when it exists and contains the requester.
func (s *ChatService) ResolveGroup(ctx context.Context, groupID, requesterID int64) (models.Conversation, error) {
	conv, err := s.getConversation(ctx, groupID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return models.Conversation{}, apperr.NotFound("group not found")
		}
		return models.Conversation{}, err
	}
	if !conv.IsGroup || !conv.HasParticipant(requesterID) {
		return models.Conversation{}, apperr.NotFound("group not found")
	}
	return conv, nil
}

// CreateGroup creates a named group administered by its creator.
func (s *ChatService) CreateGroup(ctx context.Context, in CreateGroupInput) (models.Conversation, error) {
	if err := s.validate.Struct(in); err != nil {
		return models.Conversation{}, s.validationError(err)
	}
	name, err := ValidateGroupName(in.Name)
	if err != nil {
		return models.Conversation{}, err
	}

	members := lo.Uniq(append([]int64{in.CreatorID}, in.ParticipantIDs...))
	if len(members) < minGroupParticipants {
		return models.Conversation{}, apperr.Invalid("at least 3 participants required")
	}

	others := lo.Without(members, in.CreatorID)
	if err := s.requireUsers(ctx, others, func(missing []int64) error {
		return apperr.Invalid("unknown users: " + joinIDs(missing))
	}); err != nil {
		return models.Conversation{}, err
	}

	var conv models.Conversation
	err = s.storeCall(ctx, "create_group", func(ctx context.Context) error {
		var err error
		conv, err = s.convs.CreateGroup(ctx, in.CreatorID, name, others)
		return err
	})
	if err != nil {
		return models.Conversation{}, mapStoreErr(err, "failed to create group")
	}

	s.log.Info("group created", "conversation_id", conv.ID, "admin_id", in.CreatorID, "participants", len(members))
	s.publish(ctx, "conversation.created", conv)
	return conv, nil
}

// ListConversations returns the user's conversations, most recent activity
// first.
func (s *ChatService) ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.storeCall(ctx, "list_conversations", func(ctx context.Context) error {
		var err error
		convs, err = s.convs.ListForUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, mapStoreErr(err, "failed to load conversations")
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	return convs, nil
}

// AddParticipant lets the group admin add a user. Adding a current member is
// a no-op.
func (s *ChatService) AddParticipant(ctx context.Context, groupID, adminID, userID int64) (models.Conversation, error) {
	conv, err := s.adminGroup(ctx, groupID, adminID)
	if err != nil {
		return models.Conversation{}, err
	}
	if userID <= 0 {
		return models.Conversation{}, apperr.Invalid("user_id is required")
	}
	if conv.HasParticipant(userID) {
		return conv, nil
	}
	if err := s.requireUsers(ctx, []int64{userID}, func([]int64) error {
		return apperr.Invalid("unknown users: " + idString(userID))
	}); err != nil {
		return models.Conversation{}, err
	}

	err = s.storeCall(ctx, "add_participant", func(ctx context.Context) error {
		return s.convs.AddParticipant(ctx, groupID, userID)
	})
	if err != nil && !errors.Is(err, repositories.ErrAlreadyParticipant) {
		return models.Conversation{}, mapStoreErr(err, "failed to add participant")
	}

	s.publish(ctx, "conversation.participant_added", map[string]int64{"conversation_id": groupID, "user_id": userID})
	return s.getConversation(ctx, groupID)
}

// RemoveParticipant lets the group admin remove a user other than
// themselves. The removed user's connections leave the room.
func (s *ChatService) RemoveParticipant(ctx context.Context, groupID, adminID, userID int64) (models.Conversation, error) {
	if _, err := s.adminGroup(ctx, groupID, adminID); err != nil {
		return models.Conversation{}, err
	}
	if userID == adminID {
		return models.Conversation{}, apperr.Invalid("the admin cannot be removed")
	}

	err := s.storeCall(ctx, "remove_participant", func(ctx context.Context) error {
		return s.convs.RemoveParticipant(ctx, groupID, userID)
	})
	if errors.Is(err, repositories.ErrNotParticipant) {
		return models.Conversation{}, apperr.NotFound("user is not a participant")
	}
	if err != nil {
		return models.Conversation{}, mapStoreErr(err, "failed to remove participant")
	}

	s.hub.EvictFromRoom(groupID, userID)
	s.publish(ctx, "conversation.participant_removed", map[string]int64{"conversation_id": groupID, "user_id": userID})
	return s.getConversation(ctx, groupID)
}

// CanJoin authorizes a realtime join.
func (s *ChatService) CanJoin(ctx context.Context, conversationID, userID int64) error {
	if conversationID <= 0 {
		return apperr.Invalid("conversation_id is required")
	}
	return s.requireParticipant(ctx, conversationID, userID)
}

func (s *ChatService) adminGroup(ctx context.Context, groupID, adminID int64) (models.Conversation, error) {
	conv, err := s.ResolveGroup(ctx, groupID, adminID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.IsAdmin(adminID) {
		return models.Conversation{}, apperr.Forbidden("only the group admin can change participants")
	}
	return conv, nil
}

func (s *ChatService) getConversation(ctx context.Context, conversationID int64) (models.Conversation, error) {
	var conv models.Conversation
	err := s.storeCall(ctx, "get_conversation", func(ctx context.Context) error {
		var err error
		conv, err = s.convs.GetConversation(ctx, conversationID)
		return err
	})
	if err != nil {
		return models.Conversation{}, mapStoreErr(err, "failed to load conversation")
	}
	return conv, nil
}

// requireUsers fails with onMissing when any id is unknown to the identity
// service.
func (s *ChatService) requireUsers(ctx context.Context, ids []int64, onMissing func([]int64) error) error {
	if s.users == nil || len(ids) == 0 {
		return nil
	}
	var missing []int64
	err := s.storeCall(ctx, "missing_users", func(ctx context.Context) error {
		var err error
		missing, err = s.users.MissingUsers(ctx, ids)
		return err
	})
	if err != nil {
		return mapStoreErr(err, "failed to look up users")
	}
	if len(missing) > 0 {
		return onMissing(missing)
	}
	return nil
}

func joinIDs(ids []int64) string {
	return strings.Join(lo.Map(ids, func(id int64, _ int) string { return idString(id) }), ", ")
}
