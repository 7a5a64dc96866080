// Package services holds the conversation and ingestion logic shared by the
// HTTP handlers and the realtime gateway.
package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"messaging-service/internal/apperr"
	"messaging-service/internal/media"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// Broadcaster fans events out to the connections joined to a conversation.
// Implementations must not block.
type Broadcaster interface {
	BroadcastToRoom(conversationID int64, event models.ServerEvent)
	// EvictFromRoom detaches every connection of userID from the room.
	EvictFromRoom(conversationID, userID int64)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastToRoom(int64, models.ServerEvent) {}
func (noopBroadcaster) EvictFromRoom(int64, int64)                {}

// Deps are the collaborators of ChatService.
type Deps struct {
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
	Unread        repositories.UnreadRepository
	Users         repositories.UserDirectory
	Media         media.Store
	Hub           Broadcaster
	Log           *slog.Logger
}

// Options tune ChatService.
type Options struct {
	StoreTimeout     time.Duration
	PageDefaultLimit int
	PageMaxLimit     int
	MediaBaseURL     string
}

// ChatService implements conversation resolution, the ingestion pipeline
// and unread bookkeeping.
type ChatService struct {
	convs    repositories.ConversationRepository
	msgs     repositories.MessageRepository
	unread   repositories.UnreadRepository
	users    repositories.UserDirectory
	media    media.Store
	hub      Broadcaster
	log      *slog.Logger
	validate *validator.Validate
	opts     Options
}

func NewChatService(deps Deps, opts Options) *ChatService {
	if deps.Hub == nil {
		deps.Hub = noopBroadcaster{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.PageDefaultLimit <= 0 {
		opts.PageDefaultLimit = 20
	}
	if opts.PageMaxLimit < opts.PageDefaultLimit {
		opts.PageMaxLimit = opts.PageDefaultLimit
	}
	if opts.MediaBaseURL == "" {
		opts.MediaBaseURL = "/media"
	}
	return &ChatService{
		convs:    deps.Conversations,
		msgs:     deps.Messages,
		unread:   deps.Unread,
		users:    deps.Users,
		media:    deps.Media,
		hub:      deps.Hub,
		log:      deps.Log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
	}
}

// storeCall runs fn under the storage timeout and records its latency.
func (s *ChatService) storeCall(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	start := time.Now()
	err := fn(ctx)
	observability.ObserveStore(operation, start)
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Internal("storage timeout", err)
	}
	return err
}

// mapStoreErr turns repository sentinels into service errors.
func mapStoreErr(err error, msg string) error {
	var appErr *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repositories.ErrConversationNotFound):
		return apperr.NotFound("conversation not found")
	case errors.Is(err, repositories.ErrMessageNotFound):
		return apperr.NotFound("message not found")
	case errors.Is(err, repositories.ErrNotParticipant):
		return apperr.Forbidden("not a participant of this conversation")
	case errors.Is(err, context.Canceled):
		return apperr.Internal("request cancelled", err)
	default:
		return apperr.Internal(msg, err)
	}
}

func (s *ChatService) validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apperr.Invalid("invalid " + verrs[0].Field())
	}
	return apperr.Invalid(err.Error())
}

// requireParticipant reports NotFound for unknown conversations and
// Forbidden for outsiders.
func (s *ChatService) requireParticipant(ctx context.Context, conversationID, userID int64) error {
	var member bool
	err := s.storeCall(ctx, "is_participant", func(ctx context.Context) error {
		var err error
		member, err = s.convs.IsParticipant(ctx, conversationID, userID)
		return err
	})
	if err != nil {
		return mapStoreErr(err, "failed to check membership")
	}
	if member {
		return nil
	}
	err = s.storeCall(ctx, "get_conversation", func(ctx context.Context) error {
		_, err := s.convs.GetConversation(ctx, conversationID)
		return err
	})
	if err != nil {
		return mapStoreErr(err, "failed to load conversation")
	}
	return apperr.Forbidden("not a participant of this conversation")
}

func (s *ChatService) publish(ctx context.Context, name string, payload interface{}) {
	headers := observability.BuildHeaders("", observability.TraceIDFromContext(ctx))
	if err := observability.PublishEvent(ctx, name, observability.NewEnvelope("domain", name, payload), headers); err != nil {
		s.log.Warn("domain event publish failed", "event", name, "error", err)
	}
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
