package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/services"
	"messaging-service/internal/telemetry"
)

// ConversationHandler serves conversation resolution and group membership.
type ConversationHandler struct {
	svc   ChatService
	audit *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler. audit may be nil.
func NewConversationHandler(svc ChatService, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{svc: svc, audit: audit}
}

// ListConversations returns the caller's conversations, most recently
// active first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	convs, err := h.svc.ListConversations(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// ResolveDirect returns the direct conversation with another user, creating
// it on first contact.
func (h *ConversationHandler) ResolveDirect(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, status, err := h.svc.ResolveOrCreateDirect(c.Request.Context(), currentUserID(c), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	code := http.StatusOK
	if status == models.ResolveCreated {
		code = http.StatusCreated
	}
	c.JSON(code, gin.H{"conversation": conv, "status": status})
}

// CreateGroup creates a group with the caller as admin.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name           string  `json:"name" binding:"required"`
		ParticipantIDs []int64 `json:"participant_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.svc.CreateGroup(c.Request.Context(), services.CreateGroupInput{
		CreatorID:      currentUserID(c),
		Name:           req.Name,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), telemetry.AuditEntry{
		Text:           "group created",
		RequestID:      requestIDFromContext(c),
		UserID:         userIDFromContext(c),
		ConversationID: conv.ID,
	})
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

// GetGroup returns a group the caller belongs to.
func (h *ConversationHandler) GetGroup(c *gin.Context) {
	groupID, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	conv, err := h.svc.ResolveGroup(c.Request.Context(), groupID, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

// AddParticipant adds a member to a group. Only the admin may call it.
func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	groupID, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.svc.AddParticipant(c.Request.Context(), groupID, currentUserID(c), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), telemetry.AuditEntry{
		Text:           "participant added",
		RequestID:      requestIDFromContext(c),
		UserID:         userIDFromContext(c),
		ConversationID: groupID,
		TargetUserID:   req.UserID,
	})
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

// RemoveParticipant removes a member from a group.
func (h *ConversationHandler) RemoveParticipant(c *gin.Context) {
	groupID, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	userID, err := paramID(c, "user_id")
	if err != nil {
		respondError(c, err)
		return
	}

	conv, err := h.svc.RemoveParticipant(c.Request.Context(), groupID, currentUserID(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), telemetry.AuditEntry{
		Text:           "participant removed",
		RequestID:      requestIDFromContext(c),
		UserID:         userIDFromContext(c),
		ConversationID: groupID,
		TargetUserID:   userID,
	})
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}
