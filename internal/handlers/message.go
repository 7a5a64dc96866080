package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/media"
	"messaging-service/internal/models"
	"messaging-service/internal/services"
)

// MessageHandler serves message ingestion, history and receipts.
type MessageHandler struct {
	svc            ChatService
	maxUploadBytes int64
}

func NewMessageHandler(svc ChatService, maxUploadBytes int64) *MessageHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 25 << 20
	}
	return &MessageHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// GetMessages returns one page of history. The cursor from a previous
// response continues towards older messages.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	convID, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
	}

	page, err := h.svc.GetMessages(c.Request.Context(), convID, currentUserID(c), c.Query("cursor"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// PostMessage accepts either a JSON body or a multipart form carrying an
// attachment in the "file" field.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	convID, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	in := services.SendMessageInput{ConversationID: convID, SenderID: currentUserID(c)}
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if status, msg := h.bindMultipart(c, &in); status != 0 {
			c.JSON(status, gin.H{"error": msg})
			return
		}
	} else {
		var req struct {
			Text        string             `json:"text"`
			MediaURL    string             `json:"media_url"`
			ContentType models.ContentType `json:"content_type"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in.Text = req.Text
		in.MediaURL = req.MediaURL
		in.ContentType = req.ContentType
	}

	if in.Attachment != nil {
		if closer, ok := in.Attachment.Content.(io.Closer); ok {
			defer closer.Close()
		}
	}

	msg, err := h.svc.SendMessage(c.Request.Context(), in)
	if err != nil {
		if errors.Is(err, media.ErrTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": media.ErrTooLarge.Error()})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// bindMultipart fills in from a multipart request. It returns a non-zero
// status when the request must be rejected.
func (h *MessageHandler) bindMultipart(c *gin.Context, in *services.SendMessageInput) (int, string) {
	if c.Request.ContentLength > h.maxUploadBytes {
		return http.StatusRequestEntityTooLarge, media.ErrTooLarge.Error()
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	if err := c.Request.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, media.ErrTooLarge.Error()
		}
		return http.StatusBadRequest, "invalid multipart body"
	}

	in.Text = c.PostForm("text")
	in.ContentType = models.ContentType(c.PostForm("content_type"))

	header, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return 0, ""
	}
	if err != nil {
		return http.StatusBadRequest, "invalid attachment"
	}
	file, err := header.Open()
	if err != nil {
		return http.StatusBadRequest, "invalid attachment"
	}
	in.Attachment = &media.Upload{
		Filename:   header.Filename,
		UploaderID: in.SenderID,
		Content:    file,
	}
	return 0, ""
}

// MarkRead resets the caller's unread counter.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	convID, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), convID, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": 0})
}

func (h *MessageHandler) MarkDelivered(c *gin.Context) {
	convID, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.svc.MarkDelivered(c.Request.Context(), convID, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) Unread(c *gin.Context) {
	convID, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	count, err := h.svc.Unread(c.Request.Context(), convID, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// React sets the caller's reaction. An empty emoji removes it.
func (h *MessageHandler) React(c *gin.Context) {
	convID, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	messageID, err := paramID(c, "message_id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reaction, err := h.svc.React(c.Request.Context(), convID, messageID, currentUserID(c), req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reaction": reaction})
}

// DeleteMessage soft-deletes one of the caller's messages.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	convID, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	messageID, err := paramID(c, "message_id")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.svc.DeleteMessage(c.Request.Context(), convID, messageID, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
