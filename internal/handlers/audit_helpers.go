package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messaging-service/internal/observability"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader(observability.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// userIDFromContext renders the authenticated user for audit records. Only
// the identity set by the auth middleware counts.
func userIDFromContext(c *gin.Context) *string {
	if id := currentUserID(c); id != 0 {
		value := strconv.FormatInt(id, 10)
		return &value
	}
	return nil
}
