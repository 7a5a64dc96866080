package handlers

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/apperr"
)

// respondError writes err using its kind. Internal causes are logged, never
// returned to the client.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if apperr.KindOf(err) == apperr.KindInternal {
		slog.Error("request failed", "route", c.FullPath(), "method", c.Request.Method, "error", err)
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

// paramID parses a positive int64 path parameter.
func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("invalid " + name)
	}
	return id, nil
}

func currentUserID(c *gin.Context) int64 {
	if val, ok := c.Get("userID"); ok {
		if id, ok := val.(int64); ok {
			return id
		}
	}
	return 0
}
