package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditContext(header string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/conversations/groups", nil)
	if header != "" {
		c.Request.Header.Set("X-User-ID", header)
	}
	return c, rec
}

func TestAuditUserIgnoresUserHeader(t *testing.T) {
	c, _ := auditContext("99")
	assert.Nil(t, userIDFromContext(c))
}

func TestAuditUserComesFromAuthenticatedIdentity(t *testing.T) {
	c, _ := auditContext("99")
	c.Set("userID", int64(5))

	got := userIDFromContext(c)
	require.NotNil(t, got)
	assert.Equal(t, "5", *got)
}

func TestRequestIDIsStablePerRequest(t *testing.T) {
	c, _ := auditContext("")
	first := requestIDFromContext(c)
	assert.NotEmpty(t, first)
	assert.Equal(t, first, requestIDFromContext(c))
}
