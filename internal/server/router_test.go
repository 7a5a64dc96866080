package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/auth"
	"messaging-service/internal/handlers"
	"messaging-service/internal/media"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

func newTestRouter(t *testing.T) (*gin.Engine, *mocks.ChatServiceMock, *auth.Verifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := new(mocks.ChatServiceMock)
	verifier := auth.NewVerifier("router-secret", "identity-service")
	router := NewRouter(Options{
		ServiceName: "messaging-service",
		Service:     svc,
		Verifier:    verifier,
		Media:       handlers.NewMediaHandler(media.NewMemoryStore()),
	})
	return router, svc, verifier
}

func TestHealthAndMetrics(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(observability.RequestIDHeader))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "messaging_http_requests_total")
}

func TestConversationsRequireToken(t *testing.T) {
	router, svc, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	svc.AssertNotCalled(t, "ListConversations", mock.Anything, mock.Anything)
}

func TestConversationsWithToken(t *testing.T) {
	router, svc, verifier := newTestRouter(t)
	token, err := verifier.Issue(5, time.Hour)
	require.NoError(t, err)

	svc.On("ListConversations", mock.Anything, int64(5)).Return([]models.Conversation{}, nil).Once()
	svc.On("GetMessages", mock.Anything, int64(7), int64(5), "", 0).Return(models.Page{}, nil).Once()

	for _, path := range []string{"/conversations", "/conversations/7/messages"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	svc.AssertExpectations(t)
}

func TestMediaRouteIsMounted(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/unknown", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "media not found")
}
