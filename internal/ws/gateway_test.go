package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/apperr"
	"messaging-service/internal/auth"
	"messaging-service/internal/media"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories/memory"
	"messaging-service/internal/services"
)

type gatewayFixture struct {
	server   *httptest.Server
	svc      *services.ChatService
	verifier *auth.Verifier
	hub      *Hub
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore(memory.WithUsers(1, 2, 3))
	hub := NewHub(discardLogger())
	svc := services.NewChatService(services.Deps{
		Conversations: store,
		Messages:      store,
		Unread:        store,
		Users:         store,
		Media:         media.NewMemoryStore(),
		Hub:           hub,
		Log:           discardLogger(),
	}, services.Options{StoreTimeout: time.Second})
	verifier := auth.NewVerifier("test-secret", "")
	gateway := NewGateway(hub, NewPresence(), verifier, svc, GatewayOptions{SendBuffer: 16, TypingRate: 100, TypingBurst: 10}, discardLogger())

	router := gin.New()
	router.GET("/ws", gateway.Handle)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &gatewayFixture{server: server, svc: svc, verifier: verifier, hub: hub}
}

func (f *gatewayFixture) dial(t *testing.T, userID int64) *websocket.Conn {
	t.Helper()
	token, err := f.verifier.Issue(userID, time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// await reads frames until one of the wanted type arrives.
func await(t *testing.T, conn *websocket.Conn, want models.EventType) models.ServerEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var event models.ServerEvent
		require.NoError(t, conn.ReadJSON(&event), "waiting for %s", want)
		if event.Type == want {
			return event
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, eventType models.EventType, conversationID int64) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(models.ClientEvent{Type: eventType, ConversationID: conversationID}))
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	f := newGatewayFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayJoinTypingAndMessages(t *testing.T) {
	f := newGatewayFixture(t)
	conv, _, err := f.svc.ResolveOrCreateDirect(context.Background(), 1, 2)
	require.NoError(t, err)

	alice := f.dial(t, 1)
	bob := f.dial(t, 2)

	send(t, alice, models.EventJoin, conv.ID)
	joined := await(t, alice, models.EventJoined)
	assert.Equal(t, conv.ID, joined.ConversationID)
	send(t, bob, models.EventJoin, conv.ID)
	await(t, bob, models.EventJoined)

	send(t, alice, models.EventTyping, conv.ID)
	typing := await(t, bob, models.EventTyping)
	assert.Equal(t, int64(1), typing.UserID)

	_, err = f.svc.SendMessage(context.Background(), services.SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       1,
		Text:           "hello",
	})
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{alice, bob} {
		event := await(t, conn, models.EventMessageReceived)
		require.NotNil(t, event.Message)
		assert.Equal(t, "hello", event.Message.Text)
	}
}

func TestGatewayJoinForbiddenForOutsider(t *testing.T) {
	f := newGatewayFixture(t)
	conv, _, err := f.svc.ResolveOrCreateDirect(context.Background(), 1, 2)
	require.NoError(t, err)

	outsider := f.dial(t, 3)
	send(t, outsider, models.EventJoin, conv.ID)

	event := await(t, outsider, models.EventError)
	require.NotNil(t, event.Error)
	assert.Equal(t, "forbidden", event.Error.Code)
}

func TestGatewayTypingRequiresJoin(t *testing.T) {
	f := newGatewayFixture(t)
	conv, _, err := f.svc.ResolveOrCreateDirect(context.Background(), 1, 2)
	require.NoError(t, err)

	alice := f.dial(t, 1)
	send(t, alice, models.EventTyping, conv.ID)

	event := await(t, alice, models.EventError)
	assert.Equal(t, "forbidden", event.Error.Code)
}

func TestGatewayPingAndUnknownEvent(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.dial(t, 1)

	send(t, alice, models.EventPing, 0)
	await(t, alice, models.EventPong)

	send(t, alice, models.EventType("shout"), 0)
	event := await(t, alice, models.EventError)
	assert.Equal(t, "invalid_argument", event.Error.Code)
}

func TestGatewayPresence(t *testing.T) {
	f := newGatewayFixture(t)

	alice := f.dial(t, 1)
	await(t, alice, models.EventUserOnline)

	bob := f.dial(t, 2)
	online := await(t, alice, models.EventUserOnline)
	assert.Equal(t, int64(2), online.UserID)

	require.NoError(t, bob.Close())
	offline := await(t, alice, models.EventUserOffline)
	assert.Equal(t, int64(2), offline.UserID)
}

// removingAuthorizer admits the first check and then behaves as if the user
// was removed from the group, evicting them right away.
type removingAuthorizer struct {
	hub   *Hub
	calls int
}

func (a *removingAuthorizer) CanJoin(_ context.Context, conversationID, userID int64) error {
	a.calls++
	if a.calls == 1 {
		a.hub.EvictFromRoom(conversationID, userID)
		return nil
	}
	return apperr.Forbidden("not a participant")
}

func TestGatewayJoinRacingRemovalLeavesRoom(t *testing.T) {
	hub := NewHub(discardLogger())
	authorizer := &removingAuthorizer{hub: hub}
	gateway := NewGateway(hub, NewPresence(), nil, authorizer, GatewayOptions{}, discardLogger())
	c := testClient(3, 8)
	hub.register(c)

	gateway.handleJoin(context.Background(), c, models.ClientEvent{Type: models.EventJoin, ConversationID: 9})

	assert.False(t, hub.InRoom(9, c))
	assert.Zero(t, hub.RoomSize(9))
	events := drain(t, c)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventError, events[0].Type)
	require.NotNil(t, events[0].Error)
	assert.Equal(t, "forbidden", events[0].Error.Code)
}
