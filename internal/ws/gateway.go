package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"messaging-service/internal/apperr"
	"messaging-service/internal/auth"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/telemetry"
)

// TokenVerifier resolves a credential to a user id.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// RoomAuthorizer decides whether a user may join a conversation room.
type RoomAuthorizer interface {
	CanJoin(ctx context.Context, conversationID, userID int64) error
}

// GatewayOptions tune per-connection limits.
type GatewayOptions struct {
	SendBuffer  int
	TypingRate  float64
	TypingBurst int
}

// Gateway authenticates websocket handshakes and runs one read loop per
// connection.
type Gateway struct {
	hub        *Hub
	presence   *Presence
	verifier   TokenVerifier
	authorizer RoomAuthorizer
	dispatcher *Dispatcher
	opts       GatewayOptions
	log        *slog.Logger
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewGateway(hub *Hub, presence *Presence, verifier TokenVerifier, authorizer RoomAuthorizer, opts GatewayOptions, log *slog.Logger) *Gateway {
	if opts.TypingRate <= 0 {
		opts.TypingRate = 2
	}
	if opts.TypingBurst <= 0 {
		opts.TypingBurst = 3
	}
	if log == nil {
		log = slog.Default()
	}
	g := &Gateway{
		hub:        hub,
		presence:   presence,
		verifier:   verifier,
		authorizer: authorizer,
		dispatcher: NewDispatcher(),
		opts:       opts,
		log:        log,
	}
	g.dispatcher.Register(models.EventJoin, g.handleJoin)
	g.dispatcher.Register(models.EventLeave, g.handleLeave)
	g.dispatcher.Register(models.EventTyping, g.handleTyping)
	g.dispatcher.Register(models.EventStopTyping, g.handleTyping)
	g.dispatcher.Register(models.EventPing, g.handlePing)
	return g
}

// Handle authenticates the request, upgrades it and serves the connection.
// The credential comes from the Authorization header or the token query
// parameter.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = strings.TrimSpace(c.Query("token"))
	}
	userID, err := g.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	span.SetAttributes(attribute.Int64("user.id", userID))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	limiter := rate.NewLimiter(rate.Limit(g.opts.TypingRate), g.opts.TypingBurst)
	client := newClient(conn, info, g.opts.SendBuffer, limiter, g.log)

	// The connection outlives the handshake request.
	connCtx := context.WithoutCancel(ctx)
	g.connect(connCtx, client)
	go client.writePump()
	go g.serve(connCtx, client)
}

func (g *Gateway) connect(ctx context.Context, c *Client) {
	g.hub.register(c)
	observability.IncWSActive()
	publishConnEvent(ctx, "ws_connect", c.info, 0, "")
	g.presence.Connect(c.info.UserID, func() {
		g.hub.BroadcastAll(models.ServerEvent{Type: models.EventUserOnline, UserID: c.info.UserID})
	})
	g.log.Debug("websocket connected", "conn_id", c.info.ConnID, "user_id", c.info.UserID)
}

// serve processes the connection's events in arrival order until it closes.
func (g *Gateway) serve(ctx context.Context, c *Client) {
	reason := c.readPump(func(event models.ClientEvent) {
		g.dispatcher.Dispatch(ctx, c, event)
	})
	g.disconnect(ctx, c, reason)
}

func (g *Gateway) disconnect(ctx context.Context, c *Client, reason string) {
	g.hub.unregister(c)
	c.close()
	observability.DecWSActive()
	publishConnEvent(ctx, "ws_disconnect", c.info, 0, reason)
	g.presence.Disconnect(c.info.UserID, func() {
		g.hub.BroadcastAll(models.ServerEvent{Type: models.EventUserOffline, UserID: c.info.UserID})
	})
	g.log.Debug("websocket disconnected", "conn_id", c.info.ConnID, "user_id", c.info.UserID, "reason", reason)
}

func (g *Gateway) handleJoin(ctx context.Context, c *Client, event models.ClientEvent) {
	if err := g.authorizer.CanJoin(ctx, event.ConversationID, c.info.UserID); err != nil {
		c.sendEvent(errorEvent(event.ConversationID, string(apperr.KindOf(err)), apperr.Message(err)))
		return
	}
	g.hub.Join(event.ConversationID, c)
	// A removal committed between the check and the join evicted before we
	// were in the room. Any later removal evicts after us.
	if err := g.authorizer.CanJoin(ctx, event.ConversationID, c.info.UserID); err != nil {
		g.hub.Leave(event.ConversationID, c)
		c.sendEvent(errorEvent(event.ConversationID, string(apperr.KindOf(err)), apperr.Message(err)))
		return
	}
	c.sendEvent(models.ServerEvent{Type: models.EventJoined, ConversationID: event.ConversationID, UserID: c.info.UserID})
}

func (g *Gateway) handleLeave(_ context.Context, c *Client, event models.ClientEvent) {
	g.hub.Leave(event.ConversationID, c)
	c.sendEvent(models.ServerEvent{Type: models.EventLeft, ConversationID: event.ConversationID, UserID: c.info.UserID})
}

// handleTyping relays typing indicators to the other members of a joined
// room. Bursts above the connection's limit are dropped silently.
func (g *Gateway) handleTyping(_ context.Context, c *Client, event models.ClientEvent) {
	if !g.hub.InRoom(event.ConversationID, c) {
		c.sendEvent(errorEvent(event.ConversationID, string(apperr.KindForbidden), "join the conversation first"))
		return
	}
	if event.Type == models.EventTyping && !c.typing.Allow() {
		return
	}
	g.hub.BroadcastToRoomExceptUser(event.ConversationID, c.info.UserID, models.ServerEvent{
		Type:           event.Type,
		ConversationID: event.ConversationID,
		UserID:         c.info.UserID,
	})
}

func (g *Gateway) handlePing(_ context.Context, c *Client, _ models.ClientEvent) {
	c.sendEvent(models.ServerEvent{Type: models.EventPong})
}
