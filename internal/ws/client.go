package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
)

// Client is one websocket connection. Its identity is fixed at handshake.
type Client struct {
	info   ConnInfo
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	typing *rate.Limiter
	log    *slog.Logger

	// rooms is guarded by the hub's mutex.
	rooms map[int64]struct{}
}

func newClient(conn *websocket.Conn, info ConnInfo, sendBuffer int, typing *rate.Limiter, log *slog.Logger) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Client{
		info:   info,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		typing: typing,
		log:    log.With("conn_id", info.ConnID, "user_id", info.UserID),
		rooms:  make(map[int64]struct{}),
	}
}

// enqueue hands a frame to the write pump without blocking.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// sendEvent marshals and enqueues a frame for this client only.
func (c *Client) sendEvent(event models.ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.log.Error("marshal event failed", "type", event.Type, "error", err)
		return
	}
	if !c.enqueue(payload) {
		observability.IncWSDropped()
		return
	}
	observability.IncWSEvent("out", string(event.Type))
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) closed() <-chan struct{} { return c.done }

// readPump delivers decoded frames to handle in arrival order. It returns
// the reason the connection ended.
func (c *Client) readPump(handle func(models.ClientEvent)) string {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("websocket read error", "error", err)
			}
			return err.Error()
		}

		var event models.ClientEvent
		if err := json.Unmarshal(data, &event); err != nil {
			c.sendEvent(errorEvent(0, "invalid_argument", "malformed event"))
			continue
		}
		observability.IncWSEvent("in", string(event.Type))
		handle(event)
	}
}

// writePump is the only writer of the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("websocket write error", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func errorEvent(conversationID int64, code, message string) models.ServerEvent {
	return models.ServerEvent{
		Type:           models.EventError,
		ConversationID: conversationID,
		Error:          &models.ErrorPayload{Code: code, Message: message},
	}
}
