package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// Hub maintains connected clients and their conversation rooms. Broadcasts
// never block: a client whose buffer is full is disconnected.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[int64]map[*Client]struct{}
	clients map[*Client]struct{}
	log     *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		rooms:   make(map[int64]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
		log:     log,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// unregister drops the client from the hub and from every room it joined.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	for conversationID := range c.rooms {
		h.removeLocked(conversationID, c)
	}
}

// Join adds the client to a conversation room.
func (h *Hub) Join(conversationID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*Client]struct{})
	}
	h.rooms[conversationID][c] = struct{}{}
	c.rooms[conversationID] = struct{}{}
}

// Leave removes the client from a conversation room.
func (h *Hub) Leave(conversationID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(conversationID, c)
}

func (h *Hub) removeLocked(conversationID int64, c *Client) {
	delete(c.rooms, conversationID)
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// InRoom reports whether the client joined the conversation.
func (h *Hub) InRoom(conversationID int64, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[conversationID]
	return ok
}

// RoomSize returns the number of connections joined to a conversation.
func (h *Hub) RoomSize(conversationID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// BroadcastToRoom sends event to every connection in the room, including
// other devices of the event's originator.
func (h *Hub) BroadcastToRoom(conversationID int64, event models.ServerEvent) {
	h.broadcast(h.roomMembers(conversationID, 0), event)
}

// BroadcastToRoomExceptUser sends event to the room, skipping every
// connection of userID.
func (h *Hub) BroadcastToRoomExceptUser(conversationID, userID int64, event models.ServerEvent) {
	h.broadcast(h.roomMembers(conversationID, userID), event)
}

// BroadcastAll sends event to every connected client.
func (h *Hub) BroadcastAll(event models.ServerEvent) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.broadcast(targets, event)
}

// EvictFromRoom detaches the user's connections from a room and tells them.
func (h *Hub) EvictFromRoom(conversationID, userID int64) {
	h.mu.Lock()
	var evicted []*Client
	for c := range h.rooms[conversationID] {
		if c.info.UserID == userID {
			evicted = append(evicted, c)
		}
	}
	for _, c := range evicted {
		h.removeLocked(conversationID, c)
	}
	h.mu.Unlock()

	h.broadcast(evicted, models.ServerEvent{Type: models.EventLeft, ConversationID: conversationID, UserID: userID})
}

func (h *Hub) roomMembers(conversationID, exceptUserID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[conversationID]
	targets := make([]*Client, 0, len(members))
	for c := range members {
		if exceptUserID != 0 && c.info.UserID == exceptUserID {
			continue
		}
		targets = append(targets, c)
	}
	return targets
}

func (h *Hub) broadcast(targets []*Client, event models.ServerEvent) {
	if len(targets) == 0 {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("marshal event failed", "type", event.Type, "error", err)
		return
	}
	for _, c := range targets {
		if c.enqueue(payload) {
			observability.IncWSEvent("out", string(event.Type))
			continue
		}
		select {
		case <-c.closed():
			continue
		default:
		}
		observability.IncWSDropped()
		h.log.Warn("dropping slow websocket client", "conn_id", c.info.ConnID, "user_id", c.info.UserID, "event", event.Type)
		publishConnEvent(context.Background(), "ws_error", c.info, event.ConversationID, "send buffer full")
		c.close()
	}
}
