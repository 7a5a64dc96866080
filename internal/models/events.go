package models

// EventType names a realtime event in either direction.
type EventType string

// Client to server.
const (
	EventJoin       EventType = "join"
	EventLeave      EventType = "leave"
	EventTyping     EventType = "typing"
	EventStopTyping EventType = "stop_typing"
	EventPing       EventType = "ping"
)

// Server to client. Typing events reuse the client names.
const (
	EventMessageReceived   EventType = "message_received"
	EventMessageDeleted    EventType = "message_deleted"
	EventReactionUpdated   EventType = "reaction_updated"
	EventMessagesRead      EventType = "messages_read"
	EventMessagesDelivered EventType = "messages_delivered"
	EventUserOnline        EventType = "user_online"
	EventUserOffline       EventType = "user_offline"
	EventJoined            EventType = "joined"
	EventLeft              EventType = "left"
	EventError             EventType = "error"
	EventPong              EventType = "pong"
)

// ClientEvent is a frame received from a websocket client.
type ClientEvent struct {
	Type           EventType `json:"type"`
	ConversationID int64     `json:"conversation_id,omitempty"`
}

// ServerEvent is a frame pushed to websocket clients.
type ServerEvent struct {
	Type           EventType     `json:"type"`
	ConversationID int64         `json:"conversation_id,omitempty"`
	UserID         int64         `json:"user_id,omitempty"`
	Message        *Message      `json:"message,omitempty"`
	MessageID      int64         `json:"message_id,omitempty"`
	Reaction       *Reaction     `json:"reaction,omitempty"`
	State          DeliveryState `json:"state,omitempty"`
	Error          *ErrorPayload `json:"error,omitempty"`
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
