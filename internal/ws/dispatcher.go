package ws

import (
	"context"

	"messaging-service/internal/apperr"
	"messaging-service/internal/models"
)

// HandlerFunc processes one client event.
type HandlerFunc func(ctx context.Context, c *Client, event models.ClientEvent)

// Dispatcher routes client events by type.
type Dispatcher struct {
	handlers map[models.EventType]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[models.EventType]HandlerFunc)}
}

func (d *Dispatcher) Register(eventType models.EventType, handler HandlerFunc) {
	d.handlers[eventType] = handler
}

// Dispatch runs the handler for event, answering unknown types with an
// error event.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, event models.ClientEvent) {
	handler, ok := d.handlers[event.Type]
	if !ok {
		c.sendEvent(errorEvent(event.ConversationID, string(apperr.KindInvalidArgument), "unknown event type"))
		return
	}
	handler(ctx, c, event)
}
