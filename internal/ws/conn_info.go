package ws

import (
	"context"
	"time"

	"github.com/google/uuid"

	"messaging-service/internal/observability"
)

const wsRoutingKey = "ws_events.conversations"

type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnID() string {
	return uuid.NewString()
}

// publishConnEvent reports a connection lifecycle event on the event bus.
func publishConnEvent(ctx context.Context, event string, info ConnInfo, conversationID int64, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"conversation_id": conversationID,
			"event":           event,
			"conn_id":         info.ConnID,
			"duration_ms":     time.Since(info.ConnectedAt).Milliseconds(),
			"reason":          reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.NewEnvelope("ws_events", event, payload), headers)
	observability.IncWSEvent("conn", event)
}
