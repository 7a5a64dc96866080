package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// AuditEntry is one administrative action worth keeping a trail of.
type AuditEntry struct {
	Level          string
	Text           string
	RequestID      string
	UserID         *string
	ConversationID int64
	TargetUserID   int64
}

// AuditEmitter sends audit_log envelopes to the event bus.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         *slog.Logger
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level          string `json:"level"`
	Text           string `json:"text"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	TargetUserID   int64  `json:"target_user_id,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log *slog.Logger) *AuditEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         log,
		now:         time.Now,
	}
}

// Emit records a free-form audit line.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	e.Record(ctx, AuditEntry{Level: level, Text: text, RequestID: requestID, UserID: userID})
}

// Record publishes entry. Failures are logged and swallowed; a nil emitter
// does nothing.
func (e *AuditEmitter) Record(ctx context.Context, entry AuditEntry) {
	if e == nil || e.publisher == nil {
		return
	}
	if entry.Level == "" {
		entry.Level = "INFO"
	}

	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     entry.RequestID,
		TraceID:       traceID,
		UserID:        entry.UserID,
		Payload: AuditPayload{
			Level:          entry.Level,
			Text:           entry.Text,
			ConversationID: entry.ConversationID,
			TargetUserID:   entry.TargetUserID,
		},
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.log.Warn("audit publish failed", "request_id", entry.RequestID, "conversation_id", entry.ConversationID, "error", err)
		return
	}
	e.log.Debug("audit recorded", "level", entry.Level, "request_id", entry.RequestID, "text", entry.Text)
}
