package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	routingKey string
	event      any
	err        error
}

func (p *capturePublisher) Publish(_ context.Context, routingKey string, event any) error {
	p.routingKey = routingKey
	p.event = event
	return p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	emitter := NewAuditEmitter(pub, "audit.messaging", "messaging-service", "test", discardLogger())
	user := "42"

	emitter.Emit(context.Background(), "INFO", "group created", "req-1", &user)

	assert.Equal(t, "audit.messaging", pub.routingKey)
	env, ok := pub.event.(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, "audit_log", env.EventType)
	assert.Equal(t, "req-1", env.RequestID)
	assert.Equal(t, "group created", env.Payload.Text)
	require.NotNil(t, env.UserID)
	assert.Equal(t, "42", *env.UserID)
}

func TestAuditEmitterSwallowsErrors(t *testing.T) {
	pub := &capturePublisher{err: errors.New("down")}
	emitter := NewAuditEmitter(pub, "audit", "svc", "test", discardLogger())
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "ERROR", "x", "", nil)
	})

	var nilEmitter *AuditEmitter
	assert.NotPanics(t, func() {
		nilEmitter.Emit(context.Background(), "INFO", "x", "", nil)
	})
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "", "svc", "test", discardLogger())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, Tracer())
}

func TestAuditRecordCarriesConversation(t *testing.T) {
	pub := &capturePublisher{}
	emitter := NewAuditEmitter(pub, "audit", "svc", "test", discardLogger())

	emitter.Record(context.Background(), AuditEntry{Text: "user removed", ConversationID: 5, TargetUserID: 9})

	env, ok := pub.event.(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, "INFO", env.Payload.Level)
	assert.Equal(t, int64(5), env.Payload.ConversationID)
	assert.Equal(t, int64(9), env.Payload.TargetUserID)
	assert.Empty(t, env.TraceID)
}
