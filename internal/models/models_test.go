package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, DirectKey(7, 3), DirectKey(3, 7))
	assert.Equal(t, "3:7", DirectKey(7, 3))
}

func TestNormalizeRequiresContent(t *testing.T) {
	_, err := NewMessage{ConversationID: 1, SenderID: 1, Text: "   "}.Normalize()
	require.ErrorIs(t, err, ErrEmptyContent)

	msg, err := NewMessage{ConversationID: 1, SenderID: 1, Text: " hi "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, ContentText, msg.ContentType)

	msg, err = NewMessage{ConversationID: 1, SenderID: 1, MediaURL: "m/1", ContentType: ContentVideo}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, ContentVideo, msg.ContentType)
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)
	c := Cursor{CreatedAt: at, Seq: 42}

	parsed, err := ParseCursor(c.Encode())
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.True(t, parsed.CreatedAt.Equal(at))
	assert.Equal(t, int64(42), parsed.Seq)
}

func TestCursorAfterBreaksTiesBySequence(t *testing.T) {
	at := time.Now()
	c := Cursor{CreatedAt: at, Seq: 10}

	assert.True(t, c.After(Message{ID: 9, CreatedAt: at}))
	assert.False(t, c.After(Message{ID: 10, CreatedAt: at}))
	assert.False(t, c.After(Message{ID: 11, CreatedAt: at}))
	assert.True(t, c.After(Message{ID: 50, CreatedAt: at.Add(-time.Millisecond)}))
}

func TestParseCursorAcceptsTimestamp(t *testing.T) {
	parsed, err := ParseCursor("2024-05-01T12:00:00Z")
	require.NoError(t, err)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, parsed.After(Message{ID: 1, CreatedAt: at}))
	assert.True(t, parsed.After(Message{ID: 1, CreatedAt: at.Add(-time.Second)}))
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	_, err := ParseCursor("%%%")
	require.ErrorIs(t, err, ErrInvalidCursor)

	empty, err := ParseCursor("")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestNewPage(t *testing.T) {
	at := time.Now()
	newestFirst := []Message{
		{ID: 3, CreatedAt: at.Add(2 * time.Second)},
		{ID: 2, CreatedAt: at.Add(time.Second)},
	}

	page := NewPage(newestFirst, 2)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, int64(2), page.Messages[0].ID)
	assert.Equal(t, int64(3), page.Messages[1].ID)
	assert.True(t, page.HasMore)
	assert.Equal(t, page.Messages[0].Position().Encode(), page.NextCursor)

	short := NewPage(newestFirst[:1], 2)
	assert.False(t, short.HasMore)
	assert.Empty(t, short.NextCursor)
}

func TestConversationHelpers(t *testing.T) {
	admin := int64(1)
	conv := Conversation{
		IsGroup:    true,
		GroupAdmin: &admin,
		Participants: []Participant{
			{UserID: 1, UnreadCount: 0},
			{UserID: 2, UnreadCount: 4},
		},
	}

	assert.True(t, conv.HasParticipant(2))
	assert.False(t, conv.HasParticipant(3))
	assert.Equal(t, 4, conv.UnreadFor(2))
	assert.True(t, conv.IsAdmin(1))
	assert.False(t, conv.IsAdmin(2))
	assert.Equal(t, []int64{1, 2}, conv.ParticipantIDs())
}

func TestErrorEventWireShape(t *testing.T) {
	raw, err := json.Marshal(ServerEvent{
		Type:           EventError,
		ConversationID: 4,
		Error:          &ErrorPayload{Code: "forbidden", Message: "not a participant"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","conversation_id":4,"error":{"code":"forbidden","message":"not a participant"}}`, string(raw))
}
