package repositories

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

func TestAppendRunsInOneLockedTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	expectLock(mock, 7, lockUpdate)
	mock.ExpectQuery(sqlPattern(`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`)).
		WithArgs(7, 1).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(sqlPattern(`INSERT INTO messages (conversation_id, sender_id, body, media_url, content_type)`)).
		WithArgs(7, 1, "hi", "", "text").
		WillReturnRows(messageRows().AddRow(11, 7, 1, "hi", "", "text", "sent", false, testTime))
	mock.ExpectExec(sqlPattern(`UPDATE conversations SET last_message_id=$2, updated_at=$3 WHERE id=$1`)).
		WithArgs(7, 11, testTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlPattern(`UPDATE conversation_participants SET unread_count = unread_count + 1`)).
		WithArgs(7, 1).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	msg, err := repo.Append(context.Background(), models.NewMessage{ConversationID: 7, SenderID: 1, Text: "hi", ContentType: models.ContentText})
	require.NoError(t, err)
	assert.EqualValues(t, 11, msg.ID)
	assert.Equal(t, models.StateSent, msg.DeliveryState)
}

func TestAppendRejectsOutsiderWithoutWriting(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	expectLock(mock, 7, lockUpdate)
	mock.ExpectQuery(sqlPattern(`SELECT EXISTS(`)).
		WithArgs(7, 9).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := repo.Append(context.Background(), models.NewMessage{ConversationID: 7, SenderID: 9, Text: "hi", ContentType: models.ContentText})
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestSoftDeleteRollsBackUnreadAboveWatermark(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	expectLock(mock, 7, lockUpdate)
	mock.ExpectQuery(sqlPattern(`UPDATE messages SET deleted=TRUE`)).
		WithArgs(11, 7, 1).
		WillReturnRows(messageRows().AddRow(11, 7, 1, "hi", "", "text", "sent", true, testTime))
	mock.ExpectExec(sqlPattern(`SET unread_count = GREATEST(unread_count - 1, 0)`)).
		WithArgs(7, 1, 11).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlPattern(`UPDATE conversations SET last_message_id = (`)).
		WithArgs(7, 11).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := repo.SoftDelete(context.Background(), 7, 11, 1)
	require.NoError(t, err)
	assert.True(t, msg.Deleted)
}

func TestSoftDeleteOfOthersMessageChangesNothing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	expectLock(mock, 7, lockUpdate)
	mock.ExpectQuery(sqlPattern(`UPDATE messages SET deleted=TRUE`)).
		WithArgs(11, 7, 2).
		WillReturnRows(messageRows())
	mock.ExpectRollback()

	_, err := repo.SoftDelete(context.Background(), 7, 11, 2)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestAdvanceStateReadPromotesFromLowerStates(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(sqlPattern(`INSERT INTO message_receipts (message_id, user_id, state)`)).
		WithArgs(7, 2, "read").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(sqlPattern(`m.delivery_state IN ('sent', 'delivered')`)).
		WithArgs(7, "read").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	promoted, err := repo.AdvanceState(context.Background(), 7, 2, models.StateRead)
	require.NoError(t, err)
	assert.EqualValues(t, 3, promoted)
}

func TestAdvanceStateDeliveredLeavesReadAlone(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(sqlPattern(`r.state IN ('delivered', 'read')`)).
		WithArgs(7, 2, "delivered").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlPattern(`m.delivery_state IN ('sent')`)).
		WithArgs(7, "delivered").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	promoted, err := repo.AdvanceState(context.Background(), 7, 2, models.StateDelivered)
	require.NoError(t, err)
	assert.Zero(t, promoted)
}

func TestAdvanceStateSentIsNoop(t *testing.T) {
	db, _ := newMockDB(t)
	promoted, err := NewMessageRepo(db).AdvanceState(context.Background(), 7, 2, models.StateSent)
	require.NoError(t, err)
	assert.Zero(t, promoted)
}
