package repositories

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDirectReturnsWinnerOnConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(sqlPattern(`ON CONFLICT (direct_key) DO NOTHING RETURNING`)).
		WithArgs("3:8").
		WillReturnRows(conversationRows())
	mock.ExpectRollback()
	mock.ExpectQuery(sqlPattern(`FROM conversations WHERE direct_key=$1`)).
		WithArgs("3:8").
		WillReturnRows(conversationRows().AddRow(5, false, nil, nil, nil, testTime, testTime))
	mock.ExpectQuery(sqlPattern(`WHERE conversation_id IN ($1)`)).
		WithArgs(5).
		WillReturnRows(participantRows().
			AddRow(5, 3, 0, nil, 0, testTime).
			AddRow(5, 8, 2, nil, 0, testTime))

	conv, created, err := repo.CreateDirect(context.Background(), 8, 3)
	require.NoError(t, err)
	assert.False(t, created)
	assert.EqualValues(t, 5, conv.ID)
	require.Len(t, conv.Participants, 2)
	assert.Equal(t, 2, conv.Participants[1].UnreadCount)
}

func TestCreateDirectInsertsBothParticipants(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(sqlPattern(`ON CONFLICT (direct_key) DO NOTHING`)).
		WithArgs("1:2").
		WillReturnRows(conversationRows().AddRow(9, false, nil, nil, nil, testTime, testTime))
	for _, id := range []int64{1, 2} {
		mock.ExpectExec(sqlPattern(`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`)).
			WithArgs(9, id).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()
	mock.ExpectQuery(sqlPattern(`FROM conversation_participants`)).
		WithArgs(9).
		WillReturnRows(participantRows().AddRow(9, 1, 0, nil, 0, testTime).AddRow(9, 2, 0, nil, 0, testTime))

	conv, created, err := repo.CreateDirect(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, conv.Participants, 2)
}

func TestAddParticipantStartsAtLatestMessage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)

	mock.ExpectBegin()
	expectLock(mock, 4, lockShare)
	mock.ExpectExec(sqlPattern(`(SELECT COALESCE(MAX(id), 0) FROM messages WHERE conversation_id=$1)`)).
		WithArgs(4, 6).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.AddParticipant(context.Background(), 4, 6))
}

func TestAddParticipantDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)

	mock.ExpectBegin()
	expectLock(mock, 4, lockShare)
	mock.ExpectExec(sqlPattern(`INSERT INTO conversation_participants`)).
		WithArgs(4, 6).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.AddParticipant(context.Background(), 4, 6), ErrAlreadyParticipant)
}

func TestAddParticipantMissingConversation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(sqlPattern(`FOR SHARE`)).WithArgs(4).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.AddParticipant(context.Background(), 4, 6), ErrConversationNotFound)
}
