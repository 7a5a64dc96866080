package repositories

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "postgres")
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

// sqlPattern matches a statement by a literal fragment.
func sqlPattern(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

func expectLock(mock sqlmock.Sqlmock, conversationID int64, mode lockMode) {
	mock.ExpectQuery(sqlPattern(`SELECT id FROM conversations WHERE id=$1 ` + string(mode))).
		WithArgs(conversationID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(conversationID))
}

func conversationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "is_group", "group_name", "group_admin", "last_message_id", "created_at", "updated_at"})
}

func participantRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"conversation_id", "user_id", "unread_count", "last_read_at", "last_read_message_id", "joined_at"})
}

func messageRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "conversation_id", "sender_id", "body", "media_url", "content_type", "delivery_state", "deleted", "created_at"})
}
