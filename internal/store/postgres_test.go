package store_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock" // моки SQL-запросов
	"github.com/go-portfolio/chat-relay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var messageColumns = []string{"id", "sender", "body", "avatar_ref", "created_at"}

// --- ТЕСТЫ PostgresStore ---

func TestPostgresStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := &store.PostgresStore{DB: db}

	// id возвращается через RETURNING
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages (sender, body, avatar_ref, created_at) VALUES ($1, $2, $3, $4) RETURNING id`)).
		WithArgs("alice", "hi", "avatar.png", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	ts := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.FixedZone("MSK", 3*3600))
	m, err := s.Append(context.Background(), store.Message{Sender: "alice", Body: "hi", AvatarRef: "avatar.png", Timestamp: ts})

	require.NoError(t, err)
	assert.Equal(t, int64(42), m.ID)
	// время приводится к UTC и обрезается до микросекунд
	assert.Equal(t, time.UTC, m.Timestamp.Location())
	assert.True(t, m.Timestamp.Equal(ts.Truncate(time.Microsecond)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := &store.PostgresStore{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages`)).
		WillReturnError(errors.New("connection refused"))

	_, err = s.Append(context.Background(), store.Message{Sender: "alice", Body: "hi"})

	// ошибка базы превращается в PersistenceError
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrPersistence)
	var pe *store.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "append", pe.Op)
}

func TestPostgresStore_QueryRecentReversesRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := &store.PostgresStore{DB: db}

	t1 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)
	// база отдаёт новые первыми
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, sender, body, avatar_ref, created_at FROM messages ORDER BY id DESC LIMIT $1`)).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow(int64(2), "bob", "second", "", t2).
			AddRow(int64(1), "alice", "first", "a.png", t1))

	msgs, err := s.QueryRecent(context.Background(), 100)

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Body)
	assert.Equal(t, "second", msgs[1].Body)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryRecentEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := &store.PostgresStore{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta(`FROM messages ORDER BY id DESC`)).
		WillReturnRows(sqlmock.NewRows(messageColumns))

	msgs, err := s.QueryRecent(context.Background(), 100)

	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestPostgresStore_QueryAfter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := &store.PostgresStore{DB: db}

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, sender, body, avatar_ref, created_at FROM messages WHERE id > $1 ORDER BY id ASC LIMIT $2`)).
		WithArgs(int64(10), 50).
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow(int64(11), "alice", "x", "", ts).
			AddRow(int64(12), "alice", "y", "", ts))

	msgs, err := s.QueryAfter(context.Background(), 10, 50)

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(11), msgs[0].ID)
	assert.Equal(t, int64(12), msgs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := &store.PostgresStore{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(id), 0) FROM messages`)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(7)))

	id, err := s.LastID(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}
