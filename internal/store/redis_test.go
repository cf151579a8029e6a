package store_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-portfolio/chat-relay/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisStore поднимает miniredis в процессе.
// С REDIS_TEST_URL=redis://localhost:6379/15 тесты идут на живой Redis;
// база очищается перед тестом, поэтому используйте отдельный номер БД.
func newTestRedisStore(t *testing.T) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	if url := os.Getenv("REDIS_TEST_URL"); url != "" {
		opts, err := redis.ParseURL(url)
		require.NoError(t, err)
		client := redis.NewClient(opts)
		require.NoError(t, client.FlushDB(context.Background()).Err())
		s := store.NewRedisStoreFromClient(client)
		t.Cleanup(func() { _ = s.Close() })
		return s, nil
	}

	mr := miniredis.RunT(t)
	s := store.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_AppendAndQuery(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	last, err := s.LastID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last, "пустой журнал")

	var stored []store.Message
	for _, body := range []string{"one", "two", "three"} {
		m, err := s.Append(ctx, store.Message{Sender: "alice", Body: body})
		require.NoError(t, err)
		stored = append(stored, m)
	}

	recent, err := s.QueryRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, stored[1:], recent)

	after, err := s.QueryAfter(ctx, stored[0].ID, 10)
	require.NoError(t, err)
	assert.Equal(t, stored[1:], after)

	last, err = s.LastID(ctx)
	require.NoError(t, err)
	assert.Equal(t, stored[2].ID, last)
}

func TestRedisStore_IDsIncreaseAndOrderHolds(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	var prev int64
	for i := 0; i < 15; i++ {
		m, err := s.Append(ctx, store.Message{Sender: "bob", Body: "msg"})
		require.NoError(t, err)
		assert.Greater(t, m.ID, prev)
		prev = m.ID
	}

	recent, err := s.QueryRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	assert.Equal(t, int64(6), recent[0].ID, "последние 10, старые первыми")
	assert.Equal(t, int64(15), recent[9].ID)
	for i := 1; i < len(recent); i++ {
		assert.Less(t, recent[i-1].ID, recent[i].ID)
		assert.False(t, recent[i].Timestamp.Before(recent[i-1].Timestamp))
	}

	page, err := s.QueryAfter(ctx, 3, 5)
	require.NoError(t, err)
	require.Len(t, page, 5)
	assert.Equal(t, int64(4), page[0].ID, "after исключает сам курсор")
	assert.Equal(t, int64(8), page[4].ID)
}

func TestRedisStore_EmptyQueries(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	recent, err := s.QueryRecent(ctx, 100)
	require.NoError(t, err)
	assert.NotNil(t, recent)
	assert.Empty(t, recent)

	after, err := s.QueryAfter(ctx, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	in := store.Message{Sender: "Алиса", Body: "привет <b>&</b>", AvatarRef: "https://img.example/a.png"}
	stored, err := s.Append(ctx, in)
	require.NoError(t, err)

	recent, err := s.QueryRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, stored, recent[0])
	assert.Equal(t, in.Sender, recent[0].Sender)
	assert.Equal(t, in.Body, recent[0].Body)
	assert.Equal(t, in.AvatarRef, recent[0].AvatarRef)
}

func TestRedisStore_UnavailableIsPersistenceError(t *testing.T) {
	s, mr := newTestRedisStore(t)
	if mr == nil {
		t.Skip("нужен miniredis, чтобы уронить сервер")
	}
	mr.Close()
	ctx := context.Background()

	_, err := s.Append(ctx, store.Message{Sender: "alice", Body: "lost"})
	assert.True(t, errors.Is(err, store.ErrPersistence))

	_, err = s.QueryRecent(ctx, 10)
	assert.True(t, errors.Is(err, store.ErrPersistence))

	assert.True(t, errors.Is(s.Ping(ctx), store.ErrPersistence))
}
