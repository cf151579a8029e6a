package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-portfolio/chat-relay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- ТЕСТЫ MemoryStore ---

func TestMemoryStore_AppendAssignsIncreasingIDs(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	var prev int64
	for i := 0; i < 5; i++ {
		m, err := s.Append(ctx, store.Message{Sender: "alice", Body: fmt.Sprintf("msg %d", i)})
		require.NoError(t, err)
		// каждый следующий id строго больше предыдущего
		assert.Greater(t, m.ID, prev)
		assert.False(t, m.Timestamp.IsZero(), "хранилище обязано проставить время")
		prev = m.ID
	}

	last, err := s.LastID(ctx)
	require.NoError(t, err)
	assert.Equal(t, prev, last)
}

func TestMemoryStore_QueryRecentEmpty(t *testing.T) {
	s := store.NewMemoryStore()

	msgs, err := s.QueryRecent(context.Background(), 100)

	// пустой журнал — пустой срез без ошибки
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestMemoryStore_QueryRecentReturnsNewestInChronologicalOrder(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		_, err := s.Append(ctx, store.Message{Sender: "bob", Body: fmt.Sprintf("%d", i)})
		require.NoError(t, err)
	}

	msgs, err := s.QueryRecent(ctx, 3)
	require.NoError(t, err)

	// последние три сообщения, старые первыми
	require.Len(t, msgs, 3)
	assert.Equal(t, "8", msgs[0].Body)
	assert.Equal(t, "9", msgs[1].Body)
	assert.Equal(t, "10", msgs[2].Body)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp), "время не убывает")
	}
}

func TestMemoryStore_QueryAfter(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := s.Append(ctx, store.Message{Sender: "bob", Body: fmt.Sprintf("%d", i)})
		require.NoError(t, err)
	}

	msgs, err := s.QueryAfter(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(3), msgs[0].ID)
	assert.Equal(t, int64(4), msgs[1].ID)

	msgs, err = s.QueryAfter(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

// Сообщение из QueryRecent совпадает с записанным, кроме полей, которые назначает хранилище
func TestMemoryStore_RoundTrip(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	in := store.Message{Sender: "alice", Body: "hello", AvatarRef: "https://example.com/a.png"}

	stored, err := s.Append(ctx, in)
	require.NoError(t, err)

	msgs, err := s.QueryRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, stored, msgs[0])
	assert.Equal(t, in.Sender, msgs[0].Sender)
	assert.Equal(t, in.Body, msgs[0].Body)
	assert.Equal(t, in.AvatarRef, msgs[0].AvatarRef)
}

func TestMemoryStore_TimestampNeverGoesBackwards(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	first, err := s.Append(ctx, store.Message{Sender: "a", Body: "1", Timestamp: now})
	require.NoError(t, err)
	second, err := s.Append(ctx, store.Message{Sender: "a", Body: "2", Timestamp: now.Add(-time.Hour)})
	require.NoError(t, err)

	assert.False(t, second.Timestamp.Before(first.Timestamp))
}

func TestMemoryStore_ConcurrentAppend(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Append(ctx, store.Message{Sender: "x", Body: "y"})
		}()
	}
	wg.Wait()

	msgs, err := s.QueryRecent(ctx, 100)
	require.NoError(t, err)
	require.Len(t, msgs, 50)
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].ID, msgs[i-1].ID)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Append(ctx, store.Message{Sender: "a", Body: "b"})

	assert.ErrorIs(t, err, store.ErrPersistence)
	assert.ErrorIs(t, err, context.Canceled)
}
