package chat_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/go-portfolio/chat-relay/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterLookupRemove(t *testing.T) {
	r := chat.NewRegistry()

	_, ok := r.Lookup("c1")
	assert.False(t, ok, "до входа записи нет")

	r.Register("c1", "alice", "a.png")
	entry, ok := r.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", entry.DisplayName)
	assert.Equal(t, "a.png", entry.AvatarRef)
	assert.Equal(t, "c1", entry.ConnectionID)

	removed, ok := r.Remove("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", removed.DisplayName)

	// повторное удаление ничего не возвращает
	_, ok = r.Remove("c1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_RegisterOverwritesAndAllowsDuplicateNames(t *testing.T) {
	r := chat.NewRegistry()

	r.Register("c1", "alice", "")
	r.Register("c2", "alice", "") // имена не уникальны
	r.Register("c1", "alice2", "x")

	assert.Equal(t, 2, r.Len())
	entry, _ := r.Lookup("c1")
	assert.Equal(t, "alice2", entry.DisplayName)
}

func TestRegistry_SnapshotIsACopyInJoinOrder(t *testing.T) {
	r := chat.NewRegistry()
	r.Register("c1", "first", "")
	r.Register("c2", "second", "")
	r.Register("c3", "third", "")

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "first", snap[0].DisplayName)
	assert.Equal(t, "second", snap[1].DisplayName)
	assert.Equal(t, "third", snap[2].DisplayName)

	// снимок не живой
	r.Remove("c2")
	assert.Len(t, snap, 3)
	assert.Len(t, r.Snapshot(), 2)
}

// Параллельные входы и выходы разных соединений не теряют обновлений
func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	r := chat.NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			r.Register(id, "user", "")
			_ = r.Snapshot()
			if i%2 == 0 {
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.Len())
	assert.Len(t, r.Snapshot(), 50)
}

func TestRegistry_Reset(t *testing.T) {
	r := chat.NewRegistry()
	r.Register("c1", "alice", "")

	r.Reset()

	assert.Equal(t, 0, r.Len())
}
