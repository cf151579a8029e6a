package chat

import (
	"sort"
	"sync"
	"time"
)

// Registry — кто сейчас в чате: connectionID -> PresenceEntry.
// Все операции атомарны относительно друг друга; наружу карта не отдаётся.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]PresenceEntry
	seq     uint64 // порядок входа, для стабильного снимка
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]PresenceEntry)}
}

// Register добавляет или перезаписывает запись соединения.
// Уникальность displayName не проверяется.
func (r *Registry) Register(connectionID, displayName, avatarRef string) PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	entry := PresenceEntry{
		ConnectionID: connectionID,
		DisplayName:  displayName,
		AvatarRef:    avatarRef,
		JoinedAt:     time.Now(),
		seq:          r.seq,
	}
	r.entries[connectionID] = entry
	return entry
}

// Lookup возвращает запись соединения; ok=false, если соединение не входило.
func (r *Registry) Lookup(connectionID string) (PresenceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[connectionID]
	return entry, ok
}

// Remove удаляет запись и возвращает прежнюю, если она была.
func (r *Registry) Remove(connectionID string) (PresenceEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[connectionID]
	if ok {
		delete(r.entries, connectionID)
	}
	return entry, ok
}

// Snapshot — копия всех записей на момент вызова, в порядке входа.
func (r *Registry) Snapshot() []PresenceEntry {
	r.mu.RLock()
	entries := make([]PresenceEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return entries
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset очищает реестр при остановке процесса.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]PresenceEntry)
}
