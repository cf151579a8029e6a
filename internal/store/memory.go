package store

import (
	"context"
	"sync"
)

// MemoryStore — журнал в памяти процесса. Подходит для разработки и тестов:
// после перезапуска история теряется.
type MemoryStore struct {
	mu     sync.RWMutex
	msgs   []Message
	nextID int64
}

// NewMemoryStore создаёт пустой журнал.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(ctx context.Context, msg Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, persistenceErr("append", err)
	}
	msg = normalize(msg)

	s.mu.Lock()
	defer s.mu.Unlock()

	// время не должно идти назад относительно последней записи
	if n := len(s.msgs); n > 0 && msg.Timestamp.Before(s.msgs[n-1].Timestamp) {
		msg.Timestamp = s.msgs[n-1].Timestamp
	}
	msg.ID = s.nextID
	s.nextID++
	s.msgs = append(s.msgs, msg)
	return msg, nil
}

func (s *MemoryStore) QueryRecent(ctx context.Context, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceErr("query recent", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return []Message{}, nil
	}
	start := len(s.msgs) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Message, len(s.msgs)-start)
	copy(out, s.msgs[start:])
	return out, nil
}

func (s *MemoryStore) QueryAfter(ctx context.Context, afterID int64, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceErr("query after", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Message{}
	for _, m := range s.msgs {
		if len(out) >= limit {
			break
		}
		if m.ID > afterID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) LastID(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID - 1, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
