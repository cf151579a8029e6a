package store

import (
	"context"
	"time"

	"github.com/go-portfolio/chat-relay/internal/metrics"
)

// instrumented пишет длительность каждого вызова в гистограмму хранилища.
type instrumented struct {
	next    MessageStore
	backend string
}

// Instrument оборачивает хранилище метриками Prometheus.
func Instrument(next MessageStore, backend string) MessageStore {
	return &instrumented{next: next, backend: backend}
}

func (s *instrumented) observe(op string, start time.Time) {
	metrics.StoreOperationDuration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
}

func (s *instrumented) Append(ctx context.Context, msg Message) (Message, error) {
	defer s.observe("append", time.Now())
	return s.next.Append(ctx, msg)
}

func (s *instrumented) QueryRecent(ctx context.Context, limit int) ([]Message, error) {
	defer s.observe("query_recent", time.Now())
	return s.next.QueryRecent(ctx, limit)
}

func (s *instrumented) QueryAfter(ctx context.Context, afterID int64, limit int) ([]Message, error) {
	defer s.observe("query_after", time.Now())
	return s.next.QueryAfter(ctx, afterID, limit)
}

func (s *instrumented) LastID(ctx context.Context) (int64, error) {
	defer s.observe("last_id", time.Now())
	return s.next.LastID(ctx)
}

func (s *instrumented) Ping(ctx context.Context) error {
	defer s.observe("ping", time.Now())
	return s.next.Ping(ctx)
}

func (s *instrumented) Close() error {
	return s.next.Close()
}
