package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	redisSeqKey      = "chat:messages:seq"
	redisMessagesKey = "chat:messages"
)

// RedisStore хранит сообщения в sorted set, score = id.
// id выдаёт INCR по отдельному ключу-счётчику.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore подключается по redis:// URL и проверяет соединение.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient оборачивает готовый клиент.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Append(ctx context.Context, msg Message) (Message, error) {
	msg = normalize(msg)

	id, err := s.client.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return Message{}, persistenceErr("append", err)
	}
	msg.ID = id

	data, err := json.Marshal(msg)
	if err != nil {
		return Message{}, persistenceErr("append", err)
	}
	err = s.client.ZAdd(ctx, redisMessagesKey, redis.Z{
		Score:  float64(id),
		Member: string(data),
	}).Err()
	if err != nil {
		return Message{}, persistenceErr("append", err)
	}
	return msg, nil
}

func (s *RedisStore) QueryRecent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}
	// новые первыми, потом разворачиваем
	results, err := s.client.ZRevRange(ctx, redisMessagesKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, persistenceErr("query recent", err)
	}
	msgs := decodeMessages(results)
	reverse(msgs)
	return msgs, nil
}

func (s *RedisStore) QueryAfter(ctx context.Context, afterID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}
	results, err := s.client.ZRangeByScore(ctx, redisMessagesKey, &redis.ZRangeBy{
		Min:   fmt.Sprintf("(%d", afterID),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, persistenceErr("query after", err)
	}
	return decodeMessages(results), nil
}

func (s *RedisStore) LastID(ctx context.Context) (int64, error) {
	id, err := s.client.Get(ctx, redisSeqKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, persistenceErr("last id", err)
	}
	return id, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return persistenceErr("ping", s.client.Ping(ctx).Err())
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// decodeMessages пропускает повреждённые записи, чтобы одна строка не ломала историю
func decodeMessages(results []string) []Message {
	msgs := make([]Message, 0, len(results))
	for _, data := range results {
		var m Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}
