package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Message — сохранённое сообщение чата.
// ID и Timestamp назначаются при записи и дальше не меняются.
type Message struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	AvatarRef string    `json:"avatarRef"`
}

// MessageStore — журнал сообщений только на добавление.
//
// Все реализации обязаны:
//   - выдавать каждому Append идентификатор строго больше всех предыдущих;
//   - возвращать выборки в хронологическом порядке (по возрастанию id);
//   - возвращать пустой срез, а не ошибку, для пустого журнала;
//   - оборачивать ошибки хранилища в *PersistenceError.
type MessageStore interface {
	// Append сохраняет сообщение и возвращает его с назначенными ID и Timestamp.
	Append(ctx context.Context, msg Message) (Message, error)
	// QueryRecent возвращает не более limit последних сообщений, старые первыми.
	QueryRecent(ctx context.Context, limit int) ([]Message, error)
	// QueryAfter возвращает не более limit сообщений с id > afterID, старые первыми.
	QueryAfter(ctx context.Context, afterID int64, limit int) ([]Message, error)
	// LastID возвращает наибольший выданный id (0 для пустого журнала).
	LastID(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// ErrPersistence — общий признак недоступности хранилища.
var ErrPersistence = errors.New("message store unavailable")

// PersistenceError описывает сбой конкретной операции хранилища.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is позволяет проверять errors.Is(err, ErrPersistence).
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func persistenceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// normalize готовит сообщение к записи: время в UTC с точностью до микросекунд,
// чтобы все бэкенды возвращали его без искажений.
func normalize(msg Message) Message {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.Timestamp = msg.Timestamp.UTC().Truncate(time.Microsecond)
	msg.ID = 0
	return msg
}

// reverse разворачивает срез на месте (выборки "с конца" -> хронологический порядок)
func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
