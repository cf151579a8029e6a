package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore — журнал сообщений в таблице messages (Postgres).
// id выдаёт BIGSERIAL, поэтому он строго растёт в порядке вставки.
type PostgresStore struct {
	DB *sql.DB
}

// NewPostgresStore открывает соединение, проверяет его и применяет схему.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(ctx, db, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

// Append вставляет строку и получает id через RETURNING.
func (s *PostgresStore) Append(ctx context.Context, msg Message) (Message, error) {
	msg = normalize(msg)

	query := `INSERT INTO messages (sender, body, avatar_ref, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	err := s.DB.QueryRowContext(ctx, query, msg.Sender, msg.Body, msg.AvatarRef, msg.Timestamp).Scan(&msg.ID)
	if err != nil {
		return Message{}, persistenceErr("append", err)
	}
	return msg, nil
}

// QueryRecent берёт последние limit строк и разворачивает их в хронологию.
func (s *PostgresStore) QueryRecent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}
	query := `SELECT id, sender, body, avatar_ref, created_at FROM messages ORDER BY id DESC LIMIT $1`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, persistenceErr("query recent", err)
	}
	msgs, err := scanMessages(rows, scanPostgresRow)
	if err != nil {
		return nil, persistenceErr("query recent", err)
	}
	reverse(msgs)
	return msgs, nil
}

func (s *PostgresStore) QueryAfter(ctx context.Context, afterID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}
	query := `SELECT id, sender, body, avatar_ref, created_at FROM messages WHERE id > $1 ORDER BY id ASC LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, persistenceErr("query after", err)
	}
	msgs, err := scanMessages(rows, scanPostgresRow)
	if err != nil {
		return nil, persistenceErr("query after", err)
	}
	return msgs, nil
}

func (s *PostgresStore) LastID(ctx context.Context) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM messages`).Scan(&id)
	if err != nil {
		return 0, persistenceErr("last id", err)
	}
	return id, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return persistenceErr("ping", s.DB.PingContext(ctx))
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}

func scanPostgresRow(rows *sql.Rows) (Message, error) {
	var m Message
	if err := rows.Scan(&m.ID, &m.Sender, &m.Body, &m.AvatarRef, &m.Timestamp); err != nil {
		return Message{}, err
	}
	m.Timestamp = m.Timestamp.UTC()
	return m, nil
}

// scanMessages вычитывает все строки и закрывает rows
func scanMessages(rows *sql.Rows, scan func(*sql.Rows) (Message, error)) ([]Message, error) {
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
