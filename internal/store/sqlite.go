package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore — журнал сообщений в локальном файле SQLite.
type SQLiteStore struct {
	DB *sql.DB
}

// NewSQLiteStore открывает (или создаёт) файл базы и применяет схему.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "./data/chat.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// один писатель: SQLite всё равно сериализует запись
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := runMigrations(ctx, db, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{DB: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, msg Message) (Message, error) {
	msg = normalize(msg)

	query := `INSERT INTO messages (sender, body, avatar_ref, created_at) VALUES (?, ?, ?, ?)`
	res, err := s.DB.ExecContext(ctx, query, msg.Sender, msg.Body, msg.AvatarRef, msg.Timestamp.UnixMicro())
	if err != nil {
		return Message{}, persistenceErr("append", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, persistenceErr("append", err)
	}
	msg.ID = id
	return msg, nil
}

func (s *SQLiteStore) QueryRecent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}
	query := `SELECT id, sender, body, avatar_ref, created_at FROM messages ORDER BY id DESC LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, persistenceErr("query recent", err)
	}
	msgs, err := scanMessages(rows, scanSQLiteRow)
	if err != nil {
		return nil, persistenceErr("query recent", err)
	}
	reverse(msgs)
	return msgs, nil
}

func (s *SQLiteStore) QueryAfter(ctx context.Context, afterID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}
	query := `SELECT id, sender, body, avatar_ref, created_at FROM messages WHERE id > ? ORDER BY id ASC LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, persistenceErr("query after", err)
	}
	msgs, err := scanMessages(rows, scanSQLiteRow)
	if err != nil {
		return nil, persistenceErr("query after", err)
	}
	return msgs, nil
}

func (s *SQLiteStore) LastID(ctx context.Context) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM messages`).Scan(&id)
	if err != nil {
		return 0, persistenceErr("last id", err)
	}
	return id, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return persistenceErr("ping", s.DB.PingContext(ctx))
}

func (s *SQLiteStore) Close() error {
	return s.DB.Close()
}

func scanSQLiteRow(rows *sql.Rows) (Message, error) {
	var (
		m      Message
		micros int64
	)
	if err := rows.Scan(&m.ID, &m.Sender, &m.Body, &m.AvatarRef, &micros); err != nil {
		return Message{}, err
	}
	m.Timestamp = time.UnixMicro(micros).UTC()
	return m, nil
}
