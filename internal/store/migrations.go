package store

import (
	"context"
	"database/sql"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		sender VARCHAR(64) NOT NULL,
		body TEXT NOT NULL,
		avatar_ref TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages (created_at);`

// created_at хранится в микросекундах unix-времени
const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender TEXT NOT NULL,
		body TEXT NOT NULL,
		avatar_ref TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages (created_at);`

func runMigrations(ctx context.Context, db *sql.DB, schema string) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
