package migrations

// Messages and their optional attachment. The id column needs a different
// auto-increment form per database, so this lives in Go rather than SQL.

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateMessages, downCreateMessages)
}

func upCreateMessages(ctx context.Context, tx *sql.Tx) error {
	stmts := append(createMessagesStmts(),
		`CREATE INDEX idx_messages_created_at ON messages (created_at)`,
		`CREATE INDEX idx_attachments_message_id ON attachments (message_id)`,
	)
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create messages: %w", err)
		}
	}
	return nil
}

func downCreateMessages(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{`DROP TABLE IF EXISTS attachments`, `DROP TABLE IF EXISTS messages`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func createMessagesStmts() []string {
	switch dialect {
	case "postgres":
		return []string{
			`CREATE TABLE IF NOT EXISTS messages (
    id           BIGSERIAL PRIMARY KEY,
    name         TEXT NOT NULL,
    contact      TEXT NOT NULL,
    contact_kind TEXT NOT NULL DEFAULT 'email',
    body         TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS attachments (
    id           BIGSERIAL PRIMARY KEY,
    message_id   BIGINT NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
    file_name    TEXT NOT NULL,
    stored_name  TEXT NOT NULL UNIQUE,
    content_type TEXT NOT NULL,
    size_bytes   BIGINT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL
)`,
		}
	case "mysql":
		return []string{
			`CREATE TABLE IF NOT EXISTS messages (
    id           BIGINT AUTO_INCREMENT PRIMARY KEY,
    name         VARCHAR(255) NOT NULL,
    contact      VARCHAR(255) NOT NULL,
    contact_kind VARCHAR(16) NOT NULL DEFAULT 'email',
    body         TEXT NOT NULL,
    created_at   DATETIME(6) NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS attachments (
    id           BIGINT AUTO_INCREMENT PRIMARY KEY,
    message_id   BIGINT NOT NULL,
    file_name    VARCHAR(255) NOT NULL,
    stored_name  VARCHAR(64) NOT NULL UNIQUE,
    content_type VARCHAR(255) NOT NULL,
    size_bytes   BIGINT NOT NULL,
    created_at   DATETIME(6) NOT NULL,
    FOREIGN KEY (message_id) REFERENCES messages (id) ON DELETE CASCADE
)`,
		}
	default: // sqlite3
		return []string{
			`CREATE TABLE IF NOT EXISTS messages (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    name         TEXT NOT NULL,
    contact      TEXT NOT NULL,
    contact_kind TEXT NOT NULL DEFAULT 'email',
    body         TEXT NOT NULL,
    created_at   DATETIME NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS attachments (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id   INTEGER NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
    file_name    TEXT NOT NULL,
    stored_name  TEXT NOT NULL UNIQUE,
    content_type TEXT NOT NULL,
    size_bytes   INTEGER NOT NULL,
    created_at   DATETIME NOT NULL
)`,
		}
	}
}
