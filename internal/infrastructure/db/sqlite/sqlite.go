// Package sqlite implements the durable local state of the sync client:
// the entity store with its in-memory mirror, the action buffer, and the
// settings map, all backed by a single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS guests_intern (
	residence   TEXT    NOT NULL,
	room_number INTEGER NOT NULL,
	id          TEXT    NOT NULL,
	first_name  TEXT    NOT NULL,
	last_name   TEXT    NOT NULL,
	verified    INTEGER NOT NULL DEFAULT 0,
	present     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (residence, room_number)
);
CREATE INDEX IF NOT EXISTS guests_intern_by_id        ON guests_intern (id);
CREATE INDEX IF NOT EXISTS guests_intern_by_last_name ON guests_intern (last_name);

CREATE TABLE IF NOT EXISTS guests_extern (
	id         TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name  TEXT NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	present    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS guests_extern_by_last_name ON guests_extern (last_name);

CREATE TABLE IF NOT EXISTS hosts (
	id         TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tutors (
	id         TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS action_buffer (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TIMESTAMP NOT NULL,
	kind       TEXT      NOT NULL,
	payload    BLOB      NOT NULL
);
CREATE INDEX IF NOT EXISTS action_buffer_by_kind ON action_buffer (kind);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// DB wraps the shared SQLite handle. Construct the stores on top of it
// with NewEntityStore, NewActionBuffer and NewSettings.
type DB struct {
	sql *sql.DB
}

// Open creates (if needed) and opens the database under dir, applying
// the schema. WAL mode keeps the file readable during writes; the busy
// timeout covers the CLI and the sync daemon sharing one file.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create data dir: %w", err)
	}

	path := filepath.Join(dir, "guestsync.db")
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &DB{sql: db}, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	return d.sql.Close()
}

// clearTables empties the given tables in one transaction.
func (d *DB) clearTables(ctx context.Context, tables ...string) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin clear: %w", err)
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("sqlite: clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
