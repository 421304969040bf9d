package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stueble/guestsync/internal/core/ports"
)

// Settings is the flat string-to-string map for small scalars and cached
// JSON blobs (motto, cached config, fetch flags).
type Settings struct {
	db *DB
}

var _ ports.SettingsStore = (*Settings)(nil)

func NewSettings(db *DB) *Settings {
	return &Settings{db: db}
}

func (s *Settings) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.sql.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite: get setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Settings) Set(ctx context.Context, key, value string) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("sqlite: set setting %s: %w", key, err)
	}
	return nil
}

func (s *Settings) Clear(ctx context.Context) error {
	return s.db.clearTables(ctx, "settings")
}
