package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stueble/guestsync/internal/core/domain"
	"github.com/stueble/guestsync/internal/core/ports"
)

// ActionBuffer is the durable FIFO of write intents. Sequence numbers
// come from the AUTOINCREMENT column, so order survives restarts and a
// deleted entry's number is never reused.
type ActionBuffer struct {
	db *DB
}

var _ ports.ActionBuffer = (*ActionBuffer)(nil)

func NewActionBuffer(db *DB) *ActionBuffer {
	return &ActionBuffer{db: db}
}

func (b *ActionBuffer) Enqueue(ctx context.Context, kind domain.ActionKind, payload any) (uint64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("sqlite: encode %s payload: %w", kind, err)
	}

	res, err := b.db.sql.ExecContext(ctx,
		`INSERT INTO action_buffer (created_at, kind, payload) VALUES (?, ?, ?)`,
		time.Now().UTC(), string(kind), body)
	if err != nil {
		return 0, fmt.Errorf("sqlite: enqueue %s: %w", kind, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: enqueue %s: %w", kind, err)
	}
	return uint64(seq), nil
}

func (b *ActionBuffer) List(ctx context.Context) ([]domain.BufferedAction, error) {
	rows, err := b.db.sql.QueryContext(ctx,
		`SELECT seq, created_at, kind, payload FROM action_buffer ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list action buffer: %w", err)
	}
	defer rows.Close()

	var actions []domain.BufferedAction
	for rows.Next() {
		var (
			a    domain.BufferedAction
			kind string
		)
		if err := rows.Scan(&a.Seq, &a.CreatedAt, &kind, &a.Payload); err != nil {
			return nil, fmt.Errorf("sqlite: scan action buffer: %w", err)
		}
		a.Kind = domain.ActionKind(kind)
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (b *ActionBuffer) Delete(ctx context.Context, seq uint64) error {
	if _, err := b.db.sql.ExecContext(ctx, `DELETE FROM action_buffer WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("sqlite: delete buffered action %d: %w", seq, err)
	}
	return nil
}

func (b *ActionBuffer) Depth(ctx context.Context) (int, error) {
	var n int
	if err := b.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM action_buffer`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: action buffer depth: %w", err)
	}
	return n, nil
}
