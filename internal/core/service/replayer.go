package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stueble/guestsync/internal/core/domain"
	"github.com/stueble/guestsync/internal/core/ports"
	"github.com/stueble/guestsync/internal/metrics"
)

// BufferReplayer re-issues buffered writes through the request channel
// once connectivity resumes. Replay is strictly ordered: an entry is
// deleted only after the server confirmed it, and the first failure
// stops the walk so dependent writes (create-then-modify the same id)
// are never reordered.
type BufferReplayer struct {
	buffer ports.ActionBuffer
	api    ports.RequestChannel
	log    zerolog.Logger
}

var _ ports.Replayer = (*BufferReplayer)(nil)

func NewBufferReplayer(buffer ports.ActionBuffer, api ports.RequestChannel, log zerolog.Logger) *BufferReplayer {
	return &BufferReplayer{buffer: buffer, api: api, log: log}
}

// Replay walks the buffer in ascending sequence order. On return, every
// entry before the first failing one has been confirmed and deleted;
// the failing entry and everything after it are still buffered.
func (r *BufferReplayer) Replay(ctx context.Context) error {
	actions, err := r.buffer.List(ctx)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if len(actions) == 0 {
		return nil
	}

	r.log.Info().Int("pending", len(actions)).Msg("replaying buffered actions")

	for _, action := range actions {
		if err := r.dispatch(ctx, action); err != nil {
			metrics.ReplaysTotal.WithLabelValues("error").Inc()
			r.log.Warn().Err(err).
				Uint64("seq", action.Seq).
				Str("kind", string(action.Kind)).
				Msg("replay halted")
			r.updateDepth(ctx)
			return fmt.Errorf("replay action %d (%s): %w", action.Seq, action.Kind, err)
		}

		if err := r.buffer.Delete(ctx, action.Seq); err != nil {
			r.updateDepth(ctx)
			return fmt.Errorf("replay: delete confirmed action %d: %w", action.Seq, err)
		}
		metrics.ReplaysTotal.WithLabelValues("ok").Inc()
	}

	r.updateDepth(ctx)
	r.log.Info().Int("replayed", len(actions)).Msg("action buffer drained")
	return nil
}

func (r *BufferReplayer) dispatch(ctx context.Context, action domain.BufferedAction) error {
	switch action.Kind {
	case domain.ActionCreateUser:
		var p domain.CreateUserPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := r.api.CreateUser(ctx, p)
		return err

	case domain.ActionModifyUser:
		var p domain.ModifyUserPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := r.api.ModifyUser(ctx, p)
		return err

	case domain.ActionAddToGuestList:
		var p domain.AddToGuestListPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := r.api.AddToGuestList(ctx, p)
		return err

	case domain.ActionModifyGuest:
		var p domain.ModifyGuestPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := r.api.ModifyGuest(ctx, p)
		return err

	case domain.ActionRemoveFromGuestList:
		var p domain.RemoveFromGuestListPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return r.api.RemoveFromGuestList(ctx, p)

	default:
		// Skipping would reorder dependent writes, so an unknown kind
		// halts replay like any other failure.
		return fmt.Errorf("%w: %q", domain.ErrUnknownAction, action.Kind)
	}
}

func (r *BufferReplayer) updateDepth(ctx context.Context) {
	if depth, err := r.buffer.Depth(ctx); err == nil {
		metrics.BufferDepth.Set(float64(depth))
	}
}
