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

// SyncService is the write path for user actions. Every mutating
// guest/user operation captures its intent into the action buffer
// before touching the network, then attempts the request channel:
//
//   - success: the entry is removed, the result applied to the store;
//   - client fault (4xx): the entry is removed and the error surfaced,
//     since an invalid operation must never be replayed blindly;
//   - transport error / server fault: the entry stays buffered for the
//     replayer, the error is surfaced so the UI can say "saved locally".
type SyncService struct {
	api      ports.RequestChannel
	buffer   ports.ActionBuffer
	store    ports.EntityStore
	settings ports.SettingsStore
	log      zerolog.Logger
}

func NewSyncService(
	api ports.RequestChannel,
	buffer ports.ActionBuffer,
	store ports.EntityStore,
	settings ports.SettingsStore,
	log zerolog.Logger,
) *SyncService {
	return &SyncService{api: api, buffer: buffer, store: store, settings: settings, log: log}
}

func (s *SyncService) CreateUser(ctx context.Context, p domain.CreateUserPayload) (*domain.Guest, error) {
	return s.writeThrough(ctx, domain.ActionCreateUser, p, func() (*domain.Guest, error) {
		return s.api.CreateUser(ctx, p)
	})
}

func (s *SyncService) ModifyUser(ctx context.Context, p domain.ModifyUserPayload) (*domain.Guest, error) {
	return s.writeThrough(ctx, domain.ActionModifyUser, p, func() (*domain.Guest, error) {
		return s.api.ModifyUser(ctx, p)
	})
}

func (s *SyncService) AddToGuestList(ctx context.Context, p domain.AddToGuestListPayload) (*domain.Guest, error) {
	return s.writeThrough(ctx, domain.ActionAddToGuestList, p, func() (*domain.Guest, error) {
		return s.api.AddToGuestList(ctx, p)
	})
}

func (s *SyncService) ModifyGuest(ctx context.Context, p domain.ModifyGuestPayload) (*domain.Guest, error) {
	return s.writeThrough(ctx, domain.ActionModifyGuest, p, func() (*domain.Guest, error) {
		return s.api.ModifyGuest(ctx, p)
	})
}

func (s *SyncService) RemoveFromGuestList(ctx context.Context, p domain.RemoveFromGuestListPayload) error {
	_, err := s.writeThrough(ctx, domain.ActionRemoveFromGuestList, p, func() (*domain.Guest, error) {
		return nil, s.api.RemoveFromGuestList(ctx, p)
	})
	return err
}

// writeThrough implements the optimistic capture-then-send sequence
// shared by all mutating operations.
func (s *SyncService) writeThrough(
	ctx context.Context,
	kind domain.ActionKind,
	payload any,
	call func() (*domain.Guest, error),
) (*domain.Guest, error) {
	seq, err := s.buffer.Enqueue(ctx, kind, payload)
	if err != nil {
		// Without durable intent capture the at-least-once guarantee is
		// gone; refuse the operation rather than risk a silent loss.
		return nil, fmt.Errorf("%s: capture intent: %w", kind, err)
	}
	s.updateDepth(ctx)

	guest, err := call()
	if err == nil {
		s.confirm(ctx, seq)
		if guest != nil {
			if storeErr := s.store.AddGuests(ctx, []domain.Guest{*guest}); storeErr != nil {
				s.log.Warn().Err(storeErr).Str("kind", string(kind)).Msg("result not applied to local store")
			}
		}
		return guest, nil
	}

	if !domain.IsRetryable(err) {
		s.confirm(ctx, seq)
		return nil, err
	}

	s.log.Info().Err(err).
		Str("kind", string(kind)).
		Uint64("seq", seq).
		Msg("write buffered for replay")
	return nil, err
}

// confirm removes a buffered entry whose outcome is settled.
func (s *SyncService) confirm(ctx context.Context, seq uint64) {
	if err := s.buffer.Delete(ctx, seq); err != nil {
		// The entry will be replayed later; upsert semantics on the
		// server make that harmless.
		s.log.Warn().Err(err).Uint64("seq", seq).Msg("settled action not removed from buffer")
	}
	s.updateDepth(ctx)
}

func (s *SyncService) updateDepth(ctx context.Context) {
	if depth, err := s.buffer.Depth(ctx); err == nil {
		metrics.BufferDepth.Set(float64(depth))
	}
}

/* Full resyncs */

// RefreshGuestList fetches the authoritative guest list and replaces
// local state with it, then marks the list as fetched.
func (s *SyncService) RefreshGuestList(ctx context.Context) ([]domain.Guest, error) {
	guests, err := s.api.GetGuestList(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh guest list: %w", err)
	}

	if err := s.store.AddGuests(ctx, guests); err != nil {
		return nil, fmt.Errorf("refresh guest list: %w", err)
	}
	if err := s.settings.Set(ctx, ports.SettingGuestListFetched, "true"); err != nil {
		return nil, fmt.Errorf("refresh guest list: %w", err)
	}
	return guests, nil
}

// GuestListStale reports whether a full guest-list resync is needed.
func (s *SyncService) GuestListStale(ctx context.Context) bool {
	value, ok, err := s.settings.Get(ctx, ports.SettingGuestListFetched)
	if err != nil || !ok {
		return true
	}
	return value != "true"
}

func (s *SyncService) RefreshHosts(ctx context.Context) ([]domain.Member, error) {
	hosts, err := s.api.GetHosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh hosts: %w", err)
	}
	if err := s.store.AddHosts(ctx, hosts); err != nil {
		return nil, fmt.Errorf("refresh hosts: %w", err)
	}
	if err := s.settings.Set(ctx, ports.SettingHostsFetched, "true"); err != nil {
		return nil, fmt.Errorf("refresh hosts: %w", err)
	}
	return hosts, nil
}

func (s *SyncService) RefreshTutors(ctx context.Context) ([]domain.Member, error) {
	tutors, err := s.api.GetTutors(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh tutors: %w", err)
	}
	if err := s.store.AddTutors(ctx, tutors); err != nil {
		return nil, fmt.Errorf("refresh tutors: %w", err)
	}
	if err := s.settings.Set(ctx, ports.SettingTutorsFetched, "true"); err != nil {
		return nil, fmt.Errorf("refresh tutors: %w", err)
	}
	return tutors, nil
}

// RefreshConfig fetches the server configuration and caches it in the
// settings map.
func (s *SyncService) RefreshConfig(ctx context.Context) (*domain.Config, error) {
	cfg, err := s.api.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh config: %w", err)
	}

	encoded, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("refresh config: %w", err)
	}
	if err := s.settings.Set(ctx, ports.SettingConfig, string(encoded)); err != nil {
		return nil, fmt.Errorf("refresh config: %w", err)
	}
	return cfg, nil
}
