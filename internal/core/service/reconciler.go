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

// Reconciler applies authoritative server events to the local store.
// All additions are id-keyed upserts, so re-delivered or out-of-order
// add/modify events converge on the last applied payload. An add
// arriving after its own remove resurrects the entity; the transport is
// assumed to deliver per-entity events in order.
type Reconciler struct {
	store    ports.EntityStore
	settings ports.SettingsStore
	log      zerolog.Logger
}

var _ ports.EventSink = (*Reconciler)(nil)

func NewReconciler(store ports.EntityStore, settings ports.SettingsStore, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, settings: settings, log: log}
}

func (r *Reconciler) GuestUpserted(ctx context.Context, g domain.Guest) error {
	var err error
	if g.Extern {
		err = r.store.AddGuestExtern(ctx, g.ExternGuest())
	} else {
		err = r.store.AddGuestIntern(ctx, g.Intern())
	}
	if err != nil {
		return fmt.Errorf("reconcile guest %s: %w", g.ID, err)
	}

	metrics.EventsAppliedTotal.WithLabelValues("guestUpserted").Inc()
	r.log.Debug().Str("id", g.ID).Bool("extern", g.Extern).Msg("guest upserted")
	return nil
}

// GuestRemoved deletes from both guest collections: the event only
// carries the id, and exactly one collection holds it.
func (r *Reconciler) GuestRemoved(ctx context.Context, id string) error {
	if err := r.store.DeleteGuestExtern(ctx, id); err != nil {
		return fmt.Errorf("reconcile guest removal %s: %w", id, err)
	}
	if err := r.store.DeleteGuestInternByID(ctx, id); err != nil {
		return fmt.Errorf("reconcile guest removal %s: %w", id, err)
	}

	metrics.EventsAppliedTotal.WithLabelValues("guestRemoved").Inc()
	r.log.Debug().Str("id", id).Msg("guest removed")
	return nil
}

func (r *Reconciler) HostUpserted(ctx context.Context, m domain.Member) error {
	if err := r.store.AddHost(ctx, m); err != nil {
		return fmt.Errorf("reconcile host %s: %w", m.ID, err)
	}
	metrics.EventsAppliedTotal.WithLabelValues("hostUpserted").Inc()
	return nil
}

func (r *Reconciler) HostRemoved(ctx context.Context, id string) error {
	if err := r.store.DeleteHost(ctx, id); err != nil {
		return fmt.Errorf("reconcile host removal %s: %w", id, err)
	}
	metrics.EventsAppliedTotal.WithLabelValues("hostRemoved").Inc()
	return nil
}

func (r *Reconciler) TutorUpserted(ctx context.Context, m domain.Member) error {
	if err := r.store.AddTutor(ctx, m); err != nil {
		return fmt.Errorf("reconcile tutor %s: %w", m.ID, err)
	}
	metrics.EventsAppliedTotal.WithLabelValues("tutorUpserted").Inc()
	return nil
}

func (r *Reconciler) TutorRemoved(ctx context.Context, id string) error {
	if err := r.store.DeleteTutor(ctx, id); err != nil {
		return fmt.Errorf("reconcile tutor removal %s: %w", id, err)
	}
	metrics.EventsAppliedTotal.WithLabelValues("tutorRemoved").Inc()
	return nil
}

// StatusChanged records the authoritative event status. When the event
// date moved, the cached guest list belongs to the previous event: the
// fetched flag is cleared so the next read triggers a full resync.
func (r *Reconciler) StatusChanged(ctx context.Context, s domain.EventStatus) error {
	encoded, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("reconcile status: %w", err)
	}

	previous, ok, err := r.settings.Get(ctx, ports.SettingStatus)
	if err != nil {
		return fmt.Errorf("reconcile status: %w", err)
	}

	dateChanged := false
	if ok {
		var old domain.EventStatus
		if err := json.Unmarshal([]byte(previous), &old); err == nil {
			dateChanged = !old.Date.Equal(s.Date)
		}
	}

	if err := r.settings.Set(ctx, ports.SettingStatus, string(encoded)); err != nil {
		return fmt.Errorf("reconcile status: %w", err)
	}

	if dateChanged {
		if err := r.settings.Set(ctx, ports.SettingGuestListFetched, "false"); err != nil {
			return fmt.Errorf("reconcile status: %w", err)
		}
		r.log.Info().Time("date", s.Date).Msg("event date changed, guest list marked stale")
	}

	metrics.EventsAppliedTotal.WithLabelValues("statusChanged").Inc()
	return nil
}
