package ports

import (
	"context"

	"github.com/stueble/guestsync/internal/core/domain"
)

// EntityStore is the sole authority for locally persisted domain
// entities. Implementations must write durably first and update their
// in-memory mirror only after the write succeeded, so a mirror read
// never runs ahead of the durable state. All additions are upserts:
// inserting an existing id replaces the record, never duplicates it.
type EntityStore interface {
	AddGuestIntern(ctx context.Context, g domain.GuestIntern) error
	AddGuestExtern(ctx context.Context, g domain.GuestExtern) error
	// AddGuests applies per-item upserts in input order. One item
	// failing must not prevent the remaining items; failures are
	// aggregated into the returned error.
	AddGuests(ctx context.Context, guests []domain.Guest) error
	DeleteGuestIntern(ctx context.Context, residence domain.Residence, roomNumber uint32) error
	DeleteGuestInternByID(ctx context.Context, id string) error
	DeleteGuestExtern(ctx context.Context, id string) error

	AddHost(ctx context.Context, m domain.Member) error
	AddHosts(ctx context.Context, members []domain.Member) error
	DeleteHost(ctx context.Context, id string) error

	AddTutor(ctx context.Context, m domain.Member) error
	AddTutors(ctx context.Context, members []domain.Member) error
	DeleteTutor(ctx context.Context, id string) error

	// Guests returns a snapshot of the mirror, interns first, ordered
	// by last then first name within each variant.
	Guests() []domain.Guest
	Hosts() []domain.Member
	Tutors() []domain.Member

	// Clear wipes all collections (logout / account deletion).
	Clear(ctx context.Context) error
}

// ActionBuffer is the durable FIFO of not-yet-confirmed write intents.
type ActionBuffer interface {
	// Enqueue appends an intent and returns its sequence number. The
	// payload is stored as JSON.
	Enqueue(ctx context.Context, kind domain.ActionKind, payload any) (uint64, error)
	// List returns all buffered actions in ascending sequence order.
	List(ctx context.Context) ([]domain.BufferedAction, error)
	// Delete removes a confirmed (or explicitly discarded) entry.
	Delete(ctx context.Context, seq uint64) error
	// Depth reports the number of buffered entries.
	Depth(ctx context.Context) (int, error)
}

// Settings keys used by the sync layer. The settings store is a flat
// string-to-string map for small scalars and cached JSON blobs.
const (
	SettingSession          = "session"
	SettingMotto            = "motto"
	SettingDescription      = "description"
	SettingConfig           = "config"
	SettingUser             = "user"
	SettingStatus           = "status"
	SettingPublicKey        = "publicKey"
	SettingQRCodeData       = "qrCodeData"
	SettingWelcomeClosed    = "welcomeClosed"
	SettingGuestListFetched = "guestListFetched"
	SettingHostsFetched     = "hostsFetched"
	SettingTutorsFetched    = "tutorsFetched"
)

// SettingsStore persists small key/value state.
type SettingsStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context) error
}
