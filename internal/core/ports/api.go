package ports

import (
	"context"

	"github.com/stueble/guestsync/internal/core/domain"
)

// UserSearch are the optional filters for searching users. At least one
// field must be set.
type UserSearch struct {
	FirstName  *string
	LastName   *string
	RoomNumber *uint32
	Residence  *domain.Residence
	Email      *string
}

// RequestChannel is the stateless request/response transport of record
// for durable writes. Errors are classified via domain.IsClientFault /
// domain.IsServerFault; anything else is a transport failure.
//
// The mutating guest/user operations here are exactly the ones the
// action buffer may capture for replay.
type RequestChannel interface {
	CreateUser(ctx context.Context, p domain.CreateUserPayload) (*domain.Guest, error)
	ModifyUser(ctx context.Context, p domain.ModifyUserPayload) (*domain.Guest, error)
	AddToGuestList(ctx context.Context, p domain.AddToGuestListPayload) (*domain.Guest, error)
	ModifyGuest(ctx context.Context, p domain.ModifyGuestPayload) (*domain.Guest, error)
	RemoveFromGuestList(ctx context.Context, p domain.RemoveFromGuestListPayload) error

	GetUser(ctx context.Context) (*domain.User, error)
	SearchUsers(ctx context.Context, s UserSearch) ([]domain.User, error)
	GetGuestList(ctx context.Context) ([]domain.Guest, error)
	InviteExtern(ctx context.Context, firstName, lastName, email string) error

	GetHosts(ctx context.Context) ([]domain.Member, error)
	AddHostsByID(ctx context.Context, ids []string) ([]domain.Member, error)
	RemoveHostsByID(ctx context.Context, ids []string) error
	GetTutors(ctx context.Context) ([]domain.Member, error)
	AddTutorsByID(ctx context.Context, ids []string) ([]domain.Member, error)
	RemoveTutorsByID(ctx context.Context, ids []string) error

	ModifyMotto(ctx context.Context, motto, description *string) error
	GetConfig(ctx context.Context) (*domain.Config, error)
	ModifyConfig(ctx context.Context, c domain.Config) (*domain.Config, error)
}

// EventSink receives authoritative server events decoded from the push
// channel. Implementations apply them to local persisted state.
type EventSink interface {
	GuestUpserted(ctx context.Context, g domain.Guest) error
	GuestRemoved(ctx context.Context, id string) error
	HostUpserted(ctx context.Context, m domain.Member) error
	HostRemoved(ctx context.Context, id string) error
	TutorUpserted(ctx context.Context, m domain.Member) error
	TutorRemoved(ctx context.Context, id string) error
	// StatusChanged reports the authoritative event status pushed by
	// the server; a date change invalidates the cached guest list.
	StatusChanged(ctx context.Context, s domain.EventStatus) error
}

// Replayer re-issues buffered writes once connectivity resumes.
type Replayer interface {
	// Replay walks the action buffer in insertion order, removing each
	// entry only on confirmed success. It stops on the first failure
	// and returns it; remaining entries stay buffered.
	Replay(ctx context.Context) error
}
