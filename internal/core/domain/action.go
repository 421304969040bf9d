package domain

import "time"

// ActionKind discriminates buffered write intents.
type ActionKind string

const (
	ActionCreateUser          ActionKind = "createUser"
	ActionModifyUser          ActionKind = "modifyUser"
	ActionAddToGuestList      ActionKind = "addToGuestList"
	ActionModifyGuest         ActionKind = "modifyGuest"
	ActionRemoveFromGuestList ActionKind = "removeFromGuestList"
)

// BufferedAction is a durable write intent captured while the request
// channel was (or might have been) unreachable. Seq is assigned by the
// buffer and defines replay order; an entry is deleted only after the
// server confirmed the replayed action.
type BufferedAction struct {
	Seq       uint64
	CreatedAt time.Time
	Kind      ActionKind
	Payload   []byte // JSON-encoded action payload
}

// CreateUserPayload registers a resident directly onto the guest list
// (door operation for walk-ins without an account).
type CreateUserPayload struct {
	UserProperties
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// ModifyUserPayload patches identity fields of an existing user. Nil
// fields are left untouched by the server.
type ModifyUserPayload struct {
	ID         string     `json:"id,omitempty"`
	FirstName  *string    `json:"firstName,omitempty"`
	LastName   *string    `json:"lastName,omitempty"`
	RoomNumber *uint32    `json:"roomNumber,omitempty"`
	Residence  *Residence `json:"residence,omitempty"`
}

// AddToGuestListPayload signs a user up for the event. An empty UserID
// means the calling session's own user.
type AddToGuestListPayload struct {
	UserID string     `json:"userId,omitempty"`
	Date   *time.Time `json:"date,omitempty"`
}

// ModifyGuestPayload updates event-scoped guest state, currently the
// presence flag toggled at the door.
type ModifyGuestPayload struct {
	ID      string `json:"id" validate:"required"`
	Present *bool  `json:"present,omitempty"`
}

// RemoveFromGuestListPayload takes a user off the guest list. An empty
// UserID means the calling session's own user.
type RemoveFromGuestListPayload struct {
	UserID string     `json:"userId,omitempty"`
	Date   *time.Time `json:"date,omitempty"`
}
