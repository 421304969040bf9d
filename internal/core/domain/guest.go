package domain

import "time"

// Residence identifies the building an internal guest lives in.
type Residence string

const (
	ResidenceHirte  Residence = "hirte"
	ResidenceAltbau Residence = "altbau"
	ResidenceAnbau  Residence = "anbau"
	ResidenceNeubau Residence = "neubau"
)

// Valid reports whether r is one of the known residences.
func (r Residence) Valid() bool {
	switch r {
	case ResidenceHirte, ResidenceAltbau, ResidenceAnbau, ResidenceNeubau:
		return true
	}
	return false
}

// UserProperties are the identity fields shared by users and internal
// guests.
type UserProperties struct {
	FirstName  string    `json:"firstName" msgpack:"firstName" validate:"required"`
	LastName   string    `json:"lastName" msgpack:"lastName" validate:"required"`
	RoomNumber uint32    `json:"roomNumber" msgpack:"roomNumber" validate:"required"`
	Residence  Residence `json:"residence" msgpack:"residence" validate:"required,oneof=hirte altbau anbau neubau"`
}

// User is a registered resident account.
type User struct {
	UserProperties
	ID       string `json:"id" msgpack:"id"`
	Verified bool   `json:"verified" msgpack:"verified"`
}

// GuestIntern is a resident on the guest list. Persisted under the
// composite key (residence, room number); push events address it by id.
type GuestIntern struct {
	User
	Present bool `json:"present" msgpack:"present"`
}

// GuestExtern is an invited non-resident on the guest list, keyed by id.
type GuestExtern struct {
	ID        string `json:"id" msgpack:"id"`
	FirstName string `json:"firstName" msgpack:"firstName"`
	LastName  string `json:"lastName" msgpack:"lastName"`
	Email     string `json:"email,omitempty" msgpack:"email,omitempty"`
	Present   bool   `json:"present" msgpack:"present"`
}

// Guest is the wire-level union of the two guest variants, discriminated
// by Extern. Intern-only and extern-only fields are zero on the other
// variant.
type Guest struct {
	ID         string    `json:"id" msgpack:"id"`
	FirstName  string    `json:"firstName" msgpack:"firstName"`
	LastName   string    `json:"lastName" msgpack:"lastName"`
	Present    bool      `json:"present" msgpack:"present"`
	Extern     bool      `json:"extern" msgpack:"extern"`
	RoomNumber uint32    `json:"roomNumber,omitempty" msgpack:"roomNumber,omitempty"`
	Residence  Residence `json:"residence,omitempty" msgpack:"residence,omitempty"`
	Verified   bool      `json:"verified,omitempty" msgpack:"verified,omitempty"`
	Email      string    `json:"email,omitempty" msgpack:"email,omitempty"`
}

// Intern converts the union to its internal-guest variant. Only
// meaningful when Extern is false.
func (g Guest) Intern() GuestIntern {
	return GuestIntern{
		User: User{
			UserProperties: UserProperties{
				FirstName:  g.FirstName,
				LastName:   g.LastName,
				RoomNumber: g.RoomNumber,
				Residence:  g.Residence,
			},
			ID:       g.ID,
			Verified: g.Verified,
		},
		Present: g.Present,
	}
}

// ExternGuest converts the union to its external-guest variant. Only
// meaningful when Extern is true.
func (g Guest) ExternGuest() GuestExtern {
	return GuestExtern{
		ID:        g.ID,
		FirstName: g.FirstName,
		LastName:  g.LastName,
		Email:     g.Email,
		Present:   g.Present,
	}
}

// AsGuest lifts an internal guest into the wire union.
func (g GuestIntern) AsGuest() Guest {
	return Guest{
		ID:         g.ID,
		FirstName:  g.FirstName,
		LastName:   g.LastName,
		Present:    g.Present,
		Extern:     false,
		RoomNumber: g.RoomNumber,
		Residence:  g.Residence,
		Verified:   g.Verified,
	}
}

// AsGuest lifts an external guest into the wire union.
func (g GuestExtern) AsGuest() Guest {
	return Guest{
		ID:        g.ID,
		FirstName: g.FirstName,
		LastName:  g.LastName,
		Present:   g.Present,
		Extern:    true,
		Email:     g.Email,
	}
}

// Member is a host or tutor record. The two collections share this shape;
// access-control roles differ only by which collection holds the record.
type Member struct {
	ID        string `json:"id" msgpack:"id"`
	FirstName string `json:"firstName" msgpack:"firstName"`
	LastName  string `json:"lastName" msgpack:"lastName"`
}

// Config is the server-side configuration shared with clients.
type Config struct {
	MaximumGuests              int32 `json:"maximumGuests" msgpack:"maximumGuests"`
	SessionExpirationDays      int32 `json:"sessionExpirationDays" msgpack:"sessionExpirationDays"`
	MaximumInvitesPerUser      int32 `json:"maximumInvitesPerUser" msgpack:"maximumInvitesPerUser"`
	ResetCodeExpirationMinutes int32 `json:"resetCodeExpirationMinutes" msgpack:"resetCodeExpirationMinutes"`
	QRCodeExpirationMinutes    int32 `json:"qrCodeExpirationMinutes" msgpack:"qrCodeExpirationMinutes"`
}

// Capability is a role the server granted the authenticated session.
type Capability string

const (
	CapabilityHost  Capability = "host"
	CapabilityTutor Capability = "tutor"
	CapabilityAdmin Capability = "admin"
)

// EventStatus is the authoritative state of the current event. A changed
// Date means the locally cached guest list belongs to a past event and
// must be refetched.
type EventStatus struct {
	Date                 time.Time  `json:"date" msgpack:"date"`
	RegistrationStartsAt *time.Time `json:"registrationStartsAt,omitempty" msgpack:"registrationStartsAt,omitempty"`
}

// QRCodeClaims is the signed portion of an entry QR code.
type QRCodeClaims struct {
	ID        string `json:"id" msgpack:"id"`
	Timestamp uint32 `json:"timestamp" msgpack:"timestamp"`
}

// QRCodePayload is a one-time entry code plus its server signature.
// Signature verification happens elsewhere; the client only stores and
// displays the payload.
type QRCodePayload struct {
	Data      QRCodeClaims `json:"data" msgpack:"data"`
	Signature string       `json:"signature" msgpack:"signature"`
}

// JSONWebKey carries the server's public key in JWK form. The client
// treats it as opaque.
type JSONWebKey map[string]any
