// Package protocol defines the push-channel wire messages as a closed
// set of typed values. Binary frames carry msgpack, text frames carry
// JSON; both decode into the same message types, selected by the frame's
// declared type rather than content sniffing.
package protocol

import "github.com/stueble/guestsync/internal/core/domain"

// Event discriminants, client to server.
const (
	EventPing             = "ping"
	EventHeartbeat        = "heartbeat"
	EventAcknowledgment   = "acknowledgment"
	EventRequestMotto     = "requestMotto"
	EventRequestQRCode    = "requestQRCode"
	EventRequestPublicKey = "requestPublicKey"
)

// Event discriminants, server to client.
const (
	EventStatus        = "status"
	EventPong          = "pong"
	EventGuestAdded    = "guestAdded"
	EventGuestModified = "guestModified"
	EventGuestRemoved  = "guestRemoved"
	EventHostAdded     = "hostAdded"
	EventHostRemoved   = "hostRemoved"
	EventTutorAdded    = "tutorAdded"
	EventTutorRemoved  = "tutorRemoved"
	EventMotto         = "motto"
	EventQRCode        = "qrCode"
	EventPublicKey     = "publicKey"
	EventError         = "error"
	EventPartyStatus   = "partyStatus"
)

// IsRequestEvent reports whether an outbound event expects a correlated
// reply. Exactly these four kinds get a reqId and a pending entry; all
// other outbound traffic is fire-and-forget.
func IsRequestEvent(event string) bool {
	switch event {
	case EventPing, EventRequestMotto, EventRequestQRCode, EventRequestPublicKey:
		return true
	}
	return false
}

// ClientMessage is a message travelling client to server.
type ClientMessage interface{ isClientMessage() }

// Ping is a correlated liveness probe; the server answers with Pong.
type Ping struct {
	Event string `json:"event" msgpack:"event"`
	ReqID uint64 `json:"reqId" msgpack:"reqId"`
}

// Heartbeat is a fire-and-forget keepalive.
type Heartbeat struct {
	Event string `json:"event" msgpack:"event"`
}

// Acknowledgment confirms delivery of a server event that carried a
// resId. It echoes that resId and is never stamped with a reqId.
type Acknowledgment struct {
	Event string `json:"event" msgpack:"event"`
	ResID uint64 `json:"resId" msgpack:"resId"`
}

// RequestMotto asks for the current event motto.
type RequestMotto struct {
	Event string `json:"event" msgpack:"event"`
	ReqID uint64 `json:"reqId" msgpack:"reqId"`
}

// RequestQRCode asks for a fresh signed entry code.
type RequestQRCode struct {
	Event string `json:"event" msgpack:"event"`
	ReqID uint64 `json:"reqId" msgpack:"reqId"`
}

// RequestPublicKey asks for the server's signing key.
type RequestPublicKey struct {
	Event string `json:"event" msgpack:"event"`
	ReqID uint64 `json:"reqId" msgpack:"reqId"`
}

func (Ping) isClientMessage()             {}
func (Heartbeat) isClientMessage()        {}
func (Acknowledgment) isClientMessage()   {}
func (RequestMotto) isClientMessage()     {}
func (RequestQRCode) isClientMessage()    {}
func (RequestPublicKey) isClientMessage() {}

// ServerMessage is a message travelling server to client.
type ServerMessage interface{ isServerMessage() }

// StatusData is the handshake payload sent once after the channel opens.
type StatusData struct {
	Authorized   bool                `json:"authorized" msgpack:"authorized"`
	Capabilities []domain.Capability `json:"capabilities" msgpack:"capabilities"`
}

// Status declares whether the session is authorized and which
// capabilities it holds. The channel is not usable before it arrives.
type Status struct {
	Event string     `json:"event" msgpack:"event"`
	Data  StatusData `json:"data" msgpack:"data"`
}

// Pong answers a Ping.
type Pong struct {
	Event string `json:"event" msgpack:"event"`
	ReqID uint64 `json:"reqId" msgpack:"reqId"`
	Data  bool   `json:"data" msgpack:"data"`
}

// GuestAdded announces a guest joining the list. ResID, when present,
// requests a delivery acknowledgment.
type GuestAdded struct {
	Event string       `json:"event" msgpack:"event"`
	ResID *uint64      `json:"resId,omitempty" msgpack:"resId,omitempty"`
	Data  domain.Guest `json:"data" msgpack:"data"`
}

// GuestModified announces changed guest state (same shape as GuestAdded;
// both are applied as upserts).
type GuestModified struct {
	Event string       `json:"event" msgpack:"event"`
	ResID *uint64      `json:"resId,omitempty" msgpack:"resId,omitempty"`
	Data  domain.Guest `json:"data" msgpack:"data"`
}

// GuestRemoved announces a guest leaving the list, by id.
type GuestRemoved struct {
	Event string  `json:"event" msgpack:"event"`
	ResID *uint64 `json:"resId,omitempty" msgpack:"resId,omitempty"`
	Data  string  `json:"data" msgpack:"data"`
}

// HostAdded / HostRemoved / TutorAdded / TutorRemoved mutate the two
// role collections symmetrically.
type HostAdded struct {
	Event string        `json:"event" msgpack:"event"`
	ResID *uint64       `json:"resId,omitempty" msgpack:"resId,omitempty"`
	Data  domain.Member `json:"data" msgpack:"data"`
}

type HostRemoved struct {
	Event string  `json:"event" msgpack:"event"`
	ResID *uint64 `json:"resId,omitempty" msgpack:"resId,omitempty"`
	Data  string  `json:"data" msgpack:"data"`
}

type TutorAdded struct {
	Event string        `json:"event" msgpack:"event"`
	ResID *uint64       `json:"resId,omitempty" msgpack:"resId,omitempty"`
	Data  domain.Member `json:"data" msgpack:"data"`
}

type TutorRemoved struct {
	Event string  `json:"event" msgpack:"event"`
	ResID *uint64 `json:"resId,omitempty" msgpack:"resId,omitempty"`
	Data  string  `json:"data" msgpack:"data"`
}

// Motto answers RequestMotto.
type Motto struct {
	Event string `json:"event" msgpack:"event"`
	ReqID uint64 `json:"reqId" msgpack:"reqId"`
	Data  string `json:"data" msgpack:"data"`
}

// QRCode answers RequestQRCode.
type QRCode struct {
	Event string               `json:"event" msgpack:"event"`
	ReqID uint64               `json:"reqId" msgpack:"reqId"`
	Data  domain.QRCodePayload `json:"data" msgpack:"data"`
}

// PublicKey answers RequestPublicKey.
type PublicKey struct {
	Event string            `json:"event" msgpack:"event"`
	ReqID uint64            `json:"reqId" msgpack:"reqId"`
	Data  domain.JSONWebKey `json:"data" msgpack:"data"`
}

// ErrorData carries a server-side error code and message.
type ErrorData struct {
	Code    string `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// ServerError rejects the pending request identified by ReqID, or, with
// no ReqID, reports an unsolicited server-side failure.
type ServerError struct {
	Event string    `json:"event" msgpack:"event"`
	ReqID *uint64   `json:"reqId,omitempty" msgpack:"reqId,omitempty"`
	Data  ErrorData `json:"data" msgpack:"data"`
}

// PartyStatus pushes the authoritative event status; a changed date
// invalidates the locally cached guest list.
type PartyStatus struct {
	Event string             `json:"event" msgpack:"event"`
	Data  domain.EventStatus `json:"data" msgpack:"data"`
}

// Unknown is any frame whose event discriminant is not in the closed
// set above. A bare reqId still resolves its pending request; anything
// else is logged and dropped by the dispatcher.
type Unknown struct {
	Event string
	ReqID *uint64
	Data  any
}

func (Status) isServerMessage()        {}
func (Pong) isServerMessage()          {}
func (GuestAdded) isServerMessage()    {}
func (GuestModified) isServerMessage() {}
func (GuestRemoved) isServerMessage()  {}
func (HostAdded) isServerMessage()     {}
func (HostRemoved) isServerMessage()   {}
func (TutorAdded) isServerMessage()    {}
func (TutorRemoved) isServerMessage()  {}
func (Motto) isServerMessage()         {}
func (QRCode) isServerMessage()        {}
func (PublicKey) isServerMessage()     {}
func (ServerError) isServerMessage()   {}
func (PartyStatus) isServerMessage()   {}
func (Unknown) isServerMessage()       {}
