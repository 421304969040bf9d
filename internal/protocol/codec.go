package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encoding selects the frame codec. The push channel maps binary frames
// to msgpack and text frames to JSON.
type Encoding int

const (
	Binary Encoding = iota
	Text
)

func (e Encoding) String() string {
	if e == Text {
		return "text"
	}
	return "binary"
}

func marshal(enc Encoding, v any) ([]byte, error) {
	if enc == Text {
		return json.Marshal(v)
	}
	return msgpack.Marshal(v)
}

func unmarshal(enc Encoding, data []byte, v any) error {
	if enc == Text {
		return json.Unmarshal(data, v)
	}
	return msgpack.Unmarshal(data, v)
}

// envelope is the first decode pass: just enough to route the frame.
type envelope struct {
	Event string `json:"event" msgpack:"event"`
}

// EncodeClient serialises a client message, stamping the event
// discriminant so callers construct literals without it.
func EncodeClient(enc Encoding, m ClientMessage) ([]byte, error) {
	switch v := m.(type) {
	case Ping:
		v.Event = EventPing
		return marshal(enc, v)
	case Heartbeat:
		v.Event = EventHeartbeat
		return marshal(enc, v)
	case Acknowledgment:
		v.Event = EventAcknowledgment
		return marshal(enc, v)
	case RequestMotto:
		v.Event = EventRequestMotto
		return marshal(enc, v)
	case RequestQRCode:
		v.Event = EventRequestQRCode
		return marshal(enc, v)
	case RequestPublicKey:
		v.Event = EventRequestPublicKey
		return marshal(enc, v)
	default:
		return nil, fmt.Errorf("protocol: unsupported client message %T", m)
	}
}

// DecodeClient parses a frame sent by a client.
func DecodeClient(enc Encoding, data []byte) (ClientMessage, error) {
	var env envelope
	if err := unmarshal(enc, data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode %s envelope: %w", enc, err)
	}

	var (
		msg ClientMessage
		err error
	)
	switch env.Event {
	case EventPing:
		var m Ping
		err = unmarshal(enc, data, &m)
		msg = m
	case EventHeartbeat:
		var m Heartbeat
		err = unmarshal(enc, data, &m)
		msg = m
	case EventAcknowledgment:
		var m Acknowledgment
		err = unmarshal(enc, data, &m)
		msg = m
	case EventRequestMotto:
		var m RequestMotto
		err = unmarshal(enc, data, &m)
		msg = m
	case EventRequestQRCode:
		var m RequestQRCode
		err = unmarshal(enc, data, &m)
		msg = m
	case EventRequestPublicKey:
		var m RequestPublicKey
		err = unmarshal(enc, data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("protocol: unknown client event %q", env.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("protocol: decode %s %q: %w", enc, env.Event, err)
	}
	return msg, nil
}

// EncodeServer serialises a server message, stamping the event
// discriminant.
func EncodeServer(enc Encoding, m ServerMessage) ([]byte, error) {
	switch v := m.(type) {
	case Status:
		v.Event = EventStatus
		return marshal(enc, v)
	case Pong:
		v.Event = EventPong
		return marshal(enc, v)
	case GuestAdded:
		v.Event = EventGuestAdded
		return marshal(enc, v)
	case GuestModified:
		v.Event = EventGuestModified
		return marshal(enc, v)
	case GuestRemoved:
		v.Event = EventGuestRemoved
		return marshal(enc, v)
	case HostAdded:
		v.Event = EventHostAdded
		return marshal(enc, v)
	case HostRemoved:
		v.Event = EventHostRemoved
		return marshal(enc, v)
	case TutorAdded:
		v.Event = EventTutorAdded
		return marshal(enc, v)
	case TutorRemoved:
		v.Event = EventTutorRemoved
		return marshal(enc, v)
	case Motto:
		v.Event = EventMotto
		return marshal(enc, v)
	case QRCode:
		v.Event = EventQRCode
		return marshal(enc, v)
	case PublicKey:
		v.Event = EventPublicKey
		return marshal(enc, v)
	case ServerError:
		v.Event = EventError
		return marshal(enc, v)
	case PartyStatus:
		v.Event = EventPartyStatus
		return marshal(enc, v)
	default:
		return nil, fmt.Errorf("protocol: unsupported server message %T", m)
	}
}

// DecodeServer parses a frame sent by the server. Frames outside the
// known event set decode into Unknown rather than failing, so a
// malformed or future message never tears down the channel.
func DecodeServer(enc Encoding, data []byte) (ServerMessage, error) {
	var env envelope
	if err := unmarshal(enc, data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode %s envelope: %w", enc, err)
	}

	var (
		msg ServerMessage
		err error
	)
	switch env.Event {
	case EventStatus:
		var m Status
		err = unmarshal(enc, data, &m)
		msg = m
	case EventPong:
		var m Pong
		err = unmarshal(enc, data, &m)
		msg = m
	case EventGuestAdded:
		var m GuestAdded
		err = unmarshal(enc, data, &m)
		msg = m
	case EventGuestModified:
		var m GuestModified
		err = unmarshal(enc, data, &m)
		msg = m
	case EventGuestRemoved:
		var m GuestRemoved
		err = unmarshal(enc, data, &m)
		msg = m
	case EventHostAdded:
		var m HostAdded
		err = unmarshal(enc, data, &m)
		msg = m
	case EventHostRemoved:
		var m HostRemoved
		err = unmarshal(enc, data, &m)
		msg = m
	case EventTutorAdded:
		var m TutorAdded
		err = unmarshal(enc, data, &m)
		msg = m
	case EventTutorRemoved:
		var m TutorRemoved
		err = unmarshal(enc, data, &m)
		msg = m
	case EventMotto:
		var m Motto
		err = unmarshal(enc, data, &m)
		msg = m
	case EventQRCode:
		var m QRCode
		err = unmarshal(enc, data, &m)
		msg = m
	case EventPublicKey:
		var m PublicKey
		err = unmarshal(enc, data, &m)
		msg = m
	case EventError:
		var m ServerError
		err = unmarshal(enc, data, &m)
		msg = m
	case EventPartyStatus:
		var m PartyStatus
		err = unmarshal(enc, data, &m)
		msg = m
	default:
		return decodeUnknown(enc, env.Event, data)
	}
	if err != nil {
		return nil, fmt.Errorf("protocol: decode %s %q: %w", enc, env.Event, err)
	}
	return msg, nil
}

// decodeUnknown keeps enough of an unrecognised frame to resolve a
// pending request if it carries a bare reqId.
func decodeUnknown(enc Encoding, event string, data []byte) (ServerMessage, error) {
	var raw map[string]any
	if err := unmarshal(enc, data, &raw); err != nil {
		return nil, fmt.Errorf("protocol: decode %s %q: %w", enc, event, err)
	}

	u := Unknown{Event: event, Data: raw["data"]}
	if id, ok := asUint64(raw["reqId"]); ok {
		u.ReqID = &id
	}
	return u, nil
}

// asUint64 normalises the numeric types the two codecs produce for a
// correlation id (json: float64; msgpack: any int width).
func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint64:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int8:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int16:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int32:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	}
	return 0, false
}
