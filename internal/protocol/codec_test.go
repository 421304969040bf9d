package protocol

import (
	"reflect"
	"testing"

	"github.com/stueble/guestsync/internal/core/domain"
)

func u64(v uint64) *uint64 { return &v }

// ---------------------------------------------------------------------------
// Round trips
// ---------------------------------------------------------------------------

func TestClientMessages_RoundTrip(t *testing.T) {
	messages := []ClientMessage{
		Ping{ReqID: 7},
		Heartbeat{},
		Acknowledgment{ResID: 42},
		RequestMotto{ReqID: 8},
		RequestQRCode{ReqID: 9},
		RequestPublicKey{ReqID: 10},
	}

	for _, enc := range []Encoding{Binary, Text} {
		for _, msg := range messages {
			b, err := EncodeClient(enc, msg)
			if err != nil {
				t.Fatalf("%s encode %T: %v", enc, msg, err)
			}

			got, err := DecodeClient(enc, b)
			if err != nil {
				t.Fatalf("%s decode %T: %v", enc, msg, err)
			}

			// The decoded value carries the stamped event discriminant;
			// stamp the original the same way before comparing.
			want, err := EncodeClient(enc, msg)
			if err != nil {
				t.Fatal(err)
			}
			b2, err := EncodeClient(enc, got)
			if err != nil {
				t.Fatalf("%s re-encode %T: %v", enc, got, err)
			}
			if string(b2) != string(want) {
				t.Errorf("%s round trip changed %T: %q != %q", enc, msg, b2, want)
			}
		}
	}
}

func TestServerMessages_RoundTrip(t *testing.T) {
	intern := domain.GuestIntern{
		User: domain.User{
			UserProperties: domain.UserProperties{
				FirstName:  "Ada",
				LastName:   "Lovelace",
				RoomNumber: 312,
				Residence:  domain.ResidenceAltbau,
			},
			ID:       "3f1c9a52-0000-4000-8000-000000000001",
			Verified: true,
		},
		Present: true,
	}

	messages := []ServerMessage{
		Status{Data: StatusData{Authorized: true, Capabilities: []domain.Capability{domain.CapabilityHost}}},
		Pong{ReqID: 7, Data: true},
		GuestAdded{ResID: u64(3), Data: intern.AsGuest()},
		GuestModified{ResID: u64(4), Data: intern.AsGuest()},
		GuestRemoved{ResID: u64(5), Data: intern.ID},
		HostAdded{Data: domain.Member{ID: "h1", FirstName: "Grace", LastName: "Hopper"}},
		HostRemoved{Data: "h1"},
		TutorAdded{Data: domain.Member{ID: "t1", FirstName: "Alan", LastName: "Turing"}},
		TutorRemoved{Data: "t1"},
		Motto{ReqID: 11, Data: "Space Night"},
		QRCode{ReqID: 12, Data: domain.QRCodePayload{
			Data:      domain.QRCodeClaims{ID: intern.ID, Timestamp: 1735693200},
			Signature: "c2lnbmVk",
		}},
		ServerError{ReqID: u64(13), Data: ErrorData{Code: "notFound", Message: "no such guest"}},
	}

	for _, enc := range []Encoding{Binary, Text} {
		for _, msg := range messages {
			b, err := EncodeServer(enc, msg)
			if err != nil {
				t.Fatalf("%s encode %T: %v", enc, msg, err)
			}

			got, err := DecodeServer(enc, b)
			if err != nil {
				t.Fatalf("%s decode %T: %v", enc, msg, err)
			}

			b2, err := EncodeServer(enc, got)
			if err != nil {
				t.Fatalf("%s re-encode %T: %v", enc, got, err)
			}
			if string(b2) != string(b) {
				t.Errorf("%s round trip changed %T: %q != %q", enc, msg, b2, b)
			}
		}
	}
}

func TestDecodeServer_GuestAddedPayload(t *testing.T) {
	g := domain.GuestExtern{
		ID:        "3f1c9a52-0000-4000-8000-000000000002",
		FirstName: "Erin",
		LastName:  "Extern",
		Email:     "erin@example.org",
		Present:   false,
	}

	b, err := EncodeServer(Binary, GuestAdded{ResID: u64(9), Data: g.AsGuest()})
	if err != nil {
		t.Fatal(err)
	}

	msg, err := DecodeServer(Binary, b)
	if err != nil {
		t.Fatal(err)
	}
	added, ok := msg.(GuestAdded)
	if !ok {
		t.Fatalf("expected GuestAdded, got %T", msg)
	}
	if added.ResID == nil || *added.ResID != 9 {
		t.Errorf("resId lost: %v", added.ResID)
	}
	if !added.Data.Extern {
		t.Error("extern discriminant lost")
	}
	if !reflect.DeepEqual(added.Data.ExternGuest(), g) {
		t.Errorf("payload mismatch: %+v != %+v", added.Data.ExternGuest(), g)
	}
}

// ---------------------------------------------------------------------------
// Robustness
// ---------------------------------------------------------------------------

func TestDecodeServer_UnknownEventKeepsReqID(t *testing.T) {
	frame := []byte(`{"event":"somethingNew","reqId":21,"data":"hello"}`)

	msg, err := DecodeServer(Text, frame)
	if err != nil {
		t.Fatalf("unknown event must not fail decoding: %v", err)
	}

	u, ok := msg.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown, got %T", msg)
	}
	if u.Event != "somethingNew" {
		t.Errorf("event = %q", u.Event)
	}
	if u.ReqID == nil || *u.ReqID != 21 {
		t.Errorf("reqId = %v, want 21", u.ReqID)
	}
	if u.Data != "hello" {
		t.Errorf("data = %v", u.Data)
	}
}

func TestDecodeServer_ErrorWithoutReqID(t *testing.T) {
	b, err := EncodeServer(Text, ServerError{Data: ErrorData{Code: "internal", Message: "boom"}})
	if err != nil {
		t.Fatal(err)
	}

	msg, err := DecodeServer(Text, b)
	if err != nil {
		t.Fatal(err)
	}
	se, ok := msg.(ServerError)
	if !ok {
		t.Fatalf("expected ServerError, got %T", msg)
	}
	if se.ReqID != nil {
		t.Errorf("reqId should be absent, got %v", *se.ReqID)
	}
}

func TestDecodeServer_Garbage(t *testing.T) {
	if _, err := DecodeServer(Text, []byte("{not json")); err == nil {
		t.Error("expected error for malformed text frame")
	}
	if _, err := DecodeServer(Binary, []byte{0xc1}); err == nil {
		t.Error("expected error for malformed binary frame")
	}
}

func TestIsRequestEvent(t *testing.T) {
	for _, ev := range []string{EventPing, EventRequestMotto, EventRequestQRCode, EventRequestPublicKey} {
		if !IsRequestEvent(ev) {
			t.Errorf("%s should be request-shaped", ev)
		}
	}
	for _, ev := range []string{EventHeartbeat, EventAcknowledgment, EventStatus, "bogus"} {
		if IsRequestEvent(ev) {
			t.Errorf("%s should be fire-and-forget", ev)
		}
	}
}
