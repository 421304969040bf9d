package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stueble/guestsync/internal/core/domain"
)

func enqueue(t *testing.T, b *stubBuffer, kind domain.ActionKind, payload any) uint64 {
	t.Helper()
	seq, err := b.Enqueue(context.Background(), kind, payload)
	if err != nil {
		t.Fatal(err)
	}
	return seq
}

func TestReplayer_DrainsInOrder(t *testing.T) {
	buffer := &stubBuffer{}
	api := &stubAPI{}
	enqueue(t, buffer, domain.ActionCreateUser, domain.CreateUserPayload{
		UserProperties: domain.UserProperties{FirstName: "Ada", LastName: "Lovelace", RoomNumber: 312, Residence: domain.ResidenceAltbau},
	})
	enqueue(t, buffer, domain.ActionAddToGuestList, domain.AddToGuestListPayload{UserID: "id-1"})
	enqueue(t, buffer, domain.ActionModifyGuest, domain.ModifyGuestPayload{ID: "id-1"})

	r := NewBufferReplayer(buffer, api, zerolog.Nop())
	if err := r.Replay(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{"createUser", "addToGuestList", "modifyGuest"}
	got := api.callNames()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, got[i], want[i])
		}
	}
	if remaining := buffer.seqs(); len(remaining) != 0 {
		t.Errorf("buffer not drained: %v", remaining)
	}
}

func TestReplayer_FailureKeepsSuffix(t *testing.T) {
	buffer := &stubBuffer{}
	api := &stubAPI{errOn: map[string]error{"addToGuestList": errFor(503)}}
	enqueue(t, buffer, domain.ActionCreateUser, domain.CreateUserPayload{})
	failing := enqueue(t, buffer, domain.ActionAddToGuestList, domain.AddToGuestListPayload{UserID: "id-1"})
	trailing := enqueue(t, buffer, domain.ActionModifyGuest, domain.ModifyGuestPayload{ID: "id-1"})

	r := NewBufferReplayer(buffer, api, zerolog.Nop())
	err := r.Replay(context.Background())
	if err == nil {
		t.Fatal("expected replay to halt")
	}

	remaining := buffer.seqs()
	if len(remaining) != 2 || remaining[0] != failing || remaining[1] != trailing {
		t.Errorf("buffer = %v, want [%d %d]", remaining, failing, trailing)
	}

	// Nothing after the failing entry may have been attempted.
	for _, call := range api.callNames() {
		if call == "modifyGuest" {
			t.Error("entry after the failure was replayed")
		}
	}
}

func TestReplayer_ClientFaultAlsoHalts(t *testing.T) {
	buffer := &stubBuffer{}
	api := &stubAPI{errOn: map[string]error{"createUser": errFor(409)}}
	enqueue(t, buffer, domain.ActionCreateUser, domain.CreateUserPayload{})
	enqueue(t, buffer, domain.ActionModifyGuest, domain.ModifyGuestPayload{ID: "id-1"})

	r := NewBufferReplayer(buffer, api, zerolog.Nop())
	if err := r.Replay(context.Background()); err == nil {
		t.Fatal("expected replay to halt on rejection")
	}
	if remaining := buffer.seqs(); len(remaining) != 2 {
		t.Errorf("rejected entry must stay for operator inspection, buffer = %v", remaining)
	}
}

func TestReplayer_UnknownKindHalts(t *testing.T) {
	buffer := &stubBuffer{}
	api := &stubAPI{}
	enqueue(t, buffer, domain.ActionKind("dropTables"), struct{}{})
	enqueue(t, buffer, domain.ActionModifyGuest, domain.ModifyGuestPayload{ID: "id-1"})

	r := NewBufferReplayer(buffer, api, zerolog.Nop())
	err := r.Replay(context.Background())
	if !errors.Is(err, domain.ErrUnknownAction) {
		t.Fatalf("err = %v, want ErrUnknownAction", err)
	}
	if len(api.callNames()) != 0 {
		t.Error("no later entry may run past an unknown kind")
	}
	if remaining := buffer.seqs(); len(remaining) != 2 {
		t.Errorf("buffer = %v, want both entries kept", remaining)
	}
}

func TestReplayer_EmptyBufferIsNoop(t *testing.T) {
	buffer := &stubBuffer{}
	api := &stubAPI{}

	r := NewBufferReplayer(buffer, api, zerolog.Nop())
	if err := r.Replay(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(api.callNames()) != 0 {
		t.Errorf("unexpected calls: %v", api.callNames())
	}
}
