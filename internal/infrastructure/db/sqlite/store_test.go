package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stueble/guestsync/internal/core/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func internGuest(id string, room uint32, present bool) domain.GuestIntern {
	return domain.GuestIntern{
		User: domain.User{
			UserProperties: domain.UserProperties{
				FirstName:  "Ada",
				LastName:   "Lovelace",
				RoomNumber: room,
				Residence:  domain.ResidenceAltbau,
			},
			ID:       id,
			Verified: true,
		},
		Present: present,
	}
}

// ---------------------------------------------------------------------------
// Entity store
// ---------------------------------------------------------------------------

func TestEntityStore_UpsertReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	store, err := NewEntityStore(ctx, openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}

	if err := store.AddGuestIntern(ctx, internGuest("id-1", 312, false)); err != nil {
		t.Fatal(err)
	}
	if err := store.AddGuestIntern(ctx, internGuest("id-1", 312, true)); err != nil {
		t.Fatal(err)
	}

	guests := store.Guests()
	if len(guests) != 1 {
		t.Fatalf("expected 1 guest after re-add, got %d", len(guests))
	}
	if !guests[0].Present {
		t.Error("second upsert's fields were not applied")
	}
}

func TestEntityStore_DeleteByID(t *testing.T) {
	ctx := context.Background()
	store, err := NewEntityStore(ctx, openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}

	if err := store.AddGuestIntern(ctx, internGuest("id-1", 312, true)); err != nil {
		t.Fatal(err)
	}
	if err := store.AddGuestExtern(ctx, domain.GuestExtern{ID: "id-2", FirstName: "Erin", LastName: "Extern"}); err != nil {
		t.Fatal(err)
	}

	// Push events only carry the id; removal must work for both
	// variants without knowing which collection holds the guest.
	if err := store.DeleteGuestInternByID(ctx, "id-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteGuestExtern(ctx, "id-2"); err != nil {
		t.Fatal(err)
	}

	if got := store.Guests(); len(got) != 0 {
		t.Errorf("expected empty guest list, got %d entries", len(got))
	}

	// Deleting an absent id is a no-op, not an error.
	if err := store.DeleteGuestInternByID(ctx, "id-1"); err != nil {
		t.Errorf("repeated delete: %v", err)
	}
}

func TestEntityStore_GuestByID(t *testing.T) {
	ctx := context.Background()
	store, err := NewEntityStore(ctx, openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}

	if err := store.AddGuestIntern(ctx, internGuest("id-1", 312, true)); err != nil {
		t.Fatal(err)
	}
	if err := store.AddGuestExtern(ctx, domain.GuestExtern{ID: "id-2", FirstName: "Erin", LastName: "Extern"}); err != nil {
		t.Fatal(err)
	}

	// The lookup must resolve both variants by id, even though interns
	// are stored under the (residence, room number) key.
	intern, err := store.GuestByID("id-1")
	if err != nil {
		t.Fatal(err)
	}
	if intern.Extern || intern.RoomNumber != 312 || !intern.Present {
		t.Errorf("intern lookup = %+v", intern)
	}

	extern, err := store.GuestByID("id-2")
	if err != nil {
		t.Fatal(err)
	}
	if !extern.Extern || extern.FirstName != "Erin" {
		t.Errorf("extern lookup = %+v", extern)
	}

	if _, err := store.GuestByID("id-9"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing id: err = %v, want ErrNotFound", err)
	}
}

func TestEntityStore_MirrorSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	store, err := NewEntityStore(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AddGuestIntern(ctx, internGuest("id-1", 101, true)); err != nil {
		t.Fatal(err)
	}
	if err := store.AddHost(ctx, domain.Member{ID: "h1", FirstName: "Grace", LastName: "Hopper"}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()
	reopened, err := NewEntityStore(ctx, db2)
	if err != nil {
		t.Fatal(err)
	}

	if got := reopened.Guests(); len(got) != 1 || got[0].ID != "id-1" {
		t.Errorf("guest mirror not reloaded: %+v", got)
	}
	if got := reopened.Hosts(); len(got) != 1 || got[0].ID != "h1" {
		t.Errorf("host mirror not reloaded: %+v", got)
	}
}

func TestEntityStore_BulkAddReportsPartialFailure(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store, err := NewEntityStore(ctx, db)
	if err != nil {
		t.Fatal(err)
	}

	// Closing the handle makes every item fail; the error must carry
	// all of them rather than stopping at the first.
	db.Close()
	err = store.AddGuests(ctx, []domain.Guest{
		internGuest("id-1", 1, false).AsGuest(),
		internGuest("id-2", 2, false).AsGuest(),
	})
	if err == nil {
		t.Fatal("expected aggregated error")
	}
}

// ---------------------------------------------------------------------------
// Action buffer
// ---------------------------------------------------------------------------

func TestActionBuffer_FIFOOrder(t *testing.T) {
	ctx := context.Background()
	buffer := NewActionBuffer(openTestDB(t))

	first, err := buffer.Enqueue(ctx, domain.ActionCreateUser, domain.CreateUserPayload{
		UserProperties: domain.UserProperties{FirstName: "Ada", LastName: "Lovelace", RoomNumber: 1, Residence: domain.ResidenceHirte},
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := buffer.Enqueue(ctx, domain.ActionModifyGuest, domain.ModifyGuestPayload{ID: "id-1"})
	if err != nil {
		t.Fatal(err)
	}
	if second <= first {
		t.Fatalf("sequence numbers must increase: %d then %d", first, second)
	}

	actions, err := buffer.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(actions))
	}
	if actions[0].Seq != first || actions[1].Seq != second {
		t.Errorf("listing out of order: %d, %d", actions[0].Seq, actions[1].Seq)
	}
	if actions[0].Kind != domain.ActionCreateUser {
		t.Errorf("kind = %s", actions[0].Kind)
	}

	if err := buffer.Delete(ctx, first); err != nil {
		t.Fatal(err)
	}
	if depth, _ := buffer.Depth(ctx); depth != 1 {
		t.Errorf("depth after delete = %d, want 1", depth)
	}

	// A new entry must not reuse the deleted sequence number.
	third, err := buffer.Enqueue(ctx, domain.ActionModifyUser, domain.ModifyUserPayload{ID: "id-1"})
	if err != nil {
		t.Fatal(err)
	}
	if third <= second {
		t.Errorf("sequence reused: %d after %d", third, second)
	}
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func TestSettings_GetSetClear(t *testing.T) {
	ctx := context.Background()
	settings := NewSettings(openTestDB(t))

	if _, ok, err := settings.Get(ctx, "motto"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	if err := settings.Set(ctx, "motto", "Space Night"); err != nil {
		t.Fatal(err)
	}
	if err := settings.Set(ctx, "motto", "Disco Fever"); err != nil {
		t.Fatal(err)
	}

	value, ok, err := settings.Get(ctx, "motto")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if value != "Disco Fever" {
		t.Errorf("value = %q", value)
	}

	if err := settings.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := settings.Get(ctx, "motto"); ok {
		t.Error("clear left values behind")
	}
}
