package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/stueble/guestsync/internal/core/domain"
	"github.com/stueble/guestsync/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stubs shared by the service tests
// ---------------------------------------------------------------------------

type stubBuffer struct {
	mu      sync.Mutex
	nextSeq uint64
	entries []domain.BufferedAction

	enqueueErr error
	deleteErr  error
}

func (b *stubBuffer) Enqueue(_ context.Context, kind domain.ActionKind, payload any) (uint64, error) {
	if b.enqueueErr != nil {
		return 0, b.enqueueErr
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSeq++
	b.entries = append(b.entries, domain.BufferedAction{Seq: b.nextSeq, Kind: kind, Payload: body})
	return b.nextSeq, nil
}

func (b *stubBuffer) List(context.Context) ([]domain.BufferedAction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.BufferedAction, len(b.entries))
	copy(out, b.entries)
	return out, nil
}

func (b *stubBuffer) Delete(_ context.Context, seq uint64) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if e.Seq == seq {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (b *stubBuffer) Depth(context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries), nil
}

func (b *stubBuffer) seqs() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint64, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.Seq)
	}
	return out
}

// stubAPI records which request-channel operations ran, in order, and
// fails the ones listed in errOn.
type stubAPI struct {
	mu    sync.Mutex
	calls []string
	errOn map[string]error

	guest domain.Guest // returned by guest-shaped operations
}

func (a *stubAPI) record(name string) error {
	a.mu.Lock()
	a.calls = append(a.calls, name)
	a.mu.Unlock()
	if a.errOn != nil {
		return a.errOn[name]
	}
	return nil
}

func (a *stubAPI) callNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.calls))
	copy(out, a.calls)
	return out
}

func (a *stubAPI) guestResult(name string) (*domain.Guest, error) {
	if err := a.record(name); err != nil {
		return nil, err
	}
	g := a.guest
	return &g, nil
}

func (a *stubAPI) CreateUser(_ context.Context, _ domain.CreateUserPayload) (*domain.Guest, error) {
	return a.guestResult("createUser")
}

func (a *stubAPI) ModifyUser(_ context.Context, _ domain.ModifyUserPayload) (*domain.Guest, error) {
	return a.guestResult("modifyUser")
}

func (a *stubAPI) AddToGuestList(_ context.Context, _ domain.AddToGuestListPayload) (*domain.Guest, error) {
	return a.guestResult("addToGuestList")
}

func (a *stubAPI) ModifyGuest(_ context.Context, _ domain.ModifyGuestPayload) (*domain.Guest, error) {
	return a.guestResult("modifyGuest")
}

func (a *stubAPI) RemoveFromGuestList(_ context.Context, _ domain.RemoveFromGuestListPayload) error {
	return a.record("removeFromGuestList")
}

func (a *stubAPI) GetUser(context.Context) (*domain.User, error) {
	return &domain.User{}, a.record("getUser")
}

func (a *stubAPI) SearchUsers(context.Context, ports.UserSearch) ([]domain.User, error) {
	return nil, a.record("searchUsers")
}

func (a *stubAPI) GetGuestList(context.Context) ([]domain.Guest, error) {
	if err := a.record("getGuestList"); err != nil {
		return nil, err
	}
	return []domain.Guest{a.guest}, nil
}

func (a *stubAPI) InviteExtern(context.Context, string, string, string) error {
	return a.record("inviteExtern")
}

func (a *stubAPI) GetHosts(context.Context) ([]domain.Member, error) {
	return nil, a.record("getHosts")
}

func (a *stubAPI) AddHostsByID(context.Context, []string) ([]domain.Member, error) {
	return nil, a.record("addHosts")
}

func (a *stubAPI) RemoveHostsByID(context.Context, []string) error {
	return a.record("removeHosts")
}

func (a *stubAPI) GetTutors(context.Context) ([]domain.Member, error) {
	return nil, a.record("getTutors")
}

func (a *stubAPI) AddTutorsByID(context.Context, []string) ([]domain.Member, error) {
	return nil, a.record("addTutors")
}

func (a *stubAPI) RemoveTutorsByID(context.Context, []string) error {
	return a.record("removeTutors")
}

func (a *stubAPI) ModifyMotto(context.Context, *string, *string) error {
	return a.record("modifyMotto")
}

func (a *stubAPI) GetConfig(context.Context) (*domain.Config, error) {
	return &domain.Config{}, a.record("getConfig")
}

func (a *stubAPI) ModifyConfig(_ context.Context, c domain.Config) (*domain.Config, error) {
	return &c, a.record("modifyConfig")
}

// stubStore is a purely in-memory ports.EntityStore.
type stubStore struct {
	mu     sync.Mutex
	intern map[string]domain.GuestIntern
	extern map[string]domain.GuestExtern
	hosts  map[string]domain.Member
	tutors map[string]domain.Member
}

func newStubStore() *stubStore {
	return &stubStore{
		intern: make(map[string]domain.GuestIntern),
		extern: make(map[string]domain.GuestExtern),
		hosts:  make(map[string]domain.Member),
		tutors: make(map[string]domain.Member),
	}
}

func (s *stubStore) AddGuestIntern(_ context.Context, g domain.GuestIntern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intern[g.ID] = g
	return nil
}

func (s *stubStore) AddGuestExtern(_ context.Context, g domain.GuestExtern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extern[g.ID] = g
	return nil
}

func (s *stubStore) AddGuests(ctx context.Context, guests []domain.Guest) error {
	for _, g := range guests {
		if g.Extern {
			if err := s.AddGuestExtern(ctx, g.ExternGuest()); err != nil {
				return err
			}
		} else if err := s.AddGuestIntern(ctx, g.Intern()); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubStore) DeleteGuestIntern(_ context.Context, residence domain.Residence, room uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, g := range s.intern {
		if g.Residence == residence && g.RoomNumber == room {
			delete(s.intern, id)
		}
	}
	return nil
}

func (s *stubStore) DeleteGuestInternByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intern, id)
	return nil
}

func (s *stubStore) DeleteGuestExtern(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.extern, id)
	return nil
}

func (s *stubStore) AddHost(_ context.Context, m domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts[m.ID] = m
	return nil
}

func (s *stubStore) AddHosts(ctx context.Context, members []domain.Member) error {
	for _, m := range members {
		if err := s.AddHost(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubStore) DeleteHost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hosts, id)
	return nil
}

func (s *stubStore) AddTutor(_ context.Context, m domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tutors[m.ID] = m
	return nil
}

func (s *stubStore) AddTutors(ctx context.Context, members []domain.Member) error {
	for _, m := range members {
		if err := s.AddTutor(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubStore) DeleteTutor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tutors, id)
	return nil
}

func (s *stubStore) Guests() []domain.Guest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Guest, 0, len(s.intern)+len(s.extern))
	for _, g := range s.intern {
		out = append(out, g.AsGuest())
	}
	for _, g := range s.extern {
		out = append(out, g.AsGuest())
	}
	return out
}

func (s *stubStore) Hosts() []domain.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Member, 0, len(s.hosts))
	for _, m := range s.hosts {
		out = append(out, m)
	}
	return out
}

func (s *stubStore) Tutors() []domain.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Member, 0, len(s.tutors))
	for _, m := range s.tutors {
		out = append(out, m)
	}
	return out
}

func (s *stubStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intern = make(map[string]domain.GuestIntern)
	s.extern = make(map[string]domain.GuestExtern)
	s.hosts = make(map[string]domain.Member)
	s.tutors = make(map[string]domain.Member)
	return nil
}

// stubSettings is an in-memory ports.SettingsStore.
type stubSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newStubSettings() *stubSettings {
	return &stubSettings{values: make(map[string]string)}
}

func (s *stubSettings) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *stubSettings) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *stubSettings) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	return nil
}

var _ ports.ActionBuffer = (*stubBuffer)(nil)
var _ ports.RequestChannel = (*stubAPI)(nil)
var _ ports.EntityStore = (*stubStore)(nil)
var _ ports.SettingsStore = (*stubSettings)(nil)

// errFor builds a StatusError for tests.
func errFor(code int) error {
	return &domain.StatusError{Code: code, Message: fmt.Sprintf("status %d", code)}
}
