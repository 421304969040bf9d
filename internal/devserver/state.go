package devserver

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stueble/guestsync/internal/core/domain"
	"github.com/stueble/guestsync/internal/core/ports"
)

// account is a login credential pair held by the dev server.
type account struct {
	ID           string
	Username     string
	PasswordHash []byte
}

// state is the dev server's in-memory world: users, the guest list, the
// two role collections, and event metadata. It stands in for the
// production backend's database.
type state struct {
	mu sync.Mutex

	accounts map[string]account     // by username
	users    map[string]domain.User // by id
	guests   map[string]domain.Guest
	hosts    map[string]domain.Member
	tutors   map[string]domain.Member

	motto       string
	description string
	config      domain.Config
	status      domain.EventStatus
}

func newState() *state {
	return &state{
		accounts: make(map[string]account),
		users:    make(map[string]domain.User),
		guests:   make(map[string]domain.Guest),
		hosts:    make(map[string]domain.Member),
		tutors:   make(map[string]domain.Member),
		motto:    "let there be bass",
		config: domain.Config{
			MaximumGuests:              250,
			SessionExpirationDays:      7,
			MaximumInvitesPerUser:      2,
			ResetCodeExpirationMinutes: 15,
			QRCodeExpirationMinutes:    5,
		},
		status: domain.EventStatus{Date: nextSaturday(time.Now())},
	}
}

func nextSaturday(now time.Time) time.Time {
	d := (int(time.Saturday) - int(now.Weekday()) + 7) % 7
	if d == 0 {
		d = 7
	}
	day := now.AddDate(0, 0, d)
	return time.Date(day.Year(), day.Month(), day.Day(), 20, 0, 0, 0, time.Local)
}

func (s *state) addAccount(a account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.Username] = a
}

func (s *state) findAccount(username string) (account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	return a, ok
}

func (s *state) upsertUser(u domain.User) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[u.ID] = u
	return u
}

func (s *state) patchUser(p domain.ModifyUserPayload) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[p.ID]
	if !ok {
		return domain.User{}, false
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.RoomNumber != nil {
		u.RoomNumber = *p.RoomNumber
	}
	if p.Residence != nil {
		u.Residence = *p.Residence
	}
	s.users[p.ID] = u

	// Keep the guest list entry in step with the identity change.
	if g, listed := s.guests[p.ID]; listed {
		g.FirstName = u.FirstName
		g.LastName = u.LastName
		g.RoomNumber = u.RoomNumber
		g.Residence = u.Residence
		s.guests[p.ID] = g
	}
	return u, true
}

func (s *state) searchUsers(q ports.UserSearch) []domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.User
	for _, u := range s.users {
		if q.FirstName != nil && !strings.EqualFold(u.FirstName, *q.FirstName) {
			continue
		}
		if q.LastName != nil && !strings.EqualFold(u.LastName, *q.LastName) {
			continue
		}
		if q.RoomNumber != nil && u.RoomNumber != *q.RoomNumber {
			continue
		}
		if q.Residence != nil && u.Residence != *q.Residence {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) addGuestByUserID(id string) (domain.Guest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.Guest{}, false
	}
	g := domain.GuestIntern{User: u}.AsGuest()
	s.guests[g.ID] = g
	return g, true
}

func (s *state) addExternGuest(firstName, lastName, email string) domain.Guest {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := domain.Guest{
		ID:        uuid.NewString(),
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Extern:    true,
	}
	s.guests[g.ID] = g
	return g
}

func (s *state) modifyGuest(p domain.ModifyGuestPayload) (domain.Guest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guests[p.ID]
	if !ok {
		return domain.Guest{}, false
	}
	if p.Present != nil {
		g.Present = *p.Present
	}
	s.guests[p.ID] = g
	return g, true
}

func (s *state) removeGuest(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.guests[id]; !ok {
		return false
	}
	delete(s.guests, id)
	return true
}

func (s *state) guestList() []domain.Guest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Guest, 0, len(s.guests))
	for _, g := range s.guests {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out
}

// addMembers promotes known users into a role collection and returns the
// newly added members.
func (s *state) addMembers(collection map[string]domain.Member, ids []string) []domain.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	var added []domain.Member
	for _, id := range ids {
		u, ok := s.users[id]
		if !ok {
			continue
		}
		m := domain.Member{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName}
		collection[m.ID] = m
		added = append(added, m)
	}
	return added
}

func (s *state) removeMembers(collection map[string]domain.Member, ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for _, id := range ids {
		if _, ok := collection[id]; ok {
			delete(collection, id)
			removed = append(removed, id)
		}
	}
	return removed
}

func (s *state) members(collection map[string]domain.Member) []domain.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Member, 0, len(collection))
	for _, m := range collection {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) setMotto(motto, description *string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if motto != nil {
		s.motto = *motto
	}
	if description != nil {
		s.description = *description
	}
	return s.motto
}

func (s *state) getMotto() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motto
}

func (s *state) getConfig() domain.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

func (s *state) setConfig(c domain.Config) domain.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = c
	return c
}

func (s *state) getStatus() domain.EventStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *state) setEventDate(date time.Time) domain.EventStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Date = date
	return s.status
}
