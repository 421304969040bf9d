package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/stueble/guestsync/internal/core/domain"
	"github.com/stueble/guestsync/internal/core/ports"
)

// internKey is the composite persistence key of an internal guest.
type internKey struct {
	residence  domain.Residence
	roomNumber uint32
}

// EntityStore persists guests, hosts and tutors and mirrors them in
// memory. Every mutation writes to SQLite first and touches the mirror
// only after the write succeeded, so mirror reads never run ahead of
// durable state.
type EntityStore struct {
	db *DB

	mu         sync.RWMutex
	intern     map[internKey]domain.GuestIntern
	internByID map[string]internKey
	extern     map[string]domain.GuestExtern
	hosts      map[string]domain.Member
	tutors     map[string]domain.Member
}

var _ ports.EntityStore = (*EntityStore)(nil)

// NewEntityStore builds the store and loads the mirror from disk.
func NewEntityStore(ctx context.Context, db *DB) (*EntityStore, error) {
	s := &EntityStore{
		db:         db,
		intern:     make(map[internKey]domain.GuestIntern),
		internByID: make(map[string]internKey),
		extern:     make(map[string]domain.GuestExtern),
		hosts:      make(map[string]domain.Member),
		tutors:     make(map[string]domain.Member),
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *EntityStore) load(ctx context.Context) error {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT residence, room_number, id, first_name, last_name, verified, present FROM guests_intern`)
	if err != nil {
		return fmt.Errorf("sqlite: load guests_intern: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var g domain.GuestIntern
		if err := rows.Scan(&g.Residence, &g.RoomNumber, &g.ID, &g.FirstName, &g.LastName, &g.Verified, &g.Present); err != nil {
			return fmt.Errorf("sqlite: scan guests_intern: %w", err)
		}
		key := internKey{g.Residence, g.RoomNumber}
		s.intern[key] = g
		s.internByID[g.ID] = key
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: load guests_intern: %w", err)
	}

	externRows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, first_name, last_name, email, present FROM guests_extern`)
	if err != nil {
		return fmt.Errorf("sqlite: load guests_extern: %w", err)
	}
	defer externRows.Close()
	for externRows.Next() {
		var g domain.GuestExtern
		if err := externRows.Scan(&g.ID, &g.FirstName, &g.LastName, &g.Email, &g.Present); err != nil {
			return fmt.Errorf("sqlite: scan guests_extern: %w", err)
		}
		s.extern[g.ID] = g
	}
	if err := externRows.Err(); err != nil {
		return fmt.Errorf("sqlite: load guests_extern: %w", err)
	}

	if s.hosts, err = s.loadMembers(ctx, "hosts"); err != nil {
		return err
	}
	if s.tutors, err = s.loadMembers(ctx, "tutors"); err != nil {
		return err
	}
	return nil
}

func (s *EntityStore) loadMembers(ctx context.Context, table string) (map[string]domain.Member, error) {
	rows, err := s.db.sql.QueryContext(ctx, "SELECT id, first_name, last_name FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load %s: %w", table, err)
	}
	defer rows.Close()

	members := make(map[string]domain.Member)
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.FirstName, &m.LastName); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", table, err)
		}
		members[m.ID] = m
	}
	return members, rows.Err()
}

/* Guests */

func (s *EntityStore) AddGuestIntern(ctx context.Context, g domain.GuestIntern) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO guests_intern (residence, room_number, id, first_name, last_name, verified, present)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (residence, room_number) DO UPDATE SET
			id = excluded.id,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			verified = excluded.verified,
			present = excluded.present`,
		g.Residence, g.RoomNumber, g.ID, g.FirstName, g.LastName, g.Verified, g.Present)
	if err != nil {
		return fmt.Errorf("sqlite: upsert intern guest: %w", err)
	}

	s.mu.Lock()
	key := internKey{g.Residence, g.RoomNumber}
	s.intern[key] = g
	s.internByID[g.ID] = key
	s.mu.Unlock()
	return nil
}

func (s *EntityStore) AddGuestExtern(ctx context.Context, g domain.GuestExtern) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO guests_extern (id, first_name, last_name, email, present)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			present = excluded.present`,
		g.ID, g.FirstName, g.LastName, g.Email, g.Present)
	if err != nil {
		return fmt.Errorf("sqlite: upsert extern guest: %w", err)
	}

	s.mu.Lock()
	s.extern[g.ID] = g
	s.mu.Unlock()
	return nil
}

func (s *EntityStore) AddGuests(ctx context.Context, guests []domain.Guest) error {
	var errs []error
	for _, g := range guests {
		var err error
		if g.Extern {
			err = s.AddGuestExtern(ctx, g.ExternGuest())
		} else {
			err = s.AddGuestIntern(ctx, g.Intern())
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("guest %s: %w", g.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *EntityStore) DeleteGuestIntern(ctx context.Context, residence domain.Residence, roomNumber uint32) error {
	_, err := s.db.sql.ExecContext(ctx,
		`DELETE FROM guests_intern WHERE residence = ? AND room_number = ?`, residence, roomNumber)
	if err != nil {
		return fmt.Errorf("sqlite: delete intern guest: %w", err)
	}

	s.mu.Lock()
	key := internKey{residence, roomNumber}
	if g, ok := s.intern[key]; ok {
		delete(s.internByID, g.ID)
		delete(s.intern, key)
	}
	s.mu.Unlock()
	return nil
}

func (s *EntityStore) DeleteGuestInternByID(ctx context.Context, id string) error {
	_, err := s.db.sql.ExecContext(ctx, `DELETE FROM guests_intern WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete intern guest by id: %w", err)
	}

	s.mu.Lock()
	if key, ok := s.internByID[id]; ok {
		delete(s.intern, key)
		delete(s.internByID, id)
	}
	s.mu.Unlock()
	return nil
}

func (s *EntityStore) DeleteGuestExtern(ctx context.Context, id string) error {
	_, err := s.db.sql.ExecContext(ctx, `DELETE FROM guests_extern WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete extern guest: %w", err)
	}

	s.mu.Lock()
	delete(s.extern, id)
	s.mu.Unlock()
	return nil
}

/* Hosts and tutors */

func (s *EntityStore) AddHost(ctx context.Context, m domain.Member) error {
	return s.addMember(ctx, "hosts", s.hosts, m)
}

func (s *EntityStore) AddHosts(ctx context.Context, members []domain.Member) error {
	return s.addMembers(ctx, "hosts", s.hosts, members)
}

func (s *EntityStore) DeleteHost(ctx context.Context, id string) error {
	return s.deleteMember(ctx, "hosts", s.hosts, id)
}

func (s *EntityStore) AddTutor(ctx context.Context, m domain.Member) error {
	return s.addMember(ctx, "tutors", s.tutors, m)
}

func (s *EntityStore) AddTutors(ctx context.Context, members []domain.Member) error {
	return s.addMembers(ctx, "tutors", s.tutors, members)
}

func (s *EntityStore) DeleteTutor(ctx context.Context, id string) error {
	return s.deleteMember(ctx, "tutors", s.tutors, id)
}

func (s *EntityStore) addMember(ctx context.Context, table string, mirror map[string]domain.Member, m domain.Member) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO `+table+` (id, first_name, last_name)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name`,
		m.ID, m.FirstName, m.LastName)
	if err != nil {
		return fmt.Errorf("sqlite: upsert %s: %w", table, err)
	}

	s.mu.Lock()
	mirror[m.ID] = m
	s.mu.Unlock()
	return nil
}

func (s *EntityStore) addMembers(ctx context.Context, table string, mirror map[string]domain.Member, members []domain.Member) error {
	var errs []error
	for _, m := range members {
		if err := s.addMember(ctx, table, mirror, m); err != nil {
			errs = append(errs, fmt.Errorf("member %s: %w", m.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *EntityStore) deleteMember(ctx context.Context, table string, mirror map[string]domain.Member, id string) error {
	_, err := s.db.sql.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: delete from %s: %w", table, err)
	}

	s.mu.Lock()
	delete(mirror, id)
	s.mu.Unlock()
	return nil
}

/* Mirror reads */

// Guests returns the mirrored guest list, interns first, each variant
// ordered by last then first name.
func (s *EntityStore) Guests() []domain.Guest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guests := make([]domain.Guest, 0, len(s.intern)+len(s.extern))
	for _, g := range s.intern {
		guests = append(guests, g.AsGuest())
	}
	sortGuests(guests)

	externs := make([]domain.Guest, 0, len(s.extern))
	for _, g := range s.extern {
		externs = append(externs, g.AsGuest())
	}
	sortGuests(externs)

	return append(guests, externs...)
}

func (s *EntityStore) Hosts() []domain.Member {
	return s.memberSnapshot(s.hosts)
}

func (s *EntityStore) Tutors() []domain.Member {
	return s.memberSnapshot(s.tutors)
}

func (s *EntityStore) memberSnapshot(mirror map[string]domain.Member) []domain.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]domain.Member, 0, len(mirror))
	for _, m := range mirror {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].LastName != members[j].LastName {
			return members[i].LastName < members[j].LastName
		}
		return members[i].FirstName < members[j].FirstName
	})
	return members
}

func sortGuests(guests []domain.Guest) {
	sort.Slice(guests, func(i, j int) bool {
		if guests[i].LastName != guests[j].LastName {
			return guests[i].LastName < guests[j].LastName
		}
		return guests[i].FirstName < guests[j].FirstName
	})
}

// Clear wipes all entity collections, durably first, then the mirror.
func (s *EntityStore) Clear(ctx context.Context) error {
	if err := s.db.clearTables(ctx, "guests_intern", "guests_extern", "hosts", "tutors"); err != nil {
		return err
	}

	s.mu.Lock()
	s.intern = make(map[internKey]domain.GuestIntern)
	s.internByID = make(map[string]internKey)
	s.extern = make(map[string]domain.GuestExtern)
	s.hosts = make(map[string]domain.Member)
	s.tutors = make(map[string]domain.Member)
	s.mu.Unlock()
	return nil
}

// GuestByID looks an intern or extern guest up in the mirror.
func (s *EntityStore) GuestByID(id string) (domain.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.internByID[id]; ok {
		if g, ok := s.intern[key]; ok {
			return g.AsGuest(), nil
		}
	}
	if g, ok := s.extern[id]; ok {
		return g.AsGuest(), nil
	}
	return domain.Guest{}, fmt.Errorf("guest %s: %w", id, domain.ErrNotFound)
}
