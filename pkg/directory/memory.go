package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store with the same constraints as the
// PostgreSQL schema: unique emails, station foreign keys and no deleting a
// station that users still reference.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*User
	stations map[string]*Station
	failures map[string]error
	now      func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		stations: make(map[string]*Station),
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// FailNext makes the next call of the named method (e.g. "CreateUser")
// return err
func (m *MemoryStore) FailNext(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = err
}

func (m *MemoryStore) injected(method string) error {
	err, ok := m.failures[method]
	if ok {
		delete(m.failures, method)
	}
	return err
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(user), nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return copyUser(user), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) EmailTaken(_ context.Context, email, excludeID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emailTaken(email, excludeID), nil
}

func (m *MemoryStore) emailTaken(email, excludeID string) bool {
	for id, user := range m.users {
		if id != excludeID && strings.EqualFold(user.Email, email) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) ListUsers(_ context.Context, filter UserFilter) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := []*User{}
	for _, user := range m.users {
		if len(filter.Roles) > 0 && !containsRole(filter.Roles, user.Role) {
			continue
		}
		if filter.StationID != nil && !user.InStation(*filter.StationID) {
			continue
		}
		users = append(users, copyUser(user))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected("CreateUser"); err != nil {
		return err
	}
	if _, exists := m.users[user.ID]; exists {
		return ErrDuplicateEmail
	}
	if m.emailTaken(user.Email, "") {
		return ErrDuplicateEmail
	}
	if user.StationID != nil {
		if _, ok := m.stations[*user.StationID]; !ok {
			return ErrStationNotFound
		}
	}

	now := m.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[user.ID] = copyUser(user)
	return nil
}

func (m *MemoryStore) UpdateUser(_ context.Context, id string, update UserUpdate) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected("UpdateUser"); err != nil {
		return nil, err
	}
	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if update.IsEmpty() {
		return copyUser(user), nil
	}
	if update.Email != nil && m.emailTaken(*update.Email, id) {
		return nil, ErrDuplicateEmail
	}
	if update.SetStation && update.StationID != nil {
		if _, ok := m.stations[*update.StationID]; !ok {
			return nil, ErrStationNotFound
		}
	}

	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Phone != nil {
		user.Phone = *update.Phone
	}
	if update.Email != nil {
		user.Email = *update.Email
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	if update.SetStation {
		user.StationID = copyString(update.StationID)
	}
	user.UpdatedAt = m.now()
	return copyUser(user), nil
}

func (m *MemoryStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected("DeleteUser"); err != nil {
		return err
	}
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *MemoryStore) GetStation(_ context.Context, id string) (*Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	station, ok := m.stations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *station
	return &out, nil
}

func (m *MemoryStore) ListStations(_ context.Context, filter StationFilter) ([]*Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stations := []*Station{}
	for id, station := range m.stations {
		if filter.ID != nil && id != *filter.ID {
			continue
		}
		out := *station
		stations = append(stations, &out)
	}
	sort.Slice(stations, func(i, j int) bool {
		if stations[i].Name != stations[j].Name {
			return stations[i].Name < stations[j].Name
		}
		return stations[i].ID < stations[j].ID
	})
	return stations, nil
}

func (m *MemoryStore) CreateStation(_ context.Context, station *Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected("CreateStation"); err != nil {
		return err
	}
	now := m.now()
	station.CreatedAt = now
	station.UpdatedAt = now
	out := *station
	m.stations[station.ID] = &out
	return nil
}

func (m *MemoryStore) UpdateStation(_ context.Context, id string, update StationUpdate) (*Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	station, ok := m.stations[id]
	if !ok {
		return nil, ErrNotFound
	}
	if update.Name != nil {
		station.Name = *update.Name
	}
	if update.Location != nil {
		station.Location = *update.Location
	}
	if !update.IsEmpty() {
		station.UpdatedAt = m.now()
	}
	out := *station
	return &out, nil
}

func (m *MemoryStore) DeleteStation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stations[id]; !ok {
		return ErrNotFound
	}
	for _, user := range m.users {
		if user.InStation(id) {
			return ErrStationInUse
		}
	}
	delete(m.stations, id)
	return nil
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func copyUser(user *User) *User {
	out := *user
	if user.StationID != nil {
		station := *user.StationID
		out.StationID = &station
	}
	return &out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}
