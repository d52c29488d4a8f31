// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite or Postgres

package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/squall-im/squall/internal/id"
)

// MockStore is an in-memory Store implementation for testing. ForcedErr,
// when set, is returned from every call, which lets tests exercise the
// storage-unavailable paths.
type MockStore struct {
	mu        sync.RWMutex
	accounts  map[string]*Account         // keyed by UserID.String()
	hashes    map[string]PasswordHash     // keyed by UserID.String()
	devices   map[id.DeviceID]id.UserID   // device -> owner
	threepids map[string]id.UserID        // keyed by "medium|address"
	codes     map[string]map[string]bool  // UserID.String() -> code -> unused

	// ForcedErr is returned from every method when non-nil.
	ForcedErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		accounts:  make(map[string]*Account),
		hashes:    make(map[string]PasswordHash),
		devices:   make(map[id.DeviceID]id.UserID),
		threepids: make(map[string]id.UserID),
		codes:     make(map[string]map[string]bool),
	}
}

// AddAccount seeds an account, optionally with a password.
func (m *MockStore) AddAccount(user id.UserID, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[user.String()] = &Account{UserID: user, Kind: AccountKindUser, CreatedAt: time.Now()}
	if password != "" {
		hash, err := HashPassword(password)
		if err != nil {
			panic("store: hashing test password: " + err.Error())
		}
		m.hashes[user.String()] = hash
	}
}

// AddDevice seeds a registered device.
func (m *MockStore) AddDevice(user id.UserID, device id.DeviceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[device] = user
}

// AddThirdParty seeds a third-party link.
func (m *MockStore) AddThirdParty(user id.UserID, medium, address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threepids[strings.ToLower(medium)+"|"+address] = user
}

// AddOneTimeCode seeds an unused one-time code.
func (m *MockStore) AddOneTimeCode(user id.UserID, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes[user.String()] == nil {
		m.codes[user.String()] = make(map[string]bool)
	}
	m.codes[user.String()][code] = true
}

// HasDevice reports whether the device is currently registered.
func (m *MockStore) HasDevice(device id.DeviceID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.devices[device]
	return ok
}

// DeviceCount returns the number of registered devices for the user.
func (m *MockStore) DeviceCount(user id.UserID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, owner := range m.devices {
		if owner == user {
			n++
		}
	}
	return n
}

func (m *MockStore) ResolveUser(ctx context.Context, ident id.UserIdentifier) (id.UserID, error) {
	if m.ForcedErr != nil {
		return id.UserID{}, m.ForcedErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch v := ident.(type) {
	case id.UserIDIdentifier:
		if _, ok := m.accounts[v.User.String()]; ok {
			return v.User, nil
		}
		return id.UserID{}, ErrNotFound
	case id.ThirdPartyIdentifier:
		if user, ok := m.threepids[strings.ToLower(v.Medium)+"|"+v.Address]; ok {
			return user, nil
		}
		return id.UserID{}, ErrNotFound
	case id.PhoneIdentifier:
		if user, ok := m.threepids["msisdn|"+v.Phone]; ok {
			return user, nil
		}
		return id.UserID{}, ErrNotFound
	}
	return id.UserID{}, ErrNotFound
}

func (m *MockStore) UsernameExists(ctx context.Context, localpart string) (bool, error) {
	if m.ForcedErr != nil {
		return false, m.ForcedErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.UserID.Localpart == localpart {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) PasswordHash(ctx context.Context, user id.UserID) (PasswordHash, error) {
	if m.ForcedErr != nil {
		return "", m.ForcedErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.accounts[user.String()]; !ok {
		return "", ErrNotFound
	}
	return m.hashes[user.String()], nil
}

func (m *MockStore) OneTimeCodeValid(ctx context.Context, user id.UserID, code string) (bool, error) {
	if m.ForcedErr != nil {
		return false, m.ForcedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes[user.String()][code] {
		m.codes[user.String()][code] = false
		return true, nil
	}
	return false, nil
}

func (m *MockStore) DeviceExists(ctx context.Context, device id.DeviceID) (bool, error) {
	if m.ForcedErr != nil {
		return false, m.ForcedErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.devices[device]
	return ok, nil
}

func (m *MockStore) UpsertDevice(ctx context.Context, user id.UserID, device id.DeviceID, displayName string) error {
	if m.ForcedErr != nil {
		return m.ForcedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[device] = user
	return nil
}

func (m *MockStore) RemoveDevice(ctx context.Context, device id.DeviceID, user id.UserID) error {
	if m.ForcedErr != nil {
		return m.ForcedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.devices[device]; ok && owner == user {
		delete(m.devices, device)
	}
	return nil
}

func (m *MockStore) RemoveAllDevices(ctx context.Context, user id.UserID) error {
	if m.ForcedErr != nil {
		return m.ForcedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for device, owner := range m.devices {
		if owner == user {
			delete(m.devices, device)
		}
	}
	return nil
}

func (m *MockStore) CreateAccount(ctx context.Context, user id.UserID, hash PasswordHash, kind string) error {
	if m.ForcedErr != nil {
		return m.ForcedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[user.String()]; ok {
		return ErrDuplicate
	}
	m.accounts[user.String()] = &Account{UserID: user, Kind: kind, CreatedAt: time.Now()}
	if hash != "" {
		m.hashes[user.String()] = hash
	}
	return nil
}

func (m *MockStore) DisplayName(ctx context.Context, user id.UserID) (string, error) {
	if m.ForcedErr != nil {
		return "", m.ForcedErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[user.String()]
	if !ok {
		return "", ErrNotFound
	}
	return a.DisplayName, nil
}

func (m *MockStore) SetDisplayName(ctx context.Context, user id.UserID, name string) error {
	if m.ForcedErr != nil {
		return m.ForcedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[user.String()]
	if !ok {
		return ErrNotFound
	}
	a.DisplayName = name
	return nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error { return nil }
