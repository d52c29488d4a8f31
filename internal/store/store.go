// ABOUTME: Store interface, account/device types and error sentinels
// ABOUTME: Backend failures are wrapped so drivers never leak to callers

package store

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/squall-im/squall/internal/id"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when creating an entity that already exists.
var ErrDuplicate = errors.New("already exists")

// Account kinds.
const (
	AccountKindUser  = "user"
	AccountKindGuest = "guest"
)

// PasswordHash is a stored bcrypt password hash. Matching lives here so the
// hashing scheme stays a storage concern.
type PasswordHash string

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (PasswordHash, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return PasswordHash(h), nil
}

// Matches reports whether the plaintext password matches the stored hash.
// An empty hash never matches anything, so passwordless accounts cannot be
// logged into with an empty secret.
func (h PasswordHash) Matches(password string) bool {
	if h == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(h), []byte(password)) == nil
}

// Account is one registered user.
type Account struct {
	UserID      id.UserID
	Kind        string
	DisplayName string
	CreatedAt   time.Time
}

// Device is one client installation bound to an account.
type Device struct {
	ID          id.DeviceID
	UserID      id.UserID
	DisplayName string
	CreatedAt   time.Time
	LastSeenAt  time.Time
}

// Store is the persistence contract consumed by the authentication core.
// Implementations return ErrNotFound for missing entities and wrap backend
// failures in generic errors; callers treat any other error as the storage
// backend being unavailable.
type Store interface {
	// ResolveUser looks up the account named by the identifier and returns
	// its user id, or ErrNotFound.
	ResolveUser(ctx context.Context, ident id.UserIdentifier) (id.UserID, error)

	// UsernameExists reports whether an account with the given localpart
	// exists on this server.
	UsernameExists(ctx context.Context, localpart string) (bool, error)

	// PasswordHash returns the stored password hash for the user, or
	// ErrNotFound when the account does not exist.
	PasswordHash(ctx context.Context, user id.UserID) (PasswordHash, error)

	// OneTimeCodeValid reports whether code is currently valid for the user
	// and consumes it when it is.
	OneTimeCodeValid(ctx context.Context, user id.UserID, code string) (bool, error)

	// DeviceExists reports whether the device is still registered.
	DeviceExists(ctx context.Context, device id.DeviceID) (bool, error)

	// UpsertDevice registers the device for the user or refreshes its
	// last-seen time. displayName is ignored for known devices when empty.
	UpsertDevice(ctx context.Context, user id.UserID, device id.DeviceID, displayName string) error

	// RemoveDevice unregisters one device belonging to the user.
	RemoveDevice(ctx context.Context, device id.DeviceID, user id.UserID) error

	// RemoveAllDevices unregisters every device belonging to the user.
	RemoveAllDevices(ctx context.Context, user id.UserID) error

	// CreateAccount persists a new account. Returns ErrDuplicate when the
	// localpart is taken.
	CreateAccount(ctx context.Context, user id.UserID, hash PasswordHash, kind string) error

	// DisplayName returns the account's display name, or ErrNotFound.
	DisplayName(ctx context.Context, user id.UserID) (string, error)

	// SetDisplayName updates the account's display name.
	SetDisplayName(ctx context.Context, user id.UserID, name string) error

	// Close releases backend resources.
	Close() error
}
