// ABOUTME: Tests for the SQLite store and password hashing
// ABOUTME: Runs against a real database file in a temp directory

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/squall-im/squall/internal/id"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testUser = id.UserID{Localpart: "alice", Domain: "example.com"}

func TestHashPassword_Matches(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !hash.Matches("hunter2") {
		t.Error("hash should match the original password")
	}
	if hash.Matches("wrong") {
		t.Error("hash should not match a different password")
	}
}

func TestPasswordHash_EmptyNeverMatches(t *testing.T) {
	var hash PasswordHash
	if hash.Matches("") {
		t.Error("empty hash must not match the empty password")
	}
	if hash.Matches("anything") {
		t.Error("empty hash must not match anything")
	}
}

func TestSQLiteStore_Accounts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if err := s.CreateAccount(ctx, testUser, hash, AccountKindUser); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	if err := s.CreateAccount(ctx, testUser, hash, AccountKindUser); !errors.Is(err, ErrDuplicate) {
		t.Errorf("CreateAccount() duplicate error = %v, want ErrDuplicate", err)
	}

	exists, err := s.UsernameExists(ctx, "alice")
	if err != nil {
		t.Fatalf("UsernameExists() error = %v", err)
	}
	if !exists {
		t.Error("UsernameExists() = false for a created account")
	}

	exists, err = s.UsernameExists(ctx, "bob")
	if err != nil {
		t.Fatalf("UsernameExists() error = %v", err)
	}
	if exists {
		t.Error("UsernameExists() = true for an unknown localpart")
	}

	got, err := s.PasswordHash(ctx, testUser)
	if err != nil {
		t.Fatalf("PasswordHash() error = %v", err)
	}
	if !got.Matches("hunter2") {
		t.Error("stored hash should match the original password")
	}

	_, err = s.PasswordHash(ctx, id.UserID{Localpart: "bob", Domain: "example.com"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("PasswordHash() unknown user error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_ResolveUser(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateAccount(ctx, testUser, "", AccountKindUser); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if err := s.LinkThirdParty(ctx, testUser, "Email", "alice@example.com"); err != nil {
		t.Fatalf("LinkThirdParty() error = %v", err)
	}
	if err := s.LinkThirdParty(ctx, testUser, "msisdn", "07700900000"); err != nil {
		t.Fatalf("LinkThirdParty() error = %v", err)
	}

	tests := []struct {
		name    string
		ident   id.UserIdentifier
		want    id.UserID
		wantErr error
	}{
		{
			name:  "by user id",
			ident: id.UserIDIdentifier{User: testUser},
			want:  testUser,
		},
		{
			name:    "unknown user id",
			ident:   id.UserIDIdentifier{User: id.UserID{Localpart: "bob", Domain: "example.com"}},
			wantErr: ErrNotFound,
		},
		{
			name:  "by email with case-insensitive medium",
			ident: id.ThirdPartyIdentifier{Medium: "EMAIL", Address: "alice@example.com"},
			want:  testUser,
		},
		{
			name:  "by phone",
			ident: id.PhoneIdentifier{Country: "GB", Phone: "07700900000"},
			want:  testUser,
		},
		{
			name:    "unknown phone",
			ident:   id.PhoneIdentifier{Country: "GB", Phone: "07700900999"},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ResolveUser(ctx, tt.ident)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveUser() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveUser() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveUser() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSQLiteStore_Devices(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateAccount(ctx, testUser, "", AccountKindUser); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	laptop := id.DeviceID("laptop")
	phone := id.DeviceID("phone")

	if err := s.UpsertDevice(ctx, testUser, laptop, "Laptop"); err != nil {
		t.Fatalf("UpsertDevice() error = %v", err)
	}
	if err := s.UpsertDevice(ctx, testUser, phone, ""); err != nil {
		t.Fatalf("UpsertDevice() error = %v", err)
	}

	// Upserting again must not fail and must not clear the display name.
	if err := s.UpsertDevice(ctx, testUser, laptop, ""); err != nil {
		t.Fatalf("UpsertDevice() repeat error = %v", err)
	}

	exists, err := s.DeviceExists(ctx, laptop)
	if err != nil {
		t.Fatalf("DeviceExists() error = %v", err)
	}
	if !exists {
		t.Error("DeviceExists() = false for a registered device")
	}

	if err := s.RemoveDevice(ctx, laptop, testUser); err != nil {
		t.Fatalf("RemoveDevice() error = %v", err)
	}
	exists, err = s.DeviceExists(ctx, laptop)
	if err != nil {
		t.Fatalf("DeviceExists() error = %v", err)
	}
	if exists {
		t.Error("DeviceExists() = true after removal")
	}

	// Removing a device as the wrong user is a no-op.
	bob := id.UserID{Localpart: "bob", Domain: "example.com"}
	if err := s.RemoveDevice(ctx, phone, bob); err != nil {
		t.Fatalf("RemoveDevice() error = %v", err)
	}
	exists, err = s.DeviceExists(ctx, phone)
	if err != nil {
		t.Fatalf("DeviceExists() error = %v", err)
	}
	if !exists {
		t.Error("another user's removal must not unregister the device")
	}

	if err := s.RemoveAllDevices(ctx, testUser); err != nil {
		t.Fatalf("RemoveAllDevices() error = %v", err)
	}
	exists, err = s.DeviceExists(ctx, phone)
	if err != nil {
		t.Fatalf("DeviceExists() error = %v", err)
	}
	if exists {
		t.Error("DeviceExists() = true after RemoveAllDevices")
	}
}

func TestSQLiteStore_OneTimeCodes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateAccount(ctx, testUser, "", AccountKindUser); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if err := s.AddOneTimeCode(ctx, testUser, "live", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("AddOneTimeCode() error = %v", err)
	}
	if err := s.AddOneTimeCode(ctx, testUser, "stale", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("AddOneTimeCode() error = %v", err)
	}

	ok, err := s.OneTimeCodeValid(ctx, testUser, "live")
	if err != nil {
		t.Fatalf("OneTimeCodeValid() error = %v", err)
	}
	if !ok {
		t.Error("live code should be valid")
	}

	// Consumed on first use.
	ok, err = s.OneTimeCodeValid(ctx, testUser, "live")
	if err != nil {
		t.Fatalf("OneTimeCodeValid() error = %v", err)
	}
	if ok {
		t.Error("code should be consumed on first use")
	}

	ok, err = s.OneTimeCodeValid(ctx, testUser, "stale")
	if err != nil {
		t.Fatalf("OneTimeCodeValid() error = %v", err)
	}
	if ok {
		t.Error("expired code should not be valid")
	}

	ok, err = s.OneTimeCodeValid(ctx, testUser, "made-up")
	if err != nil {
		t.Fatalf("OneTimeCodeValid() error = %v", err)
	}
	if ok {
		t.Error("unknown code should not be valid")
	}
}

func TestSQLiteStore_DisplayName(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateAccount(ctx, testUser, "", AccountKindUser); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	name, err := s.DisplayName(ctx, testUser)
	if err != nil {
		t.Fatalf("DisplayName() error = %v", err)
	}
	if name != "" {
		t.Errorf("DisplayName() = %q, want empty on a fresh account", name)
	}

	if err := s.SetDisplayName(ctx, testUser, "Alice"); err != nil {
		t.Fatalf("SetDisplayName() error = %v", err)
	}
	name, err = s.DisplayName(ctx, testUser)
	if err != nil {
		t.Fatalf("DisplayName() error = %v", err)
	}
	if name != "Alice" {
		t.Errorf("DisplayName() = %q, want Alice", name)
	}

	bob := id.UserID{Localpart: "bob", Domain: "example.com"}
	if err := s.SetDisplayName(ctx, bob, "Bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetDisplayName() unknown user error = %v, want ErrNotFound", err)
	}
	if _, err := s.DisplayName(ctx, bob); !errors.Is(err, ErrNotFound) {
		t.Errorf("DisplayName() unknown user error = %v, want ErrNotFound", err)
	}
}
