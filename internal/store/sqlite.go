// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Accounts, devices, third-party links and one-time codes with schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/squall-im/squall/internal/id"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			localpart TEXT NOT NULL,
			domain TEXT NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'user',
			created_at DATETIME NOT NULL,
			PRIMARY KEY (localpart, domain)
		);

		CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			localpart TEXT NOT NULL,
			domain TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			last_seen_at DATETIME NOT NULL,
			FOREIGN KEY (localpart, domain) REFERENCES accounts(localpart, domain)
		);

		CREATE INDEX IF NOT EXISTS idx_devices_user
			ON devices(localpart, domain);

		CREATE TABLE IF NOT EXISTS threepids (
			medium TEXT NOT NULL,
			address TEXT NOT NULL,
			localpart TEXT NOT NULL,
			domain TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (medium, address)
		);

		CREATE TABLE IF NOT EXISTS one_time_codes (
			localpart TEXT NOT NULL,
			domain TEXT NOT NULL,
			code TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			used_at DATETIME,
			PRIMARY KEY (localpart, domain, code)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ResolveUser looks up the account named by the identifier.
func (s *SQLiteStore) ResolveUser(ctx context.Context, ident id.UserIdentifier) (id.UserID, error) {
	switch v := ident.(type) {
	case id.UserIDIdentifier:
		var one int
		err := s.db.QueryRowContext(ctx,
			"SELECT 1 FROM accounts WHERE localpart = ? AND domain = ?",
			v.User.Localpart, v.User.Domain).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return id.UserID{}, ErrNotFound
		}
		if err != nil {
			return id.UserID{}, fmt.Errorf("resolving user: %w", err)
		}
		return v.User, nil
	case id.ThirdPartyIdentifier:
		return s.resolveThirdParty(ctx, strings.ToLower(v.Medium), v.Address)
	case id.PhoneIdentifier:
		return s.resolveThirdParty(ctx, "msisdn", v.Phone)
	default:
		return id.UserID{}, fmt.Errorf("resolving user: unhandled identifier %T", ident)
	}
}

func (s *SQLiteStore) resolveThirdParty(ctx context.Context, medium, address string) (id.UserID, error) {
	var user id.UserID
	err := s.db.QueryRowContext(ctx,
		"SELECT localpart, domain FROM threepids WHERE medium = ? AND address = ?",
		medium, address).Scan(&user.Localpart, &user.Domain)
	if errors.Is(err, sql.ErrNoRows) {
		return id.UserID{}, ErrNotFound
	}
	if err != nil {
		return id.UserID{}, fmt.Errorf("resolving third-party id: %w", err)
	}
	return user, nil
}

// UsernameExists reports whether an account with the localpart exists.
func (s *SQLiteStore) UsernameExists(ctx context.Context, localpart string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM accounts WHERE localpart = ?", localpart).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}
	return count > 0, nil
}

// PasswordHash returns the stored password hash for the user.
func (s *SQLiteStore) PasswordHash(ctx context.Context, user id.UserID) (PasswordHash, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT password_hash FROM accounts WHERE localpart = ? AND domain = ?",
		user.Localpart, user.Domain).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetching password hash: %w", err)
	}
	return PasswordHash(hash), nil
}

// OneTimeCodeValid consumes code for the user when it is live and unused.
func (s *SQLiteStore) OneTimeCodeValid(ctx context.Context, user id.UserID, code string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE one_time_codes SET used_at = ?
		 WHERE localpart = ? AND domain = ? AND code = ?
		   AND used_at IS NULL AND expires_at > ?`,
		time.Now().UTC(), user.Localpart, user.Domain, code, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("checking one-time code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking one-time code: %w", err)
	}
	return n > 0, nil
}

// AddOneTimeCode stores a single-use code for the user. Not part of the
// Store interface; used by provisioning tooling and tests.
func (s *SQLiteStore) AddOneTimeCode(ctx context.Context, user id.UserID, code string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO one_time_codes (localpart, domain, code, expires_at) VALUES (?, ?, ?, ?)",
		user.Localpart, user.Domain, code, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("storing one-time code: %w", err)
	}
	return nil
}

// LinkThirdParty associates a third-party address with the user. Not part
// of the Store interface; used by provisioning tooling and tests.
func (s *SQLiteStore) LinkThirdParty(ctx context.Context, user id.UserID, medium, address string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO threepids (medium, address, localpart, domain, created_at) VALUES (?, ?, ?, ?, ?)",
		strings.ToLower(medium), address, user.Localpart, user.Domain, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("linking third-party id: %w", err)
	}
	return nil
}

// DeviceExists reports whether the device is registered.
func (s *SQLiteStore) DeviceExists(ctx context.Context, device id.DeviceID) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM devices WHERE id = ?", string(device)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking device: %w", err)
	}
	return count > 0, nil
}

// UpsertDevice registers the device or refreshes its last-seen time.
func (s *SQLiteStore) UpsertDevice(ctx context.Context, user id.UserID, device id.DeviceID, displayName string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (id, localpart, domain, display_name, created_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			last_seen_at = excluded.last_seen_at,
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE devices.display_name END`,
		string(device), user.Localpart, user.Domain, displayName, now, now)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

// RemoveDevice unregisters one device belonging to the user.
func (s *SQLiteStore) RemoveDevice(ctx context.Context, device id.DeviceID, user id.UserID) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM devices WHERE id = ? AND localpart = ? AND domain = ?",
		string(device), user.Localpart, user.Domain)
	if err != nil {
		return fmt.Errorf("removing device: %w", err)
	}
	return nil
}

// RemoveAllDevices unregisters every device belonging to the user.
func (s *SQLiteStore) RemoveAllDevices(ctx context.Context, user id.UserID) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM devices WHERE localpart = ? AND domain = ?",
		user.Localpart, user.Domain)
	if err != nil {
		return fmt.Errorf("removing devices: %w", err)
	}
	return nil
}

// CreateAccount persists a new account.
func (s *SQLiteStore) CreateAccount(ctx context.Context, user id.UserID, hash PasswordHash, kind string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (localpart, domain, password_hash, kind, created_at) VALUES (?, ?, ?, ?, ?)",
		user.Localpart, user.Domain, string(hash), kind, time.Now().UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicate
		}
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// DisplayName returns the account's display name.
func (s *SQLiteStore) DisplayName(ctx context.Context, user id.UserID) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT display_name FROM accounts WHERE localpart = ? AND domain = ?",
		user.Localpart, user.Domain).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetching display name: %w", err)
	}
	return name, nil
}

// SetDisplayName updates the account's display name.
func (s *SQLiteStore) SetDisplayName(ctx context.Context, user id.UserID, name string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET display_name = ? WHERE localpart = ? AND domain = ?",
		name, user.Localpart, user.Domain)
	if err != nil {
		return fmt.Errorf("setting display name: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting display name: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
