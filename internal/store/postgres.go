// ABOUTME: Postgres implementation of the Store interface using lib/pq
// ABOUTME: Same schema-on-open behavior as the SQLite store

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/squall-im/squall/internal/id"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore connects to the database named by dsn and creates the
// schema if it doesn't exist.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	logger := slog.Default().With("component", "store")

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &PostgresStore{db: db, logger: logger}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("Postgres store initialized")
	return s, nil
}

func (s *PostgresStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			localpart TEXT NOT NULL,
			domain TEXT NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'user',
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (localpart, domain)
		);

		CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			localpart TEXT NOT NULL,
			domain TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			last_seen_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_devices_user ON devices(localpart, domain);

		CREATE TABLE IF NOT EXISTS threepids (
			medium TEXT NOT NULL,
			address TEXT NOT NULL,
			localpart TEXT NOT NULL,
			domain TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (medium, address)
		);

		CREATE TABLE IF NOT EXISTS one_time_codes (
			localpart TEXT NOT NULL,
			domain TEXT NOT NULL,
			code TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			used_at TIMESTAMPTZ,
			PRIMARY KEY (localpart, domain, code)
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// ResolveUser looks up the account named by the identifier.
func (s *PostgresStore) ResolveUser(ctx context.Context, ident id.UserIdentifier) (id.UserID, error) {
	switch v := ident.(type) {
	case id.UserIDIdentifier:
		var one int
		err := s.db.QueryRowContext(ctx,
			"SELECT 1 FROM accounts WHERE localpart = $1 AND domain = $2",
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

func (s *PostgresStore) resolveThirdParty(ctx context.Context, medium, address string) (id.UserID, error) {
	var user id.UserID
	err := s.db.QueryRowContext(ctx,
		"SELECT localpart, domain FROM threepids WHERE medium = $1 AND address = $2",
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
func (s *PostgresStore) UsernameExists(ctx context.Context, localpart string) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM accounts WHERE localpart = $1", localpart).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}
	return count > 0, nil
}

// PasswordHash returns the stored password hash for the user.
func (s *PostgresStore) PasswordHash(ctx context.Context, user id.UserID) (PasswordHash, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT password_hash FROM accounts WHERE localpart = $1 AND domain = $2",
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
func (s *PostgresStore) OneTimeCodeValid(ctx context.Context, user id.UserID, code string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE one_time_codes SET used_at = NOW()
		 WHERE localpart = $1 AND domain = $2 AND code = $3
		   AND used_at IS NULL AND expires_at > NOW()`,
		user.Localpart, user.Domain, code)
	if err != nil {
		return false, fmt.Errorf("checking one-time code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking one-time code: %w", err)
	}
	return n > 0, nil
}

// DeviceExists reports whether the device is registered.
func (s *PostgresStore) DeviceExists(ctx context.Context, device id.DeviceID) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM devices WHERE id = $1", string(device)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking device: %w", err)
	}
	return count > 0, nil
}

// UpsertDevice registers the device or refreshes its last-seen time.
func (s *PostgresStore) UpsertDevice(ctx context.Context, user id.UserID, device id.DeviceID, displayName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (id, localpart, domain, display_name, created_at, last_seen_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 ON CONFLICT (id) DO UPDATE SET
			last_seen_at = NOW(),
			display_name = CASE WHEN EXCLUDED.display_name != '' THEN EXCLUDED.display_name ELSE devices.display_name END`,
		string(device), user.Localpart, user.Domain, displayName)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

// RemoveDevice unregisters one device belonging to the user.
func (s *PostgresStore) RemoveDevice(ctx context.Context, device id.DeviceID, user id.UserID) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM devices WHERE id = $1 AND localpart = $2 AND domain = $3",
		string(device), user.Localpart, user.Domain)
	if err != nil {
		return fmt.Errorf("removing device: %w", err)
	}
	return nil
}

// RemoveAllDevices unregisters every device belonging to the user.
func (s *PostgresStore) RemoveAllDevices(ctx context.Context, user id.UserID) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM devices WHERE localpart = $1 AND domain = $2",
		user.Localpart, user.Domain)
	if err != nil {
		return fmt.Errorf("removing devices: %w", err)
	}
	return nil
}

// CreateAccount persists a new account.
func (s *PostgresStore) CreateAccount(ctx context.Context, user id.UserID, hash PasswordHash, kind string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (localpart, domain, password_hash, kind, created_at) VALUES ($1, $2, $3, $4, NOW())",
		user.Localpart, user.Domain, string(hash), kind)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrDuplicate
		}
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// DisplayName returns the account's display name.
func (s *PostgresStore) DisplayName(ctx context.Context, user id.UserID) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT display_name FROM accounts WHERE localpart = $1 AND domain = $2",
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
func (s *PostgresStore) SetDisplayName(ctx context.Context, user id.UserID, name string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET display_name = $1 WHERE localpart = $2 AND domain = $3",
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

// AddOneTimeCode stores a single-use code for the user. Not part of the
// Store interface; used by provisioning tooling.
func (s *PostgresStore) AddOneTimeCode(ctx context.Context, user id.UserID, code string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO one_time_codes (localpart, domain, code, expires_at) VALUES ($1, $2, $3, $4)",
		user.Localpart, user.Domain, code, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("storing one-time code: %w", err)
	}
	return nil
}

// LinkThirdParty associates a third-party address with the user. Not part
// of the Store interface; used by provisioning tooling.
func (s *PostgresStore) LinkThirdParty(ctx context.Context, user id.UserID, medium, address string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO threepids (medium, address, localpart, domain, created_at) VALUES ($1, $2, $3, $4, NOW())",
		strings.ToLower(medium), address, user.Localpart, user.Domain)
	if err != nil {
		return fmt.Errorf("linking third-party id: %w", err)
	}
	return nil
}
