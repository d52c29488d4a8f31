// ABOUTME: UserID and DeviceID types with parsing, validation and JSON codecs
// ABOUTME: UserID serializes as "localpart:domain"; DeviceID is an opaque string

package id

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidUserID is returned when a user identifier cannot be parsed or
// contains characters outside the allowed localpart set.
var ErrInvalidUserID = errors.New("invalid user id")

// UserID identifies one account on one homeserver. It serializes as
// "localpart:domain". The domain half may be empty directly after JSON
// decoding; callers fill it in with the server hostname via WithDefaultDomain
// before the value is used for lookups.
type UserID struct {
	Localpart string
	Domain    string
}

// ParseUserID parses "localpart:domain" into a UserID. When the domain is
// omitted, defaultDomain is used instead. The localpart is validated against
// the allowed character set.
func ParseUserID(raw, defaultDomain string) (UserID, error) {
	local := raw
	domain := defaultDomain
	if idx := strings.IndexByte(raw, ':'); idx >= 0 {
		local = raw[:idx]
		domain = raw[idx+1:]
	}
	if !validLocalpart(local) {
		return UserID{}, fmt.Errorf("%w: %q", ErrInvalidUserID, raw)
	}
	if domain == "" {
		return UserID{}, fmt.Errorf("%w: missing domain in %q", ErrInvalidUserID, raw)
	}
	return UserID{Localpart: local, Domain: domain}, nil
}

// validLocalpart reports whether s is a non-empty string drawn from the
// stable localpart grammar: lowercase letters, digits, and ._=/- only.
func validLocalpart(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '=' || r == '/' || r == '-':
		default:
			return false
		}
	}
	return true
}

// ValidLocalpart reports whether s may be used as the localpart of a new
// account name.
func ValidLocalpart(s string) bool {
	return validLocalpart(s)
}

// String renders the identifier as "localpart:domain".
func (u UserID) String() string {
	return u.Localpart + ":" + u.Domain
}

// IsZero reports whether the identifier is entirely unset.
func (u UserID) IsZero() bool {
	return u.Localpart == "" && u.Domain == ""
}

// WithDefaultDomain returns the identifier with the domain filled in when it
// was omitted on input.
func (u UserID) WithDefaultDomain(domain string) UserID {
	if u.Domain == "" {
		u.Domain = domain
	}
	return u
}

// MarshalJSON implements json.Marshaler.
func (u UserID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON implements json.Unmarshaler. A bare localpart is accepted;
// the domain stays empty until WithDefaultDomain supplies it.
func (u *UserID) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	local := raw
	domain := ""
	if idx := strings.IndexByte(raw, ':'); idx >= 0 {
		local = raw[:idx]
		domain = raw[idx+1:]
	}
	if !validLocalpart(local) {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, raw)
	}
	u.Localpart = local
	u.Domain = domain
	return nil
}

// DeviceID identifies one client installation. It is opaque: the server
// accepts client-chosen values and generates one when absent.
type DeviceID string

// NewDeviceID returns a fresh random device identifier.
func NewDeviceID() DeviceID {
	return DeviceID(uuid.NewString())
}
