// ABOUTME: Claim set shared by auth and session tokens
// ABOUTME: Implements the jwt.Claims interface for golang-jwt parsing

package tokens

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/squall-im/squall/internal/id"
)

// Kind discriminates the two token kinds. It is part of the signed payload,
// so a session token can never pass for an auth token or vice versa.
type Kind string

const (
	// KindAuth marks a terminal bearer credential.
	KindAuth Kind = "auth"
	// KindSession marks an interactive-auth progress checkpoint.
	KindSession Kind = "session"
)

// Claims is the unsigned payload of both token kinds.
//
// ID is set on auth tokens only; it exists so individual tokens can be
// revoked in the future and is not yet checked against any revocation list.
// Completed is set on session tokens only and holds the stage kinds the
// client has already satisfied, in order.
type Claims struct {
	Kind      Kind             `json:"knd"`
	Issuer    string           `json:"iss"`
	IssuedAt  *jwt.NumericDate `json:"iat"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
	ID        string           `json:"jti,omitempty"`
	Subject   id.UserID        `json:"sub"`
	DeviceID  id.DeviceID      `json:"device_id"`
	Completed []id.LoginType   `json:"completed,omitempty"`
}

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c Claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c Claims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c Claims) GetSubject() (string, error)                  { return c.Subject.String(), nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }

// AuthToken is a decoded terminal bearer credential.
type AuthToken struct {
	Claims
}

// SessionToken is a decoded interactive-auth checkpoint.
type SessionToken struct {
	Claims
}

// IsComplete reports whether the token's completed stages exactly match one
// of the configured interactive flows.
func (t *SessionToken) IsComplete(flows []id.InteractiveFlow) bool {
	return id.FlowsContain(flows, t.Completed)
}
