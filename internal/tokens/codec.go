// ABOUTME: Codec for building, signing and verifying homeserver tokens
// ABOUTME: ES256 with issuer check, expiry enforcement and 5s clock leeway

package tokens

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/squall-im/squall/internal/id"
)

// ErrInvalidToken is the single error returned for every decode failure:
// bad signature, wrong issuer, expired, malformed, or wrong kind. Callers
// must not surface anything more specific to clients.
var ErrInvalidToken = errors.New("invalid token")

// leeway absorbs small clock skew between signer and verifier.
const leeway = 5 * time.Second

// Codec signs and verifies auth and session tokens with the server's P-256
// keypair. A Codec is immutable after construction and safe for concurrent
// use.
type Codec struct {
	key        *ecdsa.PrivateKey
	issuer     string
	authTTL    time.Duration
	sessionTTL time.Duration
}

// NewCodec returns a codec signing with key and stamping issuer into every
// token. authTTL and sessionTTL bound the lifetime of the two token kinds.
func NewCodec(key *ecdsa.PrivateKey, issuer string, authTTL, sessionTTL time.Duration) *Codec {
	return &Codec{key: key, issuer: issuer, authTTL: authTTL, sessionTTL: sessionTTL}
}

// issuedAt returns the current time, floored at the epoch so a clock reading
// before it can never produce a negative token lifetime.
func issuedAt() time.Time {
	now := time.Now()
	if now.Unix() < 0 {
		return time.Unix(0, 0)
	}
	return now
}

// newTokenID returns a fresh random 32-bit token id in decimal form.
func newTokenID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand only fails when the platform source is broken
		panic("tokens: reading random source: " + err.Error())
	}
	return strconv.FormatUint(uint64(binary.BigEndian.Uint32(b[:])), 10)
}

// Auth builds the claims for a terminal bearer credential bound to the
// given user and device.
func (c *Codec) Auth(user id.UserID, device id.DeviceID) Claims {
	now := issuedAt()
	return Claims{
		Kind:      KindAuth,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.authTTL)),
		ID:        newTokenID(),
		Subject:   user,
		DeviceID:  device,
	}
}

// Session builds the claims for an interactive-auth checkpoint carrying the
// stages completed so far.
func (c *Codec) Session(user id.UserID, device id.DeviceID, completed []id.LoginType) Claims {
	now := issuedAt()
	return Claims{
		Kind:      KindSession,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.sessionTTL)),
		Subject:   user,
		DeviceID:  device,
		Completed: completed,
	}
}

// Sign serializes and signs the claims into a compact token string.
func (c *Codec) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(c.key)
}

// decode verifies the signature, issuer and expiry of a token string and
// returns the claim set when it carries the wanted kind.
func (c *Codec) decode(raw string, want Kind) (*Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (interface{}, error) { return &c.key.PublicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid || claims.Kind != want {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// DecodeAuth parses a terminal bearer credential.
func (c *Codec) DecodeAuth(raw string) (*AuthToken, error) {
	claims, err := c.decode(raw, KindAuth)
	if err != nil {
		return nil, err
	}
	return &AuthToken{Claims: *claims}, nil
}

// DecodeSession parses an interactive-auth checkpoint.
func (c *Codec) DecodeSession(raw string) (*SessionToken, error) {
	claims, err := c.decode(raw, KindSession)
	if err != nil {
		return nil, err
	}
	return &SessionToken{Claims: *claims}, nil
}
