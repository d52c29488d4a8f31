// ABOUTME: Challenge tagged union and per-stage credential verification
// ABOUTME: Wrong credential and missing account are indistinguishable to callers

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/squall-im/squall/internal/id"
	"github.com/squall-im/squall/internal/store"
)

// ErrInvalidChallenge is returned when a challenge payload is malformed or
// carries an unknown type tag.
var ErrInvalidChallenge = errors.New("invalid challenge")

// Challenge is the closed union of credential material for one stage.
//
// Passes reports the stage kind the challenge satisfied. ok is false both
// for a wrong credential and for an account that does not exist; only a
// storage backend failure is returned as an error.
type Challenge interface {
	Passes(ctx context.Context, st store.Store, user id.UserID, device id.DeviceID) (stage id.LoginType, ok bool, err error)
}

// PasswordChallenge carries the secret for the password stage.
type PasswordChallenge struct {
	Password string
}

// Passes compares the secret against the stored hash. The store owns the
// hashing scheme; this never sees or produces hashes of its own.
func (c PasswordChallenge) Passes(ctx context.Context, st store.Store, user id.UserID, device id.DeviceID) (id.LoginType, bool, error) {
	hash, err := st.PasswordHash(ctx, user)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("fetching password hash: %w", err)
	}
	if !hash.Matches(c.Password) {
		return "", false, nil
	}
	return id.LoginTypePassword, true, nil
}

// TokenChallenge carries a one-time code for the token stage.
type TokenChallenge struct {
	Token string
}

// Passes asks the store whether the code is currently valid for the user.
func (c TokenChallenge) Passes(ctx context.Context, st store.Store, user id.UserID, device id.DeviceID) (id.LoginType, bool, error) {
	ok, err := st.OneTimeCodeValid(ctx, user, c.Token)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("checking one-time code: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return id.LoginTypeToken, true, nil
}

// challengeWire is the flattened wire form of a challenge.
type challengeWire struct {
	Type     id.LoginType `json:"type"`
	Password string       `json:"password,omitempty"`
	Token    string       `json:"token,omitempty"`
}

// UnmarshalChallenge decodes the flattened wire form into a typed variant.
func UnmarshalChallenge(data []byte) (Challenge, error) {
	var w challengeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}
	switch w.Type {
	case id.LoginTypePassword:
		if w.Password == "" {
			return nil, fmt.Errorf("%w: password stage needs a password", ErrInvalidChallenge)
		}
		return PasswordChallenge{Password: w.Password}, nil
	case id.LoginTypeToken:
		if w.Token == "" {
			return nil, fmt.Errorf("%w: token stage needs a token", ErrInvalidChallenge)
		}
		return TokenChallenge{Token: w.Token}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidChallenge, w.Type)
	}
}

// StageOf returns the stage kind a challenge variant belongs to.
func StageOf(c Challenge) id.LoginType {
	switch c.(type) {
	case PasswordChallenge:
		return id.LoginTypePassword
	case TokenChallenge:
		return id.LoginTypeToken
	default:
		return ""
	}
}
