// ABOUTME: UserIdentifier tagged union used to look up accounts at login
// ABOUTME: Wire forms are m.id.user, m.id.thirdparty and m.id.phone

package id

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Identifier wire type tags.
const (
	identifierTypeUser       = "m.id.user"
	identifierTypeThirdParty = "m.id.thirdparty"
	identifierTypePhone      = "m.id.phone"
)

// ErrInvalidIdentifier is returned when an identifier payload is malformed
// or carries an unknown type tag.
var ErrInvalidIdentifier = errors.New("invalid user identifier")

// UserIdentifier is the closed union of ways a client may name an account
// when logging in. An identifier is only ever used to look the account up;
// it is never trusted as a proven identity.
type UserIdentifier interface {
	isUserIdentifier()
}

// UserIDIdentifier names the account directly by user id.
type UserIDIdentifier struct {
	User UserID
}

// ThirdPartyIdentifier names the account by a linked third-party address,
// e.g. an email address.
type ThirdPartyIdentifier struct {
	Medium  string
	Address string
}

// PhoneIdentifier names the account by phone number with an ISO 3166-1
// alpha-2 country code.
type PhoneIdentifier struct {
	Country string
	Phone   string
}

func (UserIDIdentifier) isUserIdentifier()     {}
func (ThirdPartyIdentifier) isUserIdentifier() {}
func (PhoneIdentifier) isUserIdentifier()      {}

// identifierWire is the superset of fields across all identifier kinds.
type identifierWire struct {
	Type    string `json:"type"`
	User    string `json:"user,omitempty"`
	Medium  string `json:"medium,omitempty"`
	Address string `json:"address,omitempty"`
	Country string `json:"country,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// UnmarshalIdentifier decodes a wire identifier into its typed variant.
func UnmarshalIdentifier(data []byte) (UserIdentifier, error) {
	var w identifierWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}
	switch w.Type {
	case identifierTypeUser:
		var u UserID
		if err := u.UnmarshalJSON([]byte(fmt.Sprintf("%q", w.User))); err != nil {
			return nil, err
		}
		return UserIDIdentifier{User: u}, nil
	case identifierTypeThirdParty:
		if w.Medium == "" || w.Address == "" {
			return nil, fmt.Errorf("%w: thirdparty identifier needs medium and address", ErrInvalidIdentifier)
		}
		return ThirdPartyIdentifier{Medium: w.Medium, Address: w.Address}, nil
	case identifierTypePhone:
		if w.Phone == "" {
			return nil, fmt.Errorf("%w: phone identifier needs a phone number", ErrInvalidIdentifier)
		}
		return PhoneIdentifier{Country: w.Country, Phone: w.Phone}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidIdentifier, w.Type)
	}
}

// MarshalIdentifier encodes a typed identifier into its wire form.
func MarshalIdentifier(ident UserIdentifier) ([]byte, error) {
	switch v := ident.(type) {
	case UserIDIdentifier:
		return json.Marshal(identifierWire{Type: identifierTypeUser, User: v.User.String()})
	case ThirdPartyIdentifier:
		return json.Marshal(identifierWire{Type: identifierTypeThirdParty, Medium: v.Medium, Address: v.Address})
	case PhoneIdentifier:
		return json.Marshal(identifierWire{Type: identifierTypePhone, Country: v.Country, Phone: v.Phone})
	default:
		return nil, fmt.Errorf("%w: unhandled variant %T", ErrInvalidIdentifier, ident)
	}
}
