// ABOUTME: Unit tests for user ids, identifiers, and flow matching
// ABOUTME: Covers parsing, JSON round-trips, and exact-match flow semantics

package id

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseUserID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    UserID
		wantErr bool
	}{
		{
			name: "full id",
			raw:  "alice:example.com",
			want: UserID{Localpart: "alice", Domain: "example.com"},
		},
		{
			name: "bare localpart gets default domain",
			raw:  "alice",
			want: UserID{Localpart: "alice", Domain: "example.com"},
		},
		{
			name: "allowed punctuation",
			raw:  "a.b_c=d/e-f:example.com",
			want: UserID{Localpart: "a.b_c=d/e-f", Domain: "example.com"},
		},
		{
			name:    "uppercase rejected",
			raw:     "Alice:example.com",
			wantErr: true,
		},
		{
			name:    "empty localpart",
			raw:     ":example.com",
			wantErr: true,
		},
		{
			name:    "space rejected",
			raw:     "a lice",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUserID(tt.raw, "example.com")
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidUserID) {
					t.Fatalf("ParseUserID(%q) error = %v, want ErrInvalidUserID", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUserID(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseUserID(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseUserID_NoDefaultDomain(t *testing.T) {
	_, err := ParseUserID("alice", "")
	if !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("ParseUserID() error = %v, want ErrInvalidUserID", err)
	}
}

func TestUserID_JSONRoundTrip(t *testing.T) {
	u := UserID{Localpart: "alice", Domain: "example.com"}

	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"alice:example.com"` {
		t.Errorf("Marshal() = %s, want %q", data, "alice:example.com")
	}

	var got UserID
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got != u {
		t.Errorf("Unmarshal() = %v, want %v", got, u)
	}
}

func TestUserID_UnmarshalBareLocalpart(t *testing.T) {
	var got UserID
	if err := json.Unmarshal([]byte(`"alice"`), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Localpart != "alice" || got.Domain != "" {
		t.Errorf("Unmarshal() = %v, want bare localpart with empty domain", got)
	}

	filled := got.WithDefaultDomain("example.com")
	if filled.Domain != "example.com" {
		t.Errorf("WithDefaultDomain() = %v, want domain example.com", filled)
	}
}

func TestNewDeviceID_Unique(t *testing.T) {
	a := NewDeviceID()
	b := NewDeviceID()
	if a == "" || b == "" {
		t.Fatal("NewDeviceID() returned empty id")
	}
	if a == b {
		t.Errorf("NewDeviceID() returned duplicate id %q", a)
	}
}

func TestUnmarshalIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    UserIdentifier
		wantErr bool
	}{
		{
			name: "user id",
			raw:  `{"type":"m.id.user","user":"alice:example.com"}`,
			want: UserIDIdentifier{User: UserID{Localpart: "alice", Domain: "example.com"}},
		},
		{
			name: "bare user localpart",
			raw:  `{"type":"m.id.user","user":"alice"}`,
			want: UserIDIdentifier{User: UserID{Localpart: "alice"}},
		},
		{
			name: "thirdparty",
			raw:  `{"type":"m.id.thirdparty","medium":"email","address":"alice@example.com"}`,
			want: ThirdPartyIdentifier{Medium: "email", Address: "alice@example.com"},
		},
		{
			name: "phone",
			raw:  `{"type":"m.id.phone","country":"GB","phone":"07700900000"}`,
			want: PhoneIdentifier{Country: "GB", Phone: "07700900000"},
		},
		{
			name:    "unknown type",
			raw:     `{"type":"m.id.sorcery"}`,
			wantErr: true,
		},
		{
			name:    "thirdparty missing address",
			raw:     `{"type":"m.id.thirdparty","medium":"email"}`,
			wantErr: true,
		},
		{
			name:    "phone missing number",
			raw:     `{"type":"m.id.phone","country":"GB"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalIdentifier([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("UnmarshalIdentifier() should have returned an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("UnmarshalIdentifier() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("UnmarshalIdentifier() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestMarshalIdentifier_RoundTrip(t *testing.T) {
	idents := []UserIdentifier{
		UserIDIdentifier{User: UserID{Localpart: "alice", Domain: "example.com"}},
		ThirdPartyIdentifier{Medium: "email", Address: "alice@example.com"},
		PhoneIdentifier{Country: "GB", Phone: "07700900000"},
	}

	for _, ident := range idents {
		data, err := MarshalIdentifier(ident)
		if err != nil {
			t.Fatalf("MarshalIdentifier(%#v) error = %v", ident, err)
		}
		got, err := UnmarshalIdentifier(data)
		if err != nil {
			t.Fatalf("UnmarshalIdentifier(%s) error = %v", data, err)
		}
		if got != ident {
			t.Errorf("round trip = %#v, want %#v", got, ident)
		}
	}
}

func TestFlowsContain(t *testing.T) {
	flows := []InteractiveFlow{
		{Stages: []LoginType{LoginTypePassword}},
		{Stages: []LoginType{LoginTypePassword, LoginTypeToken}},
	}

	tests := []struct {
		name   string
		stages []LoginType
		want   bool
	}{
		{
			name:   "single stage flow",
			stages: []LoginType{LoginTypePassword},
			want:   true,
		},
		{
			name:   "two stage flow",
			stages: []LoginType{LoginTypePassword, LoginTypeToken},
			want:   true,
		},
		{
			name:   "prefix is not complete",
			stages: nil,
			want:   false,
		},
		{
			name:   "wrong order",
			stages: []LoginType{LoginTypeToken, LoginTypePassword},
			want:   false,
		},
		{
			name:   "superset does not match",
			stages: []LoginType{LoginTypePassword, LoginTypeToken, LoginTypePassword},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FlowsContain(flows, tt.stages); got != tt.want {
				t.Errorf("FlowsContain(%v) = %v, want %v", tt.stages, got, tt.want)
			}
		})
	}
}

func TestLoginType_Valid(t *testing.T) {
	if !LoginTypePassword.Valid() || !LoginTypeToken.Valid() {
		t.Error("known stage kinds should be valid")
	}
	if LoginType("m.login.sso").Valid() {
		t.Error("unknown stage kind should not be valid")
	}
}
