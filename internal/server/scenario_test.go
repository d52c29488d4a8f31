// ABOUTME: End-to-end registration scenarios through the full router
// ABOUTME: Exercises the interactive-auth negotiation from prompt to account

package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squall-im/squall/internal/id"
)

// TestRegisterScenario walks the complete interactive registration
// negotiation: the first request gets the 401 prompt with a session token,
// the second satisfies the token stage and creates the account, and the
// issued credential immediately works on a protected endpoint.
func TestRegisterScenario(t *testing.T) {
	s, st := newTestServer(t, nil)
	newUser := id.UserID{Localpart: "bob", Domain: "example.com"}
	st.AddOneTimeCode(newUser, "invite-123")

	// Round 1: no auth submitted, the server prompts with the flows.
	code, prompt := doJSON(t, s, http.MethodPost, "/_matrix/client/r0/register", "",
		`{"username": "bob", "password": "hunter2"}`)
	require.Equal(t, http.StatusUnauthorized, code)
	assert.NotContains(t, prompt, "errcode", "a plain prompt is not a failure")
	assert.Empty(t, prompt["completed"])
	require.NotEmpty(t, prompt["session"])
	flows, ok := prompt["flows"].([]any)
	require.True(t, ok)
	require.Len(t, flows, 1)

	// Round 2: satisfy the token stage carrying the prompt's session.
	code, body := doJSON(t, s, http.MethodPost, "/_matrix/client/r0/register", "", fmt.Sprintf(`{
		"auth": {"type": "m.login.token", "token": "invite-123", "session": %q},
		"username": "bob",
		"password": "hunter2",
		"device_id": "laptop"
	}`, prompt["session"]))
	require.Equal(t, http.StatusOK, code, "body: %v", body)
	assert.Equal(t, "bob:example.com", body["user_id"])
	assert.Equal(t, "laptop", body["device_id"])
	require.NotEmpty(t, body["access_token"])

	// The issued token works immediately.
	code, whoami := doJSON(t, s, http.MethodGet, "/_matrix/client/r0/account/whoami", body["access_token"].(string), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "bob:example.com", whoami["user_id"])

	// The chosen password works for login afterwards.
	code, login := doJSON(t, s, http.MethodPost, "/_matrix/client/r0/login", "",
		`{"type":"m.login.password","identifier":{"type":"m.id.user","user":"bob"},"password":"hunter2"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "bob:example.com", login["user_id"])
}

func TestRegister_FailedChallengeReprompts(t *testing.T) {
	s, _ := newTestServer(t, nil)

	code, prompt := doJSON(t, s, http.MethodPost, "/_matrix/client/r0/register", "",
		`{"username": "bob"}`)
	require.Equal(t, http.StatusUnauthorized, code)

	code, body := doJSON(t, s, http.MethodPost, "/_matrix/client/r0/register", "", fmt.Sprintf(`{
		"auth": {"type": "m.login.token", "token": "wrong", "session": %q},
		"username": "bob"
	}`, prompt["session"]))
	require.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "M_FORBIDDEN", body["errcode"], "a rejected challenge carries the error fields")
	assert.NotEmpty(t, body["session"], "the re-prompt still carries a session so the client can retry")
}

func TestRegister_InvalidUsername(t *testing.T) {
	s, _ := newTestServer(t, nil)

	code, body := doJSON(t, s, http.MethodPost, "/_matrix/client/r0/register", "",
		`{"username": "Bob Smith"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "M_INVALID_USERNAME", body["errcode"])
}

func TestRegister_DuplicateUsername(t *testing.T) {
	s, st := newTestServer(t, nil)
	st.AddAccount(testUser, "hunter2")
	st.AddOneTimeCode(testUser, "invite-123")

	code, prompt := doJSON(t, s, http.MethodPost, "/_matrix/client/r0/register", "",
		`{"username": "alice"}`)
	require.Equal(t, http.StatusUnauthorized, code)

	code, body := doJSON(t, s, http.MethodPost, "/_matrix/client/r0/register", "", fmt.Sprintf(`{
		"auth": {"type": "m.login.token", "token": "invite-123", "session": %q},
		"username": "alice"
	}`, prompt["session"]))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "M_USER_IN_USE", body["errcode"])
}

func TestRegister_TamperedSessionRejected(t *testing.T) {
	s, _ := newTestServer(t, nil)

	code, body := doJSON(t, s, http.MethodPost, "/_matrix/client/r0/register", "", `{
		"auth": {"type": "m.login.token", "token": "invite-123", "session": "not-a-real-session"},
		"username": "bob"
	}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "M_UNKNOWN_TOKEN", body["errcode"])
}

func TestRegister_InhibitLogin(t *testing.T) {
	s, st := newTestServer(t, nil)
	newUser := id.UserID{Localpart: "bob", Domain: "example.com"}
	st.AddOneTimeCode(newUser, "invite-123")

	code, prompt := doJSON(t, s, http.MethodPost, "/_matrix/client/r0/register", "",
		`{"username": "bob"}`)
	require.Equal(t, http.StatusUnauthorized, code)

	code, body := doJSON(t, s, http.MethodPost, "/_matrix/client/r0/register", "", fmt.Sprintf(`{
		"auth": {"type": "m.login.token", "token": "invite-123", "session": %q},
		"username": "bob",
		"inhibit_login": true
	}`, prompt["session"]))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "bob:example.com", body["user_id"])
	assert.NotContains(t, body, "access_token")
	assert.NotContains(t, body, "device_id")
	assert.Equal(t, 0, st.DeviceCount(newUser), "inhibited login must not register a device")
}

func TestRegister_Guest(t *testing.T) {
	s, st := newTestServer(t, nil)

	code, body := doJSON(t, s, http.MethodPost, "/_matrix/client/r0/register?kind=guest", "", `{}`)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, body["user_id"])
	require.NotEmpty(t, body["access_token"])

	// Guest tokens work on protected endpoints like any other.
	code, whoami := doJSON(t, s, http.MethodGet, "/_matrix/client/r0/account/whoami", body["access_token"].(string), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, body["user_id"], whoami["user_id"])

	// A guest account has no password to log in with.
	user, err := id.ParseUserID(body["user_id"].(string), "example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, st.DeviceCount(user), "guest registration must create a device")
	code, _ = doJSON(t, s, http.MethodPost, "/_matrix/client/r0/login", "", fmt.Sprintf(
		`{"type":"m.login.password","identifier":{"type":"m.id.user","user":%q},"password":"guess"}`, user.String()))
	assert.Equal(t, http.StatusForbidden, code)
}
