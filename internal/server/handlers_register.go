// ABOUTME: Registration handlers guarded by interactive authentication
// ABOUTME: Account creation happens only after a configured flow completes

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/squall-im/squall/internal/auth"
	"github.com/squall-im/squall/internal/id"
	"github.com/squall-im/squall/internal/store"
	"github.com/squall-im/squall/internal/tokens"
)

// registerRequest is the POST /register body.
type registerRequest struct {
	Auth                     json.RawMessage `json:"auth,omitempty"`
	Username                 string          `json:"username"`
	Password                 string          `json:"password"`
	DeviceID                 string          `json:"device_id"`
	InitialDeviceDisplayName string          `json:"initial_device_display_name"`
	InhibitLogin             bool            `json:"inhibit_login"`
	Kind                     string          `json:"kind"`
}

// uiaBody is the 401 re-prompt sent while interactive auth is incomplete.
type uiaBody struct {
	ErrCode   string               `json:"errcode,omitempty"`
	Error     string               `json:"error,omitempty"`
	Completed []id.LoginType       `json:"completed"`
	Flows     []id.InteractiveFlow `json:"flows"`
	Params    map[id.LoginType]any `json:"params"`
	Session   string               `json:"session"`
}

// registerResponse is the successful POST /register body. AccessToken and
// DeviceID are omitted when login was inhibited.
type registerResponse struct {
	UserID      id.UserID      `json:"user_id"`
	AccessToken string         `json:"access_token,omitempty"`
	DeviceID    id.DeviceID    `json:"device_id,omitempty"`
	WellKnown   *discoveryInfo `json:"well_known,omitempty"`
}

// guestLocalpart generates a localpart for accounts registered without a
// username.
func guestLocalpart() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// handleRegister registers a new account.
//
// Regular registrations must complete an interactive-auth flow first; the
// negotiation progress round-trips in the signed session token inside the
// auth field. Guest registrations skip the negotiation and receive a
// passwordless account.
//
// POST /_matrix/client/r0/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeNotJSON, "Request did not contain valid JSON.")
		return
	}

	kind := req.Kind
	if q := r.URL.Query().Get("kind"); q != "" {
		kind = q
	}
	if strings.EqualFold(kind, store.AccountKindGuest) {
		s.registerGuest(w, r)
		return
	}

	localpart := req.Username
	if localpart == "" {
		localpart = guestLocalpart()
	}
	if !id.ValidLocalpart(localpart) {
		writeError(w, http.StatusBadRequest, errCodeInvalidUsername, "Invalid username.")
		return
	}
	user := id.UserID{Localpart: localpart, Domain: s.cfg.Server.Hostname}

	device := id.DeviceID(req.DeviceID)
	if device == "" {
		device = id.NewDeviceID()
	}

	session, challenge, ok := s.parseUIA(w, req.Auth)
	if !ok {
		return
	}

	done, prompt, err := s.interactive.Advance(r.Context(), s.store, user, device, session, challenge)
	if err != nil {
		writeStorageError(w, s.logger, err)
		return
	}
	if !done {
		body := uiaBody{
			Completed: prompt.Completed,
			Flows:     prompt.Flows,
			Params:    prompt.Params,
			Session:   prompt.Session,
		}
		if prompt.Failed {
			body.ErrCode = errCodeForbidden
			body.Error = challengeFailedMessage
		}
		writeJSON(w, http.StatusUnauthorized, body)
		return
	}

	var hash store.PasswordHash
	if req.Password != "" {
		hash, err = store.HashPassword(req.Password)
		if err != nil {
			s.logger.Error("hashing password", "error", err)
			writeError(w, http.StatusInternalServerError, errCodeUnknown, "An unknown error has occurred.")
			return
		}
	}

	err = s.store.CreateAccount(r.Context(), user, hash, store.AccountKindUser)
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, http.StatusBadRequest, errCodeUserInUse, "Desired user ID is already taken.")
		return
	}
	if err != nil {
		writeStorageError(w, s.logger, err)
		return
	}

	if req.InhibitLogin {
		writeJSON(w, http.StatusOK, registerResponse{UserID: user})
		return
	}
	s.finishRegistration(w, r, user, device, req.InitialDeviceDisplayName)
}

// parseUIA decodes the auth field of a registration request into the
// session token and challenge it carries. Writes the error response and
// returns ok=false when the field is malformed or the session token does
// not verify.
func (s *Server) parseUIA(w http.ResponseWriter, raw json.RawMessage) (*tokens.SessionToken, auth.Challenge, bool) {
	if len(raw) == 0 {
		return nil, nil, true
	}

	var wire struct {
		Type    string `json:"type"`
		Session string `json:"session"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		writeError(w, http.StatusBadRequest, errCodeBadJSON, "Malformed auth field.")
		return nil, nil, false
	}

	var session *tokens.SessionToken
	if wire.Session != "" {
		var err error
		session, err = s.codec.DecodeSession(wire.Session)
		if err != nil {
			writeError(w, http.StatusUnauthorized, errCodeUnknownToken, "Unrecognised access token.")
			return nil, nil, false
		}
	}

	var challenge auth.Challenge
	if wire.Type != "" {
		var err error
		challenge, err = auth.UnmarshalChallenge(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errCodeBadJSON, "Malformed auth field.")
			return nil, nil, false
		}
	}
	return session, challenge, true
}

// registerGuest creates a passwordless account without interactive auth.
func (s *Server) registerGuest(w http.ResponseWriter, r *http.Request) {
	user := id.UserID{Localpart: guestLocalpart(), Domain: s.cfg.Server.Hostname}
	if err := s.store.CreateAccount(r.Context(), user, "", store.AccountKindGuest); err != nil {
		writeStorageError(w, s.logger, err)
		return
	}
	s.finishRegistration(w, r, user, id.NewDeviceID(), "")
}

// finishRegistration registers the device and answers with a fresh bearer
// token.
func (s *Server) finishRegistration(w http.ResponseWriter, r *http.Request, user id.UserID, device id.DeviceID, displayName string) {
	if err := s.store.UpsertDevice(r.Context(), user, device, displayName); err != nil {
		writeStorageError(w, s.logger, err)
		return
	}
	accessToken, err := s.codec.Sign(s.codec.Auth(user, device))
	if err != nil {
		s.logger.Error("signing auth token", "error", err)
		writeError(w, http.StatusInternalServerError, errCodeUnknown, "An unknown error has occurred.")
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{
		UserID:      user,
		AccessToken: accessToken,
		DeviceID:    device,
		WellKnown:   &discoveryInfo{Homeserver: homeserverInfo{BaseURL: s.cfg.Server.BaseURL}},
	})
}

// handleUsernameAvailable checks whether a localpart is still free.
//
// GET /_matrix/client/r0/register/available?username=...
func (s *Server) handleUsernameAvailable(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, errCodeMissingParam, "Missing username parameter.")
		return
	}
	if !id.ValidLocalpart(username) {
		writeError(w, http.StatusBadRequest, errCodeInvalidUsername, "Invalid username.")
		return
	}
	taken, err := s.store.UsernameExists(r.Context(), username)
	if err != nil {
		writeStorageError(w, s.logger, err)
		return
	}
	if taken {
		writeError(w, http.StatusBadRequest, errCodeUserInUse, "Desired user ID is already taken.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": true})
}
