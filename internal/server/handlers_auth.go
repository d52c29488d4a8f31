// ABOUTME: Login, logout and logout-all handlers
// ABOUTME: Single-stage login verifies a challenge and issues a bearer token

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/squall-im/squall/internal/auth"
	"github.com/squall-im/squall/internal/id"
	"github.com/squall-im/squall/internal/store"
)

// loginFlowsBody is the response of GET /login.
type loginFlowsBody struct {
	Flows []id.LoginFlow `json:"flows"`
}

// loginRequest is the decoded POST /login body. The challenge fields arrive
// flattened alongside the identifier.
type loginRequest struct {
	Challenge                auth.Challenge
	Identifier               id.UserIdentifier
	DeviceID                 string
	InitialDeviceDisplayName string
}

func (req *loginRequest) UnmarshalJSON(data []byte) error {
	var wire struct {
		Identifier               json.RawMessage `json:"identifier"`
		DeviceID                 string          `json:"device_id"`
		InitialDeviceDisplayName string          `json:"initial_device_display_name"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if len(wire.Identifier) == 0 {
		return errors.New("missing identifier")
	}
	ident, err := id.UnmarshalIdentifier(wire.Identifier)
	if err != nil {
		return err
	}
	challenge, err := auth.UnmarshalChallenge(data)
	if err != nil {
		return err
	}
	req.Challenge = challenge
	req.Identifier = ident
	req.DeviceID = wire.DeviceID
	req.InitialDeviceDisplayName = wire.InitialDeviceDisplayName
	return nil
}

// homeserverInfo advertises the homeserver base URL to clients.
type homeserverInfo struct {
	BaseURL string `json:"base_url"`
}

// discoveryInfo is the well_known discovery block.
type discoveryInfo struct {
	Homeserver homeserverInfo `json:"m.homeserver"`
}

// loginResponse is the successful POST /login body.
type loginResponse struct {
	UserID      id.UserID     `json:"user_id"`
	AccessToken string        `json:"access_token"`
	DeviceID    id.DeviceID   `json:"device_id"`
	WellKnown   discoveryInfo `json:"well_known"`
}

// handleLoginInfo advertises the supported login flows so clients can pick
// one before authenticating.
//
// GET /_matrix/client/r0/login
func (s *Server) handleLoginInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, loginFlowsBody{Flows: s.cfg.Auth.LoginFlows()})
}

// handleLogin performs single-stage login: resolve the identifier, verify
// the challenge, register the device and issue a bearer token.
//
// POST /_matrix/client/r0/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeBadJSON, "Malformed login request.")
		return
	}
	if ident, ok := req.Identifier.(id.UserIDIdentifier); ok {
		req.Identifier = id.UserIDIdentifier{User: ident.User.WithDefaultDomain(s.cfg.Server.Hostname)}
	}

	user, err := s.store.ResolveUser(r.Context(), req.Identifier)
	if errors.Is(err, store.ErrNotFound) {
		// An unknown account must look identical to a failed challenge.
		s.metrics.recordLogin("failure")
		writeError(w, http.StatusForbidden, errCodeForbidden, challengeFailedMessage)
		return
	}
	if err != nil {
		writeStorageError(w, s.logger, err)
		return
	}

	device := id.DeviceID(req.DeviceID)
	if device == "" {
		device = id.NewDeviceID()
	}

	stage, ok, err := req.Challenge.Passes(r.Context(), s.store, user, device)
	if err != nil {
		writeStorageError(w, s.logger, err)
		return
	}
	if !ok || !s.cfg.Auth.AllowsLoginType(stage) {
		s.metrics.recordLogin("failure")
		writeError(w, http.StatusForbidden, errCodeForbidden, challengeFailedMessage)
		return
	}

	if err := s.store.UpsertDevice(r.Context(), user, device, req.InitialDeviceDisplayName); err != nil {
		writeStorageError(w, s.logger, err)
		return
	}

	accessToken, err := s.codec.Sign(s.codec.Auth(user, device))
	if err != nil {
		s.logger.Error("signing auth token", "error", err)
		writeError(w, http.StatusInternalServerError, errCodeUnknown, "An unknown error has occurred.")
		return
	}

	s.metrics.recordLogin("success")
	writeJSON(w, http.StatusOK, loginResponse{
		UserID:      user,
		AccessToken: accessToken,
		DeviceID:    device,
		WellKnown:   discoveryInfo{Homeserver: homeserverInfo{BaseURL: s.cfg.Server.BaseURL}},
	})
}

// handleLogout invalidates the current device registration, which leaves
// the presented token unable to pass the liveness check.
//
// POST /_matrix/client/r0/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := auth.MustFromContext(r.Context())
	if err := s.store.RemoveDevice(r.Context(), token.DeviceID, token.Subject); err != nil {
		writeStorageError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// handleLogoutAll removes every device belonging to the authenticated user.
//
// POST /_matrix/client/r0/logout/all
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	token := auth.MustFromContext(r.Context())
	if err := s.store.RemoveAllDevices(r.Context(), token.Subject); err != nil {
		writeStorageError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}
