// ABOUTME: Account introspection, profile, and server discovery handlers
// ABOUTME: Covers whoami, display names, supported versions, and well-known

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/squall-im/squall/internal/auth"
	"github.com/squall-im/squall/internal/id"
	"github.com/squall-im/squall/internal/store"
)

// handleWhoami reports the user the presented token belongs to.
//
// GET /_matrix/client/r0/account/whoami
func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	token := auth.MustFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]id.UserID{"user_id": token.Subject})
}

// profileUser parses the userID path parameter, defaulting the domain to
// this server's hostname. Writes the error response and returns ok=false
// when the parameter is malformed.
func (s *Server) profileUser(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	raw := chi.URLParam(r, "userID")
	user, err := id.ParseUserID(raw, s.cfg.Server.Hostname)
	if err != nil {
		writeError(w, http.StatusBadRequest, errCodeInvalidParam, "Invalid user ID.")
		return id.UserID{}, false
	}
	return user, true
}

// handleGetDisplayName returns a user's display name.
//
// GET /_matrix/client/r0/profile/{userID}/displayname
func (s *Server) handleGetDisplayName(w http.ResponseWriter, r *http.Request) {
	user, ok := s.profileUser(w, r)
	if !ok {
		return
	}
	name, err := s.store.DisplayName(r.Context(), user)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, errCodeNotFound, "User does not exist.")
		return
	}
	if err != nil {
		writeStorageError(w, s.logger, err)
		return
	}
	body := map[string]string{}
	if name != "" {
		body["displayname"] = name
	}
	writeJSON(w, http.StatusOK, body)
}

// handleSetDisplayName updates a user's display name. Users may only set
// their own.
//
// PUT /_matrix/client/r0/profile/{userID}/displayname
func (s *Server) handleSetDisplayName(w http.ResponseWriter, r *http.Request) {
	user, ok := s.profileUser(w, r)
	if !ok {
		return
	}
	token := auth.MustFromContext(r.Context())
	if token.Subject != user {
		writeError(w, http.StatusForbidden, errCodeForbidden, "Cannot change another user's display name.")
		return
	}

	var req struct {
		DisplayName string `json:"displayname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeNotJSON, "Request did not contain valid JSON.")
		return
	}

	err := s.store.SetDisplayName(r.Context(), user, req.DisplayName)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, errCodeNotFound, "User does not exist.")
		return
	}
	if err != nil {
		writeStorageError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// handleVersions lists the client-server API versions this server speaks.
//
// GET /_matrix/client/versions
func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"versions": {"r0.6.0"}})
}

// handleWellKnown serves client discovery information.
//
// GET /.well-known/matrix/client
func (s *Server) handleWellKnown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, discoveryInfo{
		Homeserver: homeserverInfo{BaseURL: s.cfg.Server.BaseURL},
	})
}
