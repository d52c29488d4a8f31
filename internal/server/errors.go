// ABOUTME: Protocol error envelope and the errcode vocabulary
// ABOUTME: Helpers for writing JSON responses and errors

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Protocol error codes.
const (
	errCodeForbidden       = "M_FORBIDDEN"
	errCodeUnknownToken    = "M_UNKNOWN_TOKEN"
	errCodeBadJSON         = "M_BAD_JSON"
	errCodeNotJSON         = "M_NOT_JSON"
	errCodeNotFound        = "M_NOT_FOUND"
	errCodeLimitExceeded   = "M_LIMIT_EXCEEDED"
	errCodeUnknown         = "M_UNKNOWN"
	errCodeUserInUse       = "M_USER_IN_USE"
	errCodeInvalidUsername = "M_INVALID_USERNAME"
	errCodeInvalidParam    = "M_INVALID_PARAM"
	errCodeMissingParam    = "M_MISSING_PARAM"
	errCodeUnrecognized    = "M_UNRECOGNIZED"
)

// challengeFailedMessage is the single message for every authentication
// failure. Wrong credential and unknown account must read identically so
// accounts cannot be enumerated.
const challengeFailedMessage = "Authentication challenge failed."

// errorBody is the protocol error envelope.
type errorBody struct {
	ErrCode string `json:"errcode"`
	Error   string `json:"error"`
}

// writeJSON serializes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encoding response", "error", err)
	}
}

// writeError writes the protocol error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{ErrCode: code, Error: message})
}

// writeStorageError logs the backend detail and sends the generic envelope.
// Backend specifics never cross the wire.
func writeStorageError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("storage error", "error", err)
	writeError(w, http.StatusInternalServerError, errCodeUnknown, "An unknown error has occurred.")
}
