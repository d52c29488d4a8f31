// ABOUTME: HTTP middleware enforcing bearer auth tokens on protected endpoints
// ABOUTME: Verifies signature, then device liveness, then injects the identity

package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/squall-im/squall/internal/store"
	"github.com/squall-im/squall/internal/tokens"
)

// unknownTokenBody is the uniform rejection for every token failure. It is
// deliberately unspecific: bad signature, expiry, wrong kind and a dead
// device all look the same to the client.
const unknownTokenBody = `{"errcode":"M_UNKNOWN_TOKEN","error":"Unrecognised access token."}`

// extractAccessToken pulls the candidate token string from the request:
// the Authorization bearer header first, then the access_token query
// parameter.
func extractAccessToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return token
		}
	}
	return r.URL.Query().Get("access_token")
}

// rejectUnknownToken writes the uniform 401 rejection.
func rejectUnknownToken(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(unknownTokenBody))
}

// Middleware creates an HTTP middleware that authenticates every request
// with a bearer auth token.
//
// Signature, issuer and expiry are verified first; only then is storage
// asked whether the token's device is still registered, because a valid
// signature does not prove the session has not since been logged out. A
// storage error during that check rejects the request. The wrapped handler
// never runs on any failure.
func Middleware(codec *tokens.Codec, st store.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractAccessToken(r)
			if raw == "" {
				rejectUnknownToken(w)
				return
			}

			token, err := codec.DecodeAuth(raw)
			if err != nil {
				rejectUnknownToken(w)
				return
			}

			alive, err := st.DeviceExists(r.Context(), token.DeviceID)
			if err != nil {
				// Fail closed: an unreachable store must not admit anyone.
				logger.Error("device liveness check failed", "error", err)
				rejectUnknownToken(w)
				return
			}
			if !alive {
				rejectUnknownToken(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
		})
	}
}
