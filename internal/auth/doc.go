// ABOUTME: Authentication core: challenge verification, interactive auth, middleware
// ABOUTME: All negotiation progress lives in signed session tokens, never in memory

// Package auth implements the homeserver's authentication surface.
//
// # Challenges
//
// A Challenge is the credential material a client presents for one stage:
// a password or a one-time token. Challenge.Passes asks the store whether
// the material is valid and reports which stage kind it satisfied. A wrong
// credential and a missing account are indistinguishable to the caller so
// that clients cannot enumerate users.
//
// # Interactive authentication
//
// Sensitive operations such as registration are guarded by a multi-stage
// negotiation. Interactive.Advance applies one submitted challenge to the
// progress carried in a signed session token and either declares the
// negotiation complete or produces the re-prompt body for a 401 response,
// carrying a freshly signed session token. The server itself holds no
// negotiation state; the client round-trips the token each step.
//
// # Enforcement
//
// Middleware guards protected endpoints: it extracts a bearer token from
// the Authorization header or the access_token query parameter, decodes it
// as an auth token, confirms the bound device still exists in storage, and
// injects the verified token into the request context via WithToken. Any
// failure, including a storage error during the device check, rejects the
// request before the wrapped handler runs.
package auth
