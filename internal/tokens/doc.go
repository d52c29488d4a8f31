// ABOUTME: Signed token codec for bearer credentials and interactive-auth checkpoints
// ABOUTME: ES256 JWTs with a kind discriminator separating auth and session tokens

// Package tokens builds, signs, and verifies the two credential kinds the
// homeserver issues.
//
// An auth token is the terminal bearer credential handed out after a
// successful login. A session token is a checkpoint of an in-progress
// interactive authentication: the full list of completed stages travels
// inside the signed token, so the server keeps no negotiation state of its
// own.
//
// Both kinds are ES256-signed JWTs sharing one claim set with a kind
// discriminator. Decode sites are separate per kind, and a token of one kind
// is never accepted where the other is required. Every decode failure is
// reported as the single ErrInvalidToken so callers cannot leak which
// verification step failed.
package tokens
