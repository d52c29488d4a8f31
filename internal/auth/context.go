// ABOUTME: Request-context plumbing for the verified auth token
// ABOUTME: Provides WithToken/FromContext for handlers behind the middleware

package auth

import (
	"context"

	"github.com/squall-im/squall/internal/tokens"
)

// tokenContextKey is the key type for storing the verified token in
// context.Context.
type tokenContextKey struct{}

// WithToken returns a new context with the verified auth token attached.
func WithToken(ctx context.Context, token *tokens.AuthToken) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// FromContext retrieves the verified auth token from the context, returning
// nil if not present.
func FromContext(ctx context.Context) *tokens.AuthToken {
	val := ctx.Value(tokenContextKey{})
	if val == nil {
		return nil
	}
	token, ok := val.(*tokens.AuthToken)
	if !ok {
		return nil
	}
	return token
}

// MustFromContext retrieves the verified auth token, panicking if absent.
// Only for handlers that are always registered behind Middleware.
func MustFromContext(ctx context.Context) *tokens.AuthToken {
	token := FromContext(ctx)
	if token == nil {
		panic("auth: token not found in context")
	}
	return token
}
