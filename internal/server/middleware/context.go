package middleware

import (
	"context"

	"pkm-prototype/backend/internal/user/domain"
)

type contextKey struct{ name string }

var identityKey = contextKey{"identity"}

// Identity is the verified caller attached to a request by the Auth Gate.
type Identity struct {
	ID       int64       `json:"id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

// WithIdentity returns a context carrying id. Handlers read it via IdentityFrom.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity from context and true if set; otherwise zero, false.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(identityKey).(Identity)
	return v, ok
}
