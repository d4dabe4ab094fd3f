package auth

import "context"

type identityKey struct{}

// WithIdentity stores the authenticated identity in the context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext extracts the authenticated identity, reporting whether
// one is present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// AccountIDFromContext returns the caller's ledger account id, or empty when
// the request was unauthenticated.
func AccountIDFromContext(ctx context.Context) string {
	identity, _ := IdentityFromContext(ctx)
	return identity.AccountID
}

// RoleFromContext returns the caller's role, or empty when the request was
// unauthenticated.
func RoleFromContext(ctx context.Context) Role {
	identity, _ := IdentityFromContext(ctx)
	return identity.Role
}
