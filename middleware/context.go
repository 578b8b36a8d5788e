package middleware

import "context"

type contextKey string

const identityKey contextKey = "auth.identity"

// Identity is the authenticated caller, taken from the token claims.
type Identity struct {
	AccountID  int
	TenantID   int
	Role       Role
	Email      string
	CustomerID *int
}

// IsCustomer reports whether the caller only sees its own customer data.
func (i Identity) IsCustomer() bool {
	return i.Role == RoleCustomer
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller stored by AuthMiddleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
