package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrAccountNotFound is returned by an AccountLookup for deleted accounts.
var ErrAccountNotFound = errors.New("account not found")

// AccountState is the stored state of an account at request time.
type AccountState struct {
	Role       Role
	CustomerID *int
	Active     bool
}

// AccountLookup loads the current state of the account behind a token.
type AccountLookup func(ctx context.Context, tenantID, accountID int) (AccountState, error)

// AuthMiddleware validates the bearer token and stores the caller identity
// in the request context. Browsers cannot set headers on websocket upgrades,
// so upgrade requests may pass the token as the "token" query parameter.
//
// With a non-nil lookup the role and customer come from the stored account
// instead of the claims, and tokens of deactivated or deleted accounts are
// rejected before they expire.
func AuthMiddleware(secret string, lookup AccountLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := ParseToken(extractToken(r), secret)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if lookup != nil {
				state, err := lookup(r.Context(), id.TenantID, id.AccountID)
				if errors.Is(err, ErrAccountNotFound) || (err == nil && !state.Active) {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				if err != nil {
					http.Error(w, "Internal server error", http.StatusInternalServerError)
					return
				}
				id.Role = state.Role
				id.CustomerID = state.CustomerID
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole rejects callers below the required role with 403.
func RequireRole(required Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !RoleAtLeast(id.Role, required) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoleFunc is RequireRole for a single handler function.
func RequireRoleFunc(required Role, fn http.HandlerFunc) http.Handler {
	return RequireRole(required)(fn)
}

func extractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.Fields(header)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}
