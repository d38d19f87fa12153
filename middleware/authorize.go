package middleware

import (
	"context"
	"net/http"
)

// RoleChecker reports current role membership. *otpgate.Engine implements it.
type RoleChecker interface {
	HasAnyRole(ctx context.Context, userID string, roles ...string) (bool, error)
}

// Authorize admits requests whose user's resolved role is one of roles. It must run
// after [Guard]. The role is looked up on every request instead of trusting the
// claim, so revocation applies before the access token expires.
func Authorize(checker RoleChecker, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || checker == nil {
				reject(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			allowed, err := checker.HasAnyRole(r.Context(), claims.UserID, roles...)
			if err != nil {
				reject(w, r, http.StatusServiceUnavailable, "service unavailable")
				return
			}
			if !allowed {
				reject(w, r, http.StatusForbidden, "access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
