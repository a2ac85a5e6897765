// Package middleware provides net/http middleware for guarding routes with
// a warden.Manager. It composes with any chi or stdlib router.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/wardenauth/warden"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the verified claims stored by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*warden.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*warden.Claims)
	return claims, ok
}

// RequireAuth rejects requests without a valid bearer access token and puts
// the verified claims on the request context.
func RequireAuth(manager *warden.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := manager.VerifyAccess(r.Context(), raw)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole builds on RequireAuth: the token must carry the given role.
// Admins pass every role gate.
func RequireRole(manager *warden.Manager, role warden.Role) func(http.Handler) http.Handler {
	requireAuth := RequireAuth(manager)
	return func(next http.Handler) http.Handler {
		return requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			got := warden.Role(claims.Role)
			if got != role && got != warden.RoleAdmin {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	raw := value[len(bearer):]
	if raw == "" {
		return "", false
	}
	return raw, true
}
