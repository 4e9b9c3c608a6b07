package authn

import (
	"encoding/json"
	"errors"
	"net/http"
)

// RequireAdmin returns middleware that authenticates the request's bearer
// token as an admin principal and authorizes it against the union of
// requiredRoles and requiredScopes, storing the principal in the request
// context on success.
func RequireAdmin(authenticator *AdminAuthenticator, requiredRoles, requiredScopes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := authenticator.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				respondAuthError(w, err)
				return
			}

			if err := Authorize(principal, requiredRoles, requiredScopes, ""); err != nil {
				respondAuthError(w, err)
				return
			}

			r = r.WithContext(NewAdminContext(r.Context(), principal))
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTenantAccess returns middleware checked after RequireAdmin that
// additionally requires the authenticated principal to be entitled to
// tenantID, extracted from the request by tenantIDFromRequest.
func RequireTenantAccess(tenantIDFromRequest func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := AdminFromContext(r.Context())
			if !ok {
				respondAuthError(w, ErrUnauthorized)
				return
			}

			tenantID := tenantIDFromRequest(r)
			if tenantID != "" && !principal.CanAccessTenant(tenantID) {
				respondAuthError(w, ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func respondAuthError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	if errors.Is(err, ErrForbidden) {
		status = http.StatusForbidden
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": err.Error()})
}
