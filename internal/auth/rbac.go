package auth

import "net/http"

// roleLevel maps roles to a numeric privilege level for comparison.
var roleLevel = map[string]int{
	RoleAdmin:    40,
	RoleManager:  30,
	RoleEngineer: 20,
	RoleReadonly: 10,
}

// RequireAuth rejects requests that have no authenticated identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			respondErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireMinRole returns middleware that rejects requests whose identity has a
// lower privilege level than minRole, e.g. RequireMinRole(RoleManager) admits
// admin and manager but rejects engineer and readonly.
func RequireMinRole(minRole string) func(http.Handler) http.Handler {
	minLevel := roleLevel[minRole]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				respondErr(w, http.StatusForbidden, "FORBIDDEN", "authentication required")
				return
			}
			if roleLevel[id.Role] < minLevel {
				respondErr(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireScope returns middleware that rejects API-key identities not scoped
// to the given ingest domain. Session identities always pass.
func RequireScope(domain string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				respondErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}
			if !id.HasScope(domain) {
				respondErr(w, http.StatusForbidden, "FORBIDDEN", "API key is not scoped for this domain")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
