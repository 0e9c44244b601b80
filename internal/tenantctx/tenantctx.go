// Package tenantctx resolves the (tenant_id, project_id) scope for a request
// and carries it through the context. Unlike a schema-per-tenant design, every
// table is scoped by these two columns directly, so resolution is just
// picking the right values — no connection or search_path switching.
package tenantctx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/internal/auth"
)

// Scope is the isolation key attached to every store read and write.
type Scope struct {
	TenantID  uuid.UUID
	ProjectID uuid.UUID
}

type ctxKey string

const scopeKey ctxKey = "tenant_scope"

func withScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

// FromContext extracts the scope. Returns the zero Scope if none was attached.
func FromContext(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey).(Scope)
	return s
}

// Middleware resolves the request's project scope from the authenticated
// identity and attaches it to the context.
//
// API-key identities are bound to exactly one project, so their scope is
// fixed. Session identities may operate across projects within their tenant,
// so the caller must supply ?project_id= (or X-Project-ID); its absence or
// malformed value is a caller error, not a server error.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.FromContext(r.Context())
		if id == nil {
			respondErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		scope := Scope{TenantID: id.TenantID}

		if id.Method == auth.MethodAPIKey {
			scope.ProjectID = id.ProjectID
		} else {
			raw := r.URL.Query().Get("project_id")
			if raw == "" {
				raw = r.Header.Get("X-Project-ID")
			}
			if raw == "" {
				respondErr(w, http.StatusBadRequest, "MISSING_PROJECT_ID", "project_id is required")
				return
			}
			projectID, err := uuid.Parse(raw)
			if err != nil {
				respondErr(w, http.StatusBadRequest, "INVALID_UUID", "project_id must be a valid UUID")
				return
			}
			scope.ProjectID = projectID
		}

		next.ServeHTTP(w, r.WithContext(withScope(r.Context(), scope)))
	})
}

// respondErr writes the standard error envelope. Duplicated from
// internal/httpserver rather than imported, since httpserver imports this
// package — importing back would cycle.
func respondErr(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":     "error",
		"detail":     detail,
		"error_code": code,
	})
}
