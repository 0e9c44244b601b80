package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware authenticates the caller via session JWT or API key and stores
// the resulting Identity in the request context.
//
// Precedence:
//  1. Authorization: Bearer <jwt>  → session JWT (HMAC)
//  2. X-API-Key: <raw-key>         → API key hash lookup
//
// If neither succeeds, the request is rejected with 401.
func Middleware(sessionMgr *SessionManager, apikeyAuth *APIKeyAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *Identity

			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				rawToken := strings.TrimSpace(authHeader[len("Bearer "):])

				claims, err := sessionMgr.ValidateToken(rawToken)
				if err != nil {
					logger.Warn("session authentication failed", "error", err)
					respondErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
					return
				}

				userID, _ := parseUUIDOrNil(claims.UserID)
				tenantID, _ := parseUUID(claims.TenantID)
				projectID, _ := parseUUIDOrNil(claims.ProjectID)

				identity = &Identity{
					Subject:   claims.Subject,
					Email:     claims.Email,
					Role:      claims.Role,
					TenantID:  tenantID,
					ProjectID: zeroIfNil(projectID),
					UserID:    userID,
					Method:    MethodSession,
				}
			}

			if identity == nil {
				if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
					result, err := apikeyAuth.Authenticate(r.Context(), rawKey)
					if err != nil {
						logger.Warn("API key authentication failed", "error", err)
						respondErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key")
						return
					}

					identity = &Identity{
						Subject:   fmt.Sprintf("apikey:%s", result.KeyPrefix),
						Role:      RoleEngineer,
						TenantID:  result.TenantID,
						ProjectID: result.ProjectID,
						APIKeyID:  &result.KeyID,
						Scopes:    result.Scopes,
						Method:    MethodAPIKey,
					}
				}
			}

			if identity == nil {
				respondErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "no valid authentication provided")
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
