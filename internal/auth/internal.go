package auth

import (
	"crypto/subtle"
	"net/http"
)

// internalServiceHeader carries the shared secret the Edge Router attaches to
// every request it proxies, so internal services can refuse direct exposure.
const internalServiceHeader = "X-Internal-Service-Token"

// RequireInternalToken returns middleware that rejects any request not
// carrying the configured internal service secret. Comparison is constant
// time to avoid leaking the secret via response timing.
func RequireInternalToken(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(internalServiceHeader)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
				respondErr(w, http.StatusForbidden, "FORBIDDEN", "direct access not permitted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
