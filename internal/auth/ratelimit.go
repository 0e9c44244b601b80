package auth

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a token bucket per key (user ID if present, else API
// key ID if present, else source IP) for the ingest plane. Limiters are created lazily and retained
// in memory for the process lifetime of the key.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

// NewRateLimiter creates a RateLimiter admitting perMinute requests per key,
// with a burst equal to the per-minute budget.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 600
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		perMin:   perMinute,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(rl.perMin)/60.0), rl.perMin)
		rl.limiters[key] = l
	}
	return l
}

// Middleware rate-limits requests by the identity's user ID, else its API key
// ID, falling back to the remote IP. Every response carries X-RateLimit-{Limit,
// Remaining,Reset}; a rejected request additionally carries Retry-After.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.keyFor(r)
		limiter := rl.limiterFor(key)

		reservation := limiter.Reserve()
		delay := reservation.Delay()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMin))

		if delay > 0 {
			reservation.Cancel()
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(delay).Unix(), 10))
			w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			respondErr(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Unix(), 10))

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) keyFor(r *http.Request) string {
	id := FromContext(r.Context())
	if id != nil && id.UserID != nil {
		return "user:" + id.UserID.String()
	}
	if id != nil && id.APIKeyID != nil {
		return "apikey:" + id.APIKeyID.String()
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
