// Package edge implements the Edge Router: the external front door that
// terminates traffic, gates JWT/API-key-authenticated routes, and
// reverse-proxies to the internal services that own each path prefix. It does
// no rate limiting and sets no X-RateLimit headers. Grounded on original_source's api-gateway (httpx-based path
// proxying with bearer/cookie token forwarding and per-backend timeouts) and
// on the teacher's internal/httpserver chi middleware stack, reimplemented
// over net/http/httputil.ReverseProxy.
package edge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pulsegrid/controlplane/internal/auth"
	"github.com/pulsegrid/controlplane/internal/httpserver"
)

// Target binds a URL path prefix to the internal service that owns it.
// RequireAuth gates the prefix behind session JWT or API-key authentication
// before it is proxied.
type Target struct {
	Prefix      string
	BaseURL     string
	RequireAuth bool
}

type proxyEntry struct {
	prefix  string
	handler http.Handler
}

// Router is the Edge Router. It holds one reverse proxy per configured
// Target and dispatches by longest matching path prefix.
type Router struct {
	entries []proxyEntry
	logger  *slog.Logger
}

// NewRouter builds a Router. internalToken is attached to every proxied
// request as X-Internal-Service-Token so the receiving service can refuse
// direct, unproxied access (internal/auth.RequireInternalToken). timeout
// bounds every proxied round trip; exceeding it surfaces as 504, a refused
// or unreachable backend as 502.
func NewRouter(targets []Target, internalToken string, timeout time.Duration, sessionMgr *auth.SessionManager, apikeyAuth *auth.APIKeyAuthenticator, logger *slog.Logger) (*Router, error) {
	entries := make([]proxyEntry, 0, len(targets))
	for _, t := range targets {
		backend, err := url.Parse(t.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing backend URL %q for prefix %q: %w", t.BaseURL, t.Prefix, err)
		}

		proxy := &httputil.ReverseProxy{
			Director: func(r *http.Request) {
				r.URL.Scheme = backend.Scheme
				r.URL.Host = backend.Host
				r.Host = backend.Host
				r.Header.Set("X-Internal-Service-Token", internalToken)
			},
			ErrorHandler: edgeErrorHandler(logger, t.Prefix),
		}

		var handler http.Handler = &timeoutProxy{proxy: proxy, timeout: timeout}
		if t.RequireAuth {
			handler = auth.Middleware(sessionMgr, apikeyAuth, logger)(handler)
		}

		entries = append(entries, proxyEntry{prefix: t.Prefix, handler: handler})
	}

	sort.Slice(entries, func(i, j int) bool { return len(entries[i].prefix) > len(entries[j].prefix) })

	return &Router{entries: entries, logger: logger}, nil
}

// timeoutProxy bounds the request context passed to the wrapped reverse
// proxy, so a stalled backend surfaces as a 504 via the proxy's ErrorHandler
// rather than hanging the caller indefinitely.
type timeoutProxy struct {
	proxy   *httputil.ReverseProxy
	timeout time.Duration
}

func (p *timeoutProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()
	p.proxy.ServeHTTP(w, r.WithContext(ctx))
}

// edgeErrorHandler maps backend transport failures to 502 (connect refused
// or unreachable) and 504 (timeout), per spec.md §4.6. Backend HTTP status
// codes and Set-Cookie headers are otherwise forwarded unchanged by
// httputil.ReverseProxy's default response copy, which this handler never
// touches.
func edgeErrorHandler(logger *slog.Logger, prefix string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		status := http.StatusBadGateway
		code := httpserver.ErrBadGateway

		var netErr net.Error
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			status, code = http.StatusGatewayTimeout, httpserver.ErrGatewayTimeout
		case errors.As(err, &netErr) && netErr.Timeout():
			status, code = http.StatusGatewayTimeout, httpserver.ErrGatewayTimeout
		}

		logger.Warn("proxying to internal service failed", "prefix", prefix, "path", r.URL.Path, "error", err, "status", status)
		httpserver.RespondError(w, status, code, "internal service unavailable")
	}
}

// ServeHTTP dispatches to the proxy whose prefix most specifically matches
// the request path; no match yields 404.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, e := range rt.entries {
		if strings.HasPrefix(r.URL.Path, e.prefix) {
			e.handler.ServeHTTP(w, r)
			return
		}
	}
	http.NotFound(w, r)
}
