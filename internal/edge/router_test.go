package edge

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pulsegrid/controlplane/internal/auth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRouterForwardsStatusAndSetCookie(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "session=abc; HttpOnly")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	}))
	defer backend.Close()

	router, err := NewRouter([]Target{{Prefix: "/incidents", BaseURL: backend.URL}}, "internal-secret", time.Second, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/incidents/123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if got := rec.Header().Get("Set-Cookie"); got != "session=abc; HttpOnly" {
		t.Errorf("Set-Cookie = %q, want forwarded unchanged", got)
	}
}

func TestRouterAttachesInternalToken(t *testing.T) {
	var seen string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Internal-Service-Token")
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	router, err := NewRouter([]Target{{Prefix: "/ingest", BaseURL: backend.URL}}, "shh-its-a-secret", time.Second, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/ingest/metrics", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "shh-its-a-secret" {
		t.Errorf("X-Internal-Service-Token = %q, want %q", seen, "shh-its-a-secret")
	}
}

func TestRouterMapsUnreachableBackendTo502(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backendURL := backend.URL
	backend.Close() // closed immediately: connection refused

	router, err := NewRouter([]Target{{Prefix: "/alerts", BaseURL: backendURL}}, "x", time.Second, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/alerts/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestRouterMapsSlowBackendTo504(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	router, err := NewRouter([]Target{{Prefix: "/hypotheses", BaseURL: backend.URL}}, "x", 5*time.Millisecond, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/hypotheses/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusGatewayTimeout)
	}
}

func TestRouterLongestPrefixWins(t *testing.T) {
	var hitGeneral, hitSpecific bool
	general := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitGeneral = true
	}))
	defer general.Close()
	specific := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitSpecific = true
	}))
	defer specific.Close()

	router, err := NewRouter([]Target{
		{Prefix: "/incidents", BaseURL: general.URL},
		{Prefix: "/incidents/priority", BaseURL: specific.URL},
	}, "x", time.Second, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/incidents/priority/42", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if !hitSpecific || hitGeneral {
		t.Errorf("expected the longer /incidents/priority prefix to win, got hitGeneral=%v hitSpecific=%v", hitGeneral, hitSpecific)
	}
}

func TestRouterRequiresAuthWhenConfigured(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	sessionMgr, err := auth.NewSessionManager(strings.Repeat("k", 32), time.Hour)
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}

	router, err := NewRouter([]Target{{Prefix: "/incidents", BaseURL: backend.URL, RequireAuth: true}}, "x", time.Second, sessionMgr, &auth.APIKeyAuthenticator{}, testLogger())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/incidents/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d (missing credentials)", rec.Code, http.StatusUnauthorized)
	}
}

func TestRouterNoMatchIs404(t *testing.T) {
	router, err := NewRouter(nil, "x", time.Second, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
