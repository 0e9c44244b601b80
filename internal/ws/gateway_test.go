package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/pulsegrid/controlplane/internal/auth"
	"github.com/pulsegrid/controlplane/internal/bus"
)

func testGateway(t *testing.T) (*Gateway, *bus.Bus) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	b := bus.New(rdb, logger)

	sessions, err := auth.NewSessionManager(strings.Repeat("x", 32), time.Hour)
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}

	return NewGateway(sessions, b, logger), b
}

func dialGateway(t *testing.T, g *Gateway) (*websocket.Conn, func()) {
	t.Helper()

	srv := httptest.NewServer(g)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dialing websocket server: %v", err)
	}

	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestHandshakeRejectsNonConnectFirstFrame(t *testing.T) {
	g, _ := testGateway(t)
	conn, cleanup := dialGateway(t, g)
	defer cleanup()

	if err := conn.WriteJSON(frame{Type: framePing}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var resp frame
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if resp.Type != frameError {
		t.Errorf("response Type = %q, want %q", resp.Type, frameError)
	}
}

func TestHandshakeSucceedsAndFansOutMatchingTenant(t *testing.T) {
	g, b := testGateway(t)
	conn, cleanup := dialGateway(t, g)
	defer cleanup()

	tenantID := uuid.New()
	token, err := g.sessions.IssueShortLived(auth.SessionClaims{
		Subject:  "user-1",
		UserID:   "user-1",
		TenantID: tenantID.String(),
	}, 30*time.Second)
	if err != nil {
		t.Fatalf("IssueShortLived() error = %v", err)
	}

	if err := conn.WriteJSON(frame{Type: frameConnect, Token: token, TenantID: tenantID.String()}); err != nil {
		t.Fatalf("WriteJSON(connect) error = %v", err)
	}

	var connected frame
	if err := conn.ReadJSON(&connected); err != nil {
		t.Fatalf("ReadJSON(connected) error = %v", err)
	}
	if connected.Type != frameConnected {
		t.Fatalf("connected frame Type = %q, want %q", connected.Type, frameConnected)
	}

	if err := conn.WriteJSON(frame{Type: frameSubscribe, Channels: []string{string(bus.ChannelIncidents)}}); err != nil {
		t.Fatalf("WriteJSON(subscribe) error = %v", err)
	}
	var subscribed frame
	if err := conn.ReadJSON(&subscribed); err != nil {
		t.Fatalf("ReadJSON(subscribed) error = %v", err)
	}
	if subscribed.Type != frameSubscribed {
		t.Fatalf("subscribed frame Type = %q, want %q", subscribed.Type, frameSubscribed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	// Give the Gateway's registration and the Run loop's subscription time to
	// settle before publishing.
	time.Sleep(50 * time.Millisecond)

	b.Publish(context.Background(), bus.ChannelIncidents, bus.EventIncidentCreated, tenantID, map[string]string{"id": "abc"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event frame
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON(event) error = %v (expected fan-out event)", err)
	}
	if event.Type != frameEvent {
		t.Fatalf("event frame Type = %q, want %q", event.Type, frameEvent)
	}

	var decoded bus.Event
	if err := json.Unmarshal(event.Event, &decoded); err != nil {
		t.Fatalf("unmarshaling fanned-out event: %v", err)
	}
	if decoded.TenantID != tenantID {
		t.Errorf("fanned-out event tenant_id = %v, want %v", decoded.TenantID, tenantID)
	}
}

func TestHandshakeRejectsTenantMismatch(t *testing.T) {
	g, _ := testGateway(t)
	conn, cleanup := dialGateway(t, g)
	defer cleanup()

	token, err := g.sessions.IssueShortLived(auth.SessionClaims{
		Subject:  "user-1",
		TenantID: uuid.New().String(),
	}, 30*time.Second)
	if err != nil {
		t.Fatalf("IssueShortLived() error = %v", err)
	}

	if err := conn.WriteJSON(frame{Type: frameConnect, Token: token, TenantID: uuid.New().String()}); err != nil {
		t.Fatalf("WriteJSON(connect) error = %v", err)
	}

	var resp frame
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if resp.Type != frameError {
		t.Errorf("response Type = %q, want %q", resp.Type, frameError)
	}
}
