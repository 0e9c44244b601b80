// Package ws is the Realtime Gateway: a single WebSocket endpoint that
// authenticates a short JWT handshake, tracks per-connection channel
// subscriptions, and fans Event Bus messages out to matching sessions.
// Grounded on original_source's websocket-service (FastAPI + in-process
// ConnectionManager), reimplemented as an explicit reader-loop-per-connection
// server over github.com/gorilla/websocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pulsegrid/controlplane/internal/auth"
	"github.com/pulsegrid/controlplane/internal/bus"
)

var (
	errNotAConnect        = errors.New("first frame was not a connect frame")
	errMissingCredentials = errors.New("connect frame missing token or tenantId")
	errTenantMismatch     = errors.New("token tenant_id does not match connect frame tenantId")
)

// handshakeTimeout bounds how long a freshly accepted connection has to send
// its "connect" frame before the Gateway closes it.
const handshakeTimeout = 10 * time.Second

// frameType enumerates the client/server frame taxonomy.
type frameType string

const (
	frameConnect      frameType = "connect"
	frameConnected    frameType = "connected"
	frameSubscribe    frameType = "subscribe"
	frameSubscribed   frameType = "subscribed"
	frameUnsubscribe  frameType = "unsubscribe"
	frameUnsubscribed frameType = "unsubscribed"
	framePing         frameType = "ping"
	framePong         frameType = "pong"
	frameEvent        frameType = "event"
	frameError        frameType = "error"
)

// frame is the uniform envelope for every message exchanged over the socket.
type frame struct {
	Type     frameType       `json:"type"`
	Token    string          `json:"token,omitempty"`
	Channels []string        `json:"channels,omitempty"`
	Message  string          `json:"message,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	TenantID string          `json:"tenantId,omitempty"`
	Event    json.RawMessage `json:"event,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway accepts WebSocket connections, verifies their handshake JWT, and
// subscribes them to the Event Bus.
type Gateway struct {
	sessions   *auth.SessionManager
	bus        *bus.Bus
	logger     *slog.Logger
	mu         sync.RWMutex
	conns      map[string]*session
}

// NewGateway creates a Realtime Gateway.
func NewGateway(sessions *auth.SessionManager, b *bus.Bus, logger *slog.Logger) *Gateway {
	return &Gateway{
		sessions: sessions,
		bus:      b,
		logger:   logger,
		conns:    make(map[string]*session),
	}
}

// session is one authenticated WebSocket connection.
type session struct {
	clientID string
	tenantID string
	conn     *websocket.Conn
	writeMu  sync.Mutex

	mu            sync.RWMutex
	subscriptions map[string]bool
}

func (s *session) isSubscribed(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscriptions[channel]
}

func (s *session) subscribe(channels []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		s.subscriptions[ch] = true
	}
}

func (s *session) unsubscribe(channels []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		delete(s.subscriptions, ch)
	}
}

func (s *session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// ServeHTTP upgrades the connection and runs its lifecycle until the client
// disconnects or the request context is cancelled.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("upgrading websocket connection", "error", err)
		return
	}
	defer conn.Close()

	sess, err := g.handshake(conn)
	if err != nil {
		g.logger.Debug("websocket handshake failed", "error", err)
		return
	}

	g.register(sess)
	defer g.unregister(sess)

	g.logger.Info("websocket client connected", "client_id", sess.clientID, "tenant_id", sess.tenantID)

	if err := sess.writeJSON(frame{Type: frameConnected, ClientID: sess.clientID, TenantID: sess.tenantID}); err != nil {
		return
	}

	g.readLoop(sess)
}

// handshake waits up to handshakeTimeout for a "connect" frame carrying a
// valid JWT whose tenant_id claim matches the frame's tenantId.
func (g *Gateway) handshake(conn *websocket.Conn) (*session, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		return nil, err
	}

	if f.Type != frameConnect {
		_ = conn.WriteJSON(frame{Type: frameError, Message: "first message must be a connect frame"})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""), time.Now().Add(time.Second))
		return nil, errNotAConnect
	}

	if f.Token == "" || f.TenantID == "" {
		_ = conn.WriteJSON(frame{Type: frameError, Message: "missing token or tenantId"})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""), time.Now().Add(time.Second))
		return nil, errMissingCredentials
	}

	claims, err := g.sessions.ValidateToken(f.Token)
	if err != nil {
		_ = conn.WriteJSON(frame{Type: frameError, Message: "authentication failed: " + err.Error()})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""), time.Now().Add(time.Second))
		return nil, err
	}

	if claims.TenantID != f.TenantID {
		_ = conn.WriteJSON(frame{Type: frameError, Message: "tenant mismatch"})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""), time.Now().Add(time.Second))
		return nil, errTenantMismatch
	}

	conn.SetReadDeadline(time.Time{})

	clientID := claims.UserID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	return &session{
		clientID:      clientID,
		tenantID:      claims.TenantID,
		conn:          conn,
		subscriptions: make(map[string]bool),
	}, nil
}

func (g *Gateway) register(s *session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[s.clientID] = s
}

func (g *Gateway) unregister(s *session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, s.clientID)
	g.logger.Info("websocket client disconnected", "client_id", s.clientID)
}

// readLoop processes subsequent frames from an authenticated connection
// until it disconnects.
func (g *Gateway) readLoop(s *session) {
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			return
		}

		switch f.Type {
		case framePing:
			_ = s.writeJSON(frame{Type: framePong})
		case frameSubscribe:
			s.subscribe(f.Channels)
			_ = s.writeJSON(frame{Type: frameSubscribed, Channels: f.Channels})
		case frameUnsubscribe:
			s.unsubscribe(f.Channels)
			_ = s.writeJSON(frame{Type: frameUnsubscribed, Channels: f.Channels})
		default:
			_ = s.writeJSON(frame{Type: frameError, Message: "unknown message type: " + string(f.Type)})
		}
	}
}

// Run subscribes to the Event Bus and fans incoming events out to every
// connected session whose tenant and subscription set match. It blocks
// until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	sub := g.bus.Subscribe(ctx, bus.ChannelIncidents, bus.ChannelHypotheses, bus.ChannelAlerts, bus.ChannelNotifications)
	defer sub.Close()

	events := sub.Events(g.logger)
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			g.fanOut(evt)
		}
	}
}

func (g *Gateway) fanOut(evt bus.Event) {
	raw, err := json.Marshal(evt)
	if err != nil {
		g.logger.Error("marshaling bus event for fan-out", "error", err)
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, s := range g.conns {
		if s.tenantID != evt.TenantID.String() {
			continue
		}
		if !s.isSubscribed(string(evt.Channel)) && !s.isSubscribed("*") {
			continue
		}
		if err := s.writeJSON(frame{Type: frameEvent, Event: raw}); err != nil {
			g.logger.Warn("writing event to websocket client", "client_id", s.clientID, "error", err)
		}
	}
}

// ConnectionCount reports the number of currently connected sessions.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}
