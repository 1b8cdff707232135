// Package realtimetest provides an in-process realtime server for tests.
package realtimetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Received is a frame the server read from a client.
type Received struct {
	Path  string
	Event string
	Data  json.RawMessage
}

// Handshake records the upgrade request of one client connection.
type Handshake struct {
	Path   string
	Header http.Header
	Query  url.Values
}

type conn struct {
	path string
	mu   sync.Mutex
	ws   *websocket.Conn
}

func (c *conn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// Server accepts WebSocket clients on any path and records what they send.
type Server struct {
	URL string

	srv      *httptest.Server
	upgrader websocket.Upgrader
	refuse   atomic.Int32

	mu         sync.Mutex
	conns      map[*conn]struct{}
	frames     []Received
	handshakes []Handshake
}

// NewServer starts a server closed on test cleanup.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{conns: make(map[*conn]struct{})}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	s.URL = "ws" + strings.TrimPrefix(s.srv.URL, "http")
	t.Cleanup(s.Close)
	return s
}

// Refuse makes every following handshake fail with code; 0 accepts again.
func (s *Server) Refuse(code int) {
	s.refuse.Store(int32(code))
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if code := int(s.refuse.Load()); code != 0 {
		http.Error(w, http.StatusText(code), code)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{path: r.URL.Path, ws: ws}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.handshakes = append(s.handshakes, Handshake{Path: r.URL.Path, Header: r.Header.Clone(), Query: r.URL.Query()})
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = ws.Close()
	}()
	for {
		var f struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := ws.ReadJSON(&f); err != nil {
			return
		}
		s.mu.Lock()
		s.frames = append(s.frames, Received{Path: c.path, Event: f.Event, Data: f.Data})
		s.mu.Unlock()
	}
}

// Push sends an event to every open connection.
func (s *Server) Push(event string, data any) {
	raw, _ := json.Marshal(data)
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.write(map[string]any{"event": event, "data": json.RawMessage(raw)})
	}
}

// Open returns the number of connected clients.
func (s *Server) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// DropAll closes every connection without a close frame.
func (s *Server) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.ws.UnderlyingConn().Close()
	}
}

// Frames returns the frames received with the given event name.
func (s *Server) Frames(event string) []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Received
	for _, f := range s.frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// Handshakes returns every accepted upgrade request.
func (s *Server) Handshakes() []Handshake {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Handshake(nil), s.handshakes...)
}

// WaitFrames polls until at least n frames with event arrived.
func (s *Server) WaitFrames(t testing.TB, event string, n int) []Received {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		if got := s.Frames(event); len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d %q frames, got %d", n, event, len(s.Frames(event)))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// WaitOpen polls until exactly n clients are connected.
func (s *Server) WaitOpen(t testing.TB, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for s.Open() != n {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d open connections, have %d", n, s.Open())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Close shuts the server down.
func (s *Server) Close() {
	s.DropAll()
	s.srv.Close()
}
