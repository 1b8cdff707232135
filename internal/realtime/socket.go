// Package realtime is the client side of the event channel: one WebSocket per
// Socket carrying JSON {"event", "data"} frames, with bounded reconnection.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// Reserved events fired locally by the socket. Their handlers get a nil payload.
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventReconnectFailed = "reconnect_failed"
)

const (
	DefaultAttempts = 5
	DefaultDelay    = time.Second
	DefaultDelayMax = 5 * time.Second

	writeTimeout = 5 * time.Second
	readLimit    = 1 << 20
)

// ErrNotConnected is returned by Emit when there is no live transport.
var ErrNotConnected = errors.New("realtime: not connected")

// Frame is the wire envelope.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler receives the raw data of an event.
type Handler func(data json.RawMessage)

// Options configures a Socket.
type Options struct {
	// Namespace is appended to the URL path, e.g. "/chat".
	Namespace string
	// Header and Query travel with the handshake request.
	Header http.Header
	Query  url.Values
	// Reconnect enables bounded reconnection after transport loss.
	Reconnect bool
	Attempts  int
	Delay     time.Duration
	DelayMax  time.Duration
	Logger    *zap.Logger
}

// Channel is what callers hold; *Socket implements it.
type Channel interface {
	On(event string, h Handler) (off func())
	Emit(event string, v any) error
	Connect(ctx context.Context) error
	Connected() bool
	Close() error
}

// Dialer builds a channel for a URL. Dial is the production implementation.
type Dialer func(rawURL string, opts Options) Channel

// Dial is a Dialer returning an unconnected *Socket.
func Dial(rawURL string, opts Options) Channel {
	return New(rawURL, opts)
}

// Socket is one realtime connection and the goroutine supervising it.
type Socket struct {
	url    string
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]map[int]Handler
	nextID   int
	started  bool
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a socket. Nothing is dialed until Connect.
func New(rawURL string, opts Options) *Socket {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.DelayMax < opts.Delay {
		opts.DelayMax = max(DefaultDelayMax, opts.Delay)
	}
	return &Socket{
		url:      rawURL,
		opts:     opts,
		logger:   opts.Logger.With(zap.String("namespace", namespaceOrRoot(opts.Namespace))),
		handlers: make(map[string]map[int]Handler),
		done:     make(chan struct{}),
	}
}

// On registers h for event and returns a function removing it.
func (s *Socket) On(event string, h Handler) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.handlers[event] == nil {
		s.handlers[event] = make(map[int]Handler)
	}
	s.handlers[event][id] = h
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers[event], id)
			s.mu.Unlock()
		})
	}
}

// Connect starts the supervisor. It returns once the goroutine is running; the
// connect event reports the transport handshake. Calling it twice is an error.
func (s *Socket) Connect(ctx context.Context) error {
	target, err := s.endpoint()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("realtime: socket closed")
	}
	if s.started {
		return errors.New("realtime: already connecting")
	}
	s.started = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.run(runCtx, target)
	return nil
}

// Emit sends one frame.
func (s *Socket) Emit(event string, v any) error {
	conn := s.current()
	if conn == nil {
		return ErrNotConnected
	}
	var data json.RawMessage
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", event, err)
		}
		data = b
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, Frame{Event: event, Data: data}); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Connected reports whether a transport is live.
func (s *Socket) Connected() bool {
	return s.current() != nil
}

// Close stops the supervisor and the transport. It is idempotent, does not wait for
// the supervisor (see Done) and may be called from a handler. A closed socket never
// reconnects.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	conn := s.conn
	cancel := s.cancel
	s.mu.Unlock()

	if !started {
		return nil
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	cancel()
	return nil
}

// Done is closed when the supervisor exits.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Socket) setConn(c *websocket.Conn) {
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
}

func (s *Socket) fire(event string, data json.RawMessage) {
	s.mu.Lock()
	hs := make([]Handler, 0, len(s.handlers[event]))
	for _, h := range s.handlers[event] {
		hs = append(hs, h)
	}
	s.mu.Unlock()
	for _, h := range hs {
		h(data)
	}
}

func (s *Socket) run(ctx context.Context, target string) {
	defer close(s.done)
	first := true
	for {
		conn, err := s.dial(ctx, target, first)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("reconnection exhausted", zap.Error(err))
				s.fire(EventReconnectFailed, nil)
			}
			return
		}
		first = false
		s.setConn(conn)
		s.logger.Debug("transport connected")
		s.fire(EventConnect, nil)

		err = s.read(ctx, conn)
		s.setConn(nil)
		_ = conn.CloseNow()
		s.fire(EventDisconnect, nil)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("transport lost", zap.Error(err))
		if !s.opts.Reconnect {
			return
		}
	}
}

func (s *Socket) dial(ctx context.Context, target string, first bool) (*websocket.Conn, error) {
	tries := uint(1)
	if s.opts.Reconnect {
		tries = uint(s.opts.Attempts)
		if first {
			tries++
		}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.Delay
	b.MaxInterval = s.opts.DelayMax
	b.Multiplier = 2

	attempt := 0
	return backoff.Retry(ctx, func() (*websocket.Conn, error) {
		attempt++
		conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{HTTPHeader: s.opts.Header})
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return nil, backoff.Permanent(fmt.Errorf("handshake rejected: %w", err))
			}
			s.logger.Debug("dial failed", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		conn.SetReadLimit(readLimit)
		return conn, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries), backoff.WithMaxElapsedTime(0))
}

func (s *Socket) read(ctx context.Context, conn *websocket.Conn) error {
	for {
		var f Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return err
		}
		switch f.Event {
		case "", EventConnect, EventDisconnect, EventReconnectFailed:
			s.logger.Debug("ignoring reserved or empty frame", zap.String("event", f.Event))
			continue
		}
		s.fire(f.Event, f.Data)
	}
}

func (s *Socket) endpoint() (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("realtime url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("realtime url: unsupported scheme %q", u.Scheme)
	}
	if ns := strings.Trim(s.opts.Namespace, "/"); ns != "" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + ns
	}
	if len(s.opts.Query) > 0 {
		q := u.Query()
		for k, vs := range s.opts.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func namespaceOrRoot(ns string) string {
	if strings.Trim(ns, "/") == "" {
		return "/"
	}
	return ns
}
