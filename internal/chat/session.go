// Package chat is the conversation-scoped realtime surface: a connection on the
// chat namespace, room membership signals, sending and a buffer of live messages.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/bus"
	"github.com/matheus3301/meeple/internal/realtime"
	"github.com/matheus3301/meeple/internal/status"
	"go.uber.org/zap"
)

// Events on the chat namespace.
const (
	EventAuth       = "auth"
	EventSend       = "message:send"
	EventMarkRead   = "message:mark-read"
	EventJoin       = "chat:join"
	EventLeave      = "chat:leave"
	EventMessageNew = "message:new"
	EventUserJoined = "chat:user-joined"
	EventUserLeft   = "chat:user-left"
	EventListUpdate = "chat:list-update"
)

// DefaultNamespace is the chat namespace path.
const DefaultNamespace = "/chat"

// ErrNoSession is returned by Connect without an identity and credential.
var ErrNoSession = errors.New("chat: no identity or credential")

// Config holds the chat channel connection parameters.
type Config struct {
	URL       string
	Namespace string
	Attempts  int
	Delay     time.Duration
	DelayMax  time.Duration
}

// Presence is a user joining or leaving a chat room.
type Presence struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
	Joined bool   `json:"-"`
}

// ListUpdate is a pushed change to the chat list. Chat is nil when the payload
// is not a chat object.
type ListUpdate struct {
	Chat *backend.Chat
	Raw  json.RawMessage
}

// Session is one chat-namespace connection with its live message buffer.
type Session struct {
	dial     realtime.Dialer
	cfg      Config
	bus      *bus.Bus
	logger   *zap.Logger
	machine  *status.Machine
	identity backend.Identity
	token    string

	mu         sync.Mutex
	sock       realtime.Channel
	rooms      map[string]struct{}
	msgs       []backend.ChatMessage
	seen       map[string]struct{}
	nextObs    int
	onMessage  map[int]func(backend.ChatMessage)
	onPresence map[int]func(Presence)
	onList     map[int]func(ListUpdate)
	onConnect  map[int]func()
}

// NewSession creates a disconnected session for identity. A nil dialer uses
// realtime.Dial; identity may be nil, in which case Connect fails.
func NewSession(dial realtime.Dialer, cfg Config, b *bus.Bus, identity *backend.Identity, token string, logger *zap.Logger) *Session {
	if dial == nil {
		dial = realtime.Dial
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	s := &Session{
		dial:       dial,
		cfg:        cfg,
		bus:        b,
		logger:     logger.Named("chat"),
		machine:    status.NewMachine(status.ChatTable, b),
		token:      token,
		rooms:      make(map[string]struct{}),
		seen:       make(map[string]struct{}),
		onMessage:  make(map[int]func(backend.ChatMessage)),
		onPresence: make(map[int]func(Presence)),
		onList:     make(map[int]func(ListUpdate)),
		onConnect:  make(map[int]func()),
	}
	if identity != nil {
		s.identity = *identity
	}
	return s
}

// State returns the session lifecycle state.
func (s *Session) State() status.State {
	return s.machine.Current()
}

// Connected reports whether the transport is live.
func (s *Session) Connected() bool {
	s.mu.Lock()
	sock := s.sock
	s.mu.Unlock()
	return sock != nil && sock.Connected()
}

// Connect opens the chat channel with the credential in the handshake. It is a
// no-op when a channel is already open.
func (s *Session) Connect(ctx context.Context) error {
	if s.identity.ID == "" || s.token == "" {
		return ErrNoSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sock != nil {
		return nil
	}

	sock := s.dial(s.cfg.URL, realtime.Options{
		Namespace: s.cfg.Namespace,
		Header:    http.Header{"Authorization": {"Bearer " + s.token}},
		Query:     url.Values{"token": {s.token}},
		Reconnect: true,
		Attempts:  s.cfg.Attempts,
		Delay:     s.cfg.Delay,
		DelayMax:  s.cfg.DelayMax,
		Logger:    s.logger,
	})
	s.sock = sock
	s.bind(sock)

	_ = s.machine.Transition(status.Connecting)
	if err := sock.Connect(ctx); err != nil {
		s.sock = nil
		_ = s.machine.Transition(status.Disconnected)
		return err
	}
	return nil
}

// Close tears the channel down. The message buffer survives.
func (s *Session) Close() error {
	s.mu.Lock()
	sock := s.sock
	s.sock = nil
	clear(s.rooms)
	s.mu.Unlock()
	if sock == nil {
		return nil
	}
	err := sock.Close()
	_ = s.machine.Transition(status.Disconnected)
	return err
}

// SendMessage emits message:send. It reports whether the frame went out; when
// disconnected it logs and drops the message.
func (s *Session) SendMessage(chatID, content, imageURL string) bool {
	payload := map[string]string{"chatId": chatID, "content": content}
	if imageURL != "" {
		payload["imageUrl"] = imageURL
	}
	return s.emit(EventSend, payload)
}

// MarkRead emits message:mark-read for chatID.
func (s *Session) MarkRead(chatID string) bool {
	return s.emit(EventMarkRead, map[string]string{"chatId": chatID})
}

// JoinChat announces presence in chatID. Joined rooms are announced again after
// a reconnect.
func (s *Session) JoinChat(chatID string) bool {
	if !s.emit(EventJoin, map[string]string{"chatId": chatID}) {
		return false
	}
	s.mu.Lock()
	s.rooms[chatID] = struct{}{}
	s.mu.Unlock()
	_ = s.machine.Transition(status.InRoom)
	return true
}

// LeaveChat announces leaving chatID.
func (s *Session) LeaveChat(chatID string) bool {
	s.mu.Lock()
	delete(s.rooms, chatID)
	empty := len(s.rooms) == 0
	s.mu.Unlock()
	if !s.emit(EventLeave, map[string]string{"chatId": chatID}) {
		return false
	}
	if empty && s.machine.Is(status.InRoom) {
		_ = s.machine.Transition(status.Connected)
	}
	return true
}

// Messages returns the live messages received since the session was created, in
// arrival order.
func (s *Session) Messages() []backend.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.ChatMessage(nil), s.msgs...)
}

// OnMessage registers an observer for new live messages.
func (s *Session) OnMessage(fn func(backend.ChatMessage)) (off func()) {
	return observe(s, s.onMessage, fn)
}

// OnPresence registers an observer for joins and leaves.
func (s *Session) OnPresence(fn func(Presence)) (off func()) {
	return observe(s, s.onPresence, fn)
}

// OnListUpdate registers an observer for chat list pushes.
func (s *Session) OnListUpdate(fn func(ListUpdate)) (off func()) {
	return observe(s, s.onList, fn)
}

// OnConnected registers fn to run after every successful handshake and auth.
func (s *Session) OnConnected(fn func()) (off func()) {
	return observe(s, s.onConnect, fn)
}

func observe[T any](s *Session, set map[int]T, fn T) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	set[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(set, id)
			s.mu.Unlock()
		})
	}
}

func snapshot[T any](s *Session, set map[int]T) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0, len(set))
	for _, fn := range set {
		out = append(out, fn)
	}
	return out
}

func (s *Session) emit(event string, payload any) bool {
	s.mu.Lock()
	sock := s.sock
	s.mu.Unlock()
	if sock == nil || !sock.Connected() {
		s.logger.Warn("chat channel not connected, dropping", zap.String("event", event))
		return false
	}
	if err := sock.Emit(event, payload); err != nil {
		s.logger.Warn("chat emit failed", zap.String("event", event), zap.Error(err))
		return false
	}
	return true
}

func (s *Session) owns(sock realtime.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sock == sock
}

func (s *Session) bind(sock realtime.Channel) {
	sock.On(realtime.EventConnect, func(json.RawMessage) {
		if !s.owns(sock) {
			return
		}
		if err := sock.Emit(EventAuth, map[string]string{"userId": s.identity.ID}); err != nil {
			s.logger.Warn("chat auth announcement failed", zap.Error(err))
		}
		_ = s.machine.Transition(status.Connected)

		s.mu.Lock()
		rooms := make([]string, 0, len(s.rooms))
		for id := range s.rooms {
			rooms = append(rooms, id)
		}
		s.mu.Unlock()
		for _, id := range rooms {
			s.JoinChat(id)
		}
		for _, fn := range snapshot(s, s.onConnect) {
			fn()
		}
	})
	sock.On(realtime.EventDisconnect, func(json.RawMessage) {
		if !s.owns(sock) {
			return
		}
		s.logger.Warn("chat channel disconnected")
		_ = s.machine.Transition(status.Connecting)
	})
	sock.On(realtime.EventReconnectFailed, func(json.RawMessage) {
		s.mu.Lock()
		if s.sock != sock {
			s.mu.Unlock()
			return
		}
		s.sock = nil
		s.mu.Unlock()
		s.logger.Warn("chat channel gave up reconnecting")
		_ = sock.Close()
		_ = s.machine.Transition(status.Disconnected)
	})
	sock.On(EventMessageNew, func(data json.RawMessage) {
		if s.owns(sock) {
			s.handleMessage(data)
		}
	})
	sock.On(EventUserJoined, func(data json.RawMessage) {
		if s.owns(sock) {
			s.handlePresence(data, true)
		}
	})
	sock.On(EventUserLeft, func(data json.RawMessage) {
		if s.owns(sock) {
			s.handlePresence(data, false)
		}
	})
	sock.On(EventListUpdate, func(data json.RawMessage) {
		if s.owns(sock) {
			s.handleListUpdate(data)
		}
	})
}

func (s *Session) handleMessage(data json.RawMessage) {
	var m backend.ChatMessage
	if err := json.Unmarshal(data, &m); err != nil || m.ID == "" {
		s.logger.Warn("undecodable chat message", zap.Error(err))
		return
	}
	s.mu.Lock()
	if _, dup := s.seen[m.ID]; dup {
		s.mu.Unlock()
		return
	}
	s.seen[m.ID] = struct{}{}
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()

	for _, fn := range snapshot(s, s.onMessage) {
		fn(m)
	}
	s.bus.Emit(bus.ChatMessageReceived, m)
}

func (s *Session) handlePresence(data json.RawMessage, joined bool) {
	var p Presence
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Warn("undecodable presence", zap.Error(err))
		return
	}
	p.Joined = joined
	for _, fn := range snapshot(s, s.onPresence) {
		fn(p)
	}
	s.bus.Emit(bus.ChatPresence, p)
}

func (s *Session) handleListUpdate(data json.RawMessage) {
	u := ListUpdate{Raw: data}
	var c backend.Chat
	if err := json.Unmarshal(data, &c); err == nil && c.ID != "" {
		u.Chat = &c
	}
	for _, fn := range snapshot(s, s.onList) {
		fn(u)
	}
	s.bus.Emit(bus.ChatListUpdated, u)
}
