// Package notify keeps the primary realtime channel: one connection per signed-in
// identity, carrying notification:new pushes.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/bus"
	"github.com/matheus3301/meeple/internal/realtime"
	"github.com/matheus3301/meeple/internal/session"
	"github.com/matheus3301/meeple/internal/status"
	"go.uber.org/zap"
)

// Server events on the primary channel.
const (
	EventAuth            = "auth"
	EventNotificationNew = "notification:new"
)

// Alerter surfaces a notification to the user.
type Alerter interface {
	Alert(n backend.Notification)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(n backend.Notification)

func (f AlerterFunc) Alert(n backend.Notification) { f(n) }

// LogAlerter writes alerts to the daemon log.
type LogAlerter struct {
	Logger *zap.Logger
}

func (a LogAlerter) Alert(n backend.Notification) {
	a.Logger.Info("notification",
		zap.String("id", n.ID),
		zap.String("type", string(n.Type)),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
	)
}

// Config holds the primary channel connection parameters.
type Config struct {
	URL      string
	Attempts int
	Delay    time.Duration
	DelayMax time.Duration
}

// Manager owns the primary channel. Only the manager opens or closes it.
type Manager struct {
	dial    realtime.Dialer
	bus     *bus.Bus
	alerter Alerter
	cfg     Config
	logger  *zap.Logger
	machine *status.Machine

	mu     sync.Mutex
	sock   realtime.Channel
	userID string
	token  string

	unsub func()
	done  chan struct{}
}

// NewManager creates a manager. A nil dialer uses realtime.Dial.
func NewManager(dial realtime.Dialer, b *bus.Bus, alerter Alerter, cfg Config, logger *zap.Logger) *Manager {
	if dial == nil {
		dial = realtime.Dial
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if alerter == nil {
		alerter = LogAlerter{Logger: logger}
	}
	return &Manager{
		dial:    dial,
		bus:     b,
		alerter: alerter,
		cfg:     cfg,
		logger:  logger.Named("notify"),
		machine: status.NewMachine(status.ChannelTable, b),
	}
}

// Start follows session identity changes on the bus until Stop.
func (m *Manager) Start(ctx context.Context) {
	ch, unsub := m.bus.Subscribe(bus.SessionIdentityChanged, 16)
	m.unsub = unsub
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		for evt := range ch {
			change, ok := evt.Payload.(session.IdentityChange)
			if !ok {
				continue
			}
			m.Apply(ctx, change.Identity, change.Token)
		}
	}()
}

// Stop unsubscribes and tears the channel down.
func (m *Manager) Stop() {
	if m.unsub != nil {
		m.unsub()
		<-m.done
		m.unsub = nil
	}
	m.mu.Lock()
	m.teardownLocked("stopped")
	m.mu.Unlock()
}

// Apply reacts to an identity transition. A nil identity or empty token closes the
// channel; a new identity or credential replaces it; the same pair keeps it.
func (m *Manager) Apply(ctx context.Context, id *backend.Identity, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == nil || token == "" {
		m.teardownLocked("signed out")
		return
	}
	if m.sock != nil && m.userID == id.ID && m.token == token {
		return
	}
	m.teardownLocked("identity changed")
	m.connectLocked(ctx, id.ID, token)
}

// Open reports how many primary channels the manager holds (0 or 1).
func (m *Manager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sock == nil {
		return 0
	}
	return 1
}

// State returns the primary channel state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

func (m *Manager) connectLocked(ctx context.Context, userID, token string) {
	sock := m.dial(m.cfg.URL, realtime.Options{
		Reconnect: true,
		Attempts:  m.cfg.Attempts,
		Delay:     m.cfg.Delay,
		DelayMax:  m.cfg.DelayMax,
		Logger:    m.logger,
	})
	m.sock = sock
	m.userID = userID
	m.token = token

	sock.On(realtime.EventConnect, func(json.RawMessage) {
		if !m.owns(sock) {
			return
		}
		if err := sock.Emit(EventAuth, map[string]string{"userId": userID}); err != nil {
			m.logger.Warn("auth announcement failed", zap.Error(err))
			return
		}
		_ = m.machine.Transition(status.Connected)
		m.bus.Emit(bus.RealtimeConnected, userID)
	})
	sock.On(realtime.EventDisconnect, func(json.RawMessage) {
		if !m.owns(sock) {
			return
		}
		m.logger.Warn("primary channel disconnected")
		_ = m.machine.Transition(status.Connecting)
		m.bus.Emit(bus.RealtimeDisconnected, userID)
	})
	sock.On(realtime.EventReconnectFailed, func(json.RawMessage) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.sock != sock {
			return
		}
		m.logger.Warn("primary channel degraded, realtime paused until the next sign-in")
		_ = sock.Close()
		m.sock = nil
		_ = m.machine.Transition(status.Degraded)
		m.bus.Emit(bus.RealtimeDegraded, userID)
	})
	sock.On(EventNotificationNew, func(data json.RawMessage) {
		if !m.owns(sock) {
			return
		}
		m.handleNotification(data)
	})

	_ = m.machine.Transition(status.Connecting)
	if err := sock.Connect(ctx); err != nil {
		m.logger.Error("primary channel connect", zap.Error(err))
	}
}

func (m *Manager) teardownLocked(reason string) {
	if m.sock == nil {
		_ = m.machine.Transition(status.Disconnected)
		return
	}
	m.logger.Info("closing primary channel", zap.String("reason", reason))
	_ = m.sock.Close()
	m.sock = nil
	m.userID = ""
	m.token = ""
	_ = m.machine.Transition(status.Disconnected)
}

func (m *Manager) owns(sock realtime.Channel) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sock == sock
}

func (m *Manager) handleNotification(data json.RawMessage) {
	var n backend.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		m.logger.Warn("undecodable notification", zap.Error(err))
		return
	}
	if n.Type == backend.NotificationChatMessage {
		m.logger.Debug("chat notification suppressed", zap.String("id", n.ID))
		m.bus.Emit(bus.NotificationSuppressed, n)
		return
	}
	m.alerter.Alert(n)
	m.bus.Emit(bus.NotificationReceived, n)
}
