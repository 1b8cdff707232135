package chat

import (
	"context"
	"sync"

	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/bus"
	"github.com/matheus3301/meeple/internal/realtime"
	"github.com/matheus3301/meeple/internal/session"
	"go.uber.org/zap"
)

type openConversation struct {
	conv  *Conversation
	token string
}

// Registry keeps at most one conversation per chat for the daemon and closes
// them all when the identity changes.
type Registry struct {
	dial   realtime.Dialer
	cfg    Config
	bus    *bus.Bus
	logger *zap.Logger

	mu    sync.Mutex
	convs map[string]openConversation

	unsub func()
	done  chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(dial realtime.Dialer, cfg Config, b *bus.Bus, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		dial:   dial,
		cfg:    cfg,
		bus:    b,
		logger: logger,
		convs:  make(map[string]openConversation),
	}
}

// Start closes every conversation on each identity change until Stop.
func (r *Registry) Start() {
	ch, unsub := r.bus.Subscribe(bus.SessionIdentityChanged, 16)
	r.unsub = unsub
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		for evt := range ch {
			change, ok := evt.Payload.(session.IdentityChange)
			if !ok {
				continue
			}
			r.closeWhere(func(oc openConversation) bool { return oc.token != change.Token })
		}
	}()
}

// Stop unsubscribes and exits every conversation.
func (r *Registry) Stop() {
	if r.unsub != nil {
		r.unsub()
		<-r.done
		r.unsub = nil
	}
	r.CloseAll()
}

// Open returns the conversation for chatID, entering it if needed.
func (r *Registry) Open(ctx context.Context, identity *backend.Identity, token, chatID string) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if oc, ok := r.convs[chatID]; ok {
		if oc.token == token {
			return oc.conv, nil
		}
		oc.conv.Exit()
		delete(r.convs, chatID)
	}
	s := NewSession(r.dial, r.cfg, r.bus, identity, token, r.logger)
	conv, err := Enter(ctx, s, chatID)
	if err != nil {
		return nil, err
	}
	r.convs[chatID] = openConversation{conv: conv, token: token}
	return conv, nil
}

// Get returns the open conversation for chatID, or nil.
func (r *Registry) Get(chatID string) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.convs[chatID].conv
}

// Close exits the conversation for chatID and reports whether one was open.
func (r *Registry) Close(chatID string) bool {
	r.mu.Lock()
	oc, ok := r.convs[chatID]
	delete(r.convs, chatID)
	r.mu.Unlock()
	if ok {
		oc.conv.Exit()
	}
	return ok
}

// CloseAll exits every open conversation.
func (r *Registry) CloseAll() {
	r.closeWhere(func(openConversation) bool { return true })
}

// Len returns the number of open conversations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.convs)
}

func (r *Registry) closeWhere(match func(openConversation) bool) {
	r.mu.Lock()
	var stale []*Conversation
	for id, oc := range r.convs {
		if match(oc) {
			stale = append(stale, oc.conv)
			delete(r.convs, id)
		}
	}
	r.mu.Unlock()
	for _, c := range stale {
		r.logger.Debug("closing conversation", zap.String("chat_id", c.ChatID()))
		c.Exit()
	}
}
