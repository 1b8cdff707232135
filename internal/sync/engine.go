package sync

import (
	"context"
	"fmt"

	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/bus"
	"github.com/matheus3301/meeple/internal/chat"
	"github.com/matheus3301/meeple/internal/community"
	"github.com/matheus3301/meeple/internal/session"
	"github.com/matheus3301/meeple/internal/store"
	"go.uber.org/zap"
)

// OwnerKey records which user the cached rows belong to.
const OwnerKey = "@meeple:owner"

// Upserted is the payload of bus.MessageUpserted.
type Upserted struct {
	ChatID    string
	MessageID string
}

// Views is the in-memory query cache kept in step with the session and pushes.
type Views interface {
	Claim(owner string)
	InvalidatePrefix(prefix string)
}

// invalidates maps pushed notification types to the views they make stale.
var invalidates = map[backend.NotificationType][]string{
	backend.NotificationFriendRequest: {community.FriendsPrefix},
	backend.NotificationEvent:         {community.EventsPrefix},
}

// Engine handles idempotent ingestion of pushed chats, messages and notifications
// into the local cache. It subscribes to the bus and never calls the channels.
type Engine struct {
	db     *store.DB
	views  Views
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new sync engine. views may be nil.
func NewEngine(db *store.DB, views Views, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:     db,
		views:  views,
		bus:    b,
		logger: logger.Named("sync"),
	}
}

// Start subscribes to chat, notification and identity events.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.done = make(chan struct{})
	chats, unsubChats := e.bus.Subscribe("chat.", 256)
	notes, unsubNotes := e.bus.Subscribe("notification.", 64)
	ids, unsubIDs := e.bus.Subscribe(bus.SessionIdentityChanged, 16)

	go func() {
		defer close(e.done)
		defer unsubChats()
		defer unsubNotes()
		defer unsubIDs()
		for {
			select {
			case evt := <-chats:
				e.handleEvent(evt)
			case evt := <-notes:
				e.handleEvent(evt)
			case evt := <-ids:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the loop to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
		e.cancel = nil
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case backend.ChatMessage:
		if err := e.IngestMessage(&p); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", p.ID))
		}
	case chat.ListUpdate:
		if p.Chat == nil {
			return
		}
		if err := e.db.UpsertChat(p.Chat); err != nil {
			e.logger.Error("failed to ingest chat", zap.Error(err), zap.String("chat_id", p.Chat.ID))
		}
	case backend.Notification:
		if err := e.db.UpsertNotification(&p); err != nil {
			e.logger.Error("failed to ingest notification", zap.Error(err), zap.String("id", p.ID))
		}
		if e.views != nil && evt.Kind == bus.NotificationReceived {
			for _, prefix := range invalidates[p.Type] {
				e.views.InvalidatePrefix(prefix)
			}
		}
	case session.IdentityChange:
		if e.views != nil {
			owner := ""
			if p.Identity != nil {
				owner = p.Identity.ID
			}
			e.views.Claim(owner)
		}
		if err := e.Claim(p.Identity); err != nil {
			e.logger.Error("failed to switch cache owner", zap.Error(err))
		}
	}
}

// IngestMessage stores one message and advances its chat (idempotent).
func (e *Engine) IngestMessage(msg *backend.ChatMessage) error {
	if err := e.db.TouchChat(msg); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	if err := e.db.UpsertMessage(msg); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	e.bus.Emit(bus.MessageUpserted, Upserted{ChatID: msg.ChatID, MessageID: msg.ID})
	return nil
}

// IngestHistory stores a fetched page of one chat in a single transaction.
func (e *Engine) IngestHistory(chatID string, msgs []backend.ChatMessage) error {
	for i := range msgs {
		if msgs[i].ChatID == "" {
			msgs[i].ChatID = chatID
		}
	}
	if err := e.db.UpsertMessages(msgs); err != nil {
		return fmt.Errorf("ingest history: %w", err)
	}
	e.logger.Debug("history ingested", zap.String("chat_id", chatID), zap.Int("messages", len(msgs)))
	return nil
}

// IngestChats stores a fetched chat list page.
func (e *Engine) IngestChats(chats []backend.Chat) error {
	for i := range chats {
		if err := e.db.UpsertChat(&chats[i]); err != nil {
			return fmt.Errorf("ingest chat %s: %w", chats[i].ID, err)
		}
	}
	return nil
}

// IngestNotifications stores a fetched notification list.
func (e *Engine) IngestNotifications(ns []backend.Notification) error {
	for i := range ns {
		if err := e.db.UpsertNotification(&ns[i]); err != nil {
			return fmt.Errorf("ingest notification %s: %w", ns[i].ID, err)
		}
	}
	return nil
}

// Claim makes the cache belong to identity. Rows of a previous user are purged;
// a nil identity purges and forgets the owner.
func (e *Engine) Claim(identity *backend.Identity) error {
	owner, _, err := e.db.GetValue(OwnerKey)
	if err != nil {
		return err
	}
	next := ""
	if identity != nil {
		next = identity.ID
	}
	if owner == next {
		return nil
	}
	if owner != "" {
		e.logger.Info("purging cache of previous user")
		if err := e.db.Purge(); err != nil {
			return err
		}
	}
	if next == "" {
		return e.db.DeleteValue(OwnerKey)
	}
	return e.db.SetValue(OwnerKey, next)
}
