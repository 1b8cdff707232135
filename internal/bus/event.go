package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter on prefixes such as "session." or "chat.".
const (
	SessionStatusChanged   = "session.status_changed"
	SessionIdentityChanged = "session.identity_changed"
	ChatStatusChanged      = "chat.status_changed"
	ChatMessageReceived    = "chat.message_received"
	ChatPresence           = "chat.presence"
	ChatListUpdated        = "chat.list_updated"
	NotificationReceived   = "notification.received"
	NotificationSuppressed = "notification.suppressed"
	RealtimeConnected      = "realtime.connected"
	RealtimeDisconnected   = "realtime.disconnected"
	RealtimeDegraded       = "realtime.degraded"
	MessageUpserted        = "message.upserted"
	CacheInvalidated       = "cache.invalidated"
	CachePurged            = "cache.purged"
)

// NewEvent builds an event stamped with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
