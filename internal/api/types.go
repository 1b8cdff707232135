package api

import (
	"encoding/json"
	"time"

	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/status"
	"github.com/matheus3301/meeple/internal/store"
)

// Empty is used by methods with nothing to send or return.
type Empty struct{}

type StatusResponse struct {
	Profile             string            `json:"profile"`
	Session             status.State      `json:"session"`
	Identity            *backend.Identity `json:"identity,omitempty"`
	Realtime            status.State      `json:"realtime"`
	RealtimeChannels    int               `json:"realtimeChannels"`
	OpenChats           int               `json:"openChats"`
	CredentialExpiresAt time.Time         `json:"credentialExpiresAt,omitzero"`
	CredentialExpired   bool              `json:"credentialExpired"`
	UnreadNotifications int               `json:"unreadNotifications"`
	CachedMessages      int               `json:"cachedMessages"`
	UptimeMs            int64             `json:"uptimeMs"`
}

type SignInRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// SignUpRequest carries the form as typed; Age is coerced by the daemon.
type SignUpRequest struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Age        string `json:"age"`
}

type IdentityResponse struct {
	Identity *backend.Identity `json:"identity,omitempty"`
}

type ListChatsRequest struct {
	Skip int `json:"skip"`
	Take int `json:"take"`
}

// ListChatsResponse is served from the local cache. Cached is set when the
// backend could not be reached and the rows may be behind.
type ListChatsResponse struct {
	Chats  []store.CachedChat `json:"chats"`
	Total  int                `json:"total"`
	Cached bool               `json:"cached"`
}

type HistoryRequest struct {
	ChatID string `json:"chatId"`
	Skip   int    `json:"skip"`
	Take   int    `json:"take"`
}

type HistoryResponse struct {
	Messages []backend.ChatMessage `json:"messages"`
	Total    int                   `json:"total"`
	Cached   bool                  `json:"cached"`
}

type SendRequest struct {
	ChatID   string `json:"chatId"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// SendResponse reports whether the frame went out. Nothing is queued.
type SendResponse struct {
	Sent bool `json:"sent"`
}

type ChatRequest struct {
	ChatID string `json:"chatId"`
}

type OpenChatResponse struct {
	ChatID string       `json:"chatId"`
	State  status.State `json:"state"`
}

type CloseChatResponse struct {
	Closed bool `json:"closed"`
}

type SearchRequest struct {
	Query  string `json:"query"`
	ChatID string `json:"chatId,omitempty"`
	Limit  int    `json:"limit"`
}

type SearchResponse struct {
	Messages []backend.ChatMessage `json:"messages"`
}

type PostsRequest struct {
	Refresh bool `json:"refresh"`
}

type PostsResponse struct {
	Posts []backend.Post `json:"posts"`
}

type ToggleLikeRequest struct {
	PostID string `json:"postId"`
}

type ToggleLikeResponse struct {
	Post backend.Post `json:"post"`
}

type NotificationsRequest struct {
	Limit int `json:"limit"`
}

type NotificationsResponse struct {
	Notifications []backend.Notification `json:"notifications"`
	Unread        int                    `json:"unread"`
	Cached        bool                   `json:"cached"`
}

type ReadNotificationRequest struct {
	ID string `json:"id"`
}

// WatchRequest filters the stream by kind prefix ("chat.", "notification.").
// No prefixes means every event.
type WatchRequest struct {
	Kinds []string `json:"kinds,omitempty"`
}

type WatchEvent struct {
	ID               string          `json:"id"`
	Profile          string          `json:"profile"`
	Kind             string          `json:"kind"`
	OccurredAtUnixMs int64           `json:"occurredAtUnixMs"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

// UpdateProfileRequest patches the identity; nil fields are left unchanged.
type UpdateProfileRequest struct {
	Name      *string `json:"name,omitempty"`
	Age       *int    `json:"age,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

type MembersResponse struct {
	Members []backend.UserSummary `json:"members"`
}

type CreatePostRequest struct {
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type PostResponse struct {
	Post backend.Post `json:"post"`
}

// Size limits of the control socket. A base64 upload must fit in one message.
const (
	MaxUploadBytes  = 8 << 20
	MaxMessageBytes = 12 << 20
)

// UploadRequest carries a whole file; Data is at most MaxUploadBytes.
type UploadRequest struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

type UploadResponse struct {
	URL string `json:"url"`
}

// EventsRequest filters events by moderation status (empty for all) and by
// the user's own participation.
type EventsRequest struct {
	Status  string `json:"status,omitempty"`
	Mine    bool   `json:"mine"`
	Refresh bool   `json:"refresh"`
}

type EventsResponse struct {
	Events []backend.Event `json:"events"`
}

type EventRequest struct {
	EventID string `json:"eventId"`
}

type CheckInRequest struct {
	EventID string `json:"eventId"`
	Code    string `json:"code"`
}

type EventResponse struct {
	Event backend.Event `json:"event"`
}

type FriendsRequest struct {
	Refresh bool `json:"refresh"`
}

type FriendsResponse struct {
	Friends  []backend.Friend        `json:"friends"`
	Requests []backend.FriendRequest `json:"requests"`
}

// Friend actions. Add takes a user id, accept and reject a request id.
const (
	FriendAdd    = "add"
	FriendAccept = "accept"
	FriendReject = "reject"
)

type FriendActionRequest struct {
	Action string `json:"action"`
	ID     string `json:"id"`
}
