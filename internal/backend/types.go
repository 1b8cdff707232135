package backend

import "time"

// Role is the authorization role of an identity.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Identity is the authenticated user's profile.
type Identity struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Role            Role   `json:"role"`
	Age             int    `json:"age,omitempty"`
	AvatarURL       string `json:"avatarUrl,omitempty"`
	ProfileComplete bool   `json:"profileComplete"`
}

// IsAdmin reports whether the identity has the ADMIN role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// UserSummary is the short form of a user embedded in other payloads.
type UserSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// ChatMessage is one message in a conversation.
type ChatMessage struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chatId"`
	SenderID  string      `json:"senderId"`
	Content   string      `json:"content"`
	ImageURL  string      `json:"imageUrl,omitempty"`
	Read      bool        `json:"read"`
	CreatedAt time.Time   `json:"createdAt"`
	Sender    UserSummary `json:"sender"`
}

// Chat is a conversation, either direct or attached to an event.
type Chat struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	IsGroup     bool         `json:"isGroup"`
	EventID     string       `json:"eventId,omitempty"`
	LastMessage *ChatMessage `json:"lastMessage,omitempty"`
	UnreadCount int          `json:"unreadCount"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// NotificationType categorizes pushed notifications.
type NotificationType string

const (
	NotificationChatMessage   NotificationType = "CHAT_MESSAGE"
	NotificationGeneral       NotificationType = "GENERAL"
	NotificationEvent         NotificationType = "EVENT"
	NotificationFriendRequest NotificationType = "FRIEND_REQUEST"
	NotificationReward        NotificationType = "REWARD"
)

// Notification is a pushed or fetched alert.
type Notification struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Icon      string           `json:"icon,omitempty"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// EventStatus is the moderation state of an event.
type EventStatus string

const (
	EventPending  EventStatus = "PENDING"
	EventApproved EventStatus = "APPROVED"
	EventRejected EventStatus = "REJECTED"
)

// Event is a community game session.
type Event struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Location      string        `json:"location,omitempty"`
	StartsAt      time.Time     `json:"startsAt"`
	EndsAt        time.Time     `json:"endsAt"`
	Capacity      int           `json:"capacity"`
	Status        EventStatus   `json:"status"`
	Participants  []UserSummary `json:"participants,omitempty"`
	Participating bool          `json:"participating"`
	CheckedIn     bool          `json:"checkedIn"`
	RoomID        string        `json:"roomId,omitempty"`
	GameID        string        `json:"gameId,omitempty"`
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	Status EventStatus
	Mine   bool
}

// Post is a social feed entry.
type Post struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"authorId"`
	Content     string    `json:"content"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	LikeCount   int       `json:"likeCount"`
	LikedByUser bool      `json:"likedByUser"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Friend is an accepted friendship.
type Friend struct {
	UserSummary
	Since time.Time `json:"since"`
}

// FriendRequest is a pending friendship.
type FriendRequest struct {
	ID        string      `json:"id"`
	From      UserSummary `json:"from"`
	CreatedAt time.Time   `json:"createdAt"`
}

// ProfileUpdate carries the editable profile fields; nil fields are left unchanged.
type ProfileUpdate struct {
	Name      *string `json:"name,omitempty"`
	Age       *int    `json:"age,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// Page is one slice of a skip/take paginated list.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}
