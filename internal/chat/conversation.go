package chat

import (
	"context"
	"sync"
)

// Conversation scopes a session to one open chat: it joins the room once the
// channel is connected and leaves exactly once on Exit.
type Conversation struct {
	session *Session
	chatID  string

	join  sync.Once
	leave sync.Once
	off   func()
}

// Enter connects the session and joins chatID as soon as the channel is up.
func Enter(ctx context.Context, s *Session, chatID string) (*Conversation, error) {
	c := &Conversation{session: s, chatID: chatID}
	c.off = s.OnConnected(c.joinOnce)
	if err := s.Connect(ctx); err != nil {
		c.off()
		return nil, err
	}
	if s.Connected() {
		c.joinOnce()
	}
	return c, nil
}

func (c *Conversation) joinOnce() {
	c.join.Do(func() { c.session.JoinChat(c.chatID) })
}

// ChatID returns the conversation's chat.
func (c *Conversation) ChatID() string {
	return c.chatID
}

// Session returns the underlying chat session.
func (c *Conversation) Session() *Session {
	return c.session
}

// Exit leaves the room and closes the channel. Later calls do nothing.
func (c *Conversation) Exit() {
	c.leave.Do(func() {
		c.off()
		c.session.LeaveChat(c.chatID)
		_ = c.session.Close()
	})
}
