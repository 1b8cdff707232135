package backend

import (
	"context"
	"net/http"
)

// ListChats returns the user's conversations, newest first.
func (c *Client) ListChats(ctx context.Context, skip, take int) (*Page[Chat], error) {
	var page Page[Chat]
	if err := c.do(ctx, http.MethodGet, "/chats", pageQuery(skip, take), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ChatMessages returns one page of a conversation's history.
func (c *Client) ChatMessages(ctx context.Context, chatID string, skip, take int) (*Page[ChatMessage], error) {
	var page Page[ChatMessage]
	if err := c.do(ctx, http.MethodGet, "/chats/"+seg(chatID)+"/messages", pageQuery(skip, take), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ChatMembers lists the participants of a conversation.
func (c *Client) ChatMembers(ctx context.Context, chatID string) ([]UserSummary, error) {
	var members []UserSummary
	if err := c.do(ctx, http.MethodGet, "/chats/"+seg(chatID)+"/members", nil, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// LeaveChat removes the current user from a group conversation.
func (c *Client) LeaveChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodPost, "/chats/"+seg(chatID)+"/leave", nil, nil, nil)
}
