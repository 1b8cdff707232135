package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/chat"
	"github.com/matheus3301/meeple/internal/status"
	"github.com/matheus3301/meeple/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// DefaultPageSize applies when a request leaves Take or Limit at zero.
const DefaultPageSize = 50

// joinWait bounds how long OpenChat waits for the room to be joined.
const joinWait = 5 * time.Second

func pageSize(n int) int {
	if n <= 0 || n > 200 {
		return DefaultPageSize
	}
	return n
}

// ListChats fetches a page of chats into the local cache and serves it from
// there. When the backend is unreachable the cached list is returned instead.
func (c *Control) ListChats(ctx context.Context, req *ListChatsRequest) (*ListChatsResponse, error) {
	if _, _, err := c.requireIdentity(); err != nil {
		return nil, err
	}
	take := pageSize(req.Take)
	page, err := c.API.ListChats(ctx, req.Skip, take)
	if errors.Is(err, backend.ErrUnauthorized) {
		return nil, toStatus("list chats", err)
	}
	if err != nil {
		c.logger.Warn("chat list fetch failed, serving cache", zap.Error(err))
		chats, err := c.DB.ListChats(take, req.Skip)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "list cached chats: %v", err)
		}
		return &ListChatsResponse{Chats: chats, Total: len(chats), Cached: true}, nil
	}

	if err := c.Engine.IngestChats(page.Items); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "cache chats: %v", err)
	}
	resp := &ListChatsResponse{Chats: make([]store.CachedChat, 0, len(page.Items)), Total: page.Total}
	for _, ch := range page.Items {
		cached, err := c.DB.GetChat(ch.ID)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "read chat %s: %v", ch.ID, err)
		}
		if cached != nil {
			resp.Chats = append(resp.Chats, *cached)
		}
	}
	return resp, nil
}

// History fetches a page of a chat's messages and merges the live buffer of an
// open conversation into the first page. Every message id appears once.
func (c *Control) History(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	if req.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat id is required")
	}
	if _, _, err := c.requireIdentity(); err != nil {
		return nil, err
	}
	take := pageSize(req.Take)

	var live []backend.ChatMessage
	if conv := c.Chats.Get(req.ChatID); conv != nil && req.Skip == 0 {
		for _, m := range conv.Session().Messages() {
			if m.ChatID == req.ChatID {
				live = append(live, m)
			}
		}
	}

	page, err := c.API.ChatMessages(ctx, req.ChatID, req.Skip, take)
	if errors.Is(err, backend.ErrUnauthorized) {
		return nil, toStatus("history", err)
	}
	if err != nil {
		if req.Skip > 0 {
			return nil, toStatus("history", err)
		}
		c.logger.Warn("history fetch failed, serving cache", zap.String("chat_id", req.ChatID), zap.Error(err))
		cached, err := c.DB.ListMessages(req.ChatID, time.Time{}, take)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "list cached messages: %v", err)
		}
		merged := chat.MergeMessages(cached, live)
		return &HistoryResponse{Messages: merged, Total: len(merged), Cached: true}, nil
	}

	if err := c.Engine.IngestHistory(req.ChatID, page.Items); err != nil {
		c.logger.Warn("failed to cache history", zap.String("chat_id", req.ChatID), zap.Error(err))
	}
	return &HistoryResponse{Messages: chat.MergeMessages(page.Items, live), Total: page.Total}, nil
}

// Send emits a message on the chat's open conversation. A disconnected channel
// drops it and Sent is false.
func (c *Control) Send(_ context.Context, req *SendRequest) (*SendResponse, error) {
	if req.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat id is required")
	}
	if strings.TrimSpace(req.Content) == "" && req.ImageURL == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "content or image is required")
	}
	conv := c.Chats.Get(req.ChatID)
	if conv == nil {
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "chat %q is not open", req.ChatID)
	}
	return &SendResponse{Sent: conv.Session().SendMessage(req.ChatID, req.Content, req.ImageURL)}, nil
}

// MarkRead clears the cached unread count and tells the server when the chat
// is open.
func (c *Control) MarkRead(_ context.Context, req *ChatRequest) (*SendResponse, error) {
	if req.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat id is required")
	}
	sent := false
	if conv := c.Chats.Get(req.ChatID); conv != nil {
		sent = conv.Session().MarkRead(req.ChatID)
	}
	if err := c.DB.MarkChatRead(req.ChatID); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "mark read: %v", err)
	}
	return &SendResponse{Sent: sent}, nil
}

// OpenChat enters the chat's conversation and waits briefly for the room join.
func (c *Control) OpenChat(ctx context.Context, req *ChatRequest) (*OpenChatResponse, error) {
	if req.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat id is required")
	}
	id, token, err := c.requireIdentity()
	if err != nil {
		return nil, err
	}
	conv, err := c.Chats.Open(ctx, id, token, req.ChatID)
	if err != nil {
		return nil, toStatus("open chat", err)
	}
	waitInRoom(ctx, conv.Session(), joinWait)
	return &OpenChatResponse{ChatID: req.ChatID, State: conv.Session().State()}, nil
}

func (c *Control) CloseChat(_ context.Context, req *ChatRequest) (*CloseChatResponse, error) {
	return &CloseChatResponse{Closed: c.Chats.Close(req.ChatID)}, nil
}

// Search looks up cached messages by content.
func (c *Control) Search(_ context.Context, req *SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "query is required")
	}
	msgs, err := c.DB.SearchMessages(req.Query, req.ChatID, pageSize(req.Limit))
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "search: %v", err)
	}
	return &SearchResponse{Messages: msgs}, nil
}

// Members lists the participants of a conversation.
func (c *Control) Members(ctx context.Context, req *ChatRequest) (*MembersResponse, error) {
	if req.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat id is required")
	}
	if _, _, err := c.requireIdentity(); err != nil {
		return nil, err
	}
	members, err := c.API.ChatMembers(ctx, req.ChatID)
	if err != nil {
		return nil, toStatus("members", err)
	}
	return &MembersResponse{Members: members}, nil
}

func waitInRoom(ctx context.Context, s *chat.Session, d time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for s.State() != status.InRoom {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}
