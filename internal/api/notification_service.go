package api

import (
	"context"
	"errors"

	"github.com/matheus3301/meeple/internal/backend"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Notifications refreshes the cached notification list and serves it, falling
// back to the cache when the backend is unreachable.
func (c *Control) Notifications(ctx context.Context, req *NotificationsRequest) (*NotificationsResponse, error) {
	if _, _, err := c.requireIdentity(); err != nil {
		return nil, err
	}
	resp := &NotificationsResponse{}
	fetched, err := c.API.Notifications(ctx)
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		return nil, toStatus("notifications", err)
	case err != nil:
		c.logger.Warn("notification fetch failed, serving cache", zap.Error(err))
		resp.Cached = true
	default:
		if err := c.Engine.IngestNotifications(fetched); err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "cache notifications: %v", err)
		}
	}
	if resp.Notifications, err = c.DB.ListNotifications(pageSize(req.Limit)); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list notifications: %v", err)
	}
	if resp.Unread, err = c.DB.UnreadNotifications(); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "count unread: %v", err)
	}
	return resp, nil
}

func (c *Control) ReadNotification(ctx context.Context, req *ReadNotificationRequest) (*Empty, error) {
	if req.ID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "notification id is required")
	}
	if _, _, err := c.requireIdentity(); err != nil {
		return nil, err
	}
	if err := c.API.MarkNotificationRead(ctx, req.ID); err != nil {
		return nil, toStatus("read notification", err)
	}
	if err := c.DB.MarkNotificationRead(req.ID); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "mark notification read: %v", err)
	}
	return &Empty{}, nil
}
