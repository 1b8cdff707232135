package api

import (
	"context"
	"strings"

	"github.com/matheus3301/meeple/internal/backend"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func (c *Control) Events(ctx context.Context, req *EventsRequest) (*EventsResponse, error) {
	if _, _, err := c.requireIdentity(); err != nil {
		return nil, err
	}
	filter := backend.EventFilter{Status: backend.EventStatus(strings.ToUpper(strings.TrimSpace(req.Status))), Mine: req.Mine}
	switch filter.Status {
	case "", backend.EventPending, backend.EventApproved, backend.EventRejected:
	default:
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown event status %q", req.Status)
	}
	events, err := c.Community.Events(ctx, filter, req.Refresh)
	if err != nil {
		return nil, toStatus("events", err)
	}
	return &EventsResponse{Events: events}, nil
}

func (c *Control) ToggleParticipation(ctx context.Context, req *EventRequest) (*EventResponse, error) {
	if _, _, err := c.requireIdentity(); err != nil {
		return nil, err
	}
	ev, err := c.Community.ToggleParticipation(ctx, req.EventID)
	if err != nil {
		return nil, toStatus("toggle participation", err)
	}
	return &EventResponse{Event: ev}, nil
}

func (c *Control) CheckIn(ctx context.Context, req *CheckInRequest) (*EventResponse, error) {
	if _, _, err := c.requireIdentity(); err != nil {
		return nil, err
	}
	ev, err := c.Community.CheckIn(ctx, req.EventID, req.Code)
	if err != nil {
		return nil, toStatus("check in", err)
	}
	return &EventResponse{Event: ev}, nil
}

func (c *Control) Friends(ctx context.Context, req *FriendsRequest) (*FriendsResponse, error) {
	if _, _, err := c.requireIdentity(); err != nil {
		return nil, err
	}
	f, err := c.Community.Friends(ctx, req.Refresh)
	if err != nil {
		return nil, toStatus("friends", err)
	}
	return &FriendsResponse{Friends: f.Friends, Requests: f.Requests}, nil
}

func (c *Control) FriendAction(ctx context.Context, req *FriendActionRequest) (*Empty, error) {
	if _, _, err := c.requireIdentity(); err != nil {
		return nil, err
	}
	var err error
	switch req.Action {
	case FriendAdd:
		err = c.Community.RequestFriend(ctx, req.ID)
	case FriendAccept:
		err = c.Community.Accept(ctx, req.ID)
	case FriendReject:
		err = c.Community.Reject(ctx, req.ID)
	default:
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown friend action %q", req.Action)
	}
	if err != nil {
		return nil, toStatus(req.Action+" friend", err)
	}
	return &Empty{}, nil
}
