// Package community serves events and friendships through the query cache.
// Writes go straight to the backend and invalidate the views they touch.
package community

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Cache key prefixes. Keys continue with the viewer's user id.
const (
	EventsPrefix  = "events:"
	FriendsPrefix = "friends:"
)

var (
	// ErrMissingCode is returned by CheckIn without a scanned code.
	ErrMissingCode = errors.New("check-in code is required")
	// ErrMissingID is returned when an event, user or request id is empty.
	ErrMissingID = errors.New("id is required")
)

// API is the subset of the backend client this package needs.
type API interface {
	ListEvents(ctx context.Context, filter backend.EventFilter) ([]backend.Event, error)
	CheckIn(ctx context.Context, id, code string) (*backend.Event, error)
	ToggleParticipation(ctx context.Context, id string) (*backend.Event, error)
	Friends(ctx context.Context) ([]backend.Friend, error)
	FriendRequests(ctx context.Context) ([]backend.FriendRequest, error)
	SendFriendRequest(ctx context.Context, userID string) error
	AcceptFriendRequest(ctx context.Context, requestID string) error
	RejectFriendRequest(ctx context.Context, requestID string) error
}

// Viewer reports who the views are fetched for.
type Viewer interface {
	Identity() *backend.Identity
}

// Friends is the friends view: accepted friendships and pending incoming requests.
type Friends struct {
	Friends  []backend.Friend
	Requests []backend.FriendRequest
}

// Service reads and writes events and friendships.
type Service struct {
	api    API
	cache  *cache.Cache
	viewer Viewer
	logger *zap.Logger
}

// NewService creates a community service.
func NewService(api API, c *cache.Cache, viewer Viewer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{api: api, cache: c, viewer: viewer, logger: logger.Named("community")}
}

func (s *Service) owner() string {
	if s.viewer == nil {
		return ""
	}
	if id := s.viewer.Identity(); id != nil {
		return id.ID
	}
	return ""
}

func (s *Service) eventsKey(filter backend.EventFilter) string {
	return EventsPrefix + s.owner() + ":" + string(filter.Status) + ":" + strconv.FormatBool(filter.Mine)
}

func (s *Service) friendsKey() string {
	return FriendsPrefix + s.owner()
}

// Events returns the events matching filter, refetching when refresh is set.
func (s *Service) Events(ctx context.Context, filter backend.EventFilter, refresh bool) ([]backend.Event, error) {
	fetch := func(ctx context.Context) (any, error) {
		events, err := s.api.ListEvents(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		return events, nil
	}
	key := s.eventsKey(filter)
	var (
		v   any
		err error
	)
	if refresh {
		v, err = s.cache.Refetch(ctx, key, fetch)
	} else {
		v, err = s.cache.Fetch(ctx, key, fetch)
	}
	if err != nil {
		return nil, err
	}
	events, _ := v.([]backend.Event)
	return events, nil
}

// ToggleParticipation joins or leaves an event.
func (s *Service) ToggleParticipation(ctx context.Context, eventID string) (backend.Event, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return backend.Event{}, ErrMissingID
	}
	ev, err := s.api.ToggleParticipation(ctx, eventID)
	if err != nil {
		return backend.Event{}, fmt.Errorf("toggle participation: %w", err)
	}
	s.cache.InvalidatePrefix(EventsPrefix + s.owner() + ":")
	s.logger.Info("participation toggled", zap.String("event_id", eventID), zap.Bool("participating", ev.Participating))
	return *ev, nil
}

// CheckIn marks the user present at an event with the scanned code.
func (s *Service) CheckIn(ctx context.Context, eventID, code string) (backend.Event, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return backend.Event{}, ErrMissingID
	}
	if strings.TrimSpace(code) == "" {
		return backend.Event{}, ErrMissingCode
	}
	ev, err := s.api.CheckIn(ctx, eventID, strings.TrimSpace(code))
	if err != nil {
		return backend.Event{}, fmt.Errorf("check in: %w", err)
	}
	s.cache.InvalidatePrefix(EventsPrefix + s.owner() + ":")
	return *ev, nil
}

// Friends returns friendships and pending requests, fetched together.
func (s *Service) Friends(ctx context.Context, refresh bool) (Friends, error) {
	fetch := func(ctx context.Context) (any, error) {
		var out Friends
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			friends, err := s.api.Friends(ctx)
			out.Friends = friends
			return err
		})
		g.Go(func() error {
			reqs, err := s.api.FriendRequests(ctx)
			out.Requests = reqs
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("list friends: %w", err)
		}
		return out, nil
	}
	var (
		v   any
		err error
	)
	if refresh {
		v, err = s.cache.Refetch(ctx, s.friendsKey(), fetch)
	} else {
		v, err = s.cache.Fetch(ctx, s.friendsKey(), fetch)
	}
	if err != nil {
		return Friends{}, err
	}
	f, _ := v.(Friends)
	return f, nil
}

// RequestFriend sends a friend request to userID.
func (s *Service) RequestFriend(ctx context.Context, userID string) error {
	return s.friendWrite(ctx, "send friend request", userID, s.api.SendFriendRequest)
}

// Accept accepts a pending friend request.
func (s *Service) Accept(ctx context.Context, requestID string) error {
	return s.friendWrite(ctx, "accept friend request", requestID, s.api.AcceptFriendRequest)
}

// Reject declines a pending friend request.
func (s *Service) Reject(ctx context.Context, requestID string) error {
	return s.friendWrite(ctx, "reject friend request", requestID, s.api.RejectFriendRequest)
}

func (s *Service) friendWrite(ctx context.Context, op, id string, call func(context.Context, string) error) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrMissingID
	}
	if err := call(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.cache.Invalidate(s.friendsKey())
	return nil
}
