// Package api implements the daemon's local control service.
package api

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/bus"
	"github.com/matheus3301/meeple/internal/chat"
	"github.com/matheus3301/meeple/internal/community"
	"github.com/matheus3301/meeple/internal/feed"
	"github.com/matheus3301/meeple/internal/notify"
	"github.com/matheus3301/meeple/internal/session"
	"github.com/matheus3301/meeple/internal/store"
	intsync "github.com/matheus3301/meeple/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Backend is the subset of the REST client the control service reads through.
type Backend interface {
	ListChats(ctx context.Context, skip, take int) (*backend.Page[backend.Chat], error)
	ChatMessages(ctx context.Context, chatID string, skip, take int) (*backend.Page[backend.ChatMessage], error)
	Notifications(ctx context.Context) ([]backend.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	ChatMembers(ctx context.Context, chatID string) ([]backend.UserSummary, error)
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// Deps are the daemon components the control service drives.
type Deps struct {
	Profile   string
	API       Backend
	Session   *session.Store
	DB        *store.DB
	Engine    *intsync.Engine
	Chats     *chat.Registry
	Feed      *feed.Service
	Community *community.Service
	Realtime  *notify.Manager
	Bus       *bus.Bus
	Logger    *zap.Logger
}

// Control implements ControlServer.
type Control struct {
	Deps
	startedAt time.Time
	logger    *zap.Logger
}

var _ ControlServer = (*Control)(nil)

// NewControl creates the control service.
func NewControl(d Deps) *Control {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Control{Deps: d, startedAt: time.Now(), logger: logger.Named("api")}
}

func (c *Control) Status(_ context.Context, _ *Empty) (*StatusResponse, error) {
	resp := &StatusResponse{
		Profile:          c.Profile,
		Session:          c.Session.State(),
		Identity:         c.Session.Identity(),
		Realtime:         c.Realtime.State(),
		RealtimeChannels: c.Realtime.Open(),
		OpenChats:        c.Chats.Len(),
		UptimeMs:         time.Since(c.startedAt).Milliseconds(),
	}
	if exp, ok := c.Session.CredentialExpiry(); ok {
		resp.CredentialExpiresAt = exp
		resp.CredentialExpired = c.Session.CredentialExpired()
	}
	if n, err := c.DB.UnreadNotifications(); err == nil {
		resp.UnreadNotifications = n
	}
	if n, err := c.DB.MessageCount(); err == nil {
		resp.CachedMessages = n
	}
	return resp, nil
}

func (c *Control) SignIn(ctx context.Context, req *SignInRequest) (*IdentityResponse, error) {
	if req.Identifier == "" || req.Password == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "identifier and password are required")
	}
	if err := c.Session.SignIn(ctx, req.Identifier, req.Password); err != nil {
		return nil, toStatus("sign in", err)
	}
	return &IdentityResponse{Identity: c.Session.Identity()}, nil
}

func (c *Control) SignUp(ctx context.Context, req *SignUpRequest) (*IdentityResponse, error) {
	if err := c.Session.SignUp(ctx, req.Name, req.Identifier, req.Password, req.Age); err != nil {
		return nil, toStatus("sign up", err)
	}
	return &IdentityResponse{Identity: c.Session.Identity()}, nil
}

func (c *Control) SignOut(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := c.Session.SignOut(ctx); err != nil {
		return nil, toStatus("sign out", err)
	}
	return &Empty{}, nil
}

// Refresh re-fetches the identity. On failure the session is kept and the
// error is returned with the current identity still served by Status.
func (c *Control) Refresh(ctx context.Context, _ *Empty) (*IdentityResponse, error) {
	if err := c.Session.RefreshIdentity(ctx); err != nil {
		return nil, toStatus("refresh", err)
	}
	return &IdentityResponse{Identity: c.Session.Identity()}, nil
}

func (c *Control) UpdateProfile(ctx context.Context, req *UpdateProfileRequest) (*IdentityResponse, error) {
	if req.Name == nil && req.Age == nil && req.AvatarURL == nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, "nothing to update")
	}
	upd := backend.ProfileUpdate{Name: req.Name, Age: req.Age, AvatarURL: req.AvatarURL}
	if err := c.Session.UpdateProfile(ctx, upd); err != nil {
		return nil, toStatus("update profile", err)
	}
	return &IdentityResponse{Identity: c.Session.Identity()}, nil
}

func (c *Control) ForgotPassword(ctx context.Context, req *ForgotPasswordRequest) (*Empty, error) {
	if err := c.Session.ForgotPassword(ctx, req.Email); err != nil {
		return nil, toStatus("forgot password", err)
	}
	return &Empty{}, nil
}

func (c *Control) ResetPassword(ctx context.Context, req *ResetPasswordRequest) (*Empty, error) {
	if req.Code == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "reset code is required")
	}
	if err := c.Session.ResetPassword(ctx, req.Code, req.Password); err != nil {
		return nil, toStatus("reset password", err)
	}
	return &Empty{}, nil
}

// requireIdentity returns the signed-in identity and its credential.
func (c *Control) requireIdentity() (*backend.Identity, string, error) {
	id := c.Session.Identity()
	token := c.Session.Credential()
	if id == nil || token == "" {
		return nil, "", grpcstatus.Error(codes.Unauthenticated, "not signed in")
	}
	return id, token, nil
}

// toStatus maps component errors onto gRPC codes.
func toStatus(op string, err error) error {
	var authErr *session.AuthError
	var apiErr *backend.APIError
	var netErr net.Error
	code := codes.Internal
	switch {
	case errors.As(err, &authErr),
		errors.Is(err, backend.ErrUnauthorized),
		errors.Is(err, session.ErrNoCredential):
		code = codes.Unauthenticated
	case errors.Is(err, session.ErrWeakPassword),
		errors.Is(err, session.ErrInvalidAge),
		errors.Is(err, session.ErrMissingEmail),
		errors.Is(err, feed.ErrEmptyPost),
		errors.Is(err, community.ErrMissingCode),
		errors.Is(err, community.ErrMissingID):
		code = codes.InvalidArgument
	case errors.Is(err, feed.ErrPostNotFound):
		code = codes.NotFound
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.As(err, &apiErr), errors.As(err, &netErr):
		code = codes.Unavailable
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
