package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/bus"
	"github.com/matheus3301/meeple/internal/community"
	"github.com/matheus3301/meeple/internal/feed"
	"github.com/matheus3301/meeple/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"auth error", &session.AuthError{Op: "sign in", Err: &backend.APIError{Status: 401, Message: "Invalid credentials"}}, codes.Unauthenticated},
		{"unauthorized", fmt.Errorf("refresh identity: %w", backend.ErrUnauthorized), codes.Unauthenticated},
		{"no credential", session.ErrNoCredential, codes.Unauthenticated},
		{"weak password", fmt.Errorf("%w: too short", session.ErrWeakPassword), codes.InvalidArgument},
		{"bad age", fmt.Errorf("%w %q", session.ErrInvalidAge, "ten"), codes.InvalidArgument},
		{"no email", session.ErrMissingEmail, codes.InvalidArgument},
		{"empty post", fmt.Errorf("create post: %w", feed.ErrEmptyPost), codes.InvalidArgument},
		{"no check-in code", community.ErrMissingCode, codes.InvalidArgument},
		{"no id", community.ErrMissingID, codes.InvalidArgument},
		{"unknown post", feed.ErrPostNotFound, codes.NotFound},
		{"server error", &backend.APIError{Status: 503, Message: "down"}, codes.Unavailable},
		{"network", fmt.Errorf("GET /users/me: %w", &net.OpError{Op: "dial", Err: errors.New("refused")}), codes.Unavailable},
		{"deadline", fmt.Errorf("load: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{"other", errors.New("disk full"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := toStatus("op", tt.err)
			assert.Equal(t, tt.want, grpcstatus.Code(err))
		})
	}
}

func TestMatchKind(t *testing.T) {
	assert.True(t, matchKind(nil, bus.ChatMessageReceived))
	assert.True(t, matchKind([]string{"session.", "chat."}, bus.ChatPresence))
	assert.False(t, matchKind([]string{"notification."}, bus.ChatPresence))
}

func TestWatchPayloadHidesCredential(t *testing.T) {
	evt := bus.NewEvent(bus.SessionIdentityChanged, session.IdentityChange{
		Identity: &backend.Identity{ID: "u1", Name: "Ana"},
		Token:    "secret-token",
	})
	raw, err := watchPayload(evt)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-token")

	var id backend.Identity
	require.NoError(t, json.Unmarshal(raw, &id))
	assert.Equal(t, "u1", id.ID)

	raw, err = watchPayload(bus.NewEvent(bus.SessionIdentityChanged, session.IdentityChange{}))
	require.NoError(t, err)
	assert.JSONEq(t, "null", string(raw))
}

func TestCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	assert.Equal(t, "json", c.Name())

	data, err := c.Marshal(&SendRequest{ChatID: "c1", Content: "hi"})
	require.NoError(t, err)
	var got SendRequest
	require.NoError(t, c.Unmarshal(data, &got))
	assert.Equal(t, "c1", got.ChatID)

	var empty Empty
	assert.NoError(t, c.Unmarshal(nil, &empty))
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, pageSize(0))
	assert.Equal(t, DefaultPageSize, pageSize(-3))
	assert.Equal(t, DefaultPageSize, pageSize(5000))
	assert.Equal(t, 20, pageSize(20))
}
