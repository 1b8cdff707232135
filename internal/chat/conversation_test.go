package chat

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/meeple/internal/bus"
	"github.com/matheus3301/meeple/internal/realtime/realtimetest"
	"github.com/matheus3301/meeple/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConversationJoinsOnceAndLeavesExactlyOnce(t *testing.T) {
	srv := realtimetest.NewServer(t)
	s := NewSession(nil, testConfig(srv.URL), nil, ana(), "tok", zap.NewNop())

	conv, err := Enter(context.Background(), s, "abc")
	require.NoError(t, err)
	join := srv.WaitFrames(t, EventJoin, 1)
	assert.JSONEq(t, `{"chatId":"abc"}`, string(join[0].Data))

	// Auth goes out before the join.
	require.Len(t, srv.Frames(EventAuth), 1)

	conv.Exit()
	conv.Exit()
	leave := srv.WaitFrames(t, EventLeave, 1)
	assert.JSONEq(t, `{"chatId":"abc"}`, string(leave[0].Data))

	srv.WaitOpen(t, 0)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, srv.Frames(EventJoin), 1)
	assert.Len(t, srv.Frames(EventLeave), 1)
}

func TestConversationEnterWithoutSession(t *testing.T) {
	s := NewSession(nil, testConfig("ws://unused"), nil, nil, "", zap.NewNop())
	_, err := Enter(context.Background(), s, "abc")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRegistryOneConversationPerChat(t *testing.T) {
	srv := realtimetest.NewServer(t)
	b := bus.New()
	r := NewRegistry(nil, testConfig(srv.URL), b, zap.NewNop())
	r.Start()
	defer r.Stop()

	ctx := context.Background()
	c1, err := r.Open(ctx, ana(), "tok", "abc")
	require.NoError(t, err)
	c2, err := r.Open(ctx, ana(), "tok", "abc")
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	_, err = r.Open(ctx, ana(), "tok", "xyz")
	require.NoError(t, err)
	srv.WaitFrames(t, EventJoin, 2)
	assert.Equal(t, 2, r.Len())

	assert.True(t, r.Close("abc"))
	assert.False(t, r.Close("abc"))
	srv.WaitFrames(t, EventLeave, 1)
	srv.WaitOpen(t, 1)

	// Signing out closes what is left.
	b.Emit(bus.SessionIdentityChanged, session.IdentityChange{})
	srv.WaitOpen(t, 0)
	require.Eventually(t, func() bool { return r.Len() == 0 }, 3*time.Second, 5*time.Millisecond)
}
