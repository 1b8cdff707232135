package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/bus"
	"github.com/matheus3301/meeple/internal/realtime/realtimetest"
	"github.com/matheus3301/meeple/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig(url string) Config {
	return Config{URL: url, Attempts: 2, Delay: 10 * time.Millisecond, DelayMax: 20 * time.Millisecond}
}

func ana() *backend.Identity {
	return &backend.Identity{ID: "u1", Name: "Ana"}
}

func connected(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, s.Connected, 3*time.Second, 5*time.Millisecond)
}

func TestConnectRequiresIdentity(t *testing.T) {
	s := NewSession(nil, testConfig("ws://unused"), nil, nil, "tok", zap.NewNop())
	assert.ErrorIs(t, s.Connect(context.Background()), ErrNoSession)
	s = NewSession(nil, testConfig("ws://unused"), nil, ana(), "", zap.NewNop())
	assert.ErrorIs(t, s.Connect(context.Background()), ErrNoSession)
}

func TestHandshakeCarriesCredentialAndAuth(t *testing.T) {
	srv := realtimetest.NewServer(t)
	s := NewSession(nil, testConfig(srv.URL), nil, ana(), "tok", zap.NewNop())
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	frames := srv.WaitFrames(t, EventAuth, 1)
	assert.Equal(t, "/chat", frames[0].Path)
	assert.JSONEq(t, `{"userId":"u1"}`, string(frames[0].Data))

	hs := srv.Handshakes()
	require.Len(t, hs, 1)
	assert.Equal(t, "Bearer tok", hs[0].Header.Get("Authorization"))
	assert.Equal(t, "tok", hs[0].Query.Get("token"))
	require.Eventually(t, func() bool { return s.State() == status.Connected }, 3*time.Second, 5*time.Millisecond)

	// A second Connect does not open another channel.
	require.NoError(t, s.Connect(context.Background()))
	assert.Len(t, srv.Handshakes(), 1)
}

func TestOperationsWhileDisconnectedAreLoggedNoOps(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := NewSession(nil, testConfig("ws://unused"), nil, ana(), "tok", zap.New(core))

	assert.NotPanics(t, func() {
		assert.False(t, s.SendMessage("abc", "hi", ""))
		assert.False(t, s.MarkRead("abc"))
		assert.False(t, s.JoinChat("abc"))
		assert.False(t, s.LeaveChat("abc"))
	})
	assert.Equal(t, 4, logs.FilterMessage("chat channel not connected, dropping").Len())
	assert.Equal(t, status.Disconnected, s.State())
}

func TestNothingQueuedWhileDisconnected(t *testing.T) {
	srv := realtimetest.NewServer(t)
	s := NewSession(nil, testConfig(srv.URL), nil, ana(), "tok", zap.NewNop())

	s.SendMessage("abc", "early", "")
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()
	connected(t, s)

	require.True(t, s.SendMessage("abc", "late", "https://cdn/x.png"))
	srv.WaitFrames(t, EventSend, 1)
	time.Sleep(50 * time.Millisecond)
	frames := srv.Frames(EventSend)
	require.Len(t, frames, 1, "the early message must not be replayed")
	assert.JSONEq(t, `{"chatId":"abc","content":"late","imageUrl":"https://cdn/x.png"}`, string(frames[0].Data))
}

func TestEmitsRoomAndReadEvents(t *testing.T) {
	srv := realtimetest.NewServer(t)
	s := NewSession(nil, testConfig(srv.URL), nil, ana(), "tok", zap.NewNop())
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()
	connected(t, s)

	require.True(t, s.JoinChat("abc"))
	assert.Equal(t, status.InRoom, s.State())
	require.True(t, s.MarkRead("abc"))
	require.True(t, s.LeaveChat("abc"))
	assert.Equal(t, status.Connected, s.State())

	assert.JSONEq(t, `{"chatId":"abc"}`, string(srv.WaitFrames(t, EventJoin, 1)[0].Data))
	assert.JSONEq(t, `{"chatId":"abc"}`, string(srv.WaitFrames(t, EventMarkRead, 1)[0].Data))
	assert.JSONEq(t, `{"chatId":"abc"}`, string(srv.WaitFrames(t, EventLeave, 1)[0].Data))
}

func TestLiveMessagesBufferedAndDeduplicated(t *testing.T) {
	srv := realtimetest.NewServer(t)
	b := bus.New()
	events, cancel := b.Subscribe("chat.message", 16)
	defer cancel()

	s := NewSession(nil, testConfig(srv.URL), b, ana(), "tok", zap.NewNop())
	var mu sync.Mutex
	var observed []string
	s.OnMessage(func(m backend.ChatMessage) {
		mu.Lock()
		observed = append(observed, m.ID)
		mu.Unlock()
	})
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()
	srv.WaitFrames(t, EventAuth, 1)

	srv.Push(EventMessageNew, backend.ChatMessage{ID: "m1", ChatID: "abc", Content: "one"})
	srv.Push(EventMessageNew, backend.ChatMessage{ID: "m1", ChatID: "abc", Content: "again"})
	srv.Push(EventMessageNew, backend.ChatMessage{ID: "m2", ChatID: "abc", Content: "two"})
	srv.Push(EventMessageNew, map[string]string{"content": "no id"})

	require.Eventually(t, func() bool { return len(s.Messages()) == 2 }, 3*time.Second, 5*time.Millisecond)
	msgs := s.Messages()
	assert.Equal(t, []string{"m1", "m2"}, ids(msgs))
	assert.Equal(t, "one", msgs[0].Content)

	mu.Lock()
	assert.Equal(t, []string{"m1", "m2"}, observed)
	mu.Unlock()

	select {
	case evt := <-events:
		assert.Equal(t, bus.ChatMessageReceived, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("no chat.message_received event")
	}
}

func TestPresenceAndListUpdates(t *testing.T) {
	srv := realtimetest.NewServer(t)
	s := NewSession(nil, testConfig(srv.URL), nil, ana(), "tok", zap.NewNop())
	presence := make(chan Presence, 4)
	lists := make(chan ListUpdate, 4)
	s.OnPresence(func(p Presence) { presence <- p })
	s.OnListUpdate(func(u ListUpdate) { lists <- u })
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()
	srv.WaitFrames(t, EventAuth, 1)

	srv.Push(EventUserJoined, map[string]string{"chatId": "abc", "userId": "u2"})
	srv.Push(EventUserLeft, map[string]string{"chatId": "abc", "userId": "u2"})
	srv.Push(EventListUpdate, backend.Chat{ID: "abc", Name: "Catan", UnreadCount: 3})

	p := <-presence
	assert.Equal(t, Presence{ChatID: "abc", UserID: "u2", Joined: true}, p)
	p = <-presence
	assert.False(t, p.Joined)
	select {
	case u := <-lists:
		require.NotNil(t, u.Chat)
		assert.Equal(t, 3, u.Chat.UnreadCount)
	case <-time.After(3 * time.Second):
		t.Fatal("no list update")
	}
}

func TestRoomsRejoinedAfterReconnect(t *testing.T) {
	srv := realtimetest.NewServer(t)
	s := NewSession(nil, testConfig(srv.URL), nil, ana(), "tok", zap.NewNop())
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()
	connected(t, s)
	require.True(t, s.JoinChat("abc"))
	srv.WaitFrames(t, EventJoin, 1)

	srv.DropAll()
	srv.WaitFrames(t, EventAuth, 2)
	srv.WaitFrames(t, EventJoin, 2)
	require.Eventually(t, func() bool { return s.State() == status.InRoom }, 3*time.Second, 5*time.Millisecond)
}

func TestCloseKeepsBufferAndStopsChannel(t *testing.T) {
	srv := realtimetest.NewServer(t)
	s := NewSession(nil, testConfig(srv.URL), nil, ana(), "tok", zap.NewNop())
	require.NoError(t, s.Connect(context.Background()))
	srv.WaitFrames(t, EventAuth, 1)
	srv.Push(EventMessageNew, backend.ChatMessage{ID: "m1"})
	require.Eventually(t, func() bool { return len(s.Messages()) == 1 }, 3*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	srv.WaitOpen(t, 0)
	assert.Equal(t, status.Disconnected, s.State())
	assert.Len(t, s.Messages(), 1)
}
