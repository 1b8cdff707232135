package status

import (
	"testing"
	"time"

	"github.com/matheus3301/meeple/internal/bus"
)

func walkTo(t *testing.T, m *Machine, states ...State) {
	t.Helper()
	for _, s := range states {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s failed: %v", s, err)
		}
	}
}

func TestInitialState(t *testing.T) {
	tests := []struct {
		table Table
		want  State
	}{
		{SessionTable, Loading},
		{ChatTable, Disconnected},
		{ChannelTable, Disconnected},
	}
	for _, tt := range tests {
		t.Run(tt.table.Name, func(t *testing.T) {
			m := NewMachine(tt.table, nil)
			if m.Current() != tt.want {
				t.Errorf("initial state = %s, want %s", m.Current(), tt.want)
			}
		})
	}
}

func TestSessionTransitions(t *testing.T) {
	tests := []struct {
		name  string
		path  []State
		valid bool
	}{
		{"stored credential", []State{Authenticated}, true},
		{"no credential", []State{Unauthenticated}, true},
		{"sign in", []State{Unauthenticated, Authenticated}, true},
		{"sign out", []State{Authenticated, Unauthenticated}, true},
		{"back to loading", []State{Authenticated, Loading}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(SessionTable, nil)
			var err error
			for _, s := range tt.path {
				if err = m.Transition(s); err != nil {
					break
				}
			}
			if (err == nil) != tt.valid {
				t.Errorf("path %v: err = %v, want valid=%v", tt.path, err, tt.valid)
			}
		})
	}
}

func TestChatTransitions(t *testing.T) {
	m := NewMachine(ChatTable, nil)
	walkTo(t, m, Connecting, Connected, InRoom, Disconnected)

	if err := m.Transition(InRoom); err == nil {
		t.Error("Transition(DISCONNECTED -> IN_ROOM) should fail")
	}
}

func TestSelfTransitionIsNoop(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("chat.", 10)
	defer unsub()

	m := NewMachine(ChatTable, b)
	if err := m.Transition(Disconnected); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event for self transition: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(SessionTable, b)
	walkTo(t, m, Unauthenticated)

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if change.Machine != "session" || change.From != Loading || change.To != Unauthenticated {
			t.Errorf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
}

func TestIs(t *testing.T) {
	m := NewMachine(ChannelTable, nil)
	walkTo(t, m, Connecting, Degraded)
	if !m.Is(Degraded, Disconnected) {
		t.Error("Is(DEGRADED, DISCONNECTED) = false, want true")
	}
	if m.Is(Connected) {
		t.Error("Is(CONNECTED) = true, want false")
	}
}
