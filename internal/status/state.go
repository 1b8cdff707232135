package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/meeple/internal/bus"
)

// State is one node of a lifecycle state machine.
type State string

// Session lifecycle.
const (
	Loading         State = "LOADING"
	Unauthenticated State = "UNAUTHENTICATED"
	Authenticated   State = "AUTHENTICATED"
)

// Realtime channel lifecycle, shared by the primary channel and chat sessions.
const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	InRoom       State = "IN_ROOM"
	Degraded     State = "DEGRADED"
)

// Table describes a lifecycle: its initial state, allowed transitions and the bus
// event kind published on every change.
type Table struct {
	Name        string
	Initial     State
	EventKind   string
	Transitions map[State][]State
}

// SessionTable drives the session store.
var SessionTable = Table{
	Name:      "session",
	Initial:   Loading,
	EventKind: bus.SessionStatusChanged,
	Transitions: map[State][]State{
		Loading:         {Authenticated, Unauthenticated},
		Unauthenticated: {Authenticated},
		Authenticated:   {Unauthenticated},
	},
}

// ChatTable drives a conversation-scoped chat session.
var ChatTable = Table{
	Name:      "chat",
	Initial:   Disconnected,
	EventKind: bus.ChatStatusChanged,
	Transitions: map[State][]State{
		Disconnected: {Connecting},
		Connecting:   {Connected, Disconnected},
		Connected:    {InRoom, Connecting, Disconnected},
		InRoom:       {Connected, Connecting, Disconnected},
	},
}

// ChannelTable drives the primary notification channel.
var ChannelTable = Table{
	Name:      "channel",
	Initial:   Disconnected,
	EventKind: "realtime.status_changed",
	Transitions: map[State][]State{
		Disconnected: {Connecting},
		Connecting:   {Connected, Degraded, Disconnected},
		Connected:    {Connecting, Disconnected},
		Degraded:     {Connecting, Disconnected},
	},
}

// Machine tracks and enforces state transitions for one Table.
type Machine struct {
	mu      sync.RWMutex
	table   Table
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in the table's initial state. b may be nil.
func NewMachine(table Table, b *bus.Bus) *Machine {
	return &Machine{
		table:   table,
		current: table.Initial,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Is reports whether the machine is in any of the given states.
func (m *Machine) Is(states ...State) bool {
	return slices.Contains(states, m.Current())
}

// Transition moves to a new state. Moving to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	allowed := m.table.Transitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("%s: invalid transition from %s to %s", m.table.Name, m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      m.table.EventKind,
			Timestamp: time.Now(),
			Payload: StatusChange{
				Machine: m.table.Name,
				From:    from,
				To:      to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	Machine string
	From    State
	To      State
}
