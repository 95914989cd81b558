package session

import (
	"slices"
	"time"

	"github.com/Tyrowin/gochat/internal/transport"
)

// boundedLog keeps the most recent limit items in insertion order.
type boundedLog[T any] struct {
	items []T
	limit int
}

func newBoundedLog[T any](limit int) *boundedLog[T] {
	return &boundedLog[T]{items: make([]T, 0, limit), limit: limit}
}

func (l *boundedLog[T]) push(v T) {
	if l.limit <= 0 {
		return
	}
	if len(l.items) == l.limit {
		copy(l.items, l.items[1:])
		l.items = l.items[:len(l.items)-1]
	}
	l.items = append(l.items, v)
}

func (l *boundedLog[T]) snapshot() []T {
	return slices.Clone(l.items)
}

func (l *boundedLog[T]) len() int {
	return len(l.items)
}

// state is the observable session state. It is owned by Session.
type state struct {
	username      string
	currentRoom   string
	privateTarget string
	clientAddress string

	rooms []string
	users []User

	history *boundedLog[Entry]
	netlog  *boundedLog[LogEntry]

	sent     int
	received int
}

func newState(username, room string, historySize, netlogSize int) *state {
	return &state{
		username:    username,
		currentRoom: room,
		rooms:       []string{room},
		history:     newBoundedLog[Entry](historySize),
		netlog:      newBoundedLog[LogEntry](netlogSize),
	}
}

// addRoom records a room in the directory once.
func (s *state) addRoom(name string) {
	if !slices.Contains(s.rooms, name) {
		s.rooms = append(s.rooms, name)
	}
}

// Snapshot is a copy of the session state for renderers and tests.
type Snapshot struct {
	Username      string
	CurrentRoom   string
	PrivateTarget string
	ClientAddress string
	Connection    transport.State

	Rooms      []string
	Users      []User
	History    []Entry
	NetworkLog []LogEntry

	Sent            int
	Received        int
	PendingDelivery int
	PingOutstanding bool
	LatencySamples  int
	LastLatency     time.Duration
	AverageLatency  time.Duration
}
