// Package session implements the chat session controller: addressing,
// delivery tracking, latency pings, command parsing and inbound dispatch.
//
// Session is the synchronous core and must only be used from one goroutine.
// Controller wraps it with an event loop so that user input, transport events
// and timers are applied one at a time.
package session

import (
	"time"

	"github.com/Tyrowin/gochat/internal/protocol"
	"github.com/Tyrowin/gochat/internal/transport"
)

// Entry is one line of the message history.
type Entry struct {
	ID        string
	Kind      protocol.Kind
	Username  string
	Room      string
	Target    string
	Text      string
	Timestamp int64
	Self      bool
}

// Label renders the sender column: "alice", "alice → bob" or "bob → you".
func (e Entry) Label() string {
	if e.Kind != protocol.KindPrivate {
		return e.Username
	}
	if e.Self {
		return e.Username + " → " + e.Target
	}
	return e.Username + " → you"
}

// LogCategory classifies network log entries.
type LogCategory string

// Network log categories.
const (
	LogInfo     LogCategory = "info"
	LogSent     LogCategory = "sent"
	LogReceived LogCategory = "received"
	LogError    LogCategory = "error"
)

// LogEntry is one network monitor line.
type LogEntry struct {
	Time     time.Time
	Category LogCategory
	Message  string
}

// User is one row of the user directory.
type User struct {
	Username string
	Address  string
}

// Renderer is implemented by presentation layers. The session calls these
// methods from its event loop and never reads anything back.
type Renderer interface {
	OnMessageDisplay(entry Entry)
	OnSystemNotice(text string)
	OnUserDirectoryChange(users []User)
	OnConnectionStatusChange(state transport.State)
	OnLatencyUpdate(current, average time.Duration)
	OnNetworkLogAppend(entry LogEntry)
}

// AddressObserver is an optional Renderer extension notified when the server
// announces the client's address.
type AddressObserver interface {
	OnClientAddress(addr string)
}

// NopRenderer discards every event.
type NopRenderer struct{}

func (NopRenderer) OnMessageDisplay(Entry)                       {}
func (NopRenderer) OnSystemNotice(string)                        {}
func (NopRenderer) OnUserDirectoryChange([]User)                 {}
func (NopRenderer) OnConnectionStatusChange(transport.State)     {}
func (NopRenderer) OnLatencyUpdate(time.Duration, time.Duration) {}
func (NopRenderer) OnNetworkLogAppend(LogEntry)                  {}
