// Package transport owns the client WebSocket: dialing, lifecycle states,
// read/write pumps and the reconnect policy.
package transport

import (
	"errors"
	"strings"
)

// State is the lifecycle state of the connection manager.
type State int

// Connection states. The manager cycles Disconnected → Connecting →
// Connected → Disconnected until it is stopped.
const (
	Disconnected State = iota
	Connecting
	Connected
)

// AllStates lists every state, in lifecycle order.
var AllStates = []State{Disconnected, Connecting, Connected}

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

var (
	// ErrNotConnected is returned by Send while the socket is not open.
	ErrNotConnected = errors.New("not connected")
	// ErrSendQueueFull is returned when the write pump cannot keep up.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrTransportClosed wraps the reason a connected socket went away.
	ErrTransportClosed = errors.New("transport closed")
	// ErrRetriesExhausted is reported once a capped reconnect policy gives up.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("connection manager already started")
)

// Handler receives lifecycle events and inbound frames. Calls are made from
// the manager's goroutines, one at a time and in order.
type Handler interface {
	OnStateChange(state State)
	OnOpen()
	OnFrame(data []byte)
	OnError(err error)
	OnClose(err error)
}

// IsExpectedCloseError checks if an error is expected during connection closure.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
