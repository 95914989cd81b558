// Package protocol defines the JSON envelope exchanged between chat clients
// and the relay, together with the codec used on both sides of the socket.
package protocol

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Kind is the semantic type of an envelope.
type Kind string

// Envelope kinds understood by the client and the relay.
const (
	KindChat     Kind = "chat"
	KindSystem   Kind = "system"
	KindPrivate  Kind = "private"
	KindUserList Kind = "userlist"
	KindPing     Kind = "ping"
	KindPong     Kind = "pong"
	KindCommand  Kind = "command"
	KindJoin     Kind = "join"
)

// PrivateRoom is the room placeholder carried by private envelopes.
const PrivateRoom = "private"

// Known reports whether k is one of the defined envelope kinds. Unknown kinds
// are still decoded so that they can be logged and ignored.
func (k Kind) Known() bool {
	switch k {
	case KindChat, KindSystem, KindPrivate, KindUserList, KindPing, KindPong, KindCommand, KindJoin:
		return true
	}
	return false
}

// Acknowledgeable reports whether envelopes of this kind take part in
// delivery tracking.
func (k Kind) Acknowledgeable() bool {
	return k == KindChat || k == KindPrivate
}

// Envelope is the uniform message unit carried in every text frame.
type Envelope struct {
	Kind      Kind   `json:"msg_type"`
	Username  string `json:"username"`
	Room      string `json:"room"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	ID        string `json:"id"`
	Target    string `json:"target,omitempty"`
}

// NewEnvelope stamps a client envelope with a fresh id and the current time.
func NewEnvelope(kind Kind, username, room, text string) Envelope {
	return Envelope{
		Kind:      kind,
		Username:  username,
		Room:      room,
		Text:      text,
		Timestamp: Timestamp(time.Now()),
		ID:        NewID(),
	}
}

// NewID returns a unique envelope id.
func NewID() string {
	return uuid.NewString()
}

// Timestamp converts t to the millisecond epoch value used on the wire.
func Timestamp(t time.Time) int64 {
	return t.UnixMilli()
}

// Preview shortens text to at most n runes, appending "..." when it was cut.
func Preview(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}
