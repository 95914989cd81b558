// Package tui renders a chat session in the terminal. Screen is a full-screen
// gocui interface; Plain writes one line per event for pipes and dumb
// terminals. Both implement session.Renderer.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Tyrowin/gochat/internal/protocol"
	"github.com/Tyrowin/gochat/internal/session"
	"github.com/Tyrowin/gochat/internal/transport"
)

// Actions is the part of session.Controller a renderer drives.
type Actions interface {
	Submit(input string)
	SelectRoom(name string)
	StartPrivateChat(user string)
	ExitPrivateMode()
	Ping()
	Snapshot() session.Snapshot
}

// Runner is implemented by both renderers.
type Runner interface {
	session.Renderer
	Run(ctx context.Context, actions Actions) error
}

const clockLayout = "15:04:05"

const (
	colorReset  = "\x1b[0m"
	colorYellow = "\x1b[33m"
	colorCyan   = "\x1b[36m"
	colorGreen  = "\x1b[32m"
	colorRed    = "\x1b[31m"
	colorGray   = "\x1b[90m"
)

func entryTime(ts int64) string {
	if ts <= 0 {
		return "--:--:--"
	}
	return time.UnixMilli(ts).Format(clockLayout)
}

// FormatEntry renders a history entry as one line.
func FormatEntry(e session.Entry) string {
	if e.Kind == protocol.KindSystem {
		return fmt.Sprintf("[%s] * %s", entryTime(e.Timestamp), e.Text)
	}
	return fmt.Sprintf("[%s] %s: %s", entryTime(e.Timestamp), e.Label(), e.Text)
}

// FormatNotice renders a system notice received at t.
func FormatNotice(t time.Time, text string) string {
	return fmt.Sprintf("[%s] * %s", t.Format(clockLayout), text)
}

// FormatLogEntry renders a network log line.
func FormatLogEntry(e session.LogEntry) string {
	return fmt.Sprintf("%s %-8s %s", e.Time.Format(clockLayout), e.Category, e.Message)
}

// FormatLatency renders the latency indicator.
func FormatLatency(current, average time.Duration) string {
	return fmt.Sprintf("%dms (avg %dms)", current.Milliseconds(), average.Milliseconds())
}

// FormatUser renders a user directory row.
func FormatUser(u session.User) string {
	if u.Address == "" {
		return u.Username
	}
	return fmt.Sprintf("%s (%s)", u.Username, u.Address)
}

// statusLine is the state shown in the status bar.
type statusLine struct {
	conn     transport.State
	username string
	room     string
	private  string
	address  string
	latency  string
	sent     int
	received int
}

// statusFromSnapshot fills a status line from a session snapshot.
func statusFromSnapshot(snap session.Snapshot) statusLine {
	s := statusLine{
		conn:     snap.Connection,
		username: snap.Username,
		room:     snap.CurrentRoom,
		private:  snap.PrivateTarget,
		address:  snap.ClientAddress,
		sent:     snap.Sent,
		received: snap.Received,
	}
	if snap.LatencySamples > 0 {
		s.latency = FormatLatency(snap.LastLatency, snap.AverageLatency)
	}
	return s
}

func (s statusLine) String() string {
	parts := []string{s.conn.String()}
	if s.username != "" {
		parts = append(parts, s.username+" @ "+s.room)
	}
	if s.private != "" {
		parts = append(parts, "private: "+s.private)
	}
	if s.address != "" {
		parts = append(parts, "ip "+s.address)
	}
	if s.latency != "" {
		parts = append(parts, "latency "+s.latency)
	}
	if s.sent > 0 || s.received > 0 {
		parts = append(parts, fmt.Sprintf("sent %d recv %d", s.sent, s.received))
	}
	return strings.Join(parts, " | ")
}

func stateColor(st transport.State) string {
	switch st {
	case transport.Connected:
		return colorGreen
	case transport.Connecting:
		return colorYellow
	default:
		return colorRed
	}
}

func logColor(c session.LogCategory) string {
	switch c {
	case session.LogSent:
		return colorCyan
	case session.LogReceived:
		return colorGreen
	case session.LogError:
		return colorRed
	default:
		return colorGray
	}
}
