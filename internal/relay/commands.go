package relay

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Tyrowin/gochat/internal/protocol"
)

const relayHelp = `available commands:
/help - show this help
/rooms - list all rooms
/join <room> - join a room
/users - list users in the current room
/msg <user> <message> - send a private message
/ping - test the connection
/stats - show server statistics`

// command answers a slash command. An empty reply means nothing is sent back
// as a notice.
func (h *Hub) command(c *Client, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "please enter a command"
	}

	switch fields[0] {
	case "/help":
		return relayHelp

	case "/rooms":
		names := make([]string, 0, len(h.rooms))
		for name := range h.rooms {
			names = append(names, name)
		}
		sort.Strings(names)
		lines := make([]string, 0, len(names))
		for _, name := range names {
			lines = append(lines, fmt.Sprintf("%s (%d online)", name, len(h.rooms[name])))
		}
		return "rooms:\n" + strings.Join(lines, "\n")

	case "/users":
		members := h.members(c.room)
		lines := make([]string, 0, len(members))
		for _, m := range members {
			lines = append(lines, fmt.Sprintf("%s (%s)", m.username, m.addr))
		}
		return fmt.Sprintf("%d users in this room:\n%s", len(members), strings.Join(lines, "\n"))

	case "/ping":
		micros := strconv.FormatInt(h.now().UnixMicro(), 10)
		h.sendTo(c, protocol.NewEnvelope(protocol.KindPing, ServerName, "", micros))
		return ""

	case "/stats":
		return fmt.Sprintf("server statistics:\nconnections: %d\nrooms: %d", len(h.clients), len(h.rooms))

	default:
		return "unknown command: " + text
	}
}
