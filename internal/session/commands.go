package session

import "strings"

// ActionKind is what a line of user input asks the session to do.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionHelp
	ActionJoin
	ActionPrivate
	ActionUsage
	ActionPing
	ActionCommand
	ActionText
)

// Action is the parsed form of one input line.
type Action struct {
	Kind   ActionKind
	Room   string
	Target string
	Text   string
}

// HelpText lists the commands understood locally and by the server.
const HelpText = `available commands:
  /help                 show this help
  /join <room>          switch to another room
  /msg <user> <text>    send a private message
  /ping                 measure round-trip latency
  /rooms                list rooms (server)
  /users                list users in this room (server)
  /stats                server statistics (server)`

// UsageMsg is shown for a malformed /msg.
const UsageMsg = "usage: /msg <user> <message>"

// ParseInput turns raw input into an Action. Plain text becomes ActionText;
// the session decides between room and private delivery.
func ParseInput(input string) Action {
	input = strings.TrimSpace(input)
	if input == "" {
		return Action{Kind: ActionNone}
	}
	if !strings.HasPrefix(input, "/") {
		return Action{Kind: ActionText, Text: input}
	}

	name, rest, _ := strings.Cut(input, " ")
	switch name {
	case "/help":
		return Action{Kind: ActionHelp}
	case "/join":
		room := strings.TrimSpace(rest)
		if room == "" {
			return Action{Kind: ActionNone}
		}
		return Action{Kind: ActionJoin, Room: room}
	case "/msg":
		fields := strings.Fields(rest)
		if len(fields) < 2 {
			return Action{Kind: ActionUsage}
		}
		return Action{Kind: ActionPrivate, Target: fields[0], Text: strings.Join(fields[1:], " ")}
	case "/ping":
		return Action{Kind: ActionPing}
	default:
		return Action{Kind: ActionCommand, Text: input}
	}
}
