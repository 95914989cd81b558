package session

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Tyrowin/gochat/internal/protocol"
)

// addressPatterns match the welcome notice announcing the client's address.
var addressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`您的IP地址: ([^,，\s]+)`),
	regexp.MustCompile(`(?i)your IP address: ([^,\s]+)`),
}

// ExtractClientAddress finds the client address in a server welcome notice.
func ExtractClientAddress(text string) (string, bool) {
	for _, re := range addressPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ParseUserList parses "name:address,name:address". Only the first colon of
// an item separates the name, so addresses keep their ports.
func ParseUserList(text string) []User {
	users := make([]User, 0)
	for _, item := range strings.Split(text, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, addr, _ := strings.Cut(item, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		users = append(users, User{Username: name, Address: strings.TrimSpace(addr)})
	}
	return users
}

// dispatch routes one inbound frame.
func (s *Session) dispatch(data []byte) {
	s.state.received++

	env, err := protocol.Decode(data)
	if err != nil {
		s.logger.Warn("dropping malformed frame", zap.Error(err))
		s.metrics.DecodeError()
		s.logNetwork(LogError, "malformed frame: "+err.Error())
		return
	}

	s.metrics.EnvelopeReceived(string(env.Kind))
	s.logNetwork(LogReceived, fmt.Sprintf("%s from %s: %s", env.Kind, orDash(env.Username), protocol.Preview(env.Text, 40)))

	switch env.Kind {
	case protocol.KindChat:
		s.handleChat(env)
	case protocol.KindSystem:
		s.handleSystem(env)
	case protocol.KindPrivate:
		s.handlePrivate(env)
	case protocol.KindUserList:
		s.state.users = ParseUserList(env.Text)
		s.renderer.OnUserDirectoryChange(append([]User(nil), s.state.users...))
	case protocol.KindPing:
		s.send(protocol.NewEnvelope(protocol.KindPong, s.state.username, s.state.currentRoom, env.Text))
		s.completePing()
	case protocol.KindPong:
		s.completePing()
	case protocol.KindCommand, protocol.KindJoin:
		s.logger.Debug("ignoring envelope", zap.String("kind", string(env.Kind)))
	default:
		s.logger.Info("ignoring unknown envelope kind", zap.String("kind", string(env.Kind)))
	}
}

func (s *Session) handleChat(env protocol.Envelope) {
	acked := s.acknowledge(env.ID)
	if strings.TrimSpace(env.Text) == "" {
		return
	}

	self := env.Username == s.state.username
	if acked && self {
		return
	}
	s.display(entryFor(env, self))
}

func (s *Session) handleSystem(env protocol.Envelope) {
	s.notice(env.Text)

	addr, ok := ExtractClientAddress(env.Text)
	if !ok {
		return
	}
	s.state.clientAddress = addr
	s.logger.Info("server announced client address", zap.String("address", addr))
	if obs, ok := s.renderer.(AddressObserver); ok {
		obs.OnClientAddress(addr)
	}
}

func (s *Session) handlePrivate(env protocol.Envelope) {
	acked := s.acknowledge(env.ID)
	self := env.Username == s.state.username

	if !self && s.state.privateTarget == "" {
		s.StartPrivateChat(env.Username)
	}
	if strings.TrimSpace(env.Text) == "" {
		return
	}
	if acked && self {
		return
	}
	s.display(entryFor(env, self))
}

func (s *Session) acknowledge(id string) bool {
	if id == "" {
		return false
	}
	ok := s.tracker.Acknowledge(id)
	if ok {
		s.metrics.PendingDeliveries(s.tracker.Pending())
	}
	return ok
}

func (s *Session) completePing() {
	current, average, ok := s.meter.Complete()
	if !ok {
		return
	}
	s.metrics.Latency(current)
	s.logNetwork(LogInfo, fmt.Sprintf("latency %s (avg %s)", current, average))
	s.renderer.OnLatencyUpdate(current, average)
}

func entryFor(env protocol.Envelope, self bool) Entry {
	return Entry{
		ID:        env.ID,
		Kind:      env.Kind,
		Username:  env.Username,
		Room:      env.Room,
		Target:    env.Target,
		Text:      env.Text,
		Timestamp: env.Timestamp,
		Self:      self,
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
