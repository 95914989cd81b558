package session

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/gochat/internal/config"
	"github.com/Tyrowin/gochat/internal/metrics"
	"github.com/Tyrowin/gochat/internal/protocol"
	"github.com/Tyrowin/gochat/internal/transport"
)

// Sender transmits envelopes. *transport.Manager implements it.
type Sender interface {
	Send(env protocol.Envelope) error
}

// Options configures a Session.
type Options struct {
	Username        string
	Room            string
	DeliveryTimeout time.Duration
	HistorySize     int
	NetworkLogSize  int
	Clock           Clock
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
}

// OptionsFromConfig maps the client configuration onto session options.
func OptionsFromConfig(cfg config.ClientConfig) Options {
	return Options{
		Username:        cfg.Username,
		Room:            cfg.Room,
		DeliveryTimeout: cfg.Session.DeliveryTimeout,
		HistorySize:     cfg.Session.HistorySize,
		NetworkLogSize:  cfg.Session.NetworkLogSize,
	}
}

// GenerateUsername returns a name of the form user<NNN>.
func GenerateUsername() string {
	return fmt.Sprintf("user%03d", rand.IntN(1000))
}

// Session holds the chat state of one client and applies user actions and
// inbound envelopes to it. It is not safe for concurrent use.
type Session struct {
	sender   Sender
	renderer Renderer
	clock    Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics

	state   *state
	tracker *DeliveryTracker
	meter   *LatencyMeter
	conn    transport.State
}

// New creates a Session that sends through sender and reports to renderer.
func New(opts Options, sender Sender, renderer Renderer) *Session {
	opts.Username = strings.TrimSpace(opts.Username)
	if opts.Username == "" {
		opts.Username = GenerateUsername()
	}
	opts.Room = strings.TrimSpace(opts.Room)
	if opts.Room == "" {
		opts.Room = config.DefaultRoom
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = config.DefaultDeliveryTimeout
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = config.DefaultHistorySize
	}
	if opts.NetworkLogSize <= 0 {
		opts.NetworkLogSize = config.DefaultNetworkLogSize
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = NopRenderer{}
	}

	s := &Session{
		sender:   sender,
		renderer: renderer,
		clock:    opts.Clock,
		logger:   opts.Logger.With(zap.String("username", opts.Username)),
		metrics:  opts.Metrics,
		state:    newState(opts.Username, opts.Room, opts.HistorySize, opts.NetworkLogSize),
		meter:    NewLatencyMeter(opts.Clock),
		conn:     transport.Disconnected,
	}
	s.tracker = NewDeliveryTracker(opts.Clock, opts.DeliveryTimeout, s.deliveryExpired)
	return s
}

// Username returns the local username.
func (s *Session) Username() string { return s.state.username }

// Submit interprets one line of user input.
func (s *Session) Submit(input string) {
	action := ParseInput(input)
	switch action.Kind {
	case ActionNone:
	case ActionHelp:
		s.notice(HelpText)
	case ActionJoin:
		s.JoinRoom(action.Room)
	case ActionUsage:
		s.notice(UsageMsg)
	case ActionPrivate:
		s.SendPrivate(action.Target, action.Text)
	case ActionPing:
		s.Ping()
	case ActionCommand:
		s.send(protocol.NewEnvelope(protocol.KindCommand, s.state.username, s.state.currentRoom, action.Text))
	case ActionText:
		if s.state.privateTarget != "" {
			s.SendPrivate(s.state.privateTarget, action.Text)
			return
		}
		s.SendChat(action.Text)
	}
}

// SendChat sends text to the current room.
func (s *Session) SendChat(text string) {
	env := protocol.NewEnvelope(protocol.KindChat, s.state.username, s.state.currentRoom, text)
	if s.send(env) {
		s.display(entryFor(env, true))
	}
}

// SendPrivate sends text to target only.
func (s *Session) SendPrivate(target, text string) {
	env := protocol.NewEnvelope(protocol.KindPrivate, s.state.username, protocol.PrivateRoom, text)
	env.Target = target
	if s.send(env) {
		s.display(entryFor(env, true))
	}
}

// JoinRoom switches to room name. The switch is optimistic.
func (s *Session) JoinRoom(name string) {
	name = strings.TrimSpace(name)
	if name == "" || name == s.state.currentRoom {
		return
	}

	s.send(protocol.NewEnvelope(protocol.KindJoin, s.state.username, name, ""))
	s.state.currentRoom = name
	s.state.addRoom(name)
	s.logger.Info("joined room", zap.String("room", name))
	s.notice("joined room " + name)
}

// SelectRoom joins name and leaves private mode.
func (s *Session) SelectRoom(name string) {
	s.JoinRoom(name)
	s.ExitPrivateMode()
}

// StartPrivateChat routes plain text to user until ExitPrivateMode.
func (s *Session) StartPrivateChat(user string) {
	user = strings.TrimSpace(user)
	if user == "" || user == s.state.username || user == s.state.privateTarget {
		return
	}
	s.state.privateTarget = user
	s.notice(fmt.Sprintf("private chat with %s; messages are only visible to them", user))
}

// ExitPrivateMode returns to room mode.
func (s *Session) ExitPrivateMode() {
	if s.state.privateTarget == "" {
		return
	}
	s.state.privateTarget = ""
	s.notice("left private chat, back in room " + s.state.currentRoom)
}

// Ping starts a latency ping unless one is outstanding.
func (s *Session) Ping() {
	if !s.meter.Begin() {
		return
	}
	if !s.send(protocol.NewEnvelope(protocol.KindCommand, s.state.username, s.state.currentRoom, "/ping")) {
		s.meter.Abandon()
	}
}

// HandleStateChange records a connection state transition.
func (s *Session) HandleStateChange(st transport.State) {
	s.conn = st
	s.logNetwork(LogInfo, "connection "+st.String())
	s.renderer.OnConnectionStatusChange(st)
}

// HandleOpen announces the local identity to the server. Servers place a
// fresh connection in the default room, so any other current room is joined
// again.
func (s *Session) HandleOpen() {
	s.send(protocol.NewEnvelope(protocol.KindChat, s.state.username, s.state.currentRoom, ""))
	if room := s.state.currentRoom; room != config.DefaultRoom {
		s.send(protocol.NewEnvelope(protocol.KindJoin, s.state.username, room, ""))
	}
	s.notice("connected to server")
}

// HandleFrame dispatches one inbound text frame.
func (s *Session) HandleFrame(data []byte) {
	s.dispatch(data)
}

// HandleError records a transport error. State changes follow via
// HandleClose.
func (s *Session) HandleError(err error) {
	s.logger.Warn("transport error", zap.Error(err))
	s.logNetwork(LogError, err.Error())
	if errors.Is(err, transport.ErrRetriesExhausted) {
		s.notice("could not reconnect to the server, giving up")
	}
}

// HandleClose abandons any outstanding ping.
func (s *Session) HandleClose(err error) {
	s.meter.Abandon()
	msg := "connection closed"
	if err != nil && !transport.IsExpectedCloseError(err) {
		msg += ": " + err.Error()
	}
	s.logNetwork(LogInfo, msg)
}

// Close cancels outstanding delivery timers.
func (s *Session) Close() {
	s.tracker.Stop()
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Username:        s.state.username,
		CurrentRoom:     s.state.currentRoom,
		PrivateTarget:   s.state.privateTarget,
		ClientAddress:   s.state.clientAddress,
		Connection:      s.conn,
		Rooms:           append([]string(nil), s.state.rooms...),
		Users:           append([]User(nil), s.state.users...),
		History:         s.state.history.snapshot(),
		NetworkLog:      s.state.netlog.snapshot(),
		Sent:            s.state.sent,
		Received:        s.state.received,
		PendingDelivery: s.tracker.Pending(),
		PingOutstanding: s.meter.Outstanding(),
		LatencySamples:  s.meter.Samples(),
		LastLatency:     s.meter.Last(),
		AverageLatency:  s.meter.Average(),
	}
}

// send transmits env and registers it for delivery tracking. A rejected send
// is reported as a notice and returns false.
func (s *Session) send(env protocol.Envelope) bool {
	if s.sender == nil {
		s.notice("not connected to the server, message not sent")
		return false
	}
	if err := s.sender.Send(env); err != nil {
		s.logger.Warn("send rejected", zap.String("kind", string(env.Kind)), zap.Error(err))
		s.logNetwork(LogError, fmt.Sprintf("send %s failed: %v", env.Kind, err))
		if errors.Is(err, transport.ErrNotConnected) {
			s.notice("not connected to the server, message not sent")
		} else {
			s.notice("message not sent: " + err.Error())
		}
		return false
	}

	s.state.sent++
	s.logNetwork(LogSent, fmt.Sprintf("%s to %s: %s", env.Kind, sendTarget(env), protocol.Preview(env.Text, 40)))

	if env.Kind.Acknowledgeable() && env.Text != "" && s.tracker.Register(env) {
		s.metrics.PendingDeliveries(s.tracker.Pending())
	}
	return true
}

func (s *Session) deliveryExpired(p PendingDelivery) {
	s.metrics.DeliveryTimeout()
	s.metrics.PendingDeliveries(s.tracker.Pending())
	s.logger.Warn("delivery not confirmed",
		zap.String("id", p.Envelope.ID),
		zap.Duration("after", s.clock.Now().Sub(p.SentAt)),
		zap.Error(ErrDeliveryTimeout))
	s.notice("message may not have been delivered: " + protocol.Preview(p.Envelope.Text, 20))
}

func (s *Session) display(e Entry) {
	s.state.history.push(e)
	s.renderer.OnMessageDisplay(e)
}

func (s *Session) notice(text string) {
	s.state.history.push(Entry{
		Kind:      protocol.KindSystem,
		Room:      s.state.currentRoom,
		Text:      text,
		Timestamp: protocol.Timestamp(s.clock.Now()),
	})
	s.renderer.OnSystemNotice(text)
}

func (s *Session) logNetwork(category LogCategory, message string) {
	e := LogEntry{Time: s.clock.Now(), Category: category, Message: message}
	s.state.netlog.push(e)
	s.renderer.OnNetworkLogAppend(e)
}

func sendTarget(env protocol.Envelope) string {
	if env.Target != "" {
		return env.Target
	}
	return env.Room
}
