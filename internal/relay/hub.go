// Package relay is a development chat server speaking the GoChat envelope
// protocol. A single Hub goroutine owns room membership and applies every
// inbound envelope in arrival order.
package relay

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/gochat/internal/metrics"
	"github.com/Tyrowin/gochat/internal/protocol"
)

// ServerName is the username on envelopes generated by the relay.
const ServerName = "server"

type inbound struct {
	client *Client
	env    protocol.Envelope
	err    error
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Connections int
	Rooms       map[string]int
}

// Hub tracks connected clients and their rooms. Membership maps are written
// only by the Run goroutine; mu guards them for Stats readers.
type Hub struct {
	defaultRoom string
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	guests  int

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub whose clients start in defaultRoom.
func NewHub(defaultRoom string, logger *zap.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		defaultRoom: defaultRoom,
		logger:      logger,
		metrics:     m,
		now:         time.Now,
		clients:     make(map[*Client]struct{}),
		rooms:       map[string]map[*Client]struct{}{defaultRoom: {}},
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		inbound:     make(chan inbound, 64),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Run is the hub event loop. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case in := <-h.inbound:
			if _, ok := h.clients[in.client]; ok {
				h.handle(in)
			}
		}
	}
}

// Shutdown stops Run, closes every client and waits up to timeout for the
// client goroutines.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

// Stats reports connection and room counts.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make(map[string]int, len(h.rooms))
	for name, members := range h.rooms {
		rooms[name] = len(members)
	}
	return Stats{Connections: len(h.clients), Rooms: rooms}
}

// join hands a new client to the hub. It reports false if the hub is gone.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) submit(in inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.guests++
	c.username = fmt.Sprintf("guest%d", h.guests)
	c.room = h.defaultRoom

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.addToRoomLocked(c, c.room)
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.ClientConnected()
	h.logger.Info("client registered", zap.String("remote", c.addr), zap.Int("clients", count))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()

	h.sendTo(c, h.system(c.room, fmt.Sprintf("连接成功！服务器信息: 本地地址 %s，您的IP地址: %s", c.host, c.addr)))
	h.sendUserList(c.room)
}

func (h *Hub) handleUnregister(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	room := c.room

	h.mu.Lock()
	delete(h.clients, c)
	h.removeFromRoomLocked(c, room)
	count := len(h.clients)
	h.mu.Unlock()
	close(c.send)

	h.metrics.ClientDisconnected()
	h.logger.Info("client unregistered",
		zap.String("remote", c.addr),
		zap.String("username", c.username),
		zap.Int("clients", count))

	if c.named {
		h.broadcast(room, h.system(room, c.username+" left the chat"))
		h.sendUserList(room)
	}
}

// handle applies one inbound envelope.
func (h *Hub) handle(in inbound) {
	c := in.client
	if in.err != nil {
		h.sendTo(c, h.system("", "malformed message, check the client"))
		return
	}

	env := in.env
	h.identify(c, env.Username)

	switch env.Kind {
	case protocol.KindChat:
		if strings.TrimSpace(env.Text) == "" {
			return
		}
		env.Username = c.username
		env.Room = c.room
		env.Timestamp = protocol.Timestamp(h.now())
		h.broadcast(c.room, env)

	case protocol.KindPrivate:
		h.handlePrivate(c, env)

	case protocol.KindPing:
		pong := protocol.NewEnvelope(protocol.KindPong, ServerName, "", env.Text)
		h.sendTo(c, pong)

	case protocol.KindPong:
		h.logger.Debug("heartbeat", zap.String("username", c.username))

	case protocol.KindJoin:
		if room := strings.TrimSpace(env.Room); room != "" {
			h.moveRoom(c, room)
		}

	case protocol.KindCommand:
		if reply := h.command(c, env.Text); reply != "" {
			h.sendTo(c, h.system(c.room, reply))
		}

	default:
		h.logger.Warn("unknown message type", zap.String("kind", string(env.Kind)))
	}
}

// identify names a client the first time it presents a username.
func (h *Hub) identify(c *Client, name string) {
	name = strings.TrimSpace(name)
	if c.named || name == "" {
		return
	}
	c.username = name
	c.named = true

	h.logger.Info("client identified", zap.String("remote", c.addr), zap.String("username", name))
	h.broadcast(c.room, h.system(c.room, name+" joined the chat"))
	h.sendUserList(c.room)
}

func (h *Hub) handlePrivate(c *Client, env protocol.Envelope) {
	if env.Target == "" {
		h.sendTo(c, h.system(c.room, "private message needs a target"))
		return
	}
	env.Username = c.username
	env.Timestamp = protocol.Timestamp(h.now())

	target := h.findByName(env.Target)
	if target == nil {
		h.sendTo(c, h.system(c.room, fmt.Sprintf("user %s is not online", env.Target)))
		return
	}

	h.sendTo(target, env)
	if target != c {
		h.sendTo(c, env)
	}
	h.logger.Info("private message", zap.String("from", c.username), zap.String("to", env.Target))
}

func (h *Hub) moveRoom(c *Client, room string) {
	old := c.room
	if old == room {
		h.sendTo(c, h.system(room, "you are already in room "+room))
		return
	}

	h.mu.Lock()
	h.removeFromRoomLocked(c, old)
	h.addToRoomLocked(c, room)
	h.mu.Unlock()
	c.room = room

	h.broadcast(old, h.system(old, c.username+" left the room"))
	h.broadcast(room, h.system(room, c.username+" joined the room"))
	h.sendUserList(old)
	h.sendUserList(room)
	h.logger.Info("client changed room", zap.String("username", c.username), zap.String("from", old), zap.String("to", room))
}

func (h *Hub) addToRoomLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) removeFromRoomLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 && room != h.defaultRoom {
		delete(h.rooms, room)
	}
}

func (h *Hub) findByName(name string) *Client {
	for c := range h.clients {
		if c.username == name {
			return c
		}
	}
	return nil
}

// members returns the room's clients ordered by username.
func (h *Hub) members(room string) []*Client {
	list := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].username != list[j].username {
			return list[i].username < list[j].username
		}
		return list[i].addr < list[j].addr
	})
	return list
}

func (h *Hub) sendUserList(room string) {
	members := h.members(room)
	if len(members) == 0 {
		return
	}
	entries := make([]string, 0, len(members))
	for _, c := range members {
		entries = append(entries, c.username+":"+c.addr)
	}
	env := protocol.NewEnvelope(protocol.KindUserList, ServerName, room, strings.Join(entries, ","))
	h.broadcast(room, env)
}

func (h *Hub) system(room, text string) protocol.Envelope {
	return protocol.NewEnvelope(protocol.KindSystem, ServerName, room, text)
}

func (h *Hub) broadcast(room string, env protocol.Envelope) {
	data, err := protocol.Encode(env)
	if err != nil {
		h.logger.Error("encode broadcast", zap.Error(err))
		return
	}
	h.logger.Debug("broadcasting",
		zap.String("room", room),
		zap.String("kind", string(env.Kind)),
		zap.String("text", protocol.Preview(env.Text, 30)))

	var failed []*Client
	for _, c := range h.members(room) {
		if !h.deliver(c, data, env.Kind) {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		h.drop(c)
	}
}

func (h *Hub) sendTo(c *Client, env protocol.Envelope) {
	data, err := protocol.Encode(env)
	if err != nil {
		h.logger.Error("encode message", zap.Error(err))
		return
	}
	if !h.deliver(c, data, env.Kind) {
		h.drop(c)
	}
}

// deliver queues data without blocking. A full buffer means the client is
// not keeping up.
func (h *Hub) deliver(c *Client, data []byte, kind protocol.Kind) bool {
	if _, ok := h.clients[c]; !ok {
		return true
	}
	select {
	case c.send <- data:
		h.metrics.EnvelopeSent(string(kind))
		return true
	default:
		return false
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.logger.Warn("removing client with full send buffer", zap.String("remote", c.addr))
	h.handleUnregister(c)
}

func (h *Hub) shutdownClients() {
	h.logger.Info("shutting down all client connections")

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.rooms = map[string]map[*Client]struct{}{h.defaultRoom: {}}
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
	h.logger.Info("closed client connections", zap.Int("count", len(clients)))
}
