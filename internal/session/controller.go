package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Tyrowin/gochat/internal/transport"
)

const eventBuffer = 256

// Controller serialises access to a Session. User operations, transport
// callbacks and timer expiries are posted as closures to one channel and run
// in order on the goroutine executing Run.
type Controller struct {
	session *Session
	logger  *zap.Logger

	events   chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

var _ transport.Handler = (*Controller)(nil)

// NewController creates a Session whose timers fire on the controller loop.
func NewController(opts Options, sender Sender, renderer Renderer) *Controller {
	c := &Controller{
		events: make(chan func(), eventBuffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	opts.Clock = loopClock{Clock: opts.Clock, post: c.post}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c.logger = opts.Logger

	c.session = New(opts, sender, renderer)
	return c
}

// Run processes events until ctx is cancelled or Stop is called.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.session.Close()

	c.logger.Info("session started",
		zap.String("username", c.session.Username()),
		zap.String("room", c.session.state.currentRoom))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.quit:
			return nil
		case fn := <-c.events:
			fn()
		}
	}
}

// Stop asks Run to return. It does not wait.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
}

// Done is closed when Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// post queues fn for the loop. Events posted after Run returned are dropped.
func (c *Controller) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

// Submit interprets a line of user input on the loop.
func (c *Controller) Submit(input string) {
	c.post(func() { c.session.Submit(input) })
}

// JoinRoom switches to room name.
func (c *Controller) JoinRoom(name string) {
	c.post(func() { c.session.JoinRoom(name) })
}

// SelectRoom joins name and leaves private mode, as a room click does.
func (c *Controller) SelectRoom(name string) {
	c.post(func() { c.session.SelectRoom(name) })
}

// StartPrivateChat routes plain text to user until ExitPrivateMode.
func (c *Controller) StartPrivateChat(user string) {
	c.post(func() { c.session.StartPrivateChat(user) })
}

// ExitPrivateMode returns plain text to the current room.
func (c *Controller) ExitPrivateMode() {
	c.post(c.session.ExitPrivateMode)
}

// Ping starts a latency ping unless one is outstanding.
func (c *Controller) Ping() {
	c.post(c.session.Ping)
}

// Snapshot returns a copy of the session state taken on the loop. It returns
// the zero Snapshot once Run has exited.
func (c *Controller) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	c.post(func() { reply <- c.session.Snapshot() })

	select {
	case snap := <-reply:
		return snap
	case <-c.done:
		select {
		case snap := <-reply:
			return snap
		default:
			return Snapshot{}
		}
	}
}

// OnStateChange implements transport.Handler.
func (c *Controller) OnStateChange(st transport.State) {
	c.post(func() { c.session.HandleStateChange(st) })
}

// OnOpen implements transport.Handler.
func (c *Controller) OnOpen() {
	c.post(c.session.HandleOpen)
}

// OnFrame implements transport.Handler.
func (c *Controller) OnFrame(data []byte) {
	c.post(func() { c.session.HandleFrame(data) })
}

// OnError implements transport.Handler.
func (c *Controller) OnError(err error) {
	c.post(func() { c.session.HandleError(err) })
}

// OnClose implements transport.Handler.
func (c *Controller) OnClose(err error) {
	c.post(func() { c.session.HandleClose(err) })
}
