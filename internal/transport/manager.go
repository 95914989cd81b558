package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/gochat/internal/metrics"
	"github.com/Tyrowin/gochat/internal/protocol"
)

// Options configures a Manager.
type Options struct {
	Endpoint         string
	Origin           string
	HandshakeTimeout time.Duration
	Policy           Policy
	SendBuffer       int
	PingPeriod       time.Duration
	PongWait         time.Duration
	Logger           *zap.Logger
	Metrics          *metrics.Metrics
}

// Manager dials the chat endpoint, keeps the connection alive and reconnects
// according to its Policy until stopped.
type Manager struct {
	opts   Options
	dialer *websocket.Dialer
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	conn    *conn
	started bool
	err     error
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Manager in the Disconnected state.
func New(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.PongWait <= 0 {
		opts.PongWait = PongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = (opts.PongWait * 9) / 10
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}

	return &Manager{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		logger: opts.Logger.With(zap.String("endpoint", opts.Endpoint)),
		state:  Disconnected,
		done:   make(chan struct{}),
	}
}

// Start launches the connect loop. Events are reported to h until ctx is
// cancelled, Stop is called or a capped policy runs out of attempts.
func (m *Manager) Start(ctx context.Context, h Handler) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	go m.run(ctx, h)
	return nil
}

// Stop cancels any pending reconnect, closes the socket and waits for the
// loop to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	started := m.started
	m.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-m.done
}

// Done is closed when the connect loop has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Err reports why the loop exited: ErrRetriesExhausted, or nil after Stop.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Send encodes env and queues it for transmission. It fails with
// ErrNotConnected unless the socket is open.
func (m *Manager) Send(env protocol.Envelope) error {
	m.mu.Lock()
	c := m.conn
	open := m.state == Connected
	m.mu.Unlock()

	if c == nil || !open {
		m.opts.Metrics.SendRejected()
		return ErrNotConnected
	}

	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	if err := c.enqueue(data); err != nil {
		m.opts.Metrics.SendRejected()
		return err
	}

	m.opts.Metrics.EnvelopeSent(string(env.Kind))
	return nil
}

func (m *Manager) run(ctx context.Context, h Handler) {
	defer close(m.done)

	bo := m.opts.Policy.NewBackOff()
	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := m.connectOnce(ctx, h)
		if err == nil {
			attempts = 0
			bo.Reset()
		}

		if ctx.Err() != nil {
			return
		}

		if m.opts.Policy.Exhausted(attempts) {
			m.logger.Error("giving up reconnecting", zap.Int("attempts", attempts))
			m.mu.Lock()
			m.err = ErrRetriesExhausted
			m.mu.Unlock()
			h.OnError(ErrRetriesExhausted)
			return
		}

		delay := bo.NextBackOff()
		attempts++
		m.logger.Info("scheduling reconnect", zap.Duration("delay", delay), zap.Int("attempt", attempts))

		if !sleepCtx(ctx, delay) {
			return
		}
	}
}

// connectOnce performs one Connecting → (Connected →) Disconnected cycle. It
// returns nil when the socket was opened, regardless of how it closed.
func (m *Manager) connectOnce(ctx context.Context, h Handler) error {
	m.setState(Connecting, h)
	m.opts.Metrics.ConnectAttempt()
	m.logger.Info("connecting")

	header := http.Header{}
	if m.opts.Origin != "" {
		header.Set("Origin", m.opts.Origin)
	}

	ws, resp, err := m.dialer.DialContext(ctx, m.opts.Endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		m.logger.Warn("dial failed", zap.Error(err))
		h.OnError(err)
		m.setState(Disconnected, h)
		h.OnClose(err)
		return err
	}

	c := newConn(ws, m.opts.SendBuffer, m.opts.PingPeriod, m.opts.PongWait, m.logger)

	m.mu.Lock()
	m.conn = c
	m.mu.Unlock()

	m.setState(Connected, h)
	m.logger.Info("connection established")
	h.OnOpen()

	closeErr := c.serve(ctx, h)

	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()

	m.setState(Disconnected, h)
	h.OnClose(closeErr)
	return nil
}

func (m *Manager) setState(s State, h Handler) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()

	if !changed {
		return
	}

	names := make([]string, len(AllStates))
	for i, st := range AllStates {
		names[i] = st.String()
	}
	m.opts.Metrics.ConnectionState(s.String(), names)
	h.OnStateChange(s)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
