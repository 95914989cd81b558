package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/protocol"
	"github.com/Tyrowin/gochat/internal/transport"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []protocol.Envelope
	err  error
}

func (s *fakeSender) Send(env protocol.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, env)
	return nil
}

func (s *fakeSender) envelopes() []protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Envelope(nil), s.sent...)
}

func (s *fakeSender) last(t *testing.T) protocol.Envelope {
	t.Helper()
	sent := s.envelopes()
	require.NotEmpty(t, sent)
	return sent[len(sent)-1]
}

func (s *fakeSender) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type latencyUpdate struct {
	current time.Duration
	average time.Duration
}

type recordingRenderer struct {
	mu        sync.Mutex
	messages  []Entry
	notices   []string
	users     [][]User
	states    []transport.State
	latencies []latencyUpdate
	netlog    []LogEntry
	addresses []string
}

func (r *recordingRenderer) OnMessageDisplay(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, e)
}

func (r *recordingRenderer) OnSystemNotice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, text)
}

func (r *recordingRenderer) OnUserDirectoryChange(users []User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, users)
}

func (r *recordingRenderer) OnConnectionStatusChange(st transport.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *recordingRenderer) OnLatencyUpdate(current, average time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latencies = append(r.latencies, latencyUpdate{current, average})
}

func (r *recordingRenderer) OnNetworkLogAppend(e LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.netlog = append(r.netlog, e)
}

func (r *recordingRenderer) OnClientAddress(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addresses = append(r.addresses, addr)
}

func (r *recordingRenderer) noticeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func (r *recordingRenderer) lastNotice() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return ""
	}
	return r.notices[len(r.notices)-1]
}

// newTestSession returns a session for alice in lobby driven by a fake clock.
func newTestSession(t *testing.T) (*Session, *fakeSender, *recordingRenderer, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	sender := &fakeSender{}
	renderer := &recordingRenderer{}
	s := New(Options{Username: "alice", Room: "lobby", Clock: clock}, sender, renderer)
	return s, sender, renderer, clock
}

func frame(t *testing.T, env protocol.Envelope) []byte {
	t.Helper()
	data, err := protocol.Encode(env)
	require.NoError(t, err)
	return data
}
