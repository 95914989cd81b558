package session

import (
	"errors"
	"time"

	"github.com/Tyrowin/gochat/internal/protocol"
)

// ErrDeliveryTimeout is reported when a sent message is never echoed back.
var ErrDeliveryTimeout = errors.New("delivery not confirmed")

// PendingDelivery is a sent chat or private message awaiting its echo.
type PendingDelivery struct {
	Envelope protocol.Envelope
	SentAt   time.Time
	timer    Timer
}

// DeliveryTracker correlates sent envelopes with their server echo and
// reports the ones that do not come back within the timeout. Every
// registered id is resolved exactly once, by Acknowledge or by expiry.
type DeliveryTracker struct {
	clock     Clock
	timeout   time.Duration
	onTimeout func(PendingDelivery)
	pending   map[string]*PendingDelivery
}

// NewDeliveryTracker returns a tracker that calls onTimeout for expired
// deliveries. Timer callbacks run through clock and must be serialised with
// the tracker's other methods by the caller.
func NewDeliveryTracker(clock Clock, timeout time.Duration, onTimeout func(PendingDelivery)) *DeliveryTracker {
	return &DeliveryTracker{
		clock:     clock,
		timeout:   timeout,
		onTimeout: onTimeout,
		pending:   make(map[string]*PendingDelivery),
	}
}

// Register starts tracking env. Envelopes without an id and ids already
// pending are ignored.
func (t *DeliveryTracker) Register(env protocol.Envelope) bool {
	if env.ID == "" {
		return false
	}
	if _, ok := t.pending[env.ID]; ok {
		return false
	}

	id := env.ID
	p := &PendingDelivery{Envelope: env, SentAt: t.clock.Now()}
	p.timer = t.clock.AfterFunc(t.timeout, func() { t.expire(id) })
	t.pending[id] = p
	return true
}

// Acknowledge resolves id and cancels its timer. It reports whether id was
// pending.
func (t *DeliveryTracker) Acknowledge(id string) bool {
	p, ok := t.pending[id]
	if !ok {
		return false
	}
	delete(t.pending, id)
	p.timer.Stop()
	return true
}

// Pending returns the number of unresolved deliveries.
func (t *DeliveryTracker) Pending() int {
	return len(t.pending)
}

// Stop cancels every timer without reporting timeouts.
func (t *DeliveryTracker) Stop() {
	for id, p := range t.pending {
		p.timer.Stop()
		delete(t.pending, id)
	}
}

func (t *DeliveryTracker) expire(id string) {
	p, ok := t.pending[id]
	if !ok {
		return
	}
	delete(t.pending, id)
	if t.onTimeout != nil {
		t.onTimeout(*p)
	}
}
