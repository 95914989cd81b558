package session

import "time"

// LatencyMeter measures /ping round trips. At most one ping is
// outstanding at a time.
type LatencyMeter struct {
	clock      Clock
	startedAt  time.Time
	inFlight   bool
	samples    int
	cumulative time.Duration
	last       time.Duration
}

// NewLatencyMeter returns an idle meter reading time from clock.
func NewLatencyMeter(clock Clock) *LatencyMeter {
	return &LatencyMeter{clock: clock}
}

// Begin marks a ping as sent. It returns false if one is already
// outstanding.
func (p *LatencyMeter) Begin() bool {
	if p.inFlight {
		return false
	}
	p.inFlight = true
	p.startedAt = p.clock.Now()
	return true
}

// Abandon forgets the outstanding ping, if any, without recording a sample.
func (p *LatencyMeter) Abandon() {
	p.inFlight = false
	p.startedAt = time.Time{}
}

// Complete records the reply to the outstanding ping. Replies with no ping
// outstanding are ignored and ok is false.
func (p *LatencyMeter) Complete() (current, average time.Duration, ok bool) {
	if !p.inFlight {
		return 0, 0, false
	}
	current = p.clock.Now().Sub(p.startedAt)
	if current < 0 {
		current = 0
	}

	p.inFlight = false
	p.startedAt = time.Time{}
	p.samples++
	p.cumulative += current
	p.last = current
	return current, p.Average(), true
}

// Outstanding reports whether a ping awaits its reply.
func (p *LatencyMeter) Outstanding() bool { return p.inFlight }

// Samples is the number of completed pings.
func (p *LatencyMeter) Samples() int { return p.samples }

// Last is the most recent round trip.
func (p *LatencyMeter) Last() time.Duration { return p.last }

// Average is the mean of all completed samples, or zero if there are none.
func (p *LatencyMeter) Average() time.Duration {
	if p.samples == 0 {
		return 0
	}
	return p.cumulative / time.Duration(p.samples)
}
