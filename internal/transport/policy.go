package transport

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Tyrowin/gochat/internal/config"
)

// DefaultMaxDelay caps reconnect waits when the policy sets no maximum.
const DefaultMaxDelay = 5 * time.Minute

// Policy decides how long to wait before each reconnect attempt.
type Policy struct {
	Delay       time.Duration
	MaxDelay    time.Duration // 0 caps at DefaultMaxDelay
	Multiplier  float64
	Jitter      float64 // each wait is randomised by up to Jitter*wait either way
	MaxAttempts int     // 0 retries forever
}

// PolicyFromConfig converts the reconnect section of the client config.
func PolicyFromConfig(cfg config.ReconnectConfig) Policy {
	return Policy{
		Delay:       cfg.Delay,
		MaxDelay:    cfg.MaxDelay,
		Multiplier:  cfg.Multiplier,
		Jitter:      cfg.Jitter,
		MaxAttempts: cfg.MaxAttempts,
	}
}

// NewBackOff returns the sequence of waits for one run of failed attempts.
// The manager resets it after every successful open.
func (p Policy) NewBackOff() backoff.BackOff {
	if p.Delay <= 0 {
		return &backoff.ZeroBackOff{}
	}

	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if maxDelay < p.Delay {
		maxDelay = p.Delay
	}
	jitter := min(max(p.Jitter, 0), 1)

	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Delay,
		RandomizationFactor: jitter,
		Multiplier:          mult,
		MaxInterval:         maxDelay,
	}
	b.Reset()
	return b
}

// Exhausted reports whether attempts reconnects have used up the policy.
func (p Policy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}
