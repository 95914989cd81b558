package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/config"
)

func TestPolicyFixedDelay(t *testing.T) {
	bo := PolicyFromConfig(config.ReconnectConfig{Delay: 5 * time.Second, Multiplier: 1}).NewBackOff()
	for range 5 {
		assert.Equal(t, 5*time.Second, bo.NextBackOff())
	}
}

func TestPolicyExponentialCapped(t *testing.T) {
	bo := Policy{Delay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}.NewBackOff()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		assert.Equal(t, w, bo.NextBackOff(), "attempt %d", i)
	}

	bo.Reset()
	assert.Equal(t, time.Second, bo.NextBackOff())
}

func TestPolicyWithoutMaxDelayGrows(t *testing.T) {
	cfg := config.DefaultClientConfig()
	cfg.Reconnect.Multiplier = 2
	cfg.Sanitize()

	bo := PolicyFromConfig(cfg.Reconnect).NewBackOff()
	assert.Equal(t, 5*time.Second, bo.NextBackOff())
	assert.Equal(t, 10*time.Second, bo.NextBackOff())
	assert.Equal(t, 20*time.Second, bo.NextBackOff())

	bo = Policy{Delay: time.Minute, Multiplier: 10}.NewBackOff()
	assert.Equal(t, time.Minute, bo.NextBackOff())
	assert.Equal(t, DefaultMaxDelay, bo.NextBackOff())
	assert.Equal(t, DefaultMaxDelay, bo.NextBackOff())
}

func TestPolicyJitterBounds(t *testing.T) {
	bo := Policy{Delay: time.Second, Jitter: 0.5}.NewBackOff()
	for range 200 {
		d := bo.NextBackOff()
		require.GreaterOrEqual(t, d, 500*time.Millisecond)
		require.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestPolicyZeroDelay(t *testing.T) {
	bo := Policy{}.NewBackOff()
	assert.Zero(t, bo.NextBackOff())
}

func TestPolicyExhausted(t *testing.T) {
	p := Policy{Delay: time.Second, MaxAttempts: 3}
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
}

func TestEndpoint(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.ServerConfig
		want string
		err  bool
	}{
		{name: "explicit url", cfg: config.ServerConfig{URL: "wss://chat.example.com/ws"}, want: "wss://chat.example.com/ws"},
		{name: "http origin", cfg: config.ServerConfig{Origin: "http://localhost:8080"}, want: "ws://localhost:8080/ws"},
		{name: "https origin", cfg: config.ServerConfig{Origin: "https://chat.example.com", Path: "socket"}, want: "wss://chat.example.com/socket"},
		{name: "bad scheme", cfg: config.ServerConfig{URL: "http://chat.example.com/ws"}, err: true},
		{name: "nothing configured", cfg: config.ServerConfig{}, err: true},
		{name: "origin without host", cfg: config.ServerConfig{Origin: "localhost"}, err: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Endpoint(tc.cfg)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOriginFor(t *testing.T) {
	assert.Equal(t, "https://a.example", OriginFor(config.ServerConfig{Origin: "https://a.example"}, "ws://b.example/ws"))
	assert.Equal(t, "https://b.example", OriginFor(config.ServerConfig{}, "wss://b.example/ws"))
	assert.Equal(t, "http://127.0.0.1:9000", OriginFor(config.ServerConfig{}, "ws://127.0.0.1:9000/ws"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unknown", State(42).String())
}
