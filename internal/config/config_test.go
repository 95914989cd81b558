package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultClientConfig(t *testing.T) {
	cfg, err := LoadClientConfig("")
	require.NoError(t, err)

	assert.Equal(t, "lobby", cfg.Room)
	assert.Equal(t, "/ws", cfg.Server.Path)
	assert.Equal(t, 5*time.Second, cfg.Reconnect.Delay)
	assert.Equal(t, float64(1), cfg.Reconnect.Multiplier)
	assert.Equal(t, 0, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Session.DeliveryTimeout)
	assert.Equal(t, 200, cfg.Session.HistorySize)
	assert.Equal(t, 100, cfg.Session.NetworkLogSize)
	assert.Equal(t, "tui", cfg.UI.Mode)
}

func TestLoadClientConfigFromFile(t *testing.T) {
	t.Setenv("CHAT_HOST", "chat.example.com")
	path := writeConfig(t, `
username: alice
room: games
server:
  origin: https://${CHAT_HOST}
  path: ${CHAT_PATH:/socket}
reconnect:
  delay: 2s
  max_delay: 30s
  multiplier: 2
  jitter: 0.25
  max_attempts: 10
session:
  delivery_timeout: 45s
ui:
  mode: plain
`)

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, "games", cfg.Room)
	assert.Equal(t, "https://chat.example.com", cfg.Server.Origin)
	assert.Equal(t, "/socket", cfg.Server.Path)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.Delay)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 2.0, cfg.Reconnect.Multiplier)
	assert.Equal(t, 0.25, cfg.Reconnect.Jitter)
	assert.Equal(t, 10, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 45*time.Second, cfg.Session.DeliveryTimeout)
	assert.Equal(t, "plain", cfg.UI.Mode)
}

func TestClientEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "username: alice\nroom: games\n")
	t.Setenv("GOCHAT_USERNAME", "bob")
	t.Setenv("GOCHAT_RECONNECT_DELAY", "3")
	t.Setenv("GOCHAT_URL", "ws://127.0.0.1:9000/ws")

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "bob", cfg.Username)
	assert.Equal(t, "games", cfg.Room)
	assert.Equal(t, 3*time.Second, cfg.Reconnect.Delay)
	assert.Equal(t, "ws://127.0.0.1:9000/ws", cfg.Server.URL)
}

func TestLoadClientConfigErrors(t *testing.T) {
	_, err := LoadClientConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadClientConfig(writeConfig(t, "room: [unterminated"))
	assert.Error(t, err)
}

func TestClientSanitize(t *testing.T) {
	cfg := ClientConfig{
		Reconnect: ReconnectConfig{Delay: -1, Multiplier: 0.5, Jitter: 3, MaxAttempts: -2},
		UI:        UIConfig{Mode: "gui"},
	}
	cfg.Sanitize()

	assert.Equal(t, DefaultRoom, cfg.Room)
	assert.Equal(t, DefaultReconnectDelay, cfg.Reconnect.Delay)
	assert.Zero(t, cfg.Reconnect.MaxDelay)
	assert.Equal(t, float64(1), cfg.Reconnect.Multiplier)
	assert.Equal(t, float64(1), cfg.Reconnect.Jitter)
	assert.Equal(t, 0, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, "tui", cfg.UI.Mode)
}

func TestClientSanitizeMaxDelay(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.Reconnect.Multiplier = 2
	cfg.Sanitize()
	assert.Zero(t, cfg.Reconnect.MaxDelay, "an unset maximum must not pin the delay")

	cfg.Reconnect.MaxDelay = time.Second
	cfg.Sanitize()
	assert.Equal(t, DefaultReconnectDelay, cfg.Reconnect.MaxDelay)

	cfg.Reconnect.MaxDelay = -time.Second
	cfg.Sanitize()
	assert.Zero(t, cfg.Reconnect.MaxDelay)
}

func TestRelayConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, https://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("RATE_LIMIT_BURST", "12")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")

	cfg, err := LoadRelayConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Port)
	assert.Equal(t, []string{"http://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 12, cfg.RateLimit.Burst)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, DefaultRoom, cfg.DefaultRoom)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, parseDuration("1500ms", time.Second))
	assert.Equal(t, 7*time.Second, parseDuration("7", time.Second))
	assert.Equal(t, time.Second, parseDuration("-3s", time.Second))
	assert.Equal(t, time.Second, parseDuration("soon", time.Second))
}
