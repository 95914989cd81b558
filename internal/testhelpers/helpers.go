// Package testhelpers provides shared utilities for relay and end-to-end tests:
// starting a relay on httptest, dialing it and exchanging envelopes.
package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/config"
	"github.com/Tyrowin/gochat/internal/protocol"
	"github.com/Tyrowin/gochat/internal/relay"
)

// TestOrigin is the page origin the helpers present and the relay allows.
const TestOrigin = "http://localhost:8080"

// RelayConfig returns a relay configuration suitable for tests.
func RelayConfig() config.RelayConfig {
	cfg := config.DefaultRelayConfig()
	cfg.AllowedOrigins = []string{TestOrigin}
	cfg.RateLimit.Burst = 100
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// StartRelay runs a relay on an httptest server. Both are stopped when the
// test ends.
func StartRelay(t *testing.T, cfg config.RelayConfig) (*relay.Server, *httptest.Server) {
	t.Helper()

	srv := relay.New(cfg, nil, nil)
	srv.Start()
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		_ = srv.Hub().Shutdown(cfg.ShutdownTimeout)
		ts.Close()
	})
	return srv, ts
}

// WebSocketURL turns an http:// test server URL into its websocket endpoint.
func WebSocketURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + config.DefaultPath
}

// MakeRequest executes an HTTP request with a 5-second timeout.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// AssertStatusCode checks the response status.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode)
}

// ConnectWebSocket dials url presenting origin.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Dial connects to the relay and fails the test on error. The socket is
// closed when the test ends.
func Dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := ConnectWebSocket(url, TestOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEnvelope encodes env and writes it as one text frame.
func SendEnvelope(t *testing.T, conn *websocket.Conn, env protocol.Envelope) {
	t.Helper()
	data, err := protocol.Encode(env)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// ReadEnvelope reads one envelope, waiting at most timeout.
func ReadEnvelope(conn *websocket.Conn, timeout time.Duration) (protocol.Envelope, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return protocol.Envelope{}, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.Decode(data)
}

// WaitForEnvelope reads until match accepts an envelope, skipping the rest.
func WaitForEnvelope(t *testing.T, conn *websocket.Conn, match func(protocol.Envelope) bool) protocol.Envelope {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		env, err := ReadEnvelope(conn, time.Until(deadline))
		require.NoError(t, err)
		if match(env) {
			return env
		}
	}
	t.Fatal("timed out waiting for envelope")
	return protocol.Envelope{}
}

// Kind matches envelopes of kind k.
func Kind(k protocol.Kind) func(protocol.Envelope) bool {
	return func(env protocol.Envelope) bool { return env.Kind == k }
}

// TextContains matches envelopes of kind k whose text contains sub.
func TextContains(k protocol.Kind, sub string) func(protocol.Envelope) bool {
	return func(env protocol.Envelope) bool {
		return env.Kind == k && strings.Contains(env.Text, sub)
	}
}

// CloseWebSocket sends a close frame and closes the socket.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
