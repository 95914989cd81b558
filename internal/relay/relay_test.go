package relay_test

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/protocol"
	th "github.com/Tyrowin/gochat/internal/testhelpers"
)

// identify connects a client and names it, draining the welcome traffic.
func identify(t *testing.T, url, name string) *websocket.Conn {
	t.Helper()
	conn := th.Dial(t, url)
	th.WaitForEnvelope(t, conn, th.TextContains(protocol.KindSystem, "您的IP地址: "))
	th.SendEnvelope(t, conn, protocol.NewEnvelope(protocol.KindChat, name, "", ""))
	th.WaitForEnvelope(t, conn, th.TextContains(protocol.KindSystem, name+" joined the chat"))
	return conn
}

func TestHealthHandler(t *testing.T) {
	_, ts := th.StartRelay(t, th.RelayConfig())

	resp := th.MakeRequest(t, http.MethodGet, ts.URL+"/")
	th.AssertStatusCode(t, resp, http.StatusOK)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "GoChat relay is running!", string(body))
}

func TestWebSocketRejectsNonGet(t *testing.T) {
	_, ts := th.StartRelay(t, th.RelayConfig())
	resp := th.MakeRequest(t, http.MethodPost, ts.URL+"/ws")
	th.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
}

func TestOriginPolicy(t *testing.T) {
	_, ts := th.StartRelay(t, th.RelayConfig())
	url := th.WebSocketURL(ts.URL)

	for _, origin := range []string{"", "http://evil.example", "not a url"} {
		_, resp, err := th.ConnectWebSocket(url, origin)
		assert.Error(t, err, "origin %q", origin)
		if resp != nil {
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		}
	}

	conn, _, err := th.ConnectWebSocket(url, "HTTP://LOCALHOST:8080")
	require.NoError(t, err)
	_ = conn.Close()

	cfg := th.RelayConfig()
	cfg.AllowedOrigins = []string{"*"}
	_, open := th.StartRelay(t, cfg)
	conn, _, err = th.ConnectWebSocket(th.WebSocketURL(open.URL), "http://anywhere.example")
	require.NoError(t, err)
	_ = conn.Close()
}

func TestWelcomeAnnouncesAddress(t *testing.T) {
	_, ts := th.StartRelay(t, th.RelayConfig())
	conn := th.Dial(t, th.WebSocketURL(ts.URL))

	welcome := th.WaitForEnvelope(t, conn, th.Kind(protocol.KindSystem))
	assert.Contains(t, welcome.Text, "您的IP地址: 127.0.0.1:")
	assert.Equal(t, "lobby", welcome.Room)

	list := th.WaitForEnvelope(t, conn, th.Kind(protocol.KindUserList))
	assert.Regexp(t, `^guest\d+:127\.0\.0\.1:\d+$`, list.Text)
}

func TestChatBroadcastKeepsID(t *testing.T) {
	_, ts := th.StartRelay(t, th.RelayConfig())
	url := th.WebSocketURL(ts.URL)
	alice := identify(t, url, "alice")
	bob := identify(t, url, "bob")

	msg := protocol.NewEnvelope(protocol.KindChat, "alice", "lobby", "hello")
	th.SendEnvelope(t, alice, msg)

	got := th.WaitForEnvelope(t, bob, th.Kind(protocol.KindChat))
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "hello", got.Text)

	echo := th.WaitForEnvelope(t, alice, th.Kind(protocol.KindChat))
	assert.Equal(t, msg.ID, echo.ID)
}

func TestPrivateMessages(t *testing.T) {
	_, ts := th.StartRelay(t, th.RelayConfig())
	url := th.WebSocketURL(ts.URL)
	alice := identify(t, url, "alice")
	bob := identify(t, url, "bob")

	msg := protocol.NewEnvelope(protocol.KindPrivate, "alice", protocol.PrivateRoom, "psst")
	msg.Target = "bob"
	th.SendEnvelope(t, alice, msg)

	got := th.WaitForEnvelope(t, bob, th.Kind(protocol.KindPrivate))
	assert.Equal(t, "psst", got.Text)
	assert.Equal(t, "bob", got.Target)
	assert.Equal(t, msg.ID, got.ID)

	echo := th.WaitForEnvelope(t, alice, th.Kind(protocol.KindPrivate))
	assert.Equal(t, msg.ID, echo.ID)

	missing := protocol.NewEnvelope(protocol.KindPrivate, "alice", protocol.PrivateRoom, "hello?")
	missing.Target = "nobody"
	th.SendEnvelope(t, alice, missing)
	th.WaitForEnvelope(t, alice, th.TextContains(protocol.KindSystem, "user nobody is not online"))
}

func TestJoinRoom(t *testing.T) {
	srv, ts := th.StartRelay(t, th.RelayConfig())
	url := th.WebSocketURL(ts.URL)
	alice := identify(t, url, "alice")
	bob := identify(t, url, "bob")

	th.SendEnvelope(t, alice, protocol.NewEnvelope(protocol.KindJoin, "alice", "tech", ""))

	th.WaitForEnvelope(t, bob, th.TextContains(protocol.KindSystem, "alice left the room"))
	list := th.WaitForEnvelope(t, bob, th.Kind(protocol.KindUserList))
	assert.NotContains(t, list.Text, "alice:")

	th.WaitForEnvelope(t, alice, th.TextContains(protocol.KindSystem, "alice joined the room"))
	techList := th.WaitForEnvelope(t, alice, func(env protocol.Envelope) bool {
		return env.Kind == protocol.KindUserList && env.Room == "tech"
	})
	assert.Regexp(t, `^alice:127\.0\.0\.1:\d+$`, techList.Text)

	assert.Equal(t, map[string]int{"lobby": 1, "tech": 1}, srv.Hub().Stats().Rooms)

	th.SendEnvelope(t, alice, protocol.NewEnvelope(protocol.KindJoin, "alice", "tech", ""))
	th.WaitForEnvelope(t, alice, th.TextContains(protocol.KindSystem, "already in room tech"))
}

func TestPingAndCommands(t *testing.T) {
	_, ts := th.StartRelay(t, th.RelayConfig())
	alice := identify(t, th.WebSocketURL(ts.URL), "alice")

	th.SendEnvelope(t, alice, protocol.NewEnvelope(protocol.KindPing, "alice", "lobby", "abc"))
	pong := th.WaitForEnvelope(t, alice, th.Kind(protocol.KindPong))
	assert.Equal(t, "abc", pong.Text)

	th.SendEnvelope(t, alice, protocol.NewEnvelope(protocol.KindCommand, "alice", "lobby", "/ping"))
	ping := th.WaitForEnvelope(t, alice, th.Kind(protocol.KindPing))
	_, err := strconv.ParseInt(ping.Text, 10, 64)
	assert.NoError(t, err)

	cases := map[string]string{
		"/help":  "/stats - show server statistics",
		"/rooms": "lobby (1 online)",
		"/users": "1 users in this room:\nalice (127.0.0.1:",
		"/stats": "connections: 1",
		"/dance": "unknown command: /dance",
	}
	for cmd, want := range cases {
		th.SendEnvelope(t, alice, protocol.NewEnvelope(protocol.KindCommand, "alice", "lobby", cmd))
		th.WaitForEnvelope(t, alice, th.TextContains(protocol.KindSystem, want))
	}
}

func TestMalformedFrame(t *testing.T) {
	_, ts := th.StartRelay(t, th.RelayConfig())
	conn := th.Dial(t, th.WebSocketURL(ts.URL))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	th.WaitForEnvelope(t, conn, th.TextContains(protocol.KindSystem, "malformed message"))
}

func TestRateLimitDiscardsExcess(t *testing.T) {
	cfg := th.RelayConfig()
	cfg.RateLimit.Burst = 2
	cfg.RateLimit.RefillInterval = time.Hour
	_, ts := th.StartRelay(t, cfg)
	url := th.WebSocketURL(ts.URL)

	observer := identify(t, url, "observer")
	alice := identify(t, url, "alice")

	th.SendEnvelope(t, alice, protocol.NewEnvelope(protocol.KindChat, "alice", "lobby", "first"))
	th.SendEnvelope(t, alice, protocol.NewEnvelope(protocol.KindChat, "alice", "lobby", "second"))

	got := th.WaitForEnvelope(t, observer, th.Kind(protocol.KindChat))
	assert.Equal(t, "first", got.Text)

	env, err := th.ReadEnvelope(observer, 300*time.Millisecond)
	if err == nil {
		assert.NotEqual(t, "second", env.Text)
	}
}

func TestDisconnectUpdatesStats(t *testing.T) {
	srv, ts := th.StartRelay(t, th.RelayConfig())
	url := th.WebSocketURL(ts.URL)
	alice := identify(t, url, "alice")
	bob := identify(t, url, "bob")

	assert.Equal(t, 2, srv.Hub().Stats().Connections)
	require.NoError(t, th.CloseWebSocket(alice))

	th.WaitForEnvelope(t, bob, th.TextContains(protocol.KindSystem, "alice left the chat"))
	require.Eventually(t, func() bool {
		return srv.Hub().Stats().Connections == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesClients(t *testing.T) {
	srv, ts := th.StartRelay(t, th.RelayConfig())
	conn := th.Dial(t, th.WebSocketURL(ts.URL))
	th.WaitForEnvelope(t, conn, th.Kind(protocol.KindSystem))

	require.NoError(t, srv.Hub().Shutdown(2*time.Second))

	_, err := th.ReadEnvelope(conn, 2*time.Second)
	assert.Error(t, err)
	assert.Zero(t, srv.Hub().Stats().Connections)
}

func TestOversizedMessageClosesConnection(t *testing.T) {
	cfg := th.RelayConfig()
	cfg.MaxMessageSize = 256
	_, ts := th.StartRelay(t, cfg)
	url := th.WebSocketURL(ts.URL)

	receiver := identify(t, url, "receiver")
	sender := identify(t, url, "sender")

	big := protocol.NewEnvelope(protocol.KindChat, "sender", "lobby", strings.Repeat("A", 300))
	data, err := protocol.Encode(big)
	require.NoError(t, err)
	_ = sender.WriteMessage(websocket.TextMessage, data)

	th.WaitForEnvelope(t, receiver, th.TextContains(protocol.KindSystem, "sender left the chat"))
	for {
		_, err := th.ReadEnvelope(sender, time.Second)
		if err != nil {
			break
		}
	}
}
