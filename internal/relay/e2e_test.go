package relay_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/protocol"
	"github.com/Tyrowin/gochat/internal/session"
	th "github.com/Tyrowin/gochat/internal/testhelpers"
	"github.com/Tyrowin/gochat/internal/transport"
)

// startClient connects a session controller to the relay at url.
func startClient(t *testing.T, url, name string) *session.Controller {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	manager := transport.New(transport.Options{
		Endpoint: url,
		Origin:   th.TestOrigin,
		Policy:   transport.Policy{Delay: 50 * time.Millisecond},
	})
	ctrl := session.NewController(session.Options{Username: name}, manager, nil)
	go func() { _ = ctrl.Run(ctx) }()
	require.NoError(t, manager.Start(ctx, ctrl))

	t.Cleanup(func() {
		manager.Stop()
		cancel()
		<-ctrl.Done()
	})
	return ctrl
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond, msg)
}

func hasUser(snap session.Snapshot, name string) bool {
	for _, u := range snap.Users {
		if u.Username == name {
			return true
		}
	}
	return false
}

func countText(entries []session.Entry, kind protocol.Kind, text string) int {
	n := 0
	for _, e := range entries {
		if e.Kind == kind && e.Text == text {
			n++
		}
	}
	return n
}

func TestClientSessionAgainstRelay(t *testing.T) {
	_, ts := th.StartRelay(t, th.RelayConfig())
	url := th.WebSocketURL(ts.URL)

	alice := startClient(t, url, "alice")
	bob := startClient(t, url, "bob")

	eventually(t, func() bool {
		snap := alice.Snapshot()
		return snap.Connection == transport.Connected && hasUser(snap, "alice") && hasUser(snap, "bob")
	}, "alice should see both users")

	snap := alice.Snapshot()
	assert.True(t, strings.HasPrefix(snap.ClientAddress, "127.0.0.1:"), snap.ClientAddress)

	alice.Submit("hello bob")
	eventually(t, func() bool {
		return countText(bob.Snapshot().History, protocol.KindChat, "hello bob") == 1
	}, "bob should receive the chat")
	eventually(t, func() bool {
		return alice.Snapshot().PendingDelivery == 0
	}, "the relay echo should acknowledge alice's message")
	assert.Equal(t, 1, countText(alice.Snapshot().History, protocol.KindChat, "hello bob"))

	alice.Submit("/msg bob psst")
	eventually(t, func() bool {
		snap := bob.Snapshot()
		return snap.PrivateTarget == "alice" && countText(snap.History, protocol.KindPrivate, "psst") == 1
	}, "bob should enter private mode with alice")
	eventually(t, func() bool {
		return alice.Snapshot().PendingDelivery == 0
	}, "the private echo should acknowledge")

	alice.Ping()
	eventually(t, func() bool {
		return alice.Snapshot().LatencySamples == 1
	}, "the pong should complete the ping")
	assert.False(t, alice.Snapshot().PingOutstanding)
}

func TestClientJoinsRoomOnRelay(t *testing.T) {
	srv, ts := th.StartRelay(t, th.RelayConfig())
	url := th.WebSocketURL(ts.URL)

	alice := startClient(t, url, "alice")
	bob := startClient(t, url, "bob")
	eventually(t, func() bool { return hasUser(bob.Snapshot(), "alice") }, "bob should see alice")

	alice.Submit("/join tech")
	eventually(t, func() bool {
		return srv.Hub().Stats().Rooms["tech"] == 1
	}, "alice should move to tech")
	eventually(t, func() bool { return !hasUser(bob.Snapshot(), "alice") }, "bob's list should drop alice")

	snap := alice.Snapshot()
	assert.Equal(t, "tech", snap.CurrentRoom)
	assert.Contains(t, snap.Rooms, "tech")
	assert.Contains(t, snap.Rooms, "lobby")
}

func countLog(entries []session.LogEntry, msg string) int {
	n := 0
	for _, e := range entries {
		if e.Message == msg {
			n++
		}
	}
	return n
}

func TestClientKeepsRoomAcrossReconnect(t *testing.T) {
	cfg := th.RelayConfig()
	cfg.MaxMessageSize = 1024
	srv, ts := th.StartRelay(t, cfg)

	alice := startClient(t, th.WebSocketURL(ts.URL), "alice")
	eventually(t, func() bool { return alice.Snapshot().Connection == transport.Connected }, "alice should connect")

	alice.Submit("/join tech")
	eventually(t, func() bool { return srv.Hub().Stats().Rooms["tech"] == 1 }, "alice should move to tech")

	// The relay drops connections that exceed the read limit.
	alice.Submit(strings.Repeat("x", 2048))
	eventually(t, func() bool {
		return countLog(alice.Snapshot().NetworkLog, "connection connected") >= 2
	}, "alice should reconnect")

	eventually(t, func() bool {
		rooms := srv.Hub().Stats().Rooms
		return rooms["tech"] == 1 && rooms["lobby"] == 0
	}, "the reconnected session should be back in tech")
	assert.Equal(t, "tech", alice.Snapshot().CurrentRoom)
}
