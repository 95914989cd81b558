package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/protocol"
	"github.com/Tyrowin/gochat/internal/transport"
)

func startController(t *testing.T, clock Clock) (*Controller, *fakeSender, *recordingRenderer) {
	t.Helper()
	sender := &fakeSender{}
	renderer := &recordingRenderer{}
	c := NewController(Options{Username: "alice", Clock: clock}, sender, renderer)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return c, sender, renderer
}

func TestControllerSerialisesOperations(t *testing.T) {
	c, sender, _ := startController(t, nil)

	c.OnStateChange(transport.Connected)
	c.OnOpen()
	c.Submit("hello")
	c.JoinRoom("tech")
	c.StartPrivateChat("bob")
	c.Submit("secret")

	snap := c.Snapshot()
	assert.Equal(t, transport.Connected, snap.Connection)
	assert.Equal(t, "tech", snap.CurrentRoom)
	assert.Equal(t, "bob", snap.PrivateTarget)
	assert.Equal(t, 4, snap.Sent)

	sent := sender.envelopes()
	require.Len(t, sent, 4)
	assert.Equal(t, protocol.KindChat, sent[0].Kind)
	assert.Empty(t, sent[0].Text)
	assert.Equal(t, "hello", sent[1].Text)
	assert.Equal(t, protocol.KindJoin, sent[2].Kind)
	assert.Equal(t, protocol.KindPrivate, sent[3].Kind)

	c.SelectRoom("lobby")
	snap = c.Snapshot()
	assert.Equal(t, "lobby", snap.CurrentRoom)
	assert.Empty(t, snap.PrivateTarget)
}

func TestControllerFramesAndPing(t *testing.T) {
	c, sender, _ := startController(t, nil)

	c.OnFrame(frame(t, protocol.Envelope{Kind: protocol.KindUserList, Text: "alice:1.1.1.1,bob:2.2.2.2"}))
	c.Ping()
	c.Ping()

	snap := c.Snapshot()
	assert.Equal(t, []User{{Username: "alice", Address: "1.1.1.1"}, {Username: "bob", Address: "2.2.2.2"}}, snap.Users)
	assert.True(t, snap.PingOutstanding)
	assert.Len(t, sender.envelopes(), 1)

	c.OnFrame(frame(t, protocol.Envelope{Kind: protocol.KindPong}))
	c.OnClose(nil)
	snap = c.Snapshot()
	assert.False(t, snap.PingOutstanding)
	assert.Equal(t, 1, snap.LatencySamples)
}

func TestControllerTimersRunOnLoop(t *testing.T) {
	clock := newFakeClock()
	c, _, renderer := startController(t, clock)

	c.Submit("are you there")
	require.Equal(t, 1, c.Snapshot().PendingDelivery)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return c.Snapshot().PendingDelivery == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "message may not have been delivered: are you there", renderer.lastNotice())
}

func TestControllerStop(t *testing.T) {
	c := NewController(Options{Username: "alice"}, &fakeSender{}, nil)
	errc := make(chan error, 1)
	go func() { errc <- c.Run(context.Background()) }()

	c.Submit("hi")
	c.Stop()
	c.Stop()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	// Operations after shutdown are dropped rather than blocking.
	c.Submit("late")
	assert.Equal(t, Snapshot{}, c.Snapshot())
}

func TestControllerRunReturnsContextError(t *testing.T) {
	c := NewController(Options{}, &fakeSender{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Run(ctx), context.Canceled)
}
