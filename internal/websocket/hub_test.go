package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"aprs-friend-alert/internal/follow"
	"aprs-friend-alert/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, logger.NewNopLogger())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})
	return hub
}

func attach(hub *Hub, buffer int) *Client {
	c := &Client{Hub: hub, ID: uuid.New(), Send: make(chan []byte, buffer)}
	hub.register <- c
	return c
}

func readFrame(t *testing.T, c *Client) frame {
	t.Helper()
	select {
	case data := <-c.Send:
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return frame{}
	}
}

func TestHubBroadcastsSnapshots(t *testing.T) {
	hub := startHub(t)
	a := attach(hub, 4)
	b := attach(hub, 4)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.Publish(follow.Snapshot{SessionID: "s1", Active: true, Recipients: []string{"1"}})

	for _, c := range []*Client{a, b} {
		f := readFrame(t, c)
		assert.Equal(t, "follow_snapshot", f.Type)
		assert.Equal(t, "s1", f.Data.SessionID)
		assert.True(t, f.Data.Active)
	}
}

func TestHubReplaysLastSnapshotOnConnect(t *testing.T) {
	hub := startHub(t)
	hub.Publish(follow.Snapshot{SessionID: "s2", Active: false})

	c := attach(hub, 4)
	f := readFrame(t, c)
	assert.Equal(t, "s2", f.Data.SessionID)
}

func TestHubDropsSlowViewer(t *testing.T) {
	hub := startHub(t)
	slow := attach(hub, 1)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(follow.Snapshot{SessionID: "a"})
	hub.Publish(follow.Snapshot{SessionID: "b"})

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	// The buffered frame is still readable, then the channel is closed.
	_, ok := <-slow.Send
	assert.True(t, ok)
	_, ok = <-slow.Send
	assert.False(t, ok)
}
