package monitoring

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub, url := startHub(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Publish(SessionRecorded, map[string]any{"user_id": 4, "code": 1}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, SessionRecorded, event.Type)
	assert.NotEmpty(t, event.ID)
	assert.JSONEq(t, `{"user_id":4,"code":1}`, string(event.Data))
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, url := startHub(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestClientSubscriptions(t *testing.T) {
	c := &Client{subscriptions: make(map[EventType]bool)}
	assert.True(t, c.wants(SessionRecorded), "no subscriptions means everything")

	c.handle(ClientMessage{Type: "subscribe", Topic: string(ModelTrained)})
	assert.True(t, c.wants(ModelTrained))
	assert.False(t, c.wants(SessionRecorded))

	c.handle(ClientMessage{Type: "unsubscribe", Topic: string(ModelTrained)})
	assert.True(t, c.wants(SessionRecorded))
}

func TestPublishWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < 300; i++ {
		require.NoError(t, hub.Publish(Heartbeat, i))
	}
	assert.Error(t, hub.Publish(Heartbeat, func() {}))
}

func TestHubSendsHeartbeats(t *testing.T) {
	hub := NewHub(nil)
	hub.HeartbeatInterval = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, Heartbeat, event.Type)
	assert.JSONEq(t, `{"clients":1}`, string(event.Data))
}
