package live

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watcher/internal/gazette"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn
}

func TestPublishBroadcastsToClients(t *testing.T) {
	t.Parallel()

	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	a := dial(t, srv.URL)
	defer func() { _ = a.Close() }()
	b := dial(t, srv.URL)
	defer func() { _ = b.Close() }()
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)

	event := gazette.NewPostEvent{Title: "Vacancy", URL: "https://gazette.gov.mv/iulaan/view/3"}
	_, err := hub.Publish(context.Background(), "", event)
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var got gazette.NewPostEvent
		require.NoError(t, json.Unmarshal(data, &got))
		require.Equal(t, event.URL, got.URL)
	}
}

func TestDisconnectedClientIsRemoved(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	conn := dial(t, srv.URL)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCloseDisconnectsAndRefuses(t *testing.T) {
	t.Parallel()

	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	conn := dial(t, srv.URL)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Close())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.Zero(t, hub.Clients())

	late := dial(t, srv.URL)
	defer func() { _ = late.Close() }()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = late.ReadMessage()
	require.Error(t, err)
	require.Zero(t, hub.Clients())
}

func TestPublishWithoutClients(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	_, err := hub.Publish(context.Background(), "", map[string]string{"k": "v"})
	require.NoError(t, err)
	_, err = hub.Publish(context.Background(), "", make(chan int))
	require.Error(t, err)
}

func TestStalledClientDoesNotBlockPublish(t *testing.T) {
	t.Parallel()

	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	// Never reads, so its socket buffers fill and its write pump blocks.
	stalled := dial(t, srv.URL)
	defer func() { _ = stalled.Close() }()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	event := map[string]string{"body": strings.Repeat("x", 64<<10)}
	start := time.Now()
	for i := 0; i < 400; i++ {
		_, err := hub.Publish(context.Background(), "", event)
		require.NoError(t, err)
	}
	require.Less(t, time.Since(start), 2*time.Second)
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
