package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveHub registers every upgraded connection under the "user" query param
func serveHub(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		userID := r.URL.Query().Get("user")
		hub.Register(userID, conn)
		defer hub.Unregister(userID, conn)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_SendToUser(t *testing.T) {
	hub := NewHub()
	srv := serveHub(t, hub)
	conn := dial(t, srv, "alice")

	require.Eventually(t, func() bool { return hub.IsOnline("alice") }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.SendToUser("alice", Message{Type: "MESSAGE_SENT", Data: map[string]string{"text": "hi"}}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "MESSAGE_SENT", got.Type)
	assert.NotZero(t, got.Timestamp)

	assert.ErrorIs(t, hub.SendToUser("bob", Message{Type: "x"}), ErrNotConnected)
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	srv := serveHub(t, hub)
	alice := dial(t, srv, "alice")

	require.Eventually(t, func() bool { return hub.IsOnline("alice") }, time.Second, 10*time.Millisecond)

	sent := hub.Broadcast([]string{"alice", "bob", "alice", ""}, Message{Type: "TRANSACTION_SOLD"})
	assert.Equal(t, 1, sent)

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := alice.ReadMessage()
	assert.NoError(t, err)
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub := NewHub()
	srv := serveHub(t, hub)
	conn := dial(t, srv, "alice")

	require.Eventually(t, func() bool { return hub.IsOnline("alice") }, time.Second, 10*time.Millisecond)
	conn.Close()
	assert.Eventually(t, func() bool { return !hub.IsOnline("alice") }, time.Second, 10*time.Millisecond)
}

func TestHub_ReplacedConnectionKeepsNewest(t *testing.T) {
	hub := NewHub()
	srv := serveHub(t, hub)

	first := dial(t, srv, "alice")
	require.Eventually(t, func() bool { return hub.IsOnline("alice") }, time.Second, 10*time.Millisecond)

	hub.mu.RLock()
	old := hub.clients["alice"]
	hub.mu.RUnlock()

	second := dial(t, srv, "alice")
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients["alice"] != old
	}, time.Second, 10*time.Millisecond)

	// The first socket gets closed by the server; its handler exiting must
	// not drop the newer registration.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)
	assert.True(t, hub.IsOnline("alice"))

	require.NoError(t, hub.SendToUser("alice", Message{Type: "ping"}))
	require.NoError(t, second.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = second.ReadMessage()
	assert.NoError(t, err)
}
