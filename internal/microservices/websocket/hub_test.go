package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws/telemetry", WSHandler(hub))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/telemetry"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// first frame confirms the subscription
	msg := readFrame(t, conn)
	assert.Contains(t, msg, `"type":"subscribed"`)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestHub_AllSessionsObserverGetsEveryFrame(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish("session-1", []byte(`{"session_id":"session-1"}`))
	hub.Publish("session-2", []byte(`{"session_id":"session-2"}`))

	assert.Equal(t, `{"session_id":"session-1"}`, readFrame(t, conn))
	assert.Equal(t, `{"session_id":"session-2"}`, readFrame(t, conn))
}

func TestHub_SessionObserverIsFiltered(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url+"?session=session-2")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish("session-1", []byte(`one`))
	hub.Publish("session-2", []byte(`two`))

	assert.Equal(t, "two", readFrame(t, conn))
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_StopClosesObservers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	router := gin.New()
	router.GET("/ws", WSHandler(hub))
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-stopped

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub(nil) // not running

	done := make(chan struct{})
	go func() {
		for range 5000 {
			hub.Publish("s", []byte("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a saturated hub")
	}
}

func TestRoom_Membership(t *testing.T) {
	room := NewRoom("session-1")
	c := &Client{ID: "a"}

	assert.True(t, room.AddUser(c))
	assert.False(t, room.AddUser(c))
	assert.Equal(t, 1, room.GetUserCount())
	assert.Len(t, room.GetClients(), 1)

	assert.True(t, room.RemoveUser(c))
	assert.False(t, room.RemoveUser(c))
	assert.Equal(t, 0, room.GetUserCount())
}

func TestMessage_RoundTrip(t *testing.T) {
	data, err := NewSystemMessage("shutting down").ToJSON()
	require.NoError(t, err)

	msg, err := MessageFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, TypeSystem, msg.Type)
	assert.Equal(t, "shutting down", msg.Content)
	assert.Empty(t, msg.SessionID)

	_, err = MessageFromJSON([]byte("{"))
	assert.Error(t, err)
}
