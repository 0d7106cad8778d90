package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const ( // ping pong(2-way heartbeat) to keep connection alive
	WriteWait      = 10 * time.Second    // max time to write a message to the peer
	PongWait       = 60 * time.Second    // no pong within this = connection gone
	PingPeriod     = (PongWait * 9) / 10 // ping before the pong wait expires
	MaxMessageSize = 512                 // observers only send control frames
	SendBuffer     = 256                 // queued frames per observer before it is dropped
)

// Client is one dashboard connection.
type Client struct {
	ID          string          // unique client ID
	RoomID      string          // followed session, or AllSessions
	Conn        *websocket.Conn // WebSocket connection
	SendChannel chan []byte     // outbound frames
	Hub         *Hub

	closeOnce sync.Once
}

func NewClient(id, roomID string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:          id,
		RoomID:      roomID,
		Conn:        conn,
		SendChannel: make(chan []byte, SendBuffer),
		Hub:         hub,
	}
}

// ReadPump consumes pongs and discards anything else until the peer goes
// away, then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("ws_read_error", "client_id", c.ID, "error", err)
			}
			return
		}
	}
}

// WritePump forwards queued frames and keeps the connection alive with
// pings. It exits when the hub closes SendChannel or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.SendChannel:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("ws_write_error", "client_id", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues message without blocking; it reports false when the
// observer is too far behind.
func (c *Client) SendMessage(message []byte) bool {
	select {
	case c.SendChannel <- message:
		return true
	default:
		return false
	}
}

// Close stops the write pump. Only the hub calls it.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.SendChannel) })
}
