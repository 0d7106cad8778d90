package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HTTP upgrade handler to WebSocket connections

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// dashboards are served from anywhere
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades the request and subscribes the observer to the session
// named by the "session" query parameter, or to all sessions without one.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Query("session")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already replied to the client
			hub.logger.Warn("ws_upgrade_failed", "error", err)
			return
		}

		client := NewClient(uuid.NewString(), roomID, conn, hub)
		if !hub.register(client) {
			conn.Close()
			return
		}

		go client.ReadPump()
		go client.WritePump()
	}
}
