package websocket

// Central hub managing all observer connections and rooms.
// Each WebSocket connection runs in its own goroutines but membership only
// changes on the hub goroutine, through channels.

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type frame struct {
	sessionID string
	data      []byte
}

// Hub fans telemetry out to dashboard observers. Each control session is a
// room; observers in the AllSessions room receive every frame.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	broadcast chan frame
	done      chan struct{}
	rooms     map[string]*Room
	clients   map[string]*Client
	count     atomic.Int64
	dropped   atomic.Uint64
	logger    *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan frame, 1024),
		done:       make(chan struct{}),
		rooms:      make(map[string]*Room),
		clients:    make(map[string]*Client),
		logger:     logger,
	}
}

// Run owns room membership until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, c := range h.clients {
				h.remove(c)
			}
			return

		case c := <-h.Register:
			h.add(c)

		case c := <-h.Unregister:
			h.remove(c)

		case f := <-h.broadcast:
			h.deliver(f)
		}
	}
}

// Publish hands a frame for sessionID to the hub without blocking. Frames
// are dropped while the hub is saturated.
func (h *Hub) Publish(sessionID string, data []byte) {
	select {
	case h.broadcast <- frame{sessionID: sessionID, data: data}:
	default:
		if n := h.dropped.Add(1); n == 1 || n%1000 == 0 {
			h.logger.Warn("ws_broadcast_full_frame_dropped", "dropped_total", n)
		}
	}
}

// register hands c to the hub; it reports false once the hub has stopped.
func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// ClientCount is the number of connected observers.
func (h *Hub) ClientCount() int { return int(h.count.Load()) }

func (h *Hub) add(c *Client) {
	if _, ok := h.clients[c.ID]; ok {
		return
	}
	h.clients[c.ID] = c
	room, ok := h.rooms[c.RoomID]
	if !ok {
		room = NewRoom(c.RoomID)
		h.rooms[c.RoomID] = room
	}
	room.AddUser(c)
	h.count.Add(1)

	if msg, err := NewMessage(TypeSubscribed, c.RoomID, "subscribed").ToJSON(); err == nil {
		c.SendMessage(msg)
	}
	h.logger.Info("ws_observer_joined", "client_id", c.ID, "session_id", c.RoomID)
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	if room, ok := h.rooms[c.RoomID]; ok {
		room.RemoveUser(c)
		if room.GetUserCount() == 0 {
			delete(h.rooms, c.RoomID)
		}
	}
	c.Close()
	h.count.Add(-1)
	h.logger.Info("ws_observer_left", "client_id", c.ID)
}

func (h *Hub) deliver(f frame) {
	targets := make([]*Client, 0)
	if room, ok := h.rooms[f.sessionID]; ok && f.sessionID != AllSessions {
		targets = append(targets, room.GetClients()...)
	}
	if room, ok := h.rooms[AllSessions]; ok {
		targets = append(targets, room.GetClients()...)
	}
	for _, c := range targets {
		if !c.SendMessage(f.data) {
			h.logger.Warn("ws_observer_too_slow", "client_id", c.ID)
			h.remove(c)
		}
	}
}
