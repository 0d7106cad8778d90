package websocket

import (
	"sync"
)

// AllSessions is the room of observers that follow every session.
const AllSessions = ""

// Room is the set of observers following one control session.
type Room struct {
	ID      string             // session ID, or AllSessions
	Clients map[string]*Client // map[clientID] -> *Client
	mu      sync.RWMutex
}

func NewRoom(id string) *Room {
	return &Room{
		ID:      id,
		Clients: make(map[string]*Client),
	}
}

// AddUser adds c; it reports false if c was already a member.
func (r *Room) AddUser(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Clients[c.ID]; ok {
		return false
	}
	r.Clients[c.ID] = c
	return true
}

// RemoveUser removes c; it reports false if c was not a member.
func (r *Room) RemoveUser(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Clients[c.ID]; !ok {
		return false
	}
	delete(r.Clients, c.ID)
	return true
}

// GetUserCount: returns the number of clients in the room
func (r *Room) GetUserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Clients)
}

// GetClients: returns copy of clients list in the room
func (r *Room) GetClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.Clients))
	for _, client := range r.Clients {
		clients = append(clients, client)
	}
	return clients
}
