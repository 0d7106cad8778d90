package tcp

import (
	"log/slog"
	"sort"
	"sync"
)

type ConnectionManager struct {
	sessions map[string]*Session
	// key: session ID
	mu     sync.RWMutex // read-write mutex for concurrent access
	logger *slog.Logger
}

// constructor for ConnectionManager
func NewConnectionManager(logger *slog.Logger) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionManager{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// method to add a new connection
func (m *ConnectionManager) AddConnection(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
	m.logger.Info("client_added",
		"client_id", s.ID(),
		"active", len(m.sessions),
	)
}

// method to remove a connection
func (m *ConnectionManager) RemoveConnection(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID()]; !ok {
		return
	}
	delete(m.sessions, s.ID())
	m.logger.Info("client_removed",
		"client_id", s.ID(),
		"active", len(m.sessions),
	)
}

// Get looks up an active session.
func (m *ConnectionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of active sessions.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns the active sessions ordered by ID.
func (m *ConnectionManager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// method to close all connections
func (m *ConnectionManager) CloseAllConnections() {
	// disconnect outside the lock: the receive loops remove themselves on exit
	for _, s := range m.List() {
		s.Disconnect()
	}
}

func (m *ConnectionManager) BroadcastSystemMessage(text string) {
	m.Broadcast(NewMessage("system").Set("message", text))
}

func (m *ConnectionManager) Broadcast(msg Message) {
	data, err := Encode(msg)
	if err != nil {
		m.logger.Error("failed_to_marshal_broadcast_message", "error", err.Error())
		return
	}
	for _, s := range m.List() {
		if err := s.SendRaw(data); err != nil {
			m.logger.Warn("failed_to_send_broadcast",
				"client_id", s.ID(),
				"error", err.Error(),
			)
		}
	}
}
