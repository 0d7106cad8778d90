package udp

import (
	"net"
	"sync"
	"time"
)

// Subscriber is one observer address and the session it follows.
type Subscriber struct {
	Addr      *net.UDPAddr
	SessionID string // "" follows every session
	LastSeen  time.Time
}

// Wants reports whether frames from sessionID go to this subscriber.
func (s *Subscriber) Wants(sessionID string) bool {
	return s.SessionID == "" || s.SessionID == sessionID
}

// SubscriberManager manages all subscribers, keyed by address
type SubscriberManager struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	timeout     time.Duration
}

func NewSubscriberManager(timeout time.Duration) *SubscriberManager {
	return &SubscriberManager{
		subscribers: make(map[string]*Subscriber),
		timeout:     timeout,
	}
}

// Add adds or replaces the subscription of addr
func (sm *SubscriberManager) Add(addr *net.UDPAddr, sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.subscribers[addr.String()] = &Subscriber{
		Addr:      addr,
		SessionID: sessionID,
		LastSeen:  time.Now(),
	}
}

// Remove reports whether addr was subscribed
func (sm *SubscriberManager) Remove(addr *net.UDPAddr) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	key := addr.String()
	_, ok := sm.subscribers[key]
	delete(sm.subscribers, key)
	return ok
}

// UpdateActivity refreshes LastSeen; false when addr is not subscribed
func (sm *SubscriberManager) UpdateActivity(addr *net.UDPAddr) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sub, ok := sm.subscribers[addr.String()]
	if ok {
		sub.LastSeen = time.Now()
	}
	return ok
}

func (sm *SubscriberManager) Get(addr *net.UDPAddr) (*Subscriber, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sub, ok := sm.subscribers[addr.String()]
	return sub, ok
}

// Matching returns the subscribers that want frames from sessionID
func (sm *SubscriberManager) Matching(sessionID string) []*Subscriber {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	subs := make([]*Subscriber, 0, len(sm.subscribers))
	for _, sub := range sm.subscribers {
		if sub.Wants(sessionID) {
			subs = append(subs, sub)
		}
	}
	return subs
}

// CleanupInactive drops subscribers that have not pinged within the timeout
// and returns how many went.
func (sm *SubscriberManager) CleanupInactive() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, sub := range sm.subscribers {
		if now.Sub(sub.LastSeen) > sm.timeout {
			delete(sm.subscribers, key)
			removed++
		}
	}
	return removed
}

func (sm *SubscriberManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.subscribers)
}

// StartCleanupRoutine periodically drops inactive subscribers until done closes
func (sm *SubscriberManager) StartCleanupRoutine(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.CleanupInactive()
		case <-done:
			return
		}
	}
}
