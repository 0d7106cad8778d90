package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"sdsim/internal/microservices/tcp"
	udp "sdsim/internal/microservices/udp-server"
)

// Watcher follows telemetry through the server's UDP relay. It only
// observes; driving still goes through a Controller.
type Watcher struct {
	conn      *net.UDPConn
	sessionID string
	frames    chan tcp.Message
	done      chan struct{}
	closeOnce sync.Once
}

// Watch subscribes to relayAddr for sessionID ("" for every session) and
// waits for the relay to confirm.
func Watch(relayAddr, sessionID string, timeout time.Duration) (*Watcher, error) {
	addr, err := net.ResolveUDPAddr("udp", relayAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve relay address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}

	w := &Watcher{
		conn:      conn,
		sessionID: sessionID,
		frames:    make(chan tcp.Message, 64),
		done:      make(chan struct{}),
	}
	if err := w.request(udp.RequestSubscribe); err != nil {
		conn.Close()
		return nil, err
	}

	buf := make([]byte, 64*1024)
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	n, err := conn.Read(buf)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("no answer from relay: %w", err)
	}
	var reply udp.Reply
	if err := json.Unmarshal(buf[:n], &reply); err != nil || reply.Type != udp.ReplySubscribed {
		conn.Close()
		return nil, fmt.Errorf("relay refused subscription: %s", buf[:n])
	}

	go w.readLoop()
	return w, nil
}

func (w *Watcher) request(t udp.RequestType) error {
	data, err := json.Marshal(udp.Request{Type: t, SessionID: w.sessionID})
	if err != nil {
		return err
	}
	if _, err := w.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send %s: %w", t, err)
	}
	return nil
}

// readLoop forwards telemetry frames and skips the relay's own replies.
func (w *Watcher) readLoop() {
	defer close(w.frames)
	buf := make([]byte, 64*1024)
	for {
		n, err := w.conn.Read(buf)
		if err != nil {
			return
		}
		msg, err := tcp.Decode(buf[:n])
		if err != nil {
			continue // a Reply carries "type", not "msg_type"
		}
		select {
		case w.frames <- msg:
		default:
		}
	}
}

// Frames is closed once the watcher is closed.
func (w *Watcher) Frames() <-chan tcp.Message { return w.frames }

// KeepAlive pings the relay until Close so the subscription does not expire.
func (w *Watcher) KeepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.request(udp.RequestPing); err != nil {
				return
			}
		case <-w.done:
			return
		}
	}
}

// Close unsubscribes and closes the socket.
func (w *Watcher) Close() error {
	err := net.ErrClosed
	w.closeOnce.Do(func() {
		close(w.done)
		uerr := w.request(udp.RequestUnsubscribe)
		err = errors.Join(uerr, w.conn.Close())
	})
	return err
}
