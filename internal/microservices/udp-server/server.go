// Package udp relays telemetry frames to observers that subscribe over UDP.
package udp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	DefaultSubscriberTimeout = 2 * time.Minute
	maxRequestSize           = 1024
)

// Server is the UDP telemetry relay. It implements the sandbox publisher
// interface so it can sit beside the websocket hub.
type Server struct {
	conn        *net.UDPConn
	subManager  *SubscriberManager
	broadcaster *Broadcaster
	logger      *slog.Logger

	timeout   time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSubscriberTimeout sets how long a subscriber survives without a PING.
func WithSubscriberTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewServer binds addr ("host:port", port 0 picks one).
func NewServer(addr string, opts ...Option) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s := &Server{
		conn:    conn,
		logger:  slog.Default(),
		timeout: DefaultSubscriberTimeout,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.subManager = NewSubscriberManager(s.timeout)
	s.broadcaster = NewBroadcaster(conn, s.subManager, s.logger)
	return s, nil
}

func (s *Server) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Run serves subscription requests until ctx is cancelled or Shutdown is called.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("udp_relay_started", "addr", s.conn.LocalAddr().String())

	interval := s.timeout / 2
	go s.subManager.StartCleanupRoutine(interval, s.done)
	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-s.done:
		}
	}()

	s.handleIncomingMessages()
	s.logger.Info("udp_relay_stopped")
	return nil
}

func (s *Server) handleIncomingMessages() {
	buffer := make([]byte, maxRequestSize)

	for {
		n, addr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("udp_read_failed", "error", err)
			continue
		}
		s.processMessage(buffer[:n], addr)
	}
}

func (s *Server) processMessage(data []byte, addr *net.UDPAddr) {
	req, err := ParseRequest(data)
	if err != nil {
		s.logger.Warn("udp_request_invalid", "addr", addr.String(), "error", err)
		s.reply(addr, NewReply(ReplyError, "", "invalid request"))
		return
	}

	switch req.Type {
	case RequestSubscribe:
		s.subManager.Add(addr, req.SessionID)
		s.logger.Info("udp_observer_subscribed", "addr", addr.String(), "session_id", req.SessionID)
		s.reply(addr, NewReply(ReplySubscribed, req.SessionID, "subscribed to telemetry"))

	case RequestUnsubscribe:
		s.subManager.Remove(addr)
		s.logger.Info("udp_observer_unsubscribed", "addr", addr.String())
		s.reply(addr, NewReply(ReplyUnsubscribed, "", "unsubscribed"))

	case RequestPing:
		if !s.subManager.UpdateActivity(addr) {
			s.reply(addr, NewReply(ReplyError, "", "not subscribed"))
			return
		}
		s.reply(addr, NewReply(ReplyPong, "", ""))

	default:
		s.logger.Warn("udp_request_unknown", "addr", addr.String(), "type", req.Type)
		s.reply(addr, NewReply(ReplyError, "", "unknown request type"))
	}
}

func (s *Server) reply(addr *net.UDPAddr, r *Reply) {
	data, err := r.ToJSON()
	if err != nil {
		return
	}
	if _, err := s.conn.WriteToUDP(data, addr); err != nil {
		s.logger.Warn("udp_reply_failed", "addr", addr.String(), "error", err)
	}
}

// Publish relays a telemetry frame to every subscriber following sessionID.
func (s *Server) Publish(sessionID string, data []byte) {
	s.broadcaster.Publish(sessionID, data)
}

// SubscriberCount returns the number of live subscribers
func (s *Server) SubscriberCount() int {
	return s.subManager.Count()
}

// Shutdown closes the socket; Run returns shortly after.
func (s *Server) Shutdown() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
