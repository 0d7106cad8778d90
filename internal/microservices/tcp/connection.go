package tcp

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// inbound frames are small command objects; images only travel outbound
const MaxMessageSize = 1024 * 1024 // 1MB max inbound frame

// DefaultWriteTimeout bounds a single frame write. A peer that stalls past
// it is disconnected.
const DefaultWriteTimeout = 10 * time.Second

// DefaultOutboundQueue is the number of frames a session buffers for its writer.
const DefaultOutboundQueue = 256

// closeDrainTimeout bounds how long Disconnect spends writing queued frames.
const closeDrainTimeout = 500 * time.Millisecond

// Session owns one client connection: a receive loop feeding the dispatcher
// and a writer goroutine draining a bounded outbound queue.
type Session struct {
	id         string
	conn       net.Conn
	writer     *bufio.Writer
	dispatcher *Dispatcher
	limiter    *rate.Limiter // nil = unlimited
	logger     *slog.Logger

	// sendMu orders enqueues against Disconnect and guards drainDeadline
	sendMu        sync.Mutex
	outbound      chan []byte
	closing       chan struct{}
	writerDone    chan struct{}
	drainDeadline time.Time

	writeTimeout time.Duration
	queueSize    int
	connected    atomic.Bool
	closeOnce    sync.Once
	done         chan struct{}

	// optional auth handshake
	auth            *TCPAuthService
	authenticated   atomic.Bool
	authMu          sync.Mutex
	userID          string
	username        string
	onAuthenticated []func()
}

// SessionOption configures a session at construction.
type SessionOption func(*Session)

// WithSessionLogger sets the session logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInboundLimit drops inbound frames above r per second (burst b). r <= 0 disables limiting.
func WithInboundLimit(r float64, b int) SessionOption {
	return func(s *Session) {
		if r > 0 {
			if b < 1 {
				b = 1
			}
			s.limiter = rate.NewLimiter(rate.Limit(r), b)
		}
	}
}

// WithAuth requires an "auth" message carrying a valid token before any
// other message is dispatched.
func WithAuth(a *TCPAuthService) SessionOption {
	return func(s *Session) { s.auth = a }
}

// WithWriteTimeout overrides DefaultWriteTimeout; 0 disables the deadline.
func WithWriteTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.writeTimeout = d }
}

// WithOutboundQueue overrides DefaultOutboundQueue. Sends beyond it are dropped.
func WithOutboundQueue(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// NewSession wraps an accepted connection and starts its writer.
func NewSession(conn net.Conn, opts ...SessionOption) *Session {
	s := &Session{
		id:           uuid.NewString(),
		conn:         conn,
		writer:       bufio.NewWriter(conn),
		logger:       slog.Default(),
		writeTimeout: DefaultWriteTimeout,
		queueSize:    DefaultOutboundQueue,
		closing:      make(chan struct{}),
		writerDone:   make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.outbound = make(chan []byte, s.queueSize)
	s.dispatcher = NewDispatcher(s.logger)
	s.connected.Store(true)
	go s.writeLoop()
	return s
}

// ID is the unique session identifier.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the peer address as text.
func (s *Session) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Dispatcher returns the per-session handler registry.
func (s *Session) Dispatcher() *Dispatcher { return s.dispatcher }

// Connected reports whether the session still accepts sends.
func (s *Session) Connected() bool { return s.connected.Load() }

// Done is closed once the session has been disconnected.
func (s *Session) Done() <-chan struct{} { return s.done }

// RequiresAuth reports whether the auth handshake is pending.
func (s *Session) RequiresAuth() bool {
	return s.auth != nil && !s.authenticated.Load()
}

// User returns the authenticated identity, if any.
func (s *Session) User() (userID, username string) {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.userID, s.username
}

// OnAuthenticated registers fn to run once the handshake succeeds. If the
// session needs no auth, or is already authenticated, fn runs immediately.
func (s *Session) OnAuthenticated(fn func()) {
	s.authMu.Lock()
	if s.auth == nil || s.authenticated.Load() {
		s.authMu.Unlock()
		fn()
		return
	}
	s.onAuthenticated = append(s.onAuthenticated, fn)
	s.authMu.Unlock()
}

// Listen runs the receive loop until EOF, a socket error or Disconnect.
// Decoded messages are dispatched on this goroutine.
func (s *Session) Listen() {
	defer s.Disconnect()
	reader := bufio.NewReader(s.conn)

	s.logger.Info("client_started_listening",
		"client_id", s.id,
		"remote_addr", s.RemoteAddr(),
	)

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && (err == nil || errors.Is(err, io.EOF)) {
			s.handleFrame(line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("client_disconnected", "client_id", s.id)
				return
			}
			if isClosedConnErr(err) {
				return
			}
			s.logger.Error("client_read_error",
				"client_id", s.id,
				"error", err,
			)
			return
		}
	}
}

func (s *Session) handleFrame(line []byte) {
	if !s.connected.Load() {
		return
	}
	if len(line) > MaxMessageSize {
		s.logger.Warn("message_too_large",
			"client_id", s.id,
			"size", len(line),
			"max_size", MaxMessageSize,
		)
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.logger.Warn("rate_limit_exceeded", "client_id", s.id)
		return
	}

	msg, err := Decode(line)
	if err != nil {
		s.logger.Warn("invalid_frame_received",
			"client_id", s.id,
			"error", err.Error(),
		)
		return
	}

	if s.auth != nil && !s.authenticated.Load() {
		s.handleAuth(msg)
		return
	}
	s.dispatcher.Dispatch(msg)
}

func (s *Session) handleAuth(msg Message) {
	if msg.Type != MsgTypeAuth {
		s.logger.Warn("unauthenticated_message_dropped",
			"client_id", s.id,
			"message_type", msg.Type,
		)
		return
	}
	token, err := msg.String("token")
	if err == nil {
		var userID, username string
		userID, username, err = s.auth.ValidateToken(token)
		if err == nil {
			s.authMu.Lock()
			s.userID, s.username = userID, username
			s.authenticated.Store(true)
			pending := s.onAuthenticated
			s.onAuthenticated = nil
			s.authMu.Unlock()

			s.logger.Info("client_authenticated", "client_id", s.id, "user_id", userID)
			_ = s.Send(NewMessage(MsgTypeAuthSuccess).Set("session_id", s.id).Set("username", username))
			for _, fn := range pending {
				fn()
			}
			return
		}
	}
	s.logger.Warn("client_auth_failed", "client_id", s.id, "error", err.Error())
	_ = s.Send(NewMessage(MsgTypeAuthFailed).Set("reason", err.Error()))
}

// Send encodes msg and queues it as one newline-terminated frame.
func (s *Session) Send(msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return s.SendRaw(data)
}

// SendRaw queues pre-encoded JSON as one frame without waiting for the
// socket. Frames leave in the order they were queued. After Disconnect
// nothing is queued and SendError{Closed} is returned; a full queue drops
// the frame with SendError{QueueFull}.
func (s *Session) SendRaw(data []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if !s.connected.Load() {
		return &SendError{Kind: Closed}
	}
	select {
	case s.outbound <- data:
		return nil
	default:
		return &SendError{Kind: QueueFull}
	}
}

// writeLoop owns the socket's write side. A failed write disconnects the
// session so its teardown runs; the frame may be partly on the wire.
func (s *Session) writeLoop() {
	failed := false
	defer func() {
		close(s.writerDone)
		if failed {
			s.Disconnect()
		}
	}()

	for {
		select {
		case data := <-s.outbound:
			if err := s.writeFrame(data); err != nil {
				if isClosedConnErr(err) {
					s.logger.Debug("client_write_failed", "client_id", s.id, "error", err)
				} else {
					s.logger.Warn("client_write_failed", "client_id", s.id, "error", err)
				}
				failed = true
				return
			}
		case <-s.closing:
			for {
				select {
				case data := <-s.outbound:
					if err := s.writeFrame(data); err != nil {
						if !isClosedConnErr(err) {
							s.logger.Debug("client_flush_on_close_failed", "client_id", s.id, "error", err)
						}
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) writeFrame(data []byte) error {
	s.sendMu.Lock()
	var deadline time.Time
	select {
	case <-s.closing:
		deadline = s.drainDeadline
	default:
		if s.writeTimeout > 0 {
			deadline = time.Now().Add(s.writeTimeout)
		}
	}
	_ = s.conn.SetWriteDeadline(deadline)
	s.sendMu.Unlock()

	if _, err := s.writer.Write(data); err != nil {
		return err
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return err
	}
	return s.writer.Flush()
}

// Disconnect stops further sends, gives the writer a short deadline to
// flush what is queued and closes the socket, which also unblocks the
// receive loop. Safe to call more than once.
func (s *Session) Disconnect() {
	s.closeOnce.Do(func() {
		s.sendMu.Lock()
		s.connected.Store(false)
		s.drainDeadline = time.Now().Add(closeDrainTimeout)
		close(s.closing)
		_ = s.conn.SetWriteDeadline(s.drainDeadline)
		s.sendMu.Unlock()

		<-s.writerDone

		if err := s.conn.Close(); err != nil && !isClosedConnErr(err) {
			s.logger.Debug("client_close_failed", "client_id", s.id, "error", err)
		}
		close(s.done)
		s.logger.Info("client_connection_closed", "client_id", s.id)
	})
}

// expected errors once either side has closed the socket
func isClosedConnErr(err error) bool {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "closed network connection") ||
		strings.Contains(msg, "connection was aborted") ||
		strings.Contains(msg, "forcibly closed") ||
		strings.Contains(msg, "connection reset by peer")
}
