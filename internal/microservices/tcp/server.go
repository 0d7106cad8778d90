package tcp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// SessionOwner is the handle a ConnectionHandler returns for an accepted
// session. Destroy runs after OnDisconnected and releases whatever the owner
// bound to the session.
type SessionOwner interface {
	Destroy()
}

// ConnectionHandler is notified about the session lifecycle. OnConnected must
// return synchronously; a nil owner rejects the connection.
type ConnectionHandler interface {
	OnConnected(s *Session) SessionOwner
	OnDisconnected(s *Session)
}

// TCPServer accepts controller connections and runs one session per connection.
type TCPServer struct {
	addr    string
	Manager *ConnectionManager
	handler ConnectionHandler

	mu       sync.Mutex
	listener net.Listener

	quitChan chan struct{}
	// closed on Stop; the accept loop exits when it sees it
	stopOnce sync.Once
	wg       sync.WaitGroup
	// one entry per connection goroutine

	logger         *slog.Logger
	sessionOpts    []SessionOption
	shutdownNotice time.Duration
}

// Option configures a TCPServer.
type Option func(*TCPServer)

// WithLogger sets the server logger, which sessions inherit.
func WithLogger(l *slog.Logger) Option {
	return func(s *TCPServer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSessionOptions applies opts to every accepted session.
func WithSessionOptions(opts ...SessionOption) Option {
	return func(s *TCPServer) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// WithShutdownNotice sets how long Stop waits between the shutdown broadcast
// and closing connections.
func WithShutdownNotice(d time.Duration) Option {
	return func(s *TCPServer) { s.shutdownNotice = d }
}

// constructor for Server
func NewServer(addr string, handler ConnectionHandler, opts ...Option) *TCPServer {
	s := &TCPServer{
		addr:           addr,
		handler:        handler,
		quitChan:       make(chan struct{}),
		logger:         slog.Default(),
		shutdownNotice: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Manager = NewConnectionManager(s.logger)
	return s
}

// Bind opens the listening socket. Failures are *BindError.
func (s *TCPServer) Bind() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return &BindError{Addr: s.addr, Err: err}
	}
	s.listener = listener
	return nil
}

// ListenAddr returns the bound address, or nil before Bind.
func (s *TCPServer) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds if needed and runs the accept loop until Stop.
func (s *TCPServer) Start() error {
	if err := s.Bind(); err != nil {
		return err
	}
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	s.logger.Info("tcp_server_started", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.quitChan:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("failed_to_accept_connection", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		s.wg.Add(1)
		go func(conn net.Conn) {
			defer s.wg.Done()
			s.handleConnection(conn)
		}(conn)
	}
}

// Run is Start bound to ctx: cancelling ctx stops the server.
func (s *TCPServer) Run(ctx context.Context) error {
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopped:
		}
	}()
	return s.Start()
}

// handle connections/lifecycle of single client connection
func (s *TCPServer) handleConnection(conn net.Conn) {
	opts := append([]SessionOption{WithSessionLogger(s.logger)}, s.sessionOpts...)
	session := NewSession(conn, opts...)

	owner := s.handler.OnConnected(session)
	if owner == nil {
		s.logger.Warn("connection_rejected",
			"client_id", session.ID(),
			"remote_addr", session.RemoteAddr(),
		)
		session.Disconnect()
		return
	}

	s.Manager.AddConnection(session)
	select {
	case <-s.quitChan:
		session.Disconnect() // raced with Stop
	default:
	}
	session.Listen() // returns once the session is disconnected
	s.Manager.RemoveConnection(session)

	s.handler.OnDisconnected(session)
	owner.Destroy()
}

// stop the server
func (s *TCPServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.quitChan)
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()

		if s.Manager.Count() > 0 {
			s.Manager.BroadcastSystemMessage("Server is shutting down.")
			time.Sleep(s.shutdownNotice)
		}
		s.Manager.CloseAllConnections()
		s.wg.Wait()
		s.logger.Info("tcp_server_stopped")
	})
}
