package client

// controller.go = the controller side of the simulation control protocol.

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"sdsim/internal/microservices/tcp"
	"sdsim/internal/track"
)

var ErrNotConnected = errors.New("not connected")

// Stats holds connection statistics
type Stats struct {
	ConnectedAt      time.Time
	Uptime           time.Duration
	MessagesSent     int
	MessagesReceived int
	Telemetry        int
	Dropped          int // frames lost because nobody was reading
}

// Controller drives one car over a TCP connection.
type Controller struct {
	serverAddr string
	conn       net.Conn
	reader     *bufio.Reader
	sessionID  string

	writeMu sync.Mutex
	mu      sync.RWMutex
	stats   Stats

	inbox     chan tcp.Message
	done      chan struct{}
	closeOnce sync.Once
	readOnce  sync.Once
}

// Dial connects to a sim-server.
func Dial(serverAddr string, timeout time.Duration) (*Controller, error) {
	conn, err := net.DialTimeout("tcp", serverAddr, timeout)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return newController(serverAddr, conn), nil
}

func newController(serverAddr string, conn net.Conn) *Controller {
	return &Controller{
		serverAddr: serverAddr,
		conn:       conn,
		reader:     bufio.NewReader(conn),
		stats:      Stats{ConnectedAt: time.Now()},
		inbox:      make(chan tcp.Message, 256),
		done:       make(chan struct{}),
	}
}

// Authenticate runs the token handshake. It must be called before Start.
func (c *Controller) Authenticate(token string, timeout time.Duration) error {
	if err := c.Send(tcp.NewMessage(tcp.MsgTypeAuth).Set("token", token)); err != nil {
		return err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		msg, err := c.readMessage()
		if err != nil {
			return fmt.Errorf("authentication response failed: %w", err)
		}
		switch msg.Type {
		case tcp.MsgTypeAuthSuccess:
			c.mu.Lock()
			c.sessionID, _ = msg.OptionalString("session_id", "")
			c.mu.Unlock()
			return nil
		case tcp.MsgTypeAuthFailed:
			reason, _ := msg.OptionalString("reason", "rejected")
			return fmt.Errorf("authentication rejected: %s", reason)
		}
	}
}

// Start begins delivering server frames on Messages.
func (c *Controller) Start() {
	c.readOnce.Do(func() { go c.readLoop() })
}

// Messages is closed when the connection ends.
func (c *Controller) Messages() <-chan tcp.Message { return c.inbox }

func (c *Controller) readLoop() {
	defer close(c.inbox)
	for {
		msg, err := c.readMessage()
		if err != nil {
			var de *tcp.DecodeError
			if errors.As(err, &de) {
				continue
			}
			c.Close()
			return
		}
		c.mu.Lock()
		if msg.Type == "telemetry" {
			c.stats.Telemetry++
		}
		c.mu.Unlock()

		select {
		case c.inbox <- msg:
		default:
			c.mu.Lock()
			c.stats.Dropped++
			c.mu.Unlock()
		}
	}
}

// WaitFor discards frames until one of msgType arrives.
func (c *Controller) WaitFor(msgType string, timeout time.Duration) (tcp.Message, error) {
	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-c.inbox:
			if !ok {
				return tcp.Message{}, ErrNotConnected
			}
			if msg.Type == msgType {
				return msg, nil
			}
		case <-deadline:
			return tcp.Message{}, fmt.Errorf("timed out waiting for %s", msgType)
		}
	}
}

// Send writes one frame.
func (c *Controller) Send(msg tcp.Message) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	data, err := tcp.Encode(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	_, err = c.conn.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.stats.MessagesSent++
	c.mu.Unlock()
	return nil
}

// Control sends steering, throttle and brake. Values go out as invariant
// decimal strings, as the server expects.
func (c *Controller) Control(steering, throttle, brake float64) error {
	return c.Send(tcp.NewMessage("control").
		Set("steering", formatFloat(steering)).
		Set("throttle", formatFloat(throttle)).
		Set("brake", formatFloat(brake)))
}

// RegenRoad asks for a road through waypoints ("x,y,z" each). An empty list
// keeps the current road.
func (c *Controller) RegenRoad(waypoints []string, turnIncrement float64) error {
	msg := tcp.NewMessage("regen_road").
		Set("wayPoints", strings.Join(waypoints, track.WaypointSeparator))
	if turnIncrement != 0 {
		msg = msg.Set("turn_increment", formatFloat(turnIncrement))
	}
	return c.Send(msg)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SessionID is known after Authenticate.
func (c *Controller) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// GetStats returns connection statistics
func (c *Controller) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := c.stats
	stats.Uptime = time.Since(c.stats.ConnectedAt)
	return stats
}

// Close drops the connection without asking the server to quit.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// readMessage reads one frame from the connection
func (c *Controller) readMessage() (tcp.Message, error) {
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return tcp.Message{}, err
	}
	msg, err := tcp.Decode(line)
	if err != nil {
		return tcp.Message{}, err
	}
	c.mu.Lock()
	c.stats.MessagesReceived++
	c.mu.Unlock()
	return msg, nil
}

// Telemetry is the subset of a telemetry frame the CLI prints.
type Telemetry struct {
	Steering  float64
	Throttle  float64
	Speed     float64
	Lap       int
	Sector    int
	MaxSector int
	CTE       float64
	Done      bool
	Hit       string
}

// ParseTelemetry is lenient: absent fields stay zero.
func ParseTelemetry(msg tcp.Message) Telemetry {
	var t Telemetry
	t.Steering, _ = msg.OptionalFloat("steering_angle", 0)
	t.Throttle, _ = msg.OptionalFloat("throttle", 0)
	t.Speed, _ = msg.OptionalFloat("speed", 0)
	t.Lap, _ = msg.OptionalInt("lap", 0)
	t.Sector, _ = msg.OptionalInt("sector", 0)
	t.MaxSector, _ = msg.OptionalInt("maxSector", 0)
	t.CTE, _ = msg.OptionalFloat("cte", 0)
	if msg.Has("done") {
		t.Done, _ = msg.Bool("done")
	}
	t.Hit, _ = msg.OptionalString("hit", "")
	return t
}
