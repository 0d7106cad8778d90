package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"sdsim/internal/microservices/tcp"
	"sdsim/internal/sim"
	"sdsim/internal/sim/headless"
)

// IntegrationTestSuite runs the full control stack on a loopback port: the
// TCP listener, the sandbox and a free-running simulation loop.
type IntegrationTestSuite struct {
	suite.Suite
	world    *headless.World
	loop     *sim.Loop
	server   *tcp.TCPServer
	sandbox  *Server
	recorder *memRecorder
	quits    atomic.Int32
	cancel   context.CancelFunc
	addr     string
}

func (s *IntegrationTestSuite) SetupTest() {
	s.quits.Store(0)
	s.world = headless.NewWorld(headless.Options{Quit: func() { s.quits.Add(1) }})
	s.loop = sim.NewLoop(s.world, sim.NewWorkQueue(nil), 5*time.Millisecond, nil)
	s.recorder = &memRecorder{}

	opts := DefaultOptions()
	opts.Recorder = s.recorder
	s.sandbox = NewServer(s.world, s.loop, opts)
	s.server = tcp.NewServer("127.0.0.1:0", s.sandbox, tcp.WithShutdownNotice(50*time.Millisecond))
	s.Require().NoError(s.server.Bind())
	s.addr = s.server.ListenAddr().String()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.loop.Run(ctx)
	go s.server.Start()
}

func (s *IntegrationTestSuite) TearDownTest() {
	s.server.Stop()
	s.cancel()
}

type testConn struct {
	net.Conn
	r *bufio.Reader
}

func (s *IntegrationTestSuite) dial() *testConn {
	conn, err := net.DialTimeout("tcp", s.addr, 2*time.Second)
	s.Require().NoError(err)
	s.T().Cleanup(func() { conn.Close() })
	return &testConn{Conn: conn, r: bufio.NewReader(conn)}
}

// waitFor reads frames until one of msgType arrives.
func (c *testConn) waitFor(msgType string, timeout time.Duration) (tcp.Message, error) {
	_ = c.SetReadDeadline(time.Now().Add(timeout))
	defer c.SetReadDeadline(time.Time{})
	for {
		line, err := c.r.ReadBytes('\n')
		if err != nil {
			return tcp.Message{}, err
		}
		msg, err := tcp.Decode(line)
		if err == nil && msg.Type == msgType {
			return msg, nil
		}
	}
}

func (s *IntegrationTestSuite) TestConcurrentClients_EachGetsACarLastOneKeepsIt() {
	const numClients = 30
	var wg sync.WaitGroup
	var loaded atomic.Int32
	release := make(chan struct{})

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", s.addr, 2*time.Second)
			if err != nil {
				return
			}
			defer conn.Close()
			c := &testConn{Conn: conn, r: bufio.NewReader(conn)}
			if _, err := c.waitFor("car_loaded", 5*time.Second); err == nil {
				loaded.Add(1)
			}
			<-release
		}()
	}
	s.Eventually(func() bool { return loaded.Load() == numClients }, 5*time.Second, 10*time.Millisecond)
	s.Equal(numClients, s.server.Manager.Count())
	s.Len(s.world.CarIDs(), 1)
	s.Equal(1, s.loop.Len())
	close(release)
	wg.Wait()

	s.Eventually(func() bool { return len(s.world.CarIDs()) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func (s *IntegrationTestSuite) TestRapidConnectDisconnect() {
	const iterations = 50
	for i := 0; i < iterations; i++ {
		conn, err := net.DialTimeout("tcp", s.addr, 2*time.Second)
		s.Require().NoError(err, "connection %d should succeed", i)
		s.NoError(conn.Close())
	}

	s.Eventually(func() bool {
		return s.server.Manager.Count() == 0 &&
			len(s.sandbox.Sessions()) == 0 &&
			len(s.world.CarIDs()) == 0 &&
			s.loop.Len() == 0
	}, 5*time.Second, 10*time.Millisecond, "no session, car or handler outlives its connection")
}

func (s *IntegrationTestSuite) TestMalformedFramesDoNotEndSession() {
	c := s.dial()
	_, err := c.waitFor("car_loaded", 2*time.Second)
	s.Require().NoError(err)

	_, err = fmt.Fprint(c, "not json\n{\"no_type\":1}\n[1,2]\n{\"msg_type\":\"control\",\"steering\":\"0.5\",\"throttle\":\"1\",\"brake\":\"0\"}\n")
	s.Require().NoError(err)

	_, err = c.waitFor("telemetry", 2*time.Second)
	s.NoError(err, "session keeps streaming after bad frames")
	s.Len(s.sandbox.Sessions(), 1)
}

func (s *IntegrationTestSuite) TestTelemetryIsThrottled() {
	c := s.dial()
	_, err := c.waitFor("car_loaded", 2*time.Second)
	s.Require().NoError(err)

	frames := 0
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := c.waitFor("telemetry", time.Until(deadline)); err != nil {
			break
		}
		frames++
	}
	// 21 frames per simulated second, with slack for scheduling
	s.GreaterOrEqual(frames, 10)
	s.LessOrEqual(frames, 30)
	s.NotEmpty(s.recorder.all())
}

func (s *IntegrationTestSuite) TestSynchronousStepMode() {
	c := s.dial()
	_, err := c.waitFor("car_loaded", 2*time.Second)
	s.Require().NoError(err)

	_, err = fmt.Fprintln(c, `{"msg_type":"step_mode","step_mode":"synchronous","time_step":"0.1"}`)
	s.Require().NoError(err)
	s.Eventually(func() bool { return s.world.TimeScale() == 0 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond) // let a tick that read the old scale finish

	paused := s.world.TimeSinceLevelLoad()
	time.Sleep(100 * time.Millisecond)
	s.Equal(paused, s.world.TimeSinceLevelLoad(), "clock is frozen until the host steps")

	dt, err := s.sandbox.Step()
	s.Require().NoError(err)
	s.Equal(0.1, dt)
	s.InDelta(paused+0.1, s.world.TimeSinceLevelLoad(), 1e-9)
}

func (s *IntegrationTestSuite) TestDisconnectMessageLeavesSceneAndQuits() {
	c := s.dial()
	_, err := c.waitFor("car_loaded", 2*time.Second)
	s.Require().NoError(err)

	_, err = fmt.Fprintln(c, `{"msg_type":"disconnect"}`)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		return s.quits.Load() == 1 && s.world.SceneName() == sim.SceneMenu
	}, 2*time.Second, 5*time.Millisecond)
	s.Eventually(func() bool { return s.server.Manager.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func (s *IntegrationTestSuite) TestGracefulShutdownWithConnections() {
	c := s.dial()
	_, err := c.waitFor("car_loaded", 2*time.Second)
	s.Require().NoError(err)

	go s.server.Stop()

	msg, err := c.waitFor("system", 2*time.Second)
	s.Require().NoError(err)
	text, err := msg.String("message")
	s.Require().NoError(err)
	s.Contains(text, "shutting down")

	_, err = c.waitFor("never", 2*time.Second)
	s.Error(err, "connection is closed after the notice")
}

func TestIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping loopback integration tests in short mode")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
