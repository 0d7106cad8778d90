// Package sandbox binds controller sessions to cars. It decides when a
// connection gets a car, tears handlers down when the scene changes and
// fans telemetry out to the recorder and the dashboard hub.
package sandbox

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"sdsim/internal/carhandler"
	"sdsim/internal/microservices/tcp"
	"sdsim/internal/progress"
	"sdsim/internal/shared"
	"sdsim/internal/sim"
	"sdsim/internal/track"
)

// ErrNotSynchronous is returned by Step while no controller has paused the clock.
var ErrNotSynchronous = errors.New("no session is in synchronous step mode")

// WaypointsFile is written into DataDir whenever a controller rebuilds the road.
const WaypointsFile = "LatestWaypoints.txt"

// Engine is the scene surface plus the scene-loaded notification.
type Engine interface {
	sim.Scene
	OnSceneLoaded(fn func(frontEnd bool))
}

// Recorder receives every progress snapshot. Record must not block.
type Recorder interface {
	Record(s shared.ProgressSnapshot) error
}

// Publisher mirrors telemetry to observers. Publish must not block.
type Publisher interface {
	Publish(sessionID string, data []byte)
}

// Publishers fans one frame out to several observers.
type Publishers []Publisher

func (p Publishers) Publish(sessionID string, data []byte) {
	for _, pub := range p {
		pub.Publish(sessionID, data)
	}
}

// Options configures the sandbox.
type Options struct {
	// AutoStart loads the generated road when the first client connects.
	AutoStart bool
	// SpawnCarsWithClients gives every new client a car, replacing the
	// existing ones.
	SpawnCarsWithClients bool
	// CreateCarWithoutClient spawns an uncontrolled car when a road scene
	// loads with nobody connected.
	CreateCarWithoutClient bool
	// DataDir receives LatestWaypoints.txt; empty disables the export.
	DataDir string

	Handler   carhandler.Options
	Recorder  Recorder
	Publisher Publisher
	Logger    *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		AutoStart:            true,
		SpawnCarsWithClients: true,
		Handler:              carhandler.DefaultOptions(),
	}
}

// SessionInfo describes one connected controller.
type SessionInfo struct {
	ID         string `json:"id"`
	RemoteAddr string `json:"remote_addr"`
	User       string `json:"user,omitempty"`
	State      string `json:"state"`
	HasCar     bool   `json:"has_car"`
	FramesSent uint64 `json:"frames_sent"`
}

// Server implements tcp.ConnectionHandler and carhandler.Observer.
type Server struct {
	engine Engine
	loop   *sim.Loop
	queue  *sim.WorkQueue
	opts   Options
	logger *slog.Logger

	// simulation goroutine only
	autoStart        bool
	spawnWithClients bool

	mu       sync.RWMutex
	bindings map[string]*binding
	progress map[string]shared.ProgressSnapshot
}

var (
	_ tcp.ConnectionHandler = (*Server)(nil)
	_ carhandler.Observer   = (*Server)(nil)
)

// binding is the SessionOwner handed back to the TCP server.
type binding struct {
	server  *Server
	session *tcp.Session
	handler *carhandler.Handler // guarded by server.mu
	closed  bool                // guarded by server.mu
}

func NewServer(engine Engine, loop *sim.Loop, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		engine:           engine,
		loop:             loop,
		queue:            loop.Queue(),
		opts:             opts,
		logger:           opts.Logger,
		autoStart:        opts.AutoStart,
		spawnWithClients: opts.SpawnCarsWithClients,
		bindings:         make(map[string]*binding),
		progress:         make(map[string]shared.ProgressSnapshot),
	}
	engine.OnSceneLoaded(s.onSceneLoaded)
	return s
}

func initOwner(sessionID string) string { return "sandbox:" + sessionID }

// sandboxOwner tags work that must survive the session that queued it.
const sandboxOwner = "sandbox"

// OnConnected registers the session and queues its car setup for once the
// session is authenticated.
func (s *Server) OnConnected(session *tcp.Session) tcp.SessionOwner {
	b := &binding{server: s, session: session}
	s.mu.Lock()
	s.bindings[session.ID()] = b
	s.mu.Unlock()

	s.logger.Info("client_connected", "client_id", session.ID(), "remote_addr", session.RemoteAddr())
	session.OnAuthenticated(func() {
		s.queue.Enqueue(initOwner(session.ID()), func() { s.initClient(b) })
	})
	return b
}

// OnDisconnected queues removal of the session's car.
func (s *Server) OnDisconnected(session *tcp.Session) {
	s.logger.Info("client_disconnected", "client_id", session.ID())
	s.queue.Enqueue(sandboxOwner, func() { s.engine.RemoveCar(session) })
}

// Destroy unbinds the session. Its handler stops and any pending setup is
// dropped.
func (b *binding) Destroy() {
	s := b.server
	id := b.session.ID()

	s.mu.Lock()
	b.closed = true
	h := b.handler
	b.handler = nil
	delete(s.bindings, id)
	delete(s.progress, id)
	s.mu.Unlock()

	if h != nil {
		h.Destroy()
		s.loop.Remove(id)
	}
	s.queue.Discard(initOwner(id))
}

// initClient runs on the simulation goroutine.
func (s *Server) initClient(b *binding) {
	if s.isClosed(b) {
		return
	}
	id := b.session.ID()

	switch {
	case s.autoStart:
		s.autoStart = false
		// the scene hook initialises every client, this one included
		if err := s.engine.LoadScene(sim.SceneGeneratedRoad); err != nil {
			s.logger.Error("auto_start_failed", "error", err)
		}
	case s.spawnWithClients:
		s.detachAll()
		s.engine.RemoveAllCars()
		if err := s.spawn(b); err != nil {
			s.logger.Error("car_spawn_failed", "client_id", id, "error", err)
		}
	default:
		s.logger.Info("front_end_client", "client_id", id)
	}
}

func (s *Server) spawn(b *binding) error {
	car, cam, err := s.engine.SpawnCar(b.session)
	if err != nil {
		return err
	}
	h, err := carhandler.New(carhandler.Deps{
		Session:  b.session,
		Car:      car,
		Camera:   cam,
		Scene:    s.engine,
		Queue:    s.queue,
		Observer: s,
		Logger:   s.logger,
	}, s.opts.Handler)
	if err != nil {
		s.engine.RemoveCar(b.session)
		return err
	}

	h.Init()
	s.loop.Add(b.session.ID(), h)

	s.mu.Lock()
	if b.closed {
		// the session went away while the car was being built
		s.mu.Unlock()
		h.Destroy()
		s.loop.Remove(b.session.ID())
		s.engine.RemoveCar(b.session)
		return nil
	}
	b.handler = h
	s.mu.Unlock()

	return h.Start()
}

// detachAll destroys every bound handler. Sessions stay connected.
func (s *Server) detachAll() {
	s.mu.Lock()
	handlers := make([]*carhandler.Handler, 0, len(s.bindings))
	for _, b := range s.bindings {
		if b.handler != nil {
			handlers = append(handlers, b.handler)
			b.handler = nil
		}
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h.Destroy()
		s.loop.Remove(h.SessionID())
	}
}

// onSceneLoaded runs on the simulation goroutine, from inside LoadScene.
func (s *Server) onSceneLoaded(frontEnd bool) {
	s.detachAll()
	s.spawnWithClients = !frontEnd

	live := s.liveBindings()
	for _, b := range live {
		s.initClient(b)
	}
	if s.opts.CreateCarWithoutClient && !frontEnd && len(live) == 0 {
		if _, _, err := s.engine.SpawnCar(nil); err != nil {
			s.logger.Error("unbound_car_spawn_failed", "error", err)
		}
	}
}

func (s *Server) liveBindings() []*binding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*binding, 0, len(s.bindings))
	for _, b := range s.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].session.ID() < out[j].session.ID() })
	return out
}

func (s *Server) isClosed(b *binding) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return b.closed
}

// TelemetrySent records the frame's progress and mirrors it without the image.
func (s *Server) TelemetrySent(sessionID string, msg tcp.Message, report progress.Report) {
	snap := snapshotOf(sessionID, msg, report)

	s.mu.Lock()
	s.progress[sessionID] = snap
	s.mu.Unlock()

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.Record(snap); err != nil {
			s.logger.Debug("progress_record_failed", "client_id", sessionID, "error", err)
		}
	}
	if s.opts.Publisher != nil {
		mirror := tcp.NewMessage(msg.Type)
		for k, v := range msg.Fields {
			if k != carhandler.FieldImage {
				mirror.Fields[k] = v
			}
		}
		mirror.Fields["session_id"] = sessionID
		data, err := tcp.Encode(mirror)
		if err != nil {
			s.logger.Warn("telemetry_mirror_encode_failed", "error", err)
			return
		}
		s.opts.Publisher.Publish(sessionID, data)
	}
}

// RoadRebuilt exports the new centre line to DataDir.
func (s *Server) RoadRebuilt(sessionID string, nodes []shared.Vec3) {
	if s.opts.DataDir == "" {
		return
	}
	if err := writeWaypoints(filepath.Join(s.opts.DataDir, WaypointsFile), nodes); err != nil {
		s.logger.Warn("waypoints_export_failed", "client_id", sessionID, "error", err)
		return
	}
	s.logger.Info("waypoints_exported", "client_id", sessionID, "nodes", len(nodes))
}

func writeWaypoints(path string, nodes []shared.Vec3) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	var buf bytes.Buffer
	if err := track.WriteWaypoints(&buf, nodes); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func snapshotOf(sessionID string, msg tcp.Message, r progress.Report) shared.ProgressSnapshot {
	hit, _ := msg.Fields[carhandler.FieldHit].(string)
	return shared.ProgressSnapshot{
		SessionID: sessionID,
		Lap:       r.Lap,
		Sector:    r.Sector,
		MaxSector: r.MaxSector,
		CTE:       r.CTE,
		Done:      r.Done,
		HasPath:   r.HasPath,
		Speed:     number(msg, carhandler.FieldSpeed),
		Position: shared.Vec3{
			X: number(msg, carhandler.FieldPosX),
			Y: number(msg, carhandler.FieldPosY),
			Z: number(msg, carhandler.FieldPosZ),
		},
		Hit:        hit,
		SimTime:    number(msg, carhandler.FieldTime),
		RecordedAt: time.Now().UTC(),
	}
}

func number(msg tcp.Message, key string) float64 {
	switch v := msg.Fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Sessions lists connected controllers by ID.
func (s *Server) Sessions() []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionInfo, 0, len(s.bindings))
	for id, b := range s.bindings {
		info := SessionInfo{
			ID:         id,
			RemoteAddr: b.session.RemoteAddr(),
			State:      carhandler.StateUnConnected.String(),
		}
		_, info.User = b.session.User()
		if b.handler != nil {
			info.HasCar = true
			info.State = b.handler.State().String()
			info.FramesSent = b.handler.FramesSent()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Progress returns the last snapshot of a connected session.
func (s *Server) Progress(sessionID string) (shared.ProgressSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.progress[sessionID]
	return snap, ok
}

// Step advances the simulation by one tick of the time_step a controller
// chose with step_mode synchronous. With several such controllers the
// lowest session ID wins.
func (s *Server) Step() (float64, error) {
	dt, ok := s.syncTimeStep()
	if !ok {
		return 0, ErrNotSynchronous
	}
	s.loop.Step(dt)
	return dt, nil
}

func (s *Server) syncTimeStep() (float64, bool) {
	for _, b := range s.liveBindings() {
		s.mu.RLock()
		h := b.handler
		s.mu.RUnlock()
		if h == nil {
			continue
		}
		if c := h.Controls(); c.Mode == carhandler.StepSync {
			return c.TimeStep, true
		}
	}
	return 0, false
}
