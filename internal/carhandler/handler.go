// Package carhandler binds one controller session to one car: it registers
// the command handlers, consumes requests on the simulation tick and streams
// telemetry back at a fixed rate.
package carhandler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"sdsim/internal/microservices/tcp"
	"sdsim/internal/progress"
	"sdsim/internal/shared"
	"sdsim/internal/sim"
)

// message types
const (
	MsgControl    = "control"
	MsgExitScene  = "exit_scene"
	MsgResetCar   = "reset_car"
	MsgNewCar     = "new_car"
	MsgStepMode   = "step_mode"
	MsgQuitApp    = "quit_app"
	MsgRegenRoad  = "regen_road"
	MsgCarConfig  = "car_config"
	MsgCamConfig  = "cam_config"
	MsgDisconnect = "disconnect"

	MsgCarLoaded = "car_loaded"
	MsgTelemetry = "telemetry"
)

// Session is the part of a connection the handler needs.
type Session interface {
	ID() string
	Send(msg tcp.Message) error
	Disconnect()
	Dispatcher() *tcp.Dispatcher
}

// Observer is told about every telemetry frame sent and every road rebuild.
// Both calls come from the simulation goroutine and must not block.
type Observer interface {
	TelemetrySent(sessionID string, msg tcp.Message, report progress.Report)
	RoadRebuilt(sessionID string, nodes []shared.Vec3)
}

// Deps are the collaborators a Handler drives. Camera, Path, Tracker and
// Observer are optional.
type Deps struct {
	Session  Session
	Car      sim.Car
	Camera   sim.Camera
	Scene    sim.Scene
	Path     sim.PathManager
	Queue    *sim.WorkQueue
	Tracker  *progress.Tracker
	Observer Observer
	Logger   *slog.Logger
}

// Options tunes the handler.
type Options struct {
	LimitFPS     float64 // telemetry frames per simulated second
	SteerToAngle float64 // degrees per unit of steering input
	CTEThreshold float64
}

func DefaultOptions() Options {
	return Options{LimitFPS: 21, SteerToAngle: 25, CTEThreshold: progress.DefaultCTEThreshold}
}

var ErrMissingDependency = errors.New("missing handler dependency")

// Handler is the control session state machine for one car.
type Handler struct {
	session  Session
	car      sim.Car
	camera   sim.Camera
	scene    sim.Scene
	path     sim.PathManager
	queue    *sim.WorkQueue
	tracker  *progress.Tracker
	observer Observer
	logger   *slog.Logger

	opts     Options
	period   float64
	owner    string
	machine  *Machine
	controls *ControlState

	sinceLast float64 // simulation goroutine only
	frames    atomic.Uint64
}

// New wires a handler. Session, Car, Scene and Queue are required.
func New(deps Deps, opts Options) (*Handler, error) {
	switch {
	case deps.Session == nil:
		return nil, fmt.Errorf("%w: session", ErrMissingDependency)
	case deps.Car == nil:
		return nil, fmt.Errorf("%w: car", ErrMissingDependency)
	case deps.Scene == nil:
		return nil, fmt.Errorf("%w: scene", ErrMissingDependency)
	case deps.Queue == nil:
		return nil, fmt.Errorf("%w: work queue", ErrMissingDependency)
	}

	def := DefaultOptions()
	if opts.LimitFPS <= 0 {
		opts.LimitFPS = def.LimitFPS
	}
	if opts.SteerToAngle == 0 {
		opts.SteerToAngle = def.SteerToAngle
	}
	if opts.CTEThreshold <= 0 {
		opts.CTEThreshold = def.CTEThreshold
	}

	path := deps.Path
	if path == nil {
		path = deps.Scene.Path()
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = progress.NewTracker(path, opts.CTEThreshold)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		session:  deps.Session,
		car:      deps.Car,
		camera:   deps.Camera,
		scene:    deps.Scene,
		path:     path,
		queue:    deps.Queue,
		tracker:  tracker,
		observer: deps.Observer,
		logger:   logger.With("client_id", deps.Session.ID()),
		opts:     opts,
		period:   1 / opts.LimitFPS,
		owner:    deps.Session.ID(),
		machine:  NewMachine(),
		controls: newControlState(),
	}, nil
}

// Init registers the command handlers on the session dispatcher.
func (h *Handler) Init() {
	d := h.session.Dispatcher()
	d.Register(MsgControl, h.onControl)
	d.Register(MsgExitScene, h.onExitScene)
	d.Register(MsgResetCar, h.onResetCar)
	d.Register(MsgNewCar, h.onNewCar)
	d.Register(MsgStepMode, h.onStepMode)
	d.Register(MsgQuitApp, h.onQuitApp)
	d.Register(MsgRegenRoad, h.onRegenRoad)
	d.Register(MsgCarConfig, h.onCarConfig)
	d.Register(MsgCamConfig, h.onCamConfig)
	d.Register(MsgDisconnect, h.onDisconnect)
	h.logger.Debug("car_handler_initialized")
}

// Start sends the car_loaded handshake and begins streaming telemetry.
func (h *Handler) Start() error {
	if err := h.session.Send(tcp.NewMessage(MsgCarLoaded)); err != nil && !errors.Is(err, tcp.ErrClosed) {
		h.logger.Warn("car_loaded_send_failed", "error", err)
	}
	if _, err := h.machine.Fire(EventStart); err != nil {
		return err
	}
	h.logger.Info("car_handler_started")
	return nil
}

// Update runs once per simulation tick.
func (h *Handler) Update(dt float64) {
	p := h.machine.Take()
	if p.Exit {
		h.scene.ExitScene()
		// loading the menu may have torn this handler down
		p.State = h.machine.State()
	}
	if p.State != StateSendTelemetry {
		return
	}

	if p.Reset {
		h.car.RestorePosRot()
		h.tracker.Reset()
	}

	h.sinceLast += dt
	if h.sinceLast > h.period {
		h.sinceLast -= h.period
		h.sendTelemetry()
	}
}

// Destroy unbinds the handler: no more messages are dispatched to it and its
// queued actions are dropped.
func (h *Handler) Destroy() {
	h.session.Dispatcher().Reset()
	if n := h.queue.Discard(h.owner); n > 0 {
		h.logger.Debug("queued_actions_discarded", "count", n)
	}
	if _, err := h.machine.Fire(EventDisconnect); err != nil {
		h.logger.Debug("car_handler_destroy", "error", err)
	}
	h.logger.Info("car_handler_destroyed")
}

// State returns the lifecycle state.
func (h *Handler) State() State { return h.machine.State() }

// Controls returns the last accepted control inputs.
func (h *Handler) Controls() ControlSnapshot { return h.controls.Snapshot() }

// FramesSent counts telemetry frames handed to the session.
func (h *Handler) FramesSent() uint64 { return h.frames.Load() }

// Tracker returns the progress tracker feeding telemetry.
func (h *Handler) Tracker() *progress.Tracker { return h.tracker }

// SessionID is the owning session.
func (h *Handler) SessionID() string { return h.owner }
