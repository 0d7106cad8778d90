package carhandler

import (
	"encoding/base64"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdsim/internal/microservices/tcp"
	"sdsim/internal/progress"
	"sdsim/internal/shared"
	"sdsim/internal/sim"
	"sdsim/internal/sim/headless"
)

type fakeSession struct {
	id string
	d  *tcp.Dispatcher

	mu     sync.Mutex
	sent   []tcp.Message
	closed bool
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id, d: tcp.NewDispatcher(nil)}
}

func (s *fakeSession) ID() string                  { return s.id }
func (s *fakeSession) Dispatcher() *tcp.Dispatcher { return s.d }

func (s *fakeSession) Send(msg tcp.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &tcp.SendError{Kind: tcp.Closed}
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSession) Disconnect() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSession) messages(msgType string) []tcp.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tcp.Message
	for _, m := range s.sent {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

type recordingObserver struct {
	mu       sync.Mutex
	reports  []progress.Report
	rebuilds [][]shared.Vec3
}

func (o *recordingObserver) TelemetrySent(_ string, _ tcp.Message, r progress.Report) {
	o.mu.Lock()
	o.reports = append(o.reports, r)
	o.mu.Unlock()
}

func (o *recordingObserver) RoadRebuilt(_ string, nodes []shared.Vec3) {
	o.mu.Lock()
	o.rebuilds = append(o.rebuilds, nodes)
	o.mu.Unlock()
}

type fixture struct {
	world    *headless.World
	queue    *sim.WorkQueue
	session  *fakeSession
	car      *headless.Car
	camera   *headless.Camera
	observer *recordingObserver
	handler  *Handler
	quits    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		queue:    sim.NewWorkQueue(nil),
		session:  newFakeSession("session-1"),
		observer: &recordingObserver{},
	}
	f.world = headless.NewWorld(headless.Options{Quit: func() { f.quits++ }})
	require.NoError(t, f.world.LoadScene(sim.SceneGeneratedRoad))

	car, cam, err := f.world.SpawnCar(f.session)
	require.NoError(t, err)
	f.car = car.(*headless.Car)
	f.camera = cam.(*headless.Camera)

	f.handler, err = New(Deps{
		Session:  f.session,
		Car:      car,
		Camera:   cam,
		Scene:    f.world,
		Queue:    f.queue,
		Observer: f.observer,
	}, DefaultOptions())
	require.NoError(t, err)
	f.handler.Init()
	return f
}

func (f *fixture) dispatch(t *testing.T, frame string) {
	t.Helper()
	msg, err := tcp.Decode([]byte(frame))
	require.NoError(t, err)
	require.True(t, f.session.Dispatcher().Dispatch(msg), "no handler for %s", msg.Type)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestHandler_InitRegistersCommands(t *testing.T) {
	f := newFixture(t)
	d := f.session.Dispatcher()
	for _, typ := range []string{
		MsgControl, MsgExitScene, MsgResetCar, MsgNewCar, MsgStepMode,
		MsgQuitApp, MsgRegenRoad, MsgCarConfig, MsgCamConfig, MsgDisconnect,
	} {
		assert.True(t, d.Registered(typ), typ)
	}
	assert.Equal(t, 10, d.Len())
}

func TestHandler_StartSendsCarLoaded(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, StateUnConnected, f.handler.State())

	require.NoError(t, f.handler.Start())

	assert.Len(t, f.session.messages(MsgCarLoaded), 1)
	assert.Equal(t, StateSendTelemetry, f.handler.State())
	assert.ErrorIs(t, f.handler.Start(), ErrIllegalTransition)
}

func TestHandler_NoTelemetryBeforeStart(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 60; i++ {
		f.handler.Update(1.0 / 60)
	}
	assert.Empty(t, f.session.messages(MsgTelemetry))
}

func TestHandler_ControlScalesSteering(t *testing.T) {
	f := newFixture(t)

	f.dispatch(t, `{"msg_type":"control","steering":"0.5","throttle":"0.3","brake":"0.0"}`)

	c := f.handler.Controls()
	assert.InDelta(t, 12.5, c.Steering, 1e-9)
	assert.InDelta(t, 0.3, c.Throttle, 1e-9)
	assert.Zero(t, c.Brake)
	assert.InDelta(t, 12.5, f.car.Steering(), 1e-9)
	assert.InDelta(t, 0.3, f.car.Throttle(), 1e-9)
}

func TestHandler_ControlParseFailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, `{"msg_type":"control","steering":"0.2","throttle":"0.4","brake":"0.1"}`)
	before := f.handler.Controls()

	for _, frame := range []string{
		`{"msg_type":"control","steering":"abc","throttle":"0.9","brake":"0.9"}`,
		`{"msg_type":"control","steering":"0,5","throttle":"0.9","brake":"0.9"}`,
		`{"msg_type":"control","steering":"0.9","throttle":"NaN","brake":"0.9"}`,
		`{"msg_type":"control","steering":"0.9","throttle":"0.9"}`,
	} {
		f.dispatch(t, frame)
		assert.Equal(t, before, f.handler.Controls(), frame)
		assert.InDelta(t, 5.0, f.car.Steering(), 1e-9, frame)
	}
}

func TestHandler_RegenRoadWithWaypoints(t *testing.T) {
	f := newFixture(t)

	f.dispatch(t, `{"msg_type":"regen_road","wayPoints":"1,2,3@4,5,6"}`)
	assert.Equal(t, 1, f.queue.Len(), "deferred to the simulation loop")
	f.queue.Drain()

	path := f.world.Path()
	assert.Equal(t, 1, path.MaxSpans())
	assert.Equal(t, []shared.Vec3{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}, path.Waypoints())
	assert.Zero(t, path.ActiveSpanIndex())
	assert.Equal(t, 1.0, f.car.Brake())
	require.Len(t, f.observer.rebuilds, 1)
	assert.Len(t, f.observer.rebuilds[0], 2)
}

func TestHandler_RegenRoadEmptyKeepsRoad(t *testing.T) {
	f := newFixture(t)
	path := f.world.Path()
	spans := path.MaxSpans()
	path.CrossTrackErr(shared.Vec3{Z: 500}) // push the span along
	f.car.RequestThrottle(1)

	f.dispatch(t, `{"msg_type":"regen_road","wayPoints":""}`)
	f.queue.Drain()

	assert.Equal(t, spans, path.MaxSpans(), "fewer than two waypoints never rebuild")
	assert.Zero(t, path.ActiveSpanIndex())
	assert.Equal(t, 1.0, f.car.Brake())
	assert.Empty(t, f.observer.rebuilds)
}

func TestHandler_RegenRoadRejectsNonFiniteWaypoints(t *testing.T) {
	for _, wps := range []string{"NaN,0,0@1,0,1@2,0,2", "Inf,0,0@1,0,1", "1,0,1@0,-Inf,0", "0x1p3,0,0@1,0,1"} {
		t.Run(wps, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.handler.Start())
			before := f.world.Path().Waypoints()

			f.dispatch(t, `{"msg_type":"regen_road","wayPoints":"`+wps+`"}`)
			assert.Zero(t, f.queue.Len())
			f.queue.Drain()

			assert.Equal(t, before, f.world.Path().Waypoints())
			assert.Empty(t, f.observer.rebuilds)

			f.dispatch(t, `{"msg_type":"reset_car"}`)
			for i := 0; i < 30; i++ {
				f.handler.Update(1.0 / 60)
			}
			pos := f.car.Transform().Position
			assert.False(t, math.IsNaN(pos.X) || math.IsInf(pos.X, 0), "car pose stays finite")
			frames := f.session.messages(MsgTelemetry)
			require.NotEmpty(t, frames)
			for _, m := range frames {
				_, err := tcp.Encode(m)
				require.NoError(t, err)
			}
		})
	}
}

func TestHandler_RegenRoadTurnIncrement(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, `{"msg_type":"regen_road","wayPoints":"","turn_increment":"2.5"}`)
	f.queue.Drain()
	assert.Equal(t, 2.5, f.world.Road().TurnIncrement())
}

func TestHandler_TelemetryRate(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler.Start())

	const seconds = 3.0
	const fps = 60
	for i := 0; i < int(seconds*fps); i++ {
		f.handler.Update(1.0 / fps)
	}

	got := len(f.session.messages(MsgTelemetry))
	want := int(math.Floor(seconds * 21))
	assert.InDelta(t, want, got, 1)
	assert.Equal(t, uint64(got), f.handler.FramesSent())
	assert.Len(t, f.observer.reports, got)
}

func TestHandler_TelemetryFields(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler.Start())
	f.car.Collide("wall")
	f.car.RequestSteering(10)

	f.handler.Update(0.1)

	msgs := f.session.messages(MsgTelemetry)
	require.Len(t, msgs, 1)
	m := msgs[0]
	for _, k := range []string{
		FieldSteeringAngle, FieldThrottle, FieldSpeed, FieldImage, FieldHit,
		FieldPosX, FieldPosY, FieldPosZ, FieldTime, FieldLap, FieldSector,
		FieldCTE, FieldDone, FieldMaxSector,
	} {
		assert.True(t, m.Has(k), k)
	}
	assert.Equal(t, 0.4, m.Fields[FieldSteeringAngle])
	assert.Equal(t, "wall", m.Fields[FieldHit])
	assert.Equal(t, headless.NoCollision, f.car.LastCollisionName(), "hit is cleared once reported")
	assert.Equal(t, false, m.Fields[FieldDone])
	assert.Equal(t, 100, m.Fields[FieldMaxSector])

	img, err := base64.StdEncoding.DecodeString(m.Fields[FieldImage].(string))
	require.NoError(t, err)
	assert.NotEmpty(t, img)

	_, err = tcp.Encode(m)
	assert.NoError(t, err)
}

func TestHandler_TelemetryWithoutPath(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler.Start())
	f.world.Path().DestroyRoad()

	f.handler.Update(0.1)

	msgs := f.session.messages(MsgTelemetry)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Has(FieldCTE))
	assert.False(t, msgs[0].Has(FieldDone))
	assert.False(t, msgs[0].Has(FieldMaxSector))
	assert.Equal(t, 0, msgs[0].Fields[FieldSector])
}

// stubPath reports a fixed cross-track result.
type stubPath struct {
	sim.PathManager
	ok     bool
	cte    float64
	span   int
	resets int
}

func (p *stubPath) HasPath() bool                             { return true }
func (p *stubPath) CrossTrackErr(shared.Vec3) (bool, float64) { return p.ok, p.cte }
func (p *stubPath) ResetActiveSpan()                          { p.resets++; p.span = 0 }
func (p *stubPath) ActiveSpanIndex() int                      { return p.span }
func (p *stubPath) MaxSpans() int                             { return 10 }

func TestHandler_OffTrackTelemetry(t *testing.T) {
	tests := []struct {
		name       string
		ok         bool
		cte        float64
		wantDone   bool
		wantCTE    float64
		wantResets int
	}{
		{"no valid span", false, 7, true, 0, 1},
		{"over threshold", true, 2.1, true, 2.1, 0},
		{"under threshold", true, 1.9, false, 1.9, 0},
		{"at threshold", true, 2.0, false, 2.0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			path := &stubPath{ok: tt.ok, cte: tt.cte, span: 4}
			h, err := New(Deps{Session: f.session, Car: f.car, Scene: f.world, Queue: f.queue, Path: path}, DefaultOptions())
			require.NoError(t, err)
			require.NoError(t, h.Start())

			h.Update(0.1)

			msgs := f.session.messages(MsgTelemetry)
			require.Len(t, msgs, 1)
			assert.Equal(t, tt.wantDone, msgs[0].Fields[FieldDone])
			assert.Equal(t, tt.wantCTE, msgs[0].Fields[FieldCTE])
			assert.Equal(t, 4, msgs[0].Fields[FieldSector])
			assert.Equal(t, tt.wantResets, path.resets)
			assert.Equal(t, "", msgs[0].Fields[FieldImage], "no camera, empty image")
		})
	}
}

func TestHandler_ResetCarCoalesces(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler.Start())
	start := f.car.Transform()
	f.car.RequestThrottle(1)
	f.world.Step(1)
	require.NotEqual(t, start, f.car.Transform())

	f.dispatch(t, `{"msg_type":"reset_car"}`)
	f.dispatch(t, `{"msg_type":"reset_car"}`)
	f.handler.Update(0)

	assert.Equal(t, start, f.car.Transform())
	p := f.handler.machine.Take()
	assert.False(t, p.Reset, "two requests, one reset")
}

func TestHandler_ResetWaitsForTelemetryState(t *testing.T) {
	f := newFixture(t)
	f.car.RequestThrottle(1)
	f.world.Step(1)
	moved := f.car.Transform()

	f.dispatch(t, `{"msg_type":"reset_car"}`)
	f.handler.Update(0)
	assert.Equal(t, moved, f.car.Transform(), "not sending telemetry yet")

	require.NoError(t, f.handler.Start())
	f.handler.Update(0)
	assert.NotEqual(t, moved, f.car.Transform())
}

func TestHandler_ExitScene(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler.Start())

	f.dispatch(t, `{"msg_type":"exit_scene"}`)
	assert.Equal(t, sim.SceneGeneratedRoad, f.world.SceneName(), "flag only")

	f.handler.Update(0)
	assert.Equal(t, sim.SceneMenu, f.world.SceneName())
}

func TestHandler_StepMode(t *testing.T) {
	f := newFixture(t)

	f.dispatch(t, `{"msg_type":"step_mode","step_mode":"synchronous","time_step":"0.05"}`)
	c := f.handler.Controls()
	assert.Equal(t, StepSync, c.Mode)
	assert.Equal(t, 0.05, c.TimeStep)
	assert.Zero(t, f.world.TimeScale())

	f.dispatch(t, `{"msg_type":"step_mode","step_mode":"asynchronous","time_step":"0.05"}`)
	assert.Equal(t, StepAsync, f.handler.Controls().Mode)
	assert.Equal(t, 1.0, f.world.TimeScale())

	f.dispatch(t, `{"msg_type":"step_mode","step_mode":"synchronous","time_step":"fast"}`)
	assert.Equal(t, StepAsync, f.handler.Controls().Mode, "bad time_step leaves the mode alone")
	assert.Equal(t, 1.0, f.world.TimeScale())
}

func TestHandler_CarConfig(t *testing.T) {
	f := newFixture(t)

	f.dispatch(t, `{"msg_type":"car_config","body_style":"donkey","body_r":"255","body_g":"0","body_b":"64","car_name":"me"}`)
	f.queue.Drain()
	assert.Equal(t, shared.CarStyle{BodyStyle: "donkey", R: 255, G: 0, B: 64, CarName: "me", FontSize: 100}, f.car.Style())

	f.dispatch(t, `{"msg_type":"car_config","body_style":"bare","body_r":"x","body_g":"0","body_b":"0","car_name":"x"}`)
	assert.Zero(t, f.queue.Len())
}

func TestHandler_CamConfig(t *testing.T) {
	f := newFixture(t)

	f.dispatch(t, `{"msg_type":"cam_config","fov":"90","offset_x":"0","offset_y":"1.2","offset_z":"0.5","rot_x":"10",
		"img_w":"64","img_h":"48","img_d":"1","img_enc":"PNG"}`)
	f.queue.Drain()
	cfg := f.camera.Config()
	assert.Equal(t, 64, cfg.ImgW)
	assert.Equal(t, 90.0, cfg.FOV)
	on, _, _ := f.camera.Fisheye()
	assert.False(t, on, "zero strengths leave fisheye off")

	f.dispatch(t, `{"msg_type":"cam_config","fov":"90","offset_x":"0","offset_y":"1.2","offset_z":"0.5","rot_x":"10",
		"img_w":"64","img_h":"48","img_d":"3","img_enc":"JPG","fish_eye_x":"0.3","fish_eye_y":"0"}`)
	f.queue.Drain()
	on, x, _ := f.camera.Fisheye()
	assert.True(t, on)
	assert.Equal(t, 0.3, x)
}

func TestHandler_NewCarHasNoClient(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, `{"msg_type":"new_car"}`)
	f.queue.Drain()
	assert.Equal(t, []string{"session-1", "unbound-1"}, f.world.CarIDs())
}

func TestHandler_QuitApp(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, `{"msg_type":"quit_app"}`)
	assert.Zero(t, f.quits)
	f.queue.Drain()
	assert.Equal(t, 1, f.quits)
}

func TestHandler_DisconnectCommand(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler.Start())

	f.dispatch(t, `{"msg_type":"disconnect"}`)
	f.handler.Destroy() // what the server does once the receive loop ends

	f.queue.Drain()
	assert.Equal(t, sim.SceneMenu, f.world.SceneName())
	assert.Equal(t, 1, f.quits)
}

func TestHandler_SendAfterDisconnectIsDropped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler.Start())
	f.session.Disconnect()

	f.handler.Update(0.1)

	assert.Empty(t, f.session.messages(MsgTelemetry))
	assert.Zero(t, f.handler.FramesSent())
}

func TestHandler_Destroy(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler.Start())
	f.dispatch(t, `{"msg_type":"new_car"}`)

	f.handler.Destroy()

	assert.Zero(t, f.session.Dispatcher().Len())
	assert.Zero(t, f.queue.Len(), "queued actions discarded")
	assert.Equal(t, StateClosed, f.handler.State())

	f.handler.Update(1)
	assert.Empty(t, f.session.messages(MsgTelemetry))
}
