// Package sim describes the simulation engine the protocol layer drives and
// owns the simulation-domain plumbing: the work queue that carries deferred
// actions from network goroutines and the loop that ticks everything.
package sim

import "sdsim/internal/shared"

// Client identifies the network peer a car belongs to. A nil Client spawns
// a car nobody controls.
type Client interface {
	ID() string
}

// Car is the vehicle a controller drives. Request* calls take effect on the
// next physics step; readers see the last applied values.
type Car interface {
	Steering() float64 // degrees
	Throttle() float64
	Velocity() shared.Vec3
	Transform() shared.Transform
	LastCollisionName() string
	ClearLastCollision()

	RequestSteering(deg float64)
	RequestThrottle(v float64)
	RequestFootBrake(v float64)
	RestorePosRot()
}

// Stylable is implemented by cars whose appearance can be changed.
type Stylable interface {
	SetStyle(style shared.CarStyle) error
}

// Camera is the car-mounted image sensor.
type Camera interface {
	CaptureFrameBytes() ([]byte, error)
	Configure(cfg shared.CameraConfig) error
	EnableFisheye(x, y float64)
}

// PathManager owns the road centre line and the active span a car is on.
type PathManager interface {
	HasPath() bool
	CrossTrackErr(pos shared.Vec3) (ok bool, cte float64)
	ResetActiveSpan()
	ActiveSpanIndex() int
	MaxSpans() int
	DestroyRoad()
	BuildRoad(waypoints []string) error
	SetTurnIncrement(inc float64)
	Waypoints() []shared.Vec3
}

// Scene is the engine-wide surface: scene loading, car spawning and the
// simulation clock. Everything except the clock accessors must be called
// from the simulation domain.
type Scene interface {
	LoadScene(name string) error
	ExitScene()
	Quit()

	SpawnCar(client Client) (Car, Camera, error)
	RemoveCar(client Client)
	RemoveAllCars()
	Path() PathManager

	SetTimeScale(scale float64)
	TimeScale() float64
	TimeSinceLevelLoad() float64
}

// Engine is a Scene that the loop can advance.
type Engine interface {
	Scene
	Step(dt float64)
}

const (
	SceneMenu          = "menu"
	SceneGeneratedRoad = "generated_road"
)
