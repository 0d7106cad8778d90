// Package headless is a renderer-free engine: kinematic cars on a generated
// road, a synthetic camera and a scene clock. It lets the server run and be
// tested end-to-end without a game engine attached.
package headless

import (
	"math"
	"sync"

	"sdsim/internal/shared"
)

// NoCollision is what LastCollisionName reports when nothing was hit.
const NoCollision = "none"

// VehicleParams are the kinematic constants of a headless car.
type VehicleParams struct {
	MaxSteerDeg float64 `yaml:"max_steer_deg"`
	WheelBase   float64 `yaml:"wheel_base"`
	MaxAccel    float64 `yaml:"max_accel"`
	MaxBrake    float64 `yaml:"max_brake"`
	Drag        float64 `yaml:"drag"`
	MaxSpeed    float64 `yaml:"max_speed"`
}

func DefaultVehicleParams() VehicleParams {
	return VehicleParams{
		MaxSteerDeg: 25,
		WheelBase:   0.6,
		MaxAccel:    4,
		MaxBrake:    8,
		Drag:        0.3,
		MaxSpeed:    15,
	}
}

// Car is a kinematic bicycle model. It is advanced by World.Step.
type Car struct {
	mu sync.Mutex

	id     string
	params VehicleParams
	spawn  shared.Transform

	pos   shared.Vec3
	yaw   float64 // degrees
	speed float64

	steering float64
	throttle float64
	brake    float64

	lastCollision string
	style         shared.CarStyle
}

func newCar(id string, spawn shared.Transform, params VehicleParams) *Car {
	return &Car{
		id:            id,
		params:        params,
		spawn:         spawn,
		pos:           spawn.Position,
		yaw:           spawn.YawDeg,
		lastCollision: NoCollision,
	}
}

// ID is the key the car was spawned under.
func (c *Car) ID() string { return c.id }

func (c *Car) Steering() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steering
}

func (c *Car) Throttle() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.throttle
}

// Brake returns the last requested foot brake.
func (c *Car) Brake() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.brake
}

func (c *Car) Velocity() shared.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	rad := c.yaw * math.Pi / 180
	return shared.Vec3{X: c.speed * math.Sin(rad), Z: c.speed * math.Cos(rad)}
}

func (c *Car) Transform() shared.Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return shared.Transform{Position: c.pos, YawDeg: c.yaw}
}

func (c *Car) LastCollisionName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCollision
}

func (c *Car) ClearLastCollision() {
	c.mu.Lock()
	c.lastCollision = NoCollision
	c.mu.Unlock()
}

// Collide records a hit, as a physics contact would.
func (c *Car) Collide(name string) {
	c.mu.Lock()
	c.lastCollision = name
	c.mu.Unlock()
}

func (c *Car) RequestSteering(deg float64) {
	c.mu.Lock()
	c.steering = clamp(deg, -c.params.MaxSteerDeg, c.params.MaxSteerDeg)
	c.mu.Unlock()
}

func (c *Car) RequestThrottle(v float64) {
	c.mu.Lock()
	c.throttle = clamp(v, -1, 1)
	c.mu.Unlock()
}

func (c *Car) RequestFootBrake(v float64) {
	c.mu.Lock()
	c.brake = clamp(v, 0, 1)
	c.mu.Unlock()
}

// RestorePosRot puts the car back on its spawn pose at rest.
func (c *Car) RestorePosRot() {
	c.mu.Lock()
	c.pos = c.spawn.Position
	c.yaw = c.spawn.YawDeg
	c.speed = 0
	c.mu.Unlock()
}

// SetStyle applies the cosmetic configuration.
func (c *Car) SetStyle(style shared.CarStyle) error {
	c.mu.Lock()
	c.style = style
	c.mu.Unlock()
	return nil
}

// Style returns the cosmetic configuration.
func (c *Car) Style() shared.CarStyle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.style
}

// setSpawn moves the restore point, used when the road is rebuilt.
func (c *Car) setSpawn(t shared.Transform) {
	c.mu.Lock()
	c.spawn = t
	c.mu.Unlock()
}

func (c *Car) step(dt float64) {
	if dt <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.params
	c.speed += (c.throttle*p.MaxAccel - p.Drag*c.speed) * dt

	// the brake only ever slows the car towards rest
	decel := c.brake * p.MaxBrake * dt
	switch {
	case c.speed > 0:
		c.speed = math.Max(0, c.speed-decel)
	case c.speed < 0:
		c.speed = math.Min(0, c.speed+decel)
	}
	c.speed = clamp(c.speed, -p.MaxSpeed, p.MaxSpeed)

	if p.WheelBase > 0 {
		steerRad := c.steering * math.Pi / 180
		c.yaw += c.speed / p.WheelBase * math.Tan(steerRad) * dt * 180 / math.Pi
		c.yaw = math.Mod(c.yaw, 360)
	}
	rad := c.yaw * math.Pi / 180
	c.pos.X += c.speed * math.Sin(rad) * dt
	c.pos.Z += c.speed * math.Cos(rad) * dt
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
