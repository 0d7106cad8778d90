package carhandler

import (
	"math"
	"sync/atomic"
)

// atomicFloat is a float64 cell safe for one writer and any readers.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

// StepMode is how simulated time advances.
type StepMode int32

const (
	StepAsync StepMode = iota // free-running clock
	StepSync                  // clock paused; the host steps it
)

func (m StepMode) String() string {
	if m == StepSync {
		return "synchronous"
	}
	return "asynchronous"
}

// DefaultTimeStep is the sync step used until a controller sends one.
const DefaultTimeStep = 0.1

// ControlState holds the last accepted control inputs and the step mode.
// The receive goroutine writes it and the simulation goroutine reads it.
type ControlState struct {
	steering atomicFloat // degrees, already scaled
	throttle atomicFloat
	brake    atomicFloat
	mode     atomic.Int32
	timeStep atomicFloat
}

// ControlSnapshot is a point-in-time copy of ControlState.
type ControlSnapshot struct {
	Steering float64
	Throttle float64
	Brake    float64
	Mode     StepMode
	TimeStep float64
}

func newControlState() *ControlState {
	c := &ControlState{}
	c.timeStep.Store(DefaultTimeStep)
	return c
}

func (c *ControlState) Snapshot() ControlSnapshot {
	return ControlSnapshot{
		Steering: c.steering.Load(),
		Throttle: c.throttle.Load(),
		Brake:    c.brake.Load(),
		Mode:     StepMode(c.mode.Load()),
		TimeStep: c.timeStep.Load(),
	}
}
