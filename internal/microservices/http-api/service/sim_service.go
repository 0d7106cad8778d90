package service

import (
	"sdsim/internal/sandbox"
)

// ErrNotSynchronous means no controller has switched to synchronous step mode.
var ErrNotSynchronous = sandbox.ErrNotSynchronous

// Stepper advances the paused simulation by one controller-chosen tick.
type Stepper interface {
	Step() (float64, error)
}

// Clock reads the level clock.
type Clock interface {
	TimeSinceLevelLoad() float64
}

// StepResult is the outcome of one external step.
type StepResult struct {
	TimeStep float64
	SimTime  float64
}

// SimService paces the simulation while it runs in synchronous mode.
type SimService interface {
	Step() (StepResult, error)
}

type simService struct {
	stepper Stepper
	clock   Clock
}

func NewSimService(stepper Stepper, clock Clock) SimService {
	return &simService{stepper: stepper, clock: clock}
}

func (s *simService) Step() (StepResult, error) {
	dt, err := s.stepper.Step()
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{TimeStep: dt, SimTime: s.clock.TimeSinceLevelLoad()}, nil
}
