package carhandler

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle of one controller binding.
type State int

const (
	StateUnConnected State = iota
	StateSendTelemetry
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnConnected:
		return "un_connected"
	case StateSendTelemetry:
		return "send_telemetry"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event drives the machine. RequestReset and RequestExit arrive from the
// network goroutine and are only acted on by the next Update.
type Event int

const (
	EventStart Event = iota
	EventRequestReset
	EventRequestExit
	EventDisconnect
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventRequestReset:
		return "request_reset"
	case EventRequestExit:
		return "request_exit"
	case EventDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

var ErrIllegalTransition = errors.New("illegal state transition")

type pending uint8

const (
	pendingReset pending = 1 << iota
	pendingExit
)

// Pending is what a tick must act on, taken atomically from the machine.
type Pending struct {
	State State
	Exit  bool
	Reset bool
}

// Machine is the explicit form of the controller state and its request
// flags. Repeated requests before a tick coalesce into one.
type Machine struct {
	mu      sync.Mutex
	state   State
	pending pending
}

func NewMachine() *Machine {
	return &Machine{state: StateUnConnected}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies ev and returns the resulting state.
//
//	UnConnected   --Start-->      SendTelemetry
//	any open      --Request*-->   same state, flag set
//	any           --Disconnect--> Closed
func (m *Machine) Fire(ev Event) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed && ev != EventDisconnect {
		return m.state, fmt.Errorf("%w: %s in %s", ErrIllegalTransition, ev, m.state)
	}
	switch ev {
	case EventStart:
		if m.state != StateUnConnected {
			return m.state, fmt.Errorf("%w: %s in %s", ErrIllegalTransition, ev, m.state)
		}
		m.state = StateSendTelemetry
	case EventRequestReset:
		m.pending |= pendingReset
	case EventRequestExit:
		m.pending |= pendingExit
	case EventDisconnect:
		m.state = StateClosed
		m.pending = 0
	default:
		return m.state, fmt.Errorf("%w: unknown event %d", ErrIllegalTransition, int(ev))
	}
	return m.state, nil
}

// Take clears and returns the pending requests. A reset stays pending until
// the machine is sending telemetry; an exit is always taken.
func (m *Machine) Take() Pending {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := Pending{State: m.state}
	if m.pending&pendingExit != 0 {
		p.Exit = true
		m.pending &^= pendingExit
	}
	if m.state == StateSendTelemetry && m.pending&pendingReset != 0 {
		p.Reset = true
		m.pending &^= pendingReset
	}
	return p
}
