package headless

import (
	"fmt"
	"sync"

	"sdsim/internal/shared"
	"sdsim/internal/track"
)

// Road is the headless PathManager: one shared centre line and the span the
// cars are currently on.
type Road struct {
	mu   sync.Mutex
	path *track.Path
	span int
	loop track.LoopOptions

	// called with the new start pose after a successful rebuild
	onRebuilt func(start shared.Transform)
}

func NewRoad(loop track.LoopOptions) *Road {
	r := &Road{loop: loop}
	r.Regenerate()
	return r
}

// Regenerate replaces the road with a generated loop using the current options.
func (r *Road) Regenerate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := track.NewPath(track.GenerateLoop(r.loop))
	if err != nil {
		// GenerateLoop always yields enough nodes
		panic(err)
	}
	r.path, r.span = p, 0
}

func (r *Road) HasPath() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path != nil
}

func (r *Road) CrossTrackErr(pos shared.Vec3) (bool, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.path == nil {
		return false, 0
	}
	ok, cte, next := r.path.CrossTrackErr(pos, r.span)
	r.span = next
	return ok, cte
}

func (r *Road) ResetActiveSpan() {
	r.mu.Lock()
	r.span = 0
	r.mu.Unlock()
}

func (r *Road) ActiveSpanIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.span
}

func (r *Road) MaxSpans() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.path == nil {
		return 0
	}
	return r.path.Spans()
}

func (r *Road) DestroyRoad() {
	r.mu.Lock()
	r.path, r.span = nil, 0
	r.mu.Unlock()
}

func (r *Road) BuildRoad(waypoints []string) error {
	nodes, err := track.ParseWaypoints(waypoints)
	if err != nil {
		return fmt.Errorf("failed to build road: %w", err)
	}
	p, err := track.NewPath(nodes)
	if err != nil {
		return fmt.Errorf("failed to build road: %w", err)
	}
	r.mu.Lock()
	r.path, r.span = p, 0
	hook := r.onRebuilt
	r.mu.Unlock()
	if hook != nil {
		hook(p.Start())
	}
	return nil
}

func (r *Road) SetTurnIncrement(inc float64) {
	r.mu.Lock()
	r.loop.TurnInc = inc
	r.mu.Unlock()
}

// TurnIncrement returns the wobble used by the next generated loop.
func (r *Road) TurnIncrement() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loop.TurnInc
}

func (r *Road) Waypoints() []shared.Vec3 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.path == nil {
		return nil
	}
	return r.path.Nodes()
}

// start is the spawn pose for new cars.
func (r *Road) start() shared.Transform {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.path == nil {
		return shared.Transform{}
	}
	return r.path.Start()
}
