// Package progress turns a car position into track progress: the active
// sector, the signed cross-track error, whether the episode is done, and
// completed laps.
package progress

import (
	"math"
	"sync"

	"sdsim/internal/shared"
	"sdsim/internal/sim"
)

// DefaultCTEThreshold is the |cte| above which an episode is done.
const DefaultCTEThreshold = 2.0

// Report is one evaluation. CTE, Done and MaxSector are only meaningful when
// HasPath is true.
type Report struct {
	HasPath   bool
	Sector    int
	MaxSector int
	CTE       float64
	Done      bool
	Lap       int
}

// Tracker evaluates positions against the engine path. It is driven from the
// simulation loop; Last may be read from anywhere.
type Tracker struct {
	path      sim.PathManager
	threshold float64

	mu   sync.Mutex
	lap  int
	last Report
}

func NewTracker(path sim.PathManager, threshold float64) *Tracker {
	if threshold <= 0 {
		threshold = DefaultCTEThreshold
	}
	return &Tracker{path: path, threshold: threshold}
}

// Evaluate reports progress for pos. The sector is the active span before
// the query moves it. When the path has no valid active span (the car ran
// off the end) the span is reset, cte is 0 and the episode is done; if the
// car got there by passing the last span, a lap is counted.
func (t *Tracker) Evaluate(pos shared.Vec3) Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := Report{Lap: t.lap}
	if t.path == nil || !t.path.HasPath() {
		t.last = r
		return r
	}

	r.HasPath = true
	r.Sector = t.path.ActiveSpanIndex()
	ok, cte := t.path.CrossTrackErr(pos)
	if ok {
		r.CTE = cte
		r.Done = math.Abs(cte) > t.threshold
	} else {
		if spans := t.path.MaxSpans(); spans > 0 && t.path.ActiveSpanIndex() >= spans {
			t.lap++
			r.Lap = t.lap
		}
		t.path.ResetActiveSpan()
		r.CTE = 0
		r.Done = true
	}
	r.MaxSector = t.path.MaxSpans()
	t.last = r
	return r
}

// Reset moves the car back to the first span. Laps are kept.
func (t *Tracker) Reset() {
	if t.path != nil {
		t.path.ResetActiveSpan()
	}
}

// Lap returns the completed lap count.
func (t *Tracker) Lap() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lap
}

// Last returns the most recent report.
func (t *Tracker) Last() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
