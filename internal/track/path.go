// Package track holds road centre-line geometry: the ordered waypoint path
// cars follow, cross-track error against its spans, and the waypoint text
// format used by regen_road and the waypoint export.
package track

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"sdsim/internal/shared"
)

var ErrTooFewNodes = errors.New("path needs at least two nodes")

// Path is an ordered polyline of nodes. Span i runs from node i to node i+1.
// Geometry is evaluated on the ground plane (X/Z); heights are kept for export.
type Path struct {
	nodes []shared.Vec3
	line  orb.LineString
}

func NewPath(nodes []shared.Vec3) (*Path, error) {
	if len(nodes) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewNodes, len(nodes))
	}
	line := make(orb.LineString, len(nodes))
	for i, n := range nodes {
		line[i] = ground(n)
	}
	return &Path{
		nodes: append([]shared.Vec3(nil), nodes...),
		line:  line,
	}, nil
}

// Nodes returns a copy of the path nodes.
func (p *Path) Nodes() []shared.Vec3 {
	return append([]shared.Vec3(nil), p.nodes...)
}

// Spans is the number of segments, len(nodes)-1.
func (p *Path) Spans() int { return len(p.nodes) - 1 }

// Length is the planar length of the whole path.
func (p *Path) Length() float64 { return planar.Length(p.line) }

// Start returns the first node and the heading (degrees, clockwise from +Z)
// of the first span.
func (p *Path) Start() shared.Transform {
	a, b := p.line[0], p.line[1]
	return shared.Transform{
		Position: p.nodes[0],
		YawDeg:   headingDeg(a, b),
	}
}

// CrossTrackErr measures pos against span. The span advances when pos has
// passed the end of it and steps back when pos is behind its start, so
// callers feed the returned span into the next query. ok is false when span
// is past the last segment.
//
// The error is signed: positive when pos is right of the direction of travel.
func (p *Path) CrossTrackErr(pos shared.Vec3, span int) (ok bool, cte float64, next int) {
	if span < 0 {
		span = 0
	}
	if span >= p.Spans() {
		return false, 0, span
	}

	a, b := p.line[span], p.line[span+1]
	pt := ground(pos)
	t := projection(pt, a, b)

	next = span
	switch {
	case t > 1:
		next = span + 1
	case t < 0 && span > 0:
		next = span - 1
	}

	dist := distanceToSegment(pt, a, b, t)
	// cross(dir, err) on the ground plane; negative means left of travel
	dx, dz := b[0]-a[0], b[1]-a[1]
	ex, ez := pt[0]-a[0], pt[1]-a[1]
	if dz*ex-dx*ez < 0 {
		dist = -dist
	}
	return true, dist, next
}

func ground(v shared.Vec3) orb.Point { return orb.Point{v.X, v.Z} }

// projection parameter of p onto ab; 0 at a, 1 at b
func projection(p, a, b orb.Point) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return 0
	}
	return ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / l2
}

func distanceToSegment(p, a, b orb.Point, t float64) float64 {
	if t <= 0 {
		return planar.Distance(p, a)
	}
	if t >= 1 {
		return planar.Distance(p, b)
	}
	closest := orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
	return planar.Distance(p, closest)
}
