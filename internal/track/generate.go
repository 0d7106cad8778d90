package track

import (
	"math"
	"math/rand"

	"github.com/paulmach/orb"

	"sdsim/internal/shared"
)

// LoopOptions shapes the generated default road.
type LoopOptions struct {
	Spans   int     `yaml:"spans"`    // number of segments in the closed loop
	RadiusX float64 `yaml:"radius_x"` // half-width of the oval
	RadiusZ float64 `yaml:"radius_z"` // half-length of the oval
	TurnInc float64 `yaml:"turn_inc"` // max lateral wobble per node, metres
	Seed    int64   `yaml:"seed"`
}

func DefaultLoopOptions() LoopOptions {
	return LoopOptions{Spans: 100, RadiusX: 40, RadiusZ: 60, TurnInc: 1}
}

// GenerateLoop returns the nodes of a closed oval road starting at the origin
// heading +Z. The last node repeats the first so the final span closes the loop.
// The same options always produce the same road.
func GenerateLoop(opts LoopOptions) []shared.Vec3 {
	def := DefaultLoopOptions()
	if opts.Spans < 3 {
		opts.Spans = def.Spans
	}
	if opts.RadiusX <= 0 {
		opts.RadiusX = def.RadiusX
	}
	if opts.RadiusZ <= 0 {
		opts.RadiusZ = def.RadiusZ
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	nodes := make([]shared.Vec3, 0, opts.Spans+1)
	for i := 0; i < opts.Spans; i++ {
		// start at the left-most point of the oval so the first span heads +Z
		theta := math.Pi - 2*math.Pi*float64(i)/float64(opts.Spans)
		wobble := 0.0
		if i > 0 && opts.TurnInc != 0 {
			wobble = (rng.Float64()*2 - 1) * opts.TurnInc
		}
		rx, rz := opts.RadiusX+wobble, opts.RadiusZ+wobble
		nodes = append(nodes, shared.Vec3{
			X: rx*math.Cos(theta) + opts.RadiusX,
			Z: rz * math.Sin(theta),
		})
	}
	nodes = append(nodes, nodes[0])
	return nodes
}

// heading in degrees, clockwise from +Z
func headingDeg(a, b orb.Point) float64 {
	return math.Atan2(b[0]-a[0], b[1]-a[1]) * 180 / math.Pi
}
