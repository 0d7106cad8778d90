package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTickable struct {
	mu  sync.Mutex
	dts []float64
}

func (r *recordingTickable) Update(dt float64) {
	r.mu.Lock()
	r.dts = append(r.dts, dt)
	r.mu.Unlock()
}

func (r *recordingTickable) calls() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.dts...)
}

// stepEngine satisfies Engine with just a clock; scene operations are unused here.
type stepEngine struct {
	Scene
	mu    sync.Mutex
	steps []float64
	scale float64
}

func (e *stepEngine) Step(dt float64) {
	e.mu.Lock()
	e.steps = append(e.steps, dt)
	e.mu.Unlock()
}

func (e *stepEngine) TimeScale() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scale
}

func TestLoop_TickOrder(t *testing.T) {
	engine := &stepEngine{scale: 1}
	loop := NewLoop(engine, nil, 0, nil)

	var order []string
	loop.Add("h", tickFunc(func(float64) { order = append(order, "update") }))
	loop.Queue().Enqueue("h", func() { order = append(order, "action") })

	loop.Tick(0.05)

	assert.Equal(t, []string{"update", "action"}, order)
	assert.Equal(t, []float64{0.05}, engine.steps)
	assert.Equal(t, uint64(1), loop.Ticks())
}

func TestLoop_RemoveDuringTick(t *testing.T) {
	loop := NewLoop(nil, nil, 0, nil)
	second := &recordingTickable{}
	loop.Add("first", tickFunc(func(float64) { loop.Remove("second") }))
	loop.Add("second", second)

	loop.Tick(0.1)
	loop.Tick(0.1)

	assert.Len(t, second.calls(), 1)
	assert.Equal(t, 1, loop.Len())
}

func TestLoop_StepIgnoresTimeScale(t *testing.T) {
	engine := &stepEngine{scale: 0}
	loop := NewLoop(engine, nil, 0, nil)
	rec := &recordingTickable{}
	loop.Add("r", rec)

	loop.Step(0.1)

	assert.Equal(t, []float64{0.1}, rec.calls())
}

func TestLoop_RunPausedDrainsQueue(t *testing.T) {
	engine := &stepEngine{scale: 0}
	loop := NewLoop(engine, nil, time.Millisecond, nil)
	rec := &recordingTickable{}
	loop.Add("r", rec)

	done := make(chan struct{})
	loop.Queue().Enqueue("r", func() { close(done) })

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued action never ran")
	}
	cancel()
	require.NoError(t, <-errCh)

	for _, dt := range rec.calls() {
		assert.Zero(t, dt)
	}
}

type tickFunc func(dt float64)

func (f tickFunc) Update(dt float64) { f(dt) }
