package sim

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTickRate is the wall-clock interval between free-running ticks.
const DefaultTickRate = 10 * time.Millisecond

// Tickable is called once per tick from the simulation domain.
type Tickable interface {
	Update(dt float64)
}

// Loop is the simulation domain. Each tick advances the engine, updates
// every registered Tickable and drains the work queue, in that order.
// Ticks never overlap, whether they come from Run or Step.
type Loop struct {
	engine   Engine
	queue    *WorkQueue
	tickRate time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	order     []string
	tickables map[string]Tickable

	tickMu sync.Mutex
	ticks  atomic.Uint64
}

func NewLoop(engine Engine, queue *WorkQueue, tickRate time.Duration, logger *slog.Logger) *Loop {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	if queue == nil {
		queue = NewWorkQueue(logger)
	}
	return &Loop{
		engine:    engine,
		queue:     queue,
		tickRate:  tickRate,
		logger:    logger,
		tickables: make(map[string]Tickable),
	}
}

// Queue returns the work queue drained by this loop.
func (l *Loop) Queue() *WorkQueue { return l.queue }

// Add registers t under id, replacing any previous registration.
func (l *Loop) Add(id string, t Tickable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tickables[id]; !ok {
		l.order = append(l.order, id)
	}
	l.tickables[id] = t
}

// Remove unregisters id. Safe from any goroutine.
func (l *Loop) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tickables[id]; !ok {
		return
	}
	delete(l.tickables, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered tickables.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tickables)
}

// Ticks returns how many ticks have completed.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

func (l *Loop) snapshot() []Tickable {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Tickable, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.tickables[id])
	}
	return out
}

// Tick runs one simulation tick with the given (already scaled) delta.
func (l *Loop) Tick(dt float64) {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()

	if l.engine != nil {
		l.engine.Step(dt)
	}
	for _, t := range l.snapshot() {
		l.update(t, dt)
	}
	l.queue.Drain()
	l.ticks.Add(1)
}

func (l *Loop) update(t Tickable, dt float64) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("tickable_update_panic", "panic", r)
		}
	}()
	t.Update(dt)
}

// Step runs one tick of dt seconds regardless of the time scale. This is
// how an external pacer drives the simulation while the clock is paused.
func (l *Loop) Step(dt float64) {
	if dt < 0 {
		dt = 0
	}
	l.Tick(dt)
}

// Run ticks at the configured rate until ctx is cancelled. The delta is
// wall time multiplied by the engine time scale, so a paused clock still
// drains the work queue but advances nothing.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tickRate)
	defer ticker.Stop()

	l.logger.Info("sim_loop_started", "tick_rate", l.tickRate.String())
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("sim_loop_stopped", "ticks", l.ticks.Load())
			return nil
		case now := <-ticker.C:
			wall := now.Sub(last).Seconds()
			last = now
			scale := 1.0
			if l.engine != nil {
				scale = l.engine.TimeScale()
			}
			l.Tick(wall * scale)
		}
	}
}
