// Package engine drives the tick protocol from outside the core. It owns the
// tick counter, runs Run then Update once per step and fans the results out
// to sinks. There is no timer: callers decide when the next tick happens.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/sosim/internal/model"
	"github.com/talgya/sosim/internal/world"
)

// Engine steps a world forward.
type Engine struct {
	World *world.World

	Parallel      bool // Use World.RunParallel for the read phase
	ParallelLimit int  // Max concurrent subtrees (0 = unlimited)
	ReportEvery   int  // Ticks between summary logs (0 = never)

	// OnTick is called after every step, after the sinks.
	OnTick func(tick int, ur model.UpdateResult)

	mu    sync.Mutex
	tick  int // Last completed tick
	sinks []Sink
	stats Stats
}

// NewEngine creates an engine positioned before tick 1.
func NewEngine(w *world.World) *Engine {
	return &Engine{World: w, stats: newStats()}
}

// AddSink registers a consumer for every tick's result.
func (e *Engine) AddSink(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

// CurrentTick returns the last completed tick.
func (e *Engine) CurrentTick() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// SetTick positions the engine, e.g. when resuming from a store.
func (e *Engine) SetTick(tick int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tick = tick
}

// Step advances one tick. Run completes before Update begins. If Run fails
// the tick is discarded and the counter does not move. Sink failures are
// returned after every sink has been offered the result.
func (e *Engine) Step(ctx context.Context) (model.UpdateResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tick := e.tick + 1

	var rr *model.RunResult
	if e.Parallel {
		var err error
		rr, err = e.World.RunParallel(ctx, tick, e.ParallelLimit)
		if err != nil {
			return model.UpdateResult{}, fmt.Errorf("run tick %d: %w", tick, err)
		}
	} else {
		rr = e.World.Run(tick)
	}

	ur := e.World.Update(rr, tick)
	// Insertions and removals since the previous tick.
	if pending := e.World.DrainDiagnostics(); len(pending) > 0 {
		ur.Diagnostics = append(pending, ur.Diagnostics...)
	}

	e.tick = tick
	e.stats.record(ur)

	var errs []error
	for _, s := range e.sinks {
		if err := s.Record(tick, ur); err != nil {
			errs = append(errs, fmt.Errorf("sink %T: %w", s, err))
		}
	}
	if e.OnTick != nil {
		e.OnTick(tick, ur)
	}
	if e.ReportEvery > 0 && tick%e.ReportEvery == 0 {
		e.report(tick)
	}
	return ur, errors.Join(errs...)
}

// RunTicks steps n times. Cancellation is only observed between ticks.
func (e *Engine) RunTicks(ctx context.Context, n int) error {
	slog.Info("simulation started", "world", e.World.ID(), "from_tick", e.CurrentTick(), "ticks", n, "parallel", e.Parallel)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation interrupted", "tick", e.CurrentTick())
			return err
		}
		if _, err := e.Step(ctx); err != nil {
			return err
		}
	}

	slog.Info("simulation stopped", "tick", e.CurrentTick())
	return nil
}

// Stats returns a copy of the accumulated statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.clone()
}
