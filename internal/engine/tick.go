// Package engine provides the tick-based simulation loop and the Simulation that
// steps the economy's agents in registration order.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/talgya/macro-sim/internal/economy"
)

// Engine drives the simulation forward.
type Engine struct {
	Tick     uint64        // Last tick processed (monotonic, 1-based once running)
	Interval time.Duration // Base tick interval, divided by Speed
	MaxTicks uint64        // Stop after this tick; 0 = run until stopped

	// Callbacks, populated during setup. OnTick returning an error stops the run.
	OnTick   func(tick uint64) error // Every tick (week)
	OnPeriod func(tick uint64)       // Every economy.TicksPerPeriod ticks (month)

	speed   atomic.Uint64 // float64 bits; ticks per Interval, <= 0 = unthrottled
	running atomic.Bool
}

// NewEngine creates an engine with a one-second base interval running unthrottled.
func NewEngine() *Engine {
	return &Engine{Interval: time.Second}
}

// Speed returns the current pacing multiplier.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speed.Load())
}

// SetSpeed changes pacing. It is safe to call while Run is executing.
func (e *Engine) SetSpeed(s float64) {
	e.speed.Store(math.Float64bits(s))
}

// Running reports whether Run is executing.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run steps until MaxTicks, Stop, ctx cancellation or the first fatal error.
// Only a fatal error is returned.
func (e *Engine) Run(ctx context.Context) error {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed(), "max_ticks", e.MaxTicks)

	for e.running.Load() {
		if e.MaxTicks > 0 && e.Tick >= e.MaxTicks {
			break
		}
		if err := ctx.Err(); err != nil {
			break
		}

		start := time.Now()
		if err := e.step(); err != nil {
			slog.Error("simulation engine halted", "tick", e.Tick, "error", err)
			return err
		}

		speed := e.Speed()
		if speed <= 0 {
			continue
		}
		// Sleep for the remainder of the tick interval, adjusted for speed.
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed := time.Since(start); elapsed < target {
			select {
			case <-ctx.Done():
			case <-time.After(target - elapsed):
			}
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick)
	return nil
}

// Stop halts the loop after the tick in progress.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// step advances the simulation by one tick.
func (e *Engine) step() error {
	e.Tick++

	if e.OnTick != nil {
		if err := e.OnTick(e.Tick); err != nil {
			return err
		}
	}
	if e.Tick%economy.TicksPerPeriod == 0 && e.OnPeriod != nil {
		e.OnPeriod(e.Tick)
	}
	return nil
}

// SimTime renders a tick as the week and month it falls in.
func SimTime(tick uint64) string {
	if tick == 0 {
		return "start"
	}
	month := (tick-1)/economy.TicksPerPeriod + 1
	week := (tick-1)%economy.TicksPerPeriod + 1
	return fmt.Sprintf("Month %d Week %d", month, week)
}
