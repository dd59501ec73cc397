// Package loop drives a synchronizer at a fixed rate for hosts that do not
// have their own frame loop.
package loop

import (
	"context"
	"time"

	"github.com/dsonbill/BDDMP/internal/telemetry"
	"github.com/dsonbill/BDDMP/logging"
)

const (
	metricTickDuration = "bddmp_loop_tick_duration_us"
	metricOverruns     = "bddmp_loop_overruns_total"
	metricClamped      = "bddmp_loop_clamped_total"
)

// Ticker is advanced once per frame with the current simulation time.
type Ticker interface {
	Tick(now float64)
}

// SimClock reports simulation seconds.
type SimClock interface {
	Now() float64
}

// Config tunes the loop cadence.
type Config struct {
	TickRate        int
	CatchupMaxTicks int
}

// TickContext describes the frame about to run.
type TickContext struct {
	Tick    uint64
	Now     time.Time
	SimTime float64
	Delta   float64
}

// StepResult reports how a frame went.
type StepResult struct {
	Tick         uint64
	SimTime      float64
	Delta        float64
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     float64
}

// Hooks are optional callbacks around each frame.
type Hooks struct {
	BeforeTick func(TickContext)
	AfterStep  func(StepResult)
}

// Deps injects timing and reporting.
type Deps struct {
	Clock   logging.Clock
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
}

// Loop calls target.Tick at a fixed rate.
type Loop struct {
	target  Ticker
	sim     SimClock
	config  Config
	hooks   Hooks
	clock   logging.Clock
	logger  telemetry.Logger
	metrics telemetry.Metrics

	tick uint64
	last time.Time
}

func New(target Ticker, sim SimClock, cfg Config, hooks Hooks, deps Deps) *Loop {
	if target == nil || sim == nil {
		return nil
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = 50
	}
	clock := deps.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}
	return &Loop{
		target:  target,
		sim:     sim,
		config:  cfg,
		hooks:   hooks,
		clock:   clock,
		logger:  deps.Logger,
		metrics: deps.Metrics,
	}
}

// Budget is the wall time available to one frame.
func (l *Loop) Budget() time.Duration {
	return time.Second / time.Duration(l.config.TickRate)
}

// Step runs a single frame at wall time now.
func (l *Loop) Step(now time.Time) StepResult {
	if l == nil {
		return StepResult{}
	}
	budget := l.Budget()
	budgetSeconds := budget.Seconds()
	maxDt := budgetSeconds
	if l.config.CatchupMaxTicks > 1 {
		maxDt = budgetSeconds * float64(l.config.CatchupMaxTicks)
	}

	dt := budgetSeconds
	clamped := false
	if !l.last.IsZero() {
		dt = now.Sub(l.last).Seconds()
		if dt <= 0 {
			dt = budgetSeconds
		} else if dt > maxDt {
			dt = maxDt
			clamped = true
		}
	}
	l.last = now
	l.tick++

	simTime := l.sim.Now()
	if l.hooks.BeforeTick != nil {
		l.hooks.BeforeTick(TickContext{Tick: l.tick, Now: now, SimTime: simTime, Delta: dt})
	}

	start := l.clock.Now()
	l.target.Tick(simTime)
	result := StepResult{
		Tick:         l.tick,
		SimTime:      simTime,
		Delta:        dt,
		Duration:     l.clock.Now().Sub(start),
		Budget:       budget,
		ClampedDelta: clamped,
		MaxDelta:     maxDt,
	}
	l.report(result)
	if l.hooks.AfterStep != nil {
		l.hooks.AfterStep(result)
	}
	return result
}

// Run drives frames until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil {
		return nil
	}
	ticker := time.NewTicker(l.Budget())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Step(l.clock.Now())
		}
	}
}

func (l *Loop) report(result StepResult) {
	if l.metrics != nil {
		l.metrics.Store(metricTickDuration, uint64(result.Duration.Microseconds()))
		if result.ClampedDelta {
			l.metrics.Add(metricClamped, 1)
		}
	}
	if result.Duration <= result.Budget {
		return
	}
	if l.metrics != nil {
		l.metrics.Add(metricOverruns, 1)
	}
	if l.logger != nil {
		l.logger.Printf("[loop] tick %d took %s over budget %s", result.Tick, result.Duration, result.Budget)
	}
}
