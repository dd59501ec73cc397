package loop

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dsonbill/BDDMP/internal/telemetry"
	"github.com/dsonbill/BDDMP/logging"
)

type recordingTicker struct {
	times  []float64
	onTick func()
}

func (r *recordingTicker) Tick(now float64) {
	r.times = append(r.times, now)
	if r.onTick != nil {
		r.onTick()
	}
}

type fixedSim float64

func (f fixedSim) Now() float64 { return float64(f) }

type steppedClock struct {
	now  time.Time
	step time.Duration
}

func (c *steppedClock) Now() time.Time {
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

func TestStepPassesSimulationTime(t *testing.T) {
	target := &recordingTicker{}
	l := New(target, fixedSim(412.5), Config{TickRate: 10}, Hooks{}, Deps{})

	result := l.Step(time.Unix(0, 0))
	if len(target.times) != 1 || target.times[0] != 412.5 {
		t.Fatalf("unexpected ticks %v", target.times)
	}
	if result.Tick != 1 || result.SimTime != 412.5 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Budget != 100*time.Millisecond {
		t.Fatalf("unexpected budget %s", result.Budget)
	}
}

func TestStepClampsLargeDeltas(t *testing.T) {
	target := &recordingTicker{}
	metrics := logging.Metrics{}
	l := New(target, fixedSim(0), Config{TickRate: 10, CatchupMaxTicks: 2}, Hooks{}, Deps{Metrics: telemetry.WrapMetrics(&metrics)})

	base := time.Unix(100, 0)
	l.Step(base)
	result := l.Step(base.Add(5 * time.Second))
	if !result.ClampedDelta || result.Delta != 0.2 {
		t.Fatalf("expected clamp to 0.2s, got %+v", result)
	}
	if metrics.Snapshot()[metricClamped] != 1 {
		t.Fatalf("expected clamp metric")
	}
}

func TestStepReportsOverruns(t *testing.T) {
	var logged []string
	metrics := logging.Metrics{}
	clock := &steppedClock{now: time.Unix(0, 0), step: 50 * time.Millisecond}
	l := New(&recordingTicker{}, fixedSim(0), Config{TickRate: 40}, Hooks{}, Deps{
		Clock:   clock,
		Metrics: telemetry.WrapMetrics(&metrics),
		Logger: telemetry.LoggerFunc(func(format string, args ...any) {
			logged = append(logged, format)
		}),
	})

	result := l.Step(time.Unix(0, 0))
	if result.Duration <= result.Budget {
		t.Fatalf("expected overrun, got %+v", result)
	}
	if metrics.Snapshot()[metricOverruns] != 1 {
		t.Fatalf("expected overrun metric")
	}
	if len(logged) != 1 || !strings.Contains(logged[0], "over budget") {
		t.Fatalf("unexpected log %v", logged)
	}
}

func TestHooksRunAroundTick(t *testing.T) {
	var order []string
	target := &recordingTicker{onTick: func() { order = append(order, "tick") }}
	l := New(target, fixedSim(1), Config{}, Hooks{
		BeforeTick: func(TickContext) { order = append(order, "before") },
		AfterStep:  func(StepResult) { order = append(order, "after") },
	}, Deps{})
	l.Step(time.Now())
	if strings.Join(order, ",") != "before,tick,after" {
		t.Fatalf("unexpected order %v", order)
	}
}

type countingTicker struct{ n atomic.Int64 }

func (c *countingTicker) Tick(float64) { c.n.Add(1) }

func TestRunStopsOnCancel(t *testing.T) {
	target := &countingTicker{}
	l := New(target, fixedSim(0), Config{TickRate: 200}, Hooks{}, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for target.n.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
	if target.n.Load() < 3 {
		t.Fatalf("expected several ticks, got %d", target.n.Load())
	}
}

func TestNewRequiresTargetAndClock(t *testing.T) {
	if New(nil, fixedSim(0), Config{}, Hooks{}, Deps{}) != nil {
		t.Fatalf("expected nil loop without target")
	}
}
