package headless

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dsonbill/BDDMP"
	"github.com/dsonbill/BDDMP/internal/telemetry"
)

const (
	metricImpactsSpawned    = "bddmp_probe_impacts_spawned_total"
	metricExplosionsSpawned = "bddmp_probe_explosions_spawned_total"
	metricAdvisories        = "bddmp_probe_advisories_total"
)

// historyLimit bounds the recent spawns kept for inspection.
const historyLimit = 64

// Effects stands in for the host effects subsystem. Spawns are counted and
// logged instead of rendered.
type Effects struct {
	logger  telemetry.Logger
	metrics telemetry.Metrics
	ready   atomic.Bool

	mu             sync.Mutex
	impacts        []bddmp.Vec3
	explosions     []bddmp.ExplosionSpawn
	impactCount    uint64
	explosionCount uint64
}

func NewEffects(logger telemetry.Logger, metrics telemetry.Metrics) *Effects {
	e := &Effects{logger: logger, metrics: metrics}
	e.ready.Store(true)
	return e
}

// SetReady toggles whether spawns are accepted.
func (e *Effects) SetReady(ready bool) {
	e.ready.Store(ready)
}

func (e *Effects) Ready() bool {
	return e.ready.Load()
}

func (e *Effects) SpawnImpact(position, normal bddmp.Vec3, ricochet bool) error {
	e.mu.Lock()
	e.impacts = appendRecent(e.impacts, position)
	e.impactCount++
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.Add(metricImpactsSpawned, 1)
	}
	if e.logger != nil {
		e.logger.Printf("[effects] impact at %+v normal %+v ricochet=%t", position, normal, ricochet)
	}
	return nil
}

func (e *Effects) SpawnExplosion(spawn bddmp.ExplosionSpawn) error {
	e.mu.Lock()
	e.explosions = appendRecent(e.explosions, spawn)
	e.explosionCount++
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.Add(metricExplosionsSpawned, 1)
	}
	if e.logger != nil {
		e.logger.Printf("[effects] explosion at %+v radius %.1f power %.1f model %q", spawn.Position, spawn.Radius, spawn.Power, spawn.ModelRef)
	}
	return nil
}

// Spawned reports how many impacts and explosions were spawned in total.
func (e *Effects) Spawned() (impacts, explosions uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.impactCount, e.explosionCount
}

// Impacts returns the positions of the most recent impacts, oldest first.
func (e *Effects) Impacts() []bddmp.Vec3 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bddmp.Vec3(nil), e.impacts...)
}

// Explosions returns the most recent explosions, oldest first.
func (e *Effects) Explosions() []bddmp.ExplosionSpawn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bddmp.ExplosionSpawn(nil), e.explosions...)
}

func appendRecent[T any](history []T, v T) []T {
	if len(history) >= historyLimit {
		n := copy(history, history[len(history)-historyLimit+1:])
		history = history[:n]
	}
	return append(history, v)
}

// Timeline marks vessels whose local copy runs ahead of the shared
// timeline. A headless probe never has one unless told to.
type Timeline struct {
	mu     sync.RWMutex
	future map[uuid.UUID]bool
}

func (t *Timeline) UpdatedInFuture(id uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.future[id]
}

// MarkFuture flags or clears id.
func (t *Timeline) MarkFuture(id uuid.UUID, future bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.future == nil {
		t.future = make(map[uuid.UUID]bool)
	}
	if future {
		t.future[id] = true
		return
	}
	delete(t.future, id)
}

// LogAdvisor prints advisories through the logger.
func LogAdvisor(logger telemetry.Logger, metrics telemetry.Metrics) bddmp.Advisor {
	return bddmp.AdvisorFunc(func(message string, duration time.Duration) {
		if metrics != nil {
			metrics.Add(metricAdvisories, 1)
		}
		if logger != nil {
			logger.Printf("[advisory] %s (%s)", message, duration)
		}
	})
}
