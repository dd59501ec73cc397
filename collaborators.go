package bddmp

import (
	"github.com/google/uuid"

	"github.com/dsonbill/BDDMP/internal/apply"
	"github.com/dsonbill/BDDMP/internal/events"
)

// Host world collaborators.
type (
	Vec3           = events.Vec3
	Frame          = apply.Frame
	Part           = apply.Part
	Entity         = apply.Entity
	Registry       = apply.Registry
	Effects        = apply.Effects
	ExplosionSpawn = apply.ExplosionSpawn
	Timeline       = apply.Timeline
	Advisor        = apply.Advisor
	AdvisorFunc    = apply.AdvisorFunc
)

// Transport carries mod messages between peers. Handlers may be invoked from
// any goroutine.
type Transport interface {
	RegisterHandler(channel string, handler func(payload []byte))
	Send(channel string, payload []byte, reliable, guaranteed bool) error
}

// SimClock reports the peer-local simulation time in seconds.
type SimClock interface {
	Now() float64
}

// SimClockFunc adapts a function to SimClock.
type SimClockFunc func() float64

func (f SimClockFunc) Now() float64 { return f() }

// DamageHit is reported when a local weapon changed a part's temperatures.
type DamageHit struct {
	EntityID            uuid.UUID
	PartID              uint32
	Temperature         float64
	ExternalTemperature float64
}

// ImpactHit is a bullet hit. Position is in the active entity's frame.
type ImpactHit struct {
	Position Vec3
	Normal   Vec3
	Ricochet bool
}

// ExplosionHit is a local explosion. Position is in Source's frame.
type ExplosionHit struct {
	Position  Vec3
	Radius    float32
	Power     float32
	Source    Entity
	Direction Vec3
	ModelRef  string
	SoundRef  string
}

// TracerHit marks a fired tracer round.
type TracerHit struct{}

// HitSource is the local hit detector. It reports hits through the
// registered hooks and asks the allow-damage predicate before generating
// damage.
type HitSource interface {
	RegisterDamageHook(func(DamageHit))
	RegisterImpactHook(func(ImpactHit))
	RegisterExplosionHook(func(ExplosionHit))
	RegisterTracerHook(func(TracerHit))
	RegisterAllowDamageHook(func(entityID uuid.UUID) bool)
}
