// Package apply turns eligible events into local side effects: part
// temperature overwrites and impact or explosion effects.
package apply

import (
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/dsonbill/BDDMP/internal/events"
)

// Frame converts between an entity's local reference frame and world space.
type Frame interface {
	ToWorld(local events.Vec3) events.Vec3
	ToLocal(world events.Vec3) events.Vec3
}

// Part is a damageable sub-component of an entity.
type Part interface {
	SetTemperatures(temperature, external float64)
}

type Entity interface {
	ID() uuid.UUID
	Part(id uint32) (Part, bool)
	Frame() Frame
}

// Present reports whether e holds an entity. An interface wrapping a nil
// pointer counts as absent.
func Present(e Entity) bool {
	if e == nil {
		return false
	}
	v := reflect.ValueOf(e)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return !v.IsNil()
	}
	return true
}

// Registry is the authoritative entity lookup owned by the host.
type Registry interface {
	Lookup(id uuid.UUID) (Entity, bool)
	// Active returns the entity the local player controls, if any.
	Active() (Entity, bool)
}

// ExplosionSpawn carries everything the effects subsystem needs to render an
// explosion.
type ExplosionSpawn struct {
	Position    events.Vec3
	Radius      float32
	Power       float32
	Source      Entity
	Direction   events.Vec3
	ModelRef    string
	SoundRef    string
	LocalOrigin bool
}

type Effects interface {
	// Ready reports whether effects can currently be spawned.
	Ready() bool
	SpawnImpact(position, normal events.Vec3, ricochet bool) error
	SpawnExplosion(spawn ExplosionSpawn) error
}

// Timeline reports whether the local view of an entity is ahead of the
// peer timeline.
type Timeline interface {
	UpdatedInFuture(id uuid.UUID) bool
}

// Advisor posts a short user-facing message.
type Advisor interface {
	Advise(message string, duration time.Duration)
}

// AdvisorFunc adapts a function to Advisor.
type AdvisorFunc func(message string, duration time.Duration)

func (f AdvisorFunc) Advise(message string, duration time.Duration) {
	if f == nil {
		return
	}
	f(message, duration)
}
