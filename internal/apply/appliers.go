package apply

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dsonbill/BDDMP/internal/events"
)

// Appliers executes the local side effect of each event category.
type Appliers struct {
	Registry Registry
	Effects  Effects
}

// Apply dispatches evt to the applier for its category.
func (a Appliers) Apply(evt events.Event) error {
	switch p := evt.Payload().(type) {
	case events.Damage:
		return a.Damage(p)
	case events.Impact:
		return a.Impact(p)
	case events.Explosion:
		return a.Explosion(p)
	case events.Tracer:
		return a.Tracer(p)
	default:
		return fmt.Errorf("apply: unsupported payload %T", p)
	}
}

// Damage overwrites the temperatures of the referenced part.
func (a Appliers) Damage(p events.Damage) error {
	entity, ok := a.lookup(p.EntityID)
	if !ok {
		return &ResolutionError{Kind: ResolutionEntity, EntityID: p.EntityID}
	}
	part, ok := entity.Part(p.PartID)
	if !ok || part == nil {
		return &ResolutionError{Kind: ResolutionPart, EntityID: p.EntityID, PartID: p.PartID}
	}
	part.SetTemperatures(p.Temperature, p.ExternalTemperature)
	return nil
}

// Impact spawns a bullet hit effect positioned in the origin entity's frame.
func (a Appliers) Impact(p events.Impact) error {
	origin, err := ResolveOrigin(a.Registry, p.OriginID)
	if err != nil {
		return err
	}
	if !a.effectsReady() {
		return nil
	}
	position := origin.Frame().ToLocal(p.Position)
	return spawn(events.CategoryImpact, func() error {
		return a.Effects.SpawnImpact(position, p.Normal, p.Ricochet)
	})
}

// Explosion spawns an explosion effect attributed to the origin entity.
func (a Appliers) Explosion(p events.Explosion) error {
	origin, err := ResolveOrigin(a.Registry, p.OriginID)
	if err != nil {
		return err
	}
	if !a.effectsReady() {
		return nil
	}
	spawnArgs := ExplosionSpawn{
		Position:  origin.Frame().ToLocal(p.Position),
		Radius:    p.Radius,
		Power:     p.Power,
		Source:    origin,
		Direction: p.Direction,
		ModelRef:  p.ModelRef,
		SoundRef:  p.SoundRef,
	}
	return spawn(events.CategoryExplosion, func() error {
		return a.Effects.SpawnExplosion(spawnArgs)
	})
}

// Tracer has no local effect.
func (a Appliers) Tracer(events.Tracer) error {
	return nil
}

// ResolveOrigin prefers the active entity when its id matches and falls back
// to a registry lookup.
func ResolveOrigin(reg Registry, id uuid.UUID) (Entity, error) {
	if reg == nil {
		return nil, &ResolutionError{Kind: ResolutionEntity, EntityID: id}
	}
	if active, ok := reg.Active(); ok && Present(active) && active.ID() == id {
		return active, nil
	}
	if entity, ok := reg.Lookup(id); ok && Present(entity) {
		return entity, nil
	}
	return nil, &ResolutionError{Kind: ResolutionEntity, EntityID: id}
}

func (a Appliers) lookup(id uuid.UUID) (Entity, bool) {
	if a.Registry == nil {
		return nil, false
	}
	entity, ok := a.Registry.Lookup(id)
	return entity, ok && Present(entity)
}

func (a Appliers) effectsReady() bool {
	return a.Effects != nil && a.Effects.Ready()
}

func spawn(category events.Category, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &EffectSpawnError{Category: category, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &EffectSpawnError{Category: category, Err: err}
	}
	return nil
}
