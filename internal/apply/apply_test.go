package apply

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dsonbill/BDDMP/internal/events"
)

type fakePart struct {
	temperature, external float64
	writes                int
}

func (p *fakePart) SetTemperatures(temperature, external float64) {
	p.temperature = temperature
	p.external = external
	p.writes++
}

type fakeEntity struct {
	id    uuid.UUID
	parts map[uint32]*fakePart
	frame events.Transform
}

func (e *fakeEntity) ID() uuid.UUID { return e.id }

func (e *fakeEntity) Part(id uint32) (Part, bool) {
	p, ok := e.parts[id]
	if !ok {
		return nil, false
	}
	return p, true
}

func (e *fakeEntity) Frame() Frame { return e.frame }

type fakeRegistry struct {
	entities map[uuid.UUID]*fakeEntity
	active   *fakeEntity
	lookups  int
}

func (r *fakeRegistry) Lookup(id uuid.UUID) (Entity, bool) {
	r.lookups++
	e, ok := r.entities[id]
	if !ok {
		return nil, false
	}
	return e, true
}

func (r *fakeRegistry) Active() (Entity, bool) {
	if r.active == nil {
		return nil, false
	}
	return r.active, true
}

type impactCall struct {
	position, normal events.Vec3
	ricochet         bool
}

type fakeEffects struct {
	notReady   bool
	err        error
	panicValue any
	impacts    []impactCall
	explosions []ExplosionSpawn
}

func (f *fakeEffects) Ready() bool { return !f.notReady }

func (f *fakeEffects) SpawnImpact(position, normal events.Vec3, ricochet bool) error {
	if f.panicValue != nil {
		panic(f.panicValue)
	}
	f.impacts = append(f.impacts, impactCall{position, normal, ricochet})
	return f.err
}

func (f *fakeEffects) SpawnExplosion(spawn ExplosionSpawn) error {
	if f.panicValue != nil {
		panic(f.panicValue)
	}
	f.explosions = append(f.explosions, spawn)
	return f.err
}

func newWorld() (*fakeRegistry, *fakeEntity) {
	entity := &fakeEntity{
		id:    uuid.New(),
		parts: map[uint32]*fakePart{7: {}},
		frame: events.Transform{Origin: events.Vec3{X: 100}},
	}
	reg := &fakeRegistry{entities: map[uuid.UUID]*fakeEntity{entity.id: entity}}
	return reg, entity
}

func TestDamageOverwritesPartTemperatures(t *testing.T) {
	reg, entity := newWorld()
	a := Appliers{Registry: reg}

	err := a.Apply(events.New(10, events.Damage{EntityID: entity.id, PartID: 7, Temperature: 900, ExternalTemperature: 450}))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	part := entity.parts[7]
	if part.temperature != 900 || part.external != 450 || part.writes != 1 {
		t.Fatalf("unexpected part state %+v", part)
	}
}

func TestDamageUnknownReferencesAreResolutionErrors(t *testing.T) {
	reg, entity := newWorld()
	a := Appliers{Registry: reg}

	err := a.Damage(events.Damage{EntityID: uuid.New(), PartID: 7})
	var resErr *ResolutionError
	if !errors.As(err, &resErr) || resErr.Kind != ResolutionEntity {
		t.Fatalf("expected entity resolution error, got %v", err)
	}
	if !errors.Is(err, ErrNotResolved) {
		t.Fatalf("expected ErrNotResolved in chain")
	}

	err = a.Damage(events.Damage{EntityID: entity.id, PartID: 99})
	if !errors.As(err, &resErr) || resErr.Kind != ResolutionPart || resErr.PartID != 99 {
		t.Fatalf("expected part resolution error, got %v", err)
	}
	if entity.parts[7].writes != 0 {
		t.Fatalf("no part should be mutated")
	}
}

func TestImpactConvertsIntoOriginFrame(t *testing.T) {
	reg, entity := newWorld()
	fx := &fakeEffects{}
	a := Appliers{Registry: reg, Effects: fx}

	normal := events.Vec3{Y: 1}
	err := a.Impact(events.Impact{OriginID: entity.id, Position: events.Vec3{X: 105, Y: 2}, Normal: normal, Ricochet: true})
	if err != nil {
		t.Fatalf("Impact: %v", err)
	}
	if len(fx.impacts) != 1 {
		t.Fatalf("expected one impact, got %d", len(fx.impacts))
	}
	got := fx.impacts[0]
	if !got.position.Approx(events.Vec3{X: 5, Y: 2}, 1e-4) || got.normal != normal || !got.ricochet {
		t.Fatalf("unexpected impact %+v", got)
	}
}

func TestResolveOriginPrefersActiveEntity(t *testing.T) {
	reg, entity := newWorld()
	reg.active = entity
	origin, err := ResolveOrigin(reg, entity.id)
	if err != nil || origin.ID() != entity.id {
		t.Fatalf("unexpected origin %v %v", origin, err)
	}
	if reg.lookups != 0 {
		t.Fatalf("active entity should short-circuit registry lookups")
	}

	if _, err := ResolveOrigin(reg, uuid.New()); !errors.Is(err, ErrNotResolved) {
		t.Fatalf("expected unresolved origin, got %v", err)
	}
}

func TestImpactMissingOriginSpawnsNothing(t *testing.T) {
	reg, _ := newWorld()
	fx := &fakeEffects{}
	a := Appliers{Registry: reg, Effects: fx}
	if err := a.Impact(events.Impact{OriginID: uuid.New()}); !errors.Is(err, ErrNotResolved) {
		t.Fatalf("expected resolution error, got %v", err)
	}
	if len(fx.impacts) != 0 {
		t.Fatalf("no effect expected")
	}
}

func TestExplosionSpawnArguments(t *testing.T) {
	reg, entity := newWorld()
	fx := &fakeEffects{}
	a := Appliers{Registry: reg, Effects: fx}

	p := events.Explosion{
		Position:  events.Vec3{X: 110},
		OriginID:  entity.id,
		Radius:    12,
		Power:     3.5,
		Direction: events.Vec3{Z: -1},
		ModelRef:  "BDArmory/Models/explosion/explosion",
		SoundRef:  "BDArmory/Sounds/explode1",
	}
	if err := a.Explosion(p); err != nil {
		t.Fatalf("Explosion: %v", err)
	}
	if len(fx.explosions) != 1 {
		t.Fatalf("expected one explosion")
	}
	got := fx.explosions[0]
	if got.Source.ID() != entity.id || got.LocalOrigin {
		t.Fatalf("unexpected source or origin flag %+v", got)
	}
	if !got.Position.Approx(events.Vec3{X: 10}, 1e-4) || got.Radius != 12 || got.Power != 3.5 {
		t.Fatalf("unexpected geometry %+v", got)
	}
	if got.Direction != p.Direction || got.ModelRef != p.ModelRef || got.SoundRef != p.SoundRef {
		t.Fatalf("unexpected refs %+v", got)
	}
}

func TestEffectsNotReadySkipsSpawn(t *testing.T) {
	reg, entity := newWorld()
	fx := &fakeEffects{notReady: true}
	a := Appliers{Registry: reg, Effects: fx}
	if err := a.Impact(events.Impact{OriginID: entity.id}); err != nil {
		t.Fatalf("Impact: %v", err)
	}
	if err := a.Explosion(events.Explosion{OriginID: entity.id}); err != nil {
		t.Fatalf("Explosion: %v", err)
	}
	if len(fx.impacts)+len(fx.explosions) != 0 {
		t.Fatalf("no effects expected while not ready")
	}
}

func TestSpawnFailuresAreWrapped(t *testing.T) {
	reg, entity := newWorld()
	boom := errors.New("asset missing")

	a := Appliers{Registry: reg, Effects: &fakeEffects{err: boom}}
	err := a.Impact(events.Impact{OriginID: entity.id})
	var spawnErr *EffectSpawnError
	if !errors.As(err, &spawnErr) || spawnErr.Category != events.CategoryImpact || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped spawn error, got %v", err)
	}

	a = Appliers{Registry: reg, Effects: &fakeEffects{panicValue: "renderer gone"}}
	err = a.Explosion(events.Explosion{OriginID: entity.id})
	if !errors.As(err, &spawnErr) || spawnErr.Category != events.CategoryExplosion {
		t.Fatalf("expected recovered spawn panic, got %v", err)
	}
}

func TestTracerIsNoOp(t *testing.T) {
	if err := (Appliers{}).Apply(events.New(1, events.Tracer{})); err != nil {
		t.Fatalf("Tracer: %v", err)
	}
}

func TestRecoverConvertsPanics(t *testing.T) {
	err := Recover(func() error { panic("bad part") })
	if !errors.Is(err, ErrApplierPanic) {
		t.Fatalf("expected ErrApplierPanic, got %v", err)
	}
	if err := Recover(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

type fakeTimeline map[uuid.UUID]bool

func (f fakeTimeline) UpdatedInFuture(id uuid.UUID) bool { return f[id] }

func TestPermissionRejectsFutureEntities(t *testing.T) {
	ahead := uuid.New()
	var messages []string
	var durations []time.Duration
	p := Permission{
		Timeline: fakeTimeline{ahead: true},
		Advisor: AdvisorFunc(func(msg string, d time.Duration) {
			messages = append(messages, msg)
			durations = append(durations, d)
		}),
	}

	if !p.Allow(uuid.New()) {
		t.Fatalf("current entity should be damageable")
	}
	if len(messages) != 0 {
		t.Fatalf("no advisory expected when allowing")
	}
	if p.Allow(ahead) {
		t.Fatalf("future entity must not be damageable")
	}
	if len(messages) != 1 || messages[0] != AdvisoryMessage || durations[0] != 3*time.Second {
		t.Fatalf("unexpected advisory %v %v", messages, durations)
	}
}

func TestPermissionWithoutTimelineAllows(t *testing.T) {
	if !(Permission{}).Allow(uuid.New()) {
		t.Fatalf("expected allow without a timeline")
	}
}

func TestResolveOriginTreatsNilEntitiesAsMissing(t *testing.T) {
	id := uuid.New()
	reg := &fakeRegistry{entities: map[uuid.UUID]*fakeEntity{id: nil}}
	_, err := ResolveOrigin(reg, id)
	var resolution *ResolutionError
	if !errors.As(err, &resolution) || resolution.EntityID != id {
		t.Fatalf("expected resolution error for %s, got %v", id, err)
	}
	var missing *fakeEntity
	if Present(missing) || Present(nil) {
		t.Fatalf("nil entities must not be present")
	}
	if !Present(&fakeEntity{id: id}) {
		t.Fatalf("expected a real entity to be present")
	}
}
