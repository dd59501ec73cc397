package headless

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dsonbill/BDDMP"
)

// HitKind selects which hook a generated hit goes through.
type HitKind int

const (
	HitDamage HitKind = iota
	HitImpact
	HitExplosion
	HitTracer
	hitKindCount
)

func (k HitKind) String() string {
	switch k {
	case HitDamage:
		return "damage"
	case HitImpact:
		return "impact"
	case HitExplosion:
		return "explosion"
	case HitTracer:
		return "tracer"
	default:
		return "unknown"
	}
}

const (
	explosionModel = "BDArmory/Models/explosion/explosion"
	explosionSound = "BDArmory/Sounds/explode1"
)

// Generator is a synthetic hit detector. It implements bddmp.HitSource and
// cycles through the hit kinds each time Fire is called.
type Generator struct {
	world *World

	mu          sync.Mutex
	rng         *rand.Rand
	next        HitKind
	damage      []func(bddmp.DamageHit)
	impact      []func(bddmp.ImpactHit)
	explosion   []func(bddmp.ExplosionHit)
	tracer      []func(bddmp.TracerHit)
	allowDamage func(uuid.UUID) bool
	fired       [hitKindCount]uint64
	vetoed      uint64
}

// NewGenerator returns a generator over world. seed makes runs repeatable.
func NewGenerator(world *World, seed uint64) *Generator {
	return &Generator{
		world: world,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (g *Generator) RegisterDamageHook(fn func(bddmp.DamageHit)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.damage = append(g.damage, fn)
}

func (g *Generator) RegisterImpactHook(fn func(bddmp.ImpactHit)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.impact = append(g.impact, fn)
}

func (g *Generator) RegisterExplosionHook(fn func(bddmp.ExplosionHit)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.explosion = append(g.explosion, fn)
}

func (g *Generator) RegisterTracerHook(fn func(bddmp.TracerHit)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tracer = append(g.tracer, fn)
}

func (g *Generator) RegisterAllowDamageHook(fn func(uuid.UUID) bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowDamage = fn
}

// Fire generates the next hit in the cycle and returns its kind.
func (g *Generator) Fire() HitKind {
	g.mu.Lock()
	kind := g.next
	g.next = (g.next + 1) % hitKindCount
	g.mu.Unlock()
	g.FireKind(kind)
	return kind
}

// FireKind generates one hit of the given kind.
func (g *Generator) FireKind(kind HitKind) {
	switch kind {
	case HitDamage:
		g.fireDamage()
	case HitImpact:
		g.fireImpact()
	case HitExplosion:
		g.fireExplosion()
	case HitTracer:
		g.mu.Lock()
		hooks := slices.Clone(g.tracer)
		g.fired[HitTracer]++
		g.mu.Unlock()
		for _, fn := range hooks {
			fn(bddmp.TracerHit{})
		}
	}
}

func (g *Generator) fireDamage() {
	target := g.target()
	if target == nil {
		return
	}
	ids := target.PartIDs()
	if len(ids) == 0 {
		return
	}

	g.mu.Lock()
	allow := g.allowDamage
	g.mu.Unlock()
	// Parts are only heated on vessels the predicate allows.
	if allow != nil && !allow(target.ID()) {
		g.mu.Lock()
		g.vetoed++
		g.mu.Unlock()
		return
	}

	g.mu.Lock()
	partID := ids[g.rng.IntN(len(ids))]
	temperature := 300 + g.rng.Float64()*1700
	hooks := slices.Clone(g.damage)
	g.fired[HitDamage]++
	g.mu.Unlock()

	if part, ok := target.Part(partID); ok {
		part.SetTemperatures(temperature, temperature*0.8)
	}
	hit := bddmp.DamageHit{
		EntityID:            target.ID(),
		PartID:              partID,
		Temperature:         temperature,
		ExternalTemperature: temperature * 0.8,
	}
	for _, fn := range hooks {
		fn(hit)
	}
}

func (g *Generator) fireImpact() {
	g.mu.Lock()
	hit := bddmp.ImpactHit{
		Position: g.offset(10),
		Normal:   bddmp.Vec3{Y: 1},
		Ricochet: g.rng.IntN(4) == 0,
	}
	hooks := slices.Clone(g.impact)
	g.fired[HitImpact]++
	g.mu.Unlock()
	for _, fn := range hooks {
		fn(hit)
	}
}

func (g *Generator) fireExplosion() {
	var source bddmp.Entity
	if active, ok := g.world.Active(); ok {
		source = active
	}
	g.mu.Lock()
	hit := bddmp.ExplosionHit{
		Position:  g.offset(25),
		Radius:    float32(5 + g.rng.IntN(20)),
		Power:     float32(10 + g.rng.IntN(90)),
		Source:    source,
		Direction: bddmp.Vec3{Z: 1},
		ModelRef:  explosionModel,
		SoundRef:  explosionSound,
	}
	hooks := slices.Clone(g.explosion)
	g.fired[HitExplosion]++
	g.mu.Unlock()
	for _, fn := range hooks {
		fn(hit)
	}
}

// target picks a vessel other than the active one when there is a choice.
func (g *Generator) target() *Vessel {
	vessels := g.world.Vessels()
	if len(vessels) == 0 {
		return nil
	}
	active, hasActive := g.world.Active()
	candidates := make([]*Vessel, 0, len(vessels))
	for _, v := range vessels {
		if hasActive && v.ID() == active.ID() {
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		candidates = vessels
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return candidates[g.rng.IntN(len(candidates))]
}

// offset must be called with g.mu held.
func (g *Generator) offset(spread float64) bddmp.Vec3 {
	axis := func() float32 { return float32((g.rng.Float64()*2 - 1) * spread) }
	return bddmp.Vec3{X: axis(), Y: axis(), Z: axis()}
}

// Fired returns how many hits of kind were generated.
func (g *Generator) Fired(kind HitKind) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if kind < 0 || kind >= hitKindCount {
		return 0
	}
	return g.fired[kind]
}

// Vetoed returns how many damage hits the allow-damage predicate refused.
func (g *Generator) Vetoed() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vetoed
}

// Run fires a hit every interval until ctx is cancelled.
func (g *Generator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.Fire()
		}
	}
}
