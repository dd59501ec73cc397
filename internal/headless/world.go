// Package headless provides an in-process host for a synchronizer: a small
// vessel registry, an effects sink and a synthetic hit generator. The probe
// command uses it to exercise a relay without a game client.
package headless

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dsonbill/BDDMP"
	"github.com/dsonbill/BDDMP/internal/config"
)

const defaultParts = 8

// Part records the last temperatures written to it.
type Part struct {
	mu          sync.Mutex
	temperature float64
	external    float64
	writes      uint64
}

func (p *Part) SetTemperatures(temperature, external float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.temperature = temperature
	p.external = external
	p.writes++
}

// Temperatures returns the current values and how many times they were set.
func (p *Part) Temperatures() (temperature, external float64, writes uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.temperature, p.external, p.writes
}

// translation is a body frame offset from the world origin.
type translation struct {
	origin bddmp.Vec3
}

func (t translation) ToWorld(local bddmp.Vec3) bddmp.Vec3 { return local.Add(t.origin) }
func (t translation) ToLocal(world bddmp.Vec3) bddmp.Vec3 { return world.Sub(t.origin) }

// Vessel is a registry entity with numbered parts.
type Vessel struct {
	id    uuid.UUID
	frame translation
	parts map[uint32]*Part
}

func (v *Vessel) ID() uuid.UUID { return v.id }

func (v *Vessel) Part(id uint32) (bddmp.Part, bool) {
	p, ok := v.parts[id]
	if !ok {
		return nil, false
	}
	return p, true
}

func (v *Vessel) Frame() bddmp.Frame { return v.frame }

// PartIDs lists part ids in ascending order.
func (v *Vessel) PartIDs() []uint32 {
	ids := make([]uint32, 0, len(v.parts))
	for id := range v.parts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// World is a fixed set of vessels. It implements bddmp.Registry.
type World struct {
	vessels map[uuid.UUID]*Vessel
	order   []uuid.UUID

	mu     sync.RWMutex
	active uuid.UUID
}

// NewWorld builds a world from configured vessels. With none configured it
// seeds a single active vessel whose id is derived from peerID, so a probe
// restarted under the same name keeps its identity.
func NewWorld(peerID string, vessels []config.VesselConfig) (*World, error) {
	w := &World{vessels: make(map[uuid.UUID]*Vessel)}
	if len(vessels) == 0 {
		vessels = []config.VesselConfig{{
			ID:     uuid.NewSHA1(uuid.NameSpaceOID, []byte("bddmp/"+peerID)).String(),
			Parts:  defaultParts,
			Active: true,
		}}
	}
	for i, vc := range vessels {
		id, err := uuid.Parse(vc.ID)
		if err != nil {
			return nil, fmt.Errorf("vessel %d: %w", i, err)
		}
		if _, dup := w.vessels[id]; dup {
			return nil, fmt.Errorf("vessel %d: duplicate id %s", i, id)
		}
		count := vc.Parts
		if count == 0 {
			count = defaultParts
		}
		v := &Vessel{id: id, frame: translation{origin: vc.Origin}, parts: make(map[uint32]*Part, count)}
		for part := uint32(1); part <= count; part++ {
			v.parts[part] = &Part{}
		}
		w.vessels[id] = v
		w.order = append(w.order, id)
		if vc.Active && w.active == uuid.Nil {
			w.active = id
		}
	}
	return w, nil
}

func (w *World) Lookup(id uuid.UUID) (bddmp.Entity, bool) {
	v, ok := w.vessels[id]
	if !ok {
		return nil, false
	}
	return v, true
}

func (w *World) Active() (bddmp.Entity, bool) {
	w.mu.RLock()
	id := w.active
	w.mu.RUnlock()
	if id == uuid.Nil {
		return nil, false
	}
	return w.Lookup(id)
}

// SetActive switches control to id. uuid.Nil clears it.
func (w *World) SetActive(id uuid.UUID) error {
	if id != uuid.Nil {
		if _, ok := w.vessels[id]; !ok {
			return fmt.Errorf("unknown vessel %s", id)
		}
	}
	w.mu.Lock()
	w.active = id
	w.mu.Unlock()
	return nil
}

// Vessel returns the concrete vessel for id.
func (w *World) Vessel(id uuid.UUID) (*Vessel, bool) {
	v, ok := w.vessels[id]
	return v, ok
}

// Vessels returns every vessel in configuration order.
func (w *World) Vessels() []*Vessel {
	out := make([]*Vessel, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.vessels[id])
	}
	return out
}
