// Package events defines the immutable combat event records exchanged between
// peers. Every record carries the authoritative timestamp assigned by the
// sending peer and exactly one category payload.
package events

import (
	"fmt"

	"github.com/google/uuid"
)

// Category identifies the replicated event kind.
type Category uint8

const (
	CategoryDamage Category = iota
	CategoryImpact
	CategoryExplosion
	CategoryTracer

	categoryCount
)

// CategoryCount reports the number of known categories.
const CategoryCount = int(categoryCount)

// Categories lists every category in tick scan order.
func Categories() []Category {
	return []Category{CategoryDamage, CategoryImpact, CategoryExplosion, CategoryTracer}
}

// String renders the category name used in logs and metric keys.
func (c Category) String() string {
	switch c {
	case CategoryDamage:
		return "damage"
	case CategoryImpact:
		return "impact"
	case CategoryExplosion:
		return "explosion"
	case CategoryTracer:
		return "tracer"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// Valid reports whether c names a known category.
func (c Category) Valid() bool {
	return c < categoryCount
}

// Payload is the category specific body of an event. The interface is sealed
// to the four payload types declared in this package.
type Payload interface {
	Category() Category
	payload()
}

// Event is a replicated record. EntryTime is the sender's simulation clock
// reading when the event was encoded.
type Event struct {
	entryTime float64
	payload   Payload
}

// New constructs an event. It panics when payload is nil since an event
// without a category cannot be routed.
func New(entryTime float64, payload Payload) Event {
	if payload == nil {
		panic("events: nil payload")
	}
	return Event{entryTime: entryTime, payload: payload}
}

// EntryTime returns the authoritative timestamp.
func (e Event) EntryTime() float64 { return e.entryTime }

// Payload returns the category payload.
func (e Event) Payload() Payload { return e.payload }

// Category returns the payload category.
func (e Event) Category() Category {
	if e.payload == nil {
		return categoryCount
	}
	return e.payload.Category()
}

// Age reports how far now is past the entry time. Negative ages mean the
// event is still in the local peer's future.
func (e Event) Age(now float64) float64 {
	return now - e.entryTime
}

// Damage overwrites the temperatures of a single part.
type Damage struct {
	EntityID            uuid.UUID
	PartID              uint32
	Temperature         float64
	ExternalTemperature float64
}

func (Damage) Category() Category { return CategoryDamage }
func (Damage) payload()           {}

// Impact describes a bullet hit effect in world coordinates.
type Impact struct {
	OriginID uuid.UUID
	Position Vec3
	Normal   Vec3
	Ricochet bool
}

func (Impact) Category() Category { return CategoryImpact }
func (Impact) payload()           {}

// Explosion describes an explosion effect in world coordinates.
type Explosion struct {
	Position  Vec3
	OriginID  uuid.UUID
	Radius    float32
	Power     float32
	Direction Vec3
	ModelRef  string
	SoundRef  string
}

func (Explosion) Category() Category { return CategoryExplosion }
func (Explosion) payload()           {}

// Tracer marks a fired tracer round. It carries no data beyond the timestamp.
type Tracer struct{}

func (Tracer) Category() Category { return CategoryTracer }
func (Tracer) payload()           {}
