package bddmp

import (
	"github.com/google/uuid"

	"github.com/dsonbill/BDDMP/internal/apply"
	"github.com/dsonbill/BDDMP/internal/events"
	"github.com/dsonbill/BDDMP/internal/pending"
	"github.com/dsonbill/BDDMP/internal/wire"
	"github.com/dsonbill/BDDMP/logging"
)

// descriptor is everything category specific about the receive, gate and
// apply path.
type descriptor struct {
	category events.Category
	channel  string
	decode   func(data []byte) (events.Event, error)
	apply    func(evt events.Event) error
	// subject names the entity an event refers to, for logs.
	subject func(p events.Payload) (uuid.UUID, logging.EntityKind, bool)
}

type pipeline struct {
	descriptor
	queue *pending.Queue
}

func newPipelines(appliers apply.Appliers) [events.CategoryCount]*pipeline {
	var out [events.CategoryCount]*pipeline
	for _, category := range events.Categories() {
		out[category] = &pipeline{
			descriptor: describe(category, appliers),
			queue:      pending.NewQueue(category),
		}
	}
	return out
}

func describe(category events.Category, appliers apply.Appliers) descriptor {
	d := descriptor{
		category: category,
		channel:  wire.Channel(category),
		decode: func(data []byte) (events.Event, error) {
			return wire.Decode(category, data)
		},
		apply:   appliers.Apply,
		subject: func(events.Payload) (uuid.UUID, logging.EntityKind, bool) { return uuid.Nil, "", false },
	}
	switch category {
	case events.CategoryDamage:
		d.subject = func(p events.Payload) (uuid.UUID, logging.EntityKind, bool) {
			dmg, ok := p.(events.Damage)
			return dmg.EntityID, logging.EntityKindVessel, ok
		}
	case events.CategoryImpact:
		d.subject = func(p events.Payload) (uuid.UUID, logging.EntityKind, bool) {
			hit, ok := p.(events.Impact)
			return hit.OriginID, logging.EntityKindVessel, ok
		}
	case events.CategoryExplosion:
		d.subject = func(p events.Payload) (uuid.UUID, logging.EntityKind, bool) {
			exp, ok := p.(events.Explosion)
			return exp.OriginID, logging.EntityKindVessel, ok
		}
	}
	return d
}

func (d descriptor) subjectRef(p events.Payload) logging.EntityRef {
	id, kind, ok := d.subject(p)
	if !ok {
		return logging.EntityRef{Kind: logging.EntityKindEffect}
	}
	return logging.EntityRef{ID: id.String(), Kind: kind}
}
