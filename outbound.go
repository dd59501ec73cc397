package bddmp

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dsonbill/BDDMP/internal/apply"
	"github.com/dsonbill/BDDMP/internal/events"
	"github.com/dsonbill/BDDMP/internal/wire"
	"github.com/dsonbill/BDDMP/logging"
	"github.com/dsonbill/BDDMP/logging/replication"
)

// OnDamage broadcasts a part's new temperatures. Damage is never throttled.
func (s *Synchronizer) OnDamage(hit DamageHit) {
	s.broadcast(events.New(s.clock.Now(), events.Damage{
		EntityID:            hit.EntityID,
		PartID:              hit.PartID,
		Temperature:         hit.Temperature,
		ExternalTemperature: hit.ExternalTemperature,
	}))
}

// OnImpact broadcasts a bullet hit in world space, attributed to the active
// entity. Hits are dropped when no entity is active or the impact limiter
// has not cleared.
func (s *Synchronizer) OnImpact(hit ImpactHit) {
	active, ok := s.activeEntity()
	if !ok {
		s.counters.skipped.Add(1)
		return
	}
	if !s.allow(events.CategoryImpact) {
		return
	}
	s.broadcast(events.New(s.clock.Now(), events.Impact{
		OriginID: active.ID(),
		Position: active.Frame().ToWorld(hit.Position),
		Normal:   hit.Normal,
		Ricochet: hit.Ricochet,
	}))
}

// OnExplosion broadcasts an explosion in world space, attributed to its
// source entity.
func (s *Synchronizer) OnExplosion(hit ExplosionHit) {
	if !apply.Present(hit.Source) {
		s.counters.skipped.Add(1)
		return
	}
	if !s.allow(events.CategoryExplosion) {
		return
	}
	s.broadcast(events.New(s.clock.Now(), events.Explosion{
		Position:  hit.Source.Frame().ToWorld(hit.Position),
		OriginID:  hit.Source.ID(),
		Radius:    hit.Radius,
		Power:     hit.Power,
		Direction: hit.Direction,
		ModelRef:  hit.ModelRef,
		SoundRef:  hit.SoundRef,
	}))
}

// OnTracer broadcasts the timestamp of a fired tracer round.
func (s *Synchronizer) OnTracer(TracerHit) {
	s.broadcast(events.New(s.clock.Now(), events.Tracer{}))
}

// AllowDamage is the allow-damage predicate handed to the hit source.
func (s *Synchronizer) AllowDamage(entityID uuid.UUID) bool {
	if s.permission.Allow(entityID) {
		return true
	}
	s.counters.damageRejected.Add(1)
	s.metrics.Add(metricDamageRejected, 1)
	replication.DamageRejected(context.Background(), s.publisher, logging.EntityRef{ID: entityID.String(), Kind: logging.EntityKindVessel})
	return false
}

func (s *Synchronizer) activeEntity() (Entity, bool) {
	if s.registry == nil {
		return nil, false
	}
	active, ok := s.registry.Active()
	return active, ok && apply.Present(active)
}

func (s *Synchronizer) allow(category events.Category) bool {
	limiter, ok := s.limiters[category]
	if !ok || limiter.Allow() {
		return true
	}
	s.counters.throttled.Add(1)
	s.metrics.Add(metricThrottled, 1)
	return false
}

func (s *Synchronizer) broadcast(evt events.Event) {
	if err := s.send(evt); err != nil {
		s.counters.sendErrors.Add(1)
		s.metrics.Add(metricSendErrors, 1)
		replication.SendFailed(context.Background(), s.publisher, replication.SendPayload{
			Channel: wire.Channel(evt.Category()),
			Error:   err.Error(),
		})
	}
}

func (s *Synchronizer) send(evt events.Event) error {
	ref := s.transport.Load()
	if ref == nil {
		return ErrNotAttached
	}
	data, err := wire.Encode(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", evt.Category(), err)
	}
	channel := wire.Channel(evt.Category())
	delivery := wire.DeliveryFor(evt.Category())
	if err := ref.Send(channel, data, delivery.Reliable, delivery.Guaranteed); err != nil {
		return fmt.Errorf("send %s: %w", channel, err)
	}
	s.counters.sent.Add(1)
	s.metrics.Add(metricSent, 1)
	return nil
}
