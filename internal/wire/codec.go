package wire

import (
	"fmt"
	"math"

	"github.com/dsonbill/BDDMP/internal/events"
)

// Mod message channels, one per category.
const (
	ChannelDamage    = "BDDMP:DamageHook"
	ChannelImpact    = "BDDMP:BulletHitFXHook"
	ChannelExplosion = "BDDMP:ExplosionFXHook"
	ChannelTracer    = "BDDMP:BulletTracerHook"
)

// Delivery captures the transport flags a category is sent with.
type Delivery struct {
	Reliable   bool
	Guaranteed bool
}

// Channel returns the mod message channel for a category.
func Channel(category events.Category) string {
	switch category {
	case events.CategoryDamage:
		return ChannelDamage
	case events.CategoryImpact:
		return ChannelImpact
	case events.CategoryExplosion:
		return ChannelExplosion
	case events.CategoryTracer:
		return ChannelTracer
	default:
		return ""
	}
}

// DeliveryFor returns the transport flags used when broadcasting category.
// Impact effects are the only category peers may drop under load.
func DeliveryFor(category events.Category) Delivery {
	if category == events.CategoryImpact {
		return Delivery{Reliable: true, Guaranteed: false}
	}
	return Delivery{Reliable: true, Guaranteed: true}
}

// Encode renders an event into its ordered-field payload.
func Encode(evt events.Event) ([]byte, error) {
	w := NewWriter().Float64(evt.EntryTime())
	switch p := evt.Payload().(type) {
	case events.Damage:
		w.UUID(p.EntityID).
			Uint32(p.PartID).
			Float64(p.Temperature).
			Float64(p.ExternalTemperature)
	case events.Impact:
		w.UUID(p.OriginID).
			Vec3(p.Position).
			Vec3(p.Normal).
			Bool(p.Ricochet)
	case events.Explosion:
		w.Vec3(p.Position).
			Float32(p.Radius).
			Float32(p.Power).
			UUID(p.OriginID).
			Vec3(p.Direction).
			String(p.ModelRef).
			String(p.SoundRef)
	case events.Tracer:
	default:
		return nil, fmt.Errorf("wire: cannot encode payload %T", evt.Payload())
	}
	data, err := w.Bytes()
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", evt.Category(), err)
	}
	return data, nil
}

// Decode parses a payload received for category. Every failure is a
// *DecodeError wrapping ErrMalformed.
func Decode(category events.Category, data []byte) (events.Event, error) {
	channel := Channel(category)
	if channel == "" {
		return events.Event{}, &DecodeError{Channel: category.String(), Err: fmt.Errorf("unknown category")}
	}
	r := NewReader(channel, data)
	ts := r.Float64("timestamp")
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		r.fail("timestamp", fmt.Errorf("non-finite value %v", ts))
	}

	// Literal fields are evaluated left to right, so they are listed in wire
	// order.
	var payload events.Payload
	switch category {
	case events.CategoryDamage:
		payload = events.Damage{
			EntityID:            r.UUID("entityId"),
			PartID:              r.Uint32("partId"),
			Temperature:         r.Float64("temperature"),
			ExternalTemperature: r.Float64("externalTemperature"),
		}
	case events.CategoryImpact:
		payload = events.Impact{
			OriginID: r.UUID("originId"),
			Position: r.Vec3("position"),
			Normal:   r.Vec3("normal"),
			Ricochet: r.Bool("ricochet"),
		}
	case events.CategoryExplosion:
		payload = events.Explosion{
			Position:  r.Vec3("position"),
			Radius:    r.Float32("radius"),
			Power:     r.Float32("power"),
			OriginID:  r.UUID("originId"),
			Direction: r.Vec3("direction"),
			ModelRef:  r.String("modelRef"),
			SoundRef:  r.String("soundRef"),
		}
	case events.CategoryTracer:
		payload = events.Tracer{}
	}

	if err := r.Finish(); err != nil {
		return events.Event{}, err
	}
	return events.New(ts, payload), nil
}
