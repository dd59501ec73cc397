// Package replication publishes structured events for the inbound decode,
// gate, apply and outbound send paths.
package replication

import (
	"context"

	"github.com/dsonbill/BDDMP/logging"
)

const (
	// EventApplied is emitted when a pending event reaches its applier.
	EventApplied logging.EventType = "replication.applied"
	// EventEvicted is emitted when an event aged out without being applied.
	EventEvicted logging.EventType = "replication.evicted"
	// EventDecodeFailed is emitted when an inbound payload is malformed.
	EventDecodeFailed logging.EventType = "replication.decode_failed"
	// EventResolutionFailed is emitted when a referenced entity or part is unknown.
	EventResolutionFailed logging.EventType = "replication.resolution_failed"
	// EventEffectFailed is emitted when the effects collaborator fails to spawn.
	EventEffectFailed logging.EventType = "replication.effect_failed"
	// EventApplyFailed is emitted when an applier returned an unexpected error or panicked.
	EventApplyFailed logging.EventType = "replication.apply_failed"
	// EventInboundOverflow is emitted when the inbound buffer is saturated.
	EventInboundOverflow logging.EventType = "replication.inbound_overflow"
	// EventDamageRejected is emitted when damage to a future entity is refused.
	EventDamageRejected logging.EventType = "replication.damage_rejected"
	// EventSendFailed is emitted when the transport rejects an outbound payload.
	EventSendFailed logging.EventType = "replication.send_failed"
)

// EventPayload identifies a queued event.
type EventPayload struct {
	Category  string  `json:"category"`
	Seq       uint64  `json:"seq"`
	EntryTime float64 `json:"entryTime"`
	Age       float64 `json:"age"`
}

// DecodePayload describes a rejected inbound message.
type DecodePayload struct {
	Channel string `json:"channel"`
	Field   string `json:"field,omitempty"`
	Bytes   int    `json:"bytes"`
	Error   string `json:"error"`
}

// ResolutionPayload describes an unresolved entity reference.
type ResolutionPayload struct {
	Category string `json:"category"`
	Seq      uint64 `json:"seq"`
	Reason   string `json:"reason"`
}

// FailurePayload describes a failed applier invocation.
type FailurePayload struct {
	Category string `json:"category"`
	Seq      uint64 `json:"seq"`
	Error    string `json:"error"`
}

// OverflowPayload describes a dropped inbound event.
type OverflowPayload struct {
	Category string `json:"category"`
	Capacity int    `json:"capacity"`
}

// SendPayload describes a failed outbound send.
type SendPayload struct {
	Channel string `json:"channel"`
	Bytes   int    `json:"bytes"`
	Error   string `json:"error"`
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	event.Category = logging.CategoryReplication
	pub.Publish(ctx, event)
}

// Applied publishes a debug event when an applier ran for an event.
func Applied(ctx context.Context, pub logging.Publisher, tick uint64, now float64, actor logging.EntityRef, payload EventPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventApplied,
		Tick:     tick,
		SimTime:  now,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Payload:  payload,
	})
}

// Evicted publishes a debug event for an event removed by the retention ceiling.
func Evicted(ctx context.Context, pub logging.Publisher, tick uint64, now float64, payload EventPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventEvicted,
		Tick:     tick,
		SimTime:  now,
		Severity: logging.SeverityDebug,
		Payload:  payload,
	})
}

// DecodeFailed publishes a warning for a malformed inbound message.
func DecodeFailed(ctx context.Context, pub logging.Publisher, payload DecodePayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventDecodeFailed,
		Severity: logging.SeverityWarn,
		Payload:  payload,
	})
}

// ResolutionFailed publishes a debug event; unresolved references are expected
// when an entity was destroyed or is not yet known locally.
func ResolutionFailed(ctx context.Context, pub logging.Publisher, tick uint64, now float64, target logging.EntityRef, payload ResolutionPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventResolutionFailed,
		Tick:     tick,
		SimTime:  now,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityDebug,
		Payload:  payload,
	})
}

// EffectFailed publishes a warning when an effect could not be spawned.
func EffectFailed(ctx context.Context, pub logging.Publisher, tick uint64, now float64, payload FailurePayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventEffectFailed,
		Tick:     tick,
		SimTime:  now,
		Severity: logging.SeverityWarn,
		Payload:  payload,
	})
}

// ApplyFailed publishes an error event for an applier that failed outside
// the resolution and effect paths.
func ApplyFailed(ctx context.Context, pub logging.Publisher, tick uint64, now float64, payload FailurePayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventApplyFailed,
		Tick:     tick,
		SimTime:  now,
		Severity: logging.SeverityError,
		Payload:  payload,
	})
}

// InboundOverflow publishes a warning when an inbound event was dropped.
func InboundOverflow(ctx context.Context, pub logging.Publisher, payload OverflowPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventInboundOverflow,
		Severity: logging.SeverityWarn,
		Payload:  payload,
	})
}

// DamageRejected publishes a warning when damage to an entity was refused.
func DamageRejected(ctx context.Context, pub logging.Publisher, target logging.EntityRef) {
	publish(ctx, pub, logging.Event{
		Type:     EventDamageRejected,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityWarn,
	})
}

// SendFailed publishes a warning when the transport rejected a payload.
func SendFailed(ctx context.Context, pub logging.Publisher, payload SendPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventSendFailed,
		Severity: logging.SeverityWarn,
		Payload:  payload,
	})
}
