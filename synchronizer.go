package bddmp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dsonbill/BDDMP/internal/apply"
	"github.com/dsonbill/BDDMP/internal/events"
	"github.com/dsonbill/BDDMP/internal/gate"
	"github.com/dsonbill/BDDMP/internal/pending"
	"github.com/dsonbill/BDDMP/internal/ratelimit"
	"github.com/dsonbill/BDDMP/internal/telemetry"
	"github.com/dsonbill/BDDMP/logging"
	"github.com/dsonbill/BDDMP/logging/replication"
)

const (
	metricApplied            = "bddmp_events_applied_total"
	metricEvicted            = "bddmp_events_evicted_total"
	metricDecodeErrors       = "bddmp_decode_errors_total"
	metricResolutionFailures = "bddmp_resolution_failures_total"
	metricEffectFailures     = "bddmp_effect_failures_total"
	metricApplyFailures      = "bddmp_apply_failures_total"
	metricSent               = "bddmp_sends_total"
	metricThrottled          = "bddmp_sends_throttled_total"
	metricSendErrors         = "bddmp_send_errors_total"
	metricDamageRejected     = "bddmp_damage_rejected_total"
	metricPending            = "bddmp_pending_events"
	metricTicks              = "bddmp_ticks_total"
)

var (
	// ErrAlreadyAttached is returned by a second Attach call.
	ErrAlreadyAttached = errors.New("bddmp: synchronizer already attached")
	// ErrNotAttached is returned when sending before Attach.
	ErrNotAttached = errors.New("bddmp: synchronizer not attached to a transport")
)

// Synchronizer owns the pending queues of one peer. Tick must be called from
// a single goroutine; hooks, transport handlers and Stats may be called
// concurrently with it.
type Synchronizer struct {
	cfg        Config
	clock      SimClock
	registry   Registry
	appliers   apply.Appliers
	permission apply.Permission
	publisher  logging.Publisher
	metrics    telemetry.Metrics

	inbound   *pending.Inbound
	pipelines [events.CategoryCount]*pipeline
	limiters  map[events.Category]*ratelimit.Limiter

	attachMu  sync.Mutex
	transport atomic.Pointer[transportRef]

	tick     atomic.Uint64
	counters counters
	pending  [events.CategoryCount]atomic.Int64
}

type transportRef struct {
	Transport
}

type counters struct {
	applied            atomic.Uint64
	evicted            atomic.Uint64
	decodeErrors       atomic.Uint64
	resolutionFailures atomic.Uint64
	effectFailures     atomic.Uint64
	applyFailures      atomic.Uint64
	overflow           atomic.Uint64
	sent               atomic.Uint64
	throttled          atomic.Uint64
	sendErrors         atomic.Uint64
	damageRejected     atomic.Uint64
	skipped            atomic.Uint64
}

// New builds a Synchronizer. It does not touch the network until Attach.
func New(cfg Config, deps Deps) (*Synchronizer, error) {
	if deps.Clock == nil {
		return nil, errors.New("bddmp: simulation clock is required")
	}
	cfg = cfg.withDefaults()
	if cfg.Retention < cfg.ValidityWindow {
		return nil, fmt.Errorf("bddmp: retention %.1fs shorter than validity window %.1fs", cfg.Retention, cfg.ValidityWindow)
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.WrapMetrics(nil)
	}
	appliers := apply.Appliers{Registry: deps.Registry, Effects: deps.Effects}
	s := &Synchronizer{
		cfg:        cfg,
		clock:      deps.Clock,
		registry:   deps.Registry,
		appliers:   appliers,
		permission: apply.Permission{Timeline: deps.Timeline, Advisor: deps.Advisor},
		publisher:  publisher,
		metrics:    metrics,
		inbound:    pending.NewInbound(cfg.InboundCapacity, metrics),
		pipelines:  newPipelines(appliers),
		limiters: map[events.Category]*ratelimit.Limiter{
			events.CategoryImpact:    ratelimit.New(cfg.ImpactHz, deps.WallClock),
			events.CategoryExplosion: ratelimit.New(cfg.ExplosionHz, deps.WallClock),
		},
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Synchronizer) Config() Config {
	return s.cfg
}

// Attach registers the inbound channel handlers on transport and the
// outbound hooks on hits. hits may be nil for a receive-only peer.
func (s *Synchronizer) Attach(transport Transport, hits HitSource) error {
	if transport == nil {
		return errors.New("bddmp: transport is required")
	}
	s.attachMu.Lock()
	defer s.attachMu.Unlock()
	if s.transport.Load() != nil {
		return ErrAlreadyAttached
	}
	for _, p := range s.pipelines {
		transport.RegisterHandler(p.channel, s.handler(p.descriptor))
	}
	s.transport.Store(&transportRef{transport})
	if hits != nil {
		hits.RegisterDamageHook(s.OnDamage)
		hits.RegisterImpactHook(s.OnImpact)
		hits.RegisterExplosionHook(s.OnExplosion)
		hits.RegisterTracerHook(s.OnTracer)
		hits.RegisterAllowDamageHook(s.AllowDamage)
	}
	return nil
}

// Tick drains received events into their queues, sweeps consumed and
// expired entries, then applies every event that became eligible at now.
// Category order is damage, impact, explosion, tracer.
func (s *Synchronizer) Tick(now float64) {
	ctx := context.Background()
	tick := s.tick.Add(1)
	s.metrics.Add(metricTicks, 1)

	for _, entry := range s.inbound.Drain() {
		category := entry.Event.Category()
		if !category.Valid() {
			continue
		}
		s.pipelines[category].queue.Push(entry)
	}

	for _, p := range s.pipelines {
		result := p.queue.Sweep(now, s.cfg.Retention)
		for _, entry := range result.ExpiredEntries {
			replication.Evicted(ctx, s.publisher, tick, now, replication.EventPayload{
				Category:  p.category.String(),
				Seq:       entry.Seq,
				EntryTime: entry.Event.EntryTime(),
				Age:       entry.Event.Age(now),
			})
		}
		if result.Expired > 0 {
			s.counters.evicted.Add(uint64(result.Expired))
			s.metrics.Add(metricEvicted, uint64(result.Expired))
		}
	}

	for _, p := range s.pipelines {
		p.queue.Scan(func(entry pending.Entry) bool {
			if !gate.IsEligible(now, entry.Event.EntryTime(), s.cfg.ValidityWindow) {
				return false
			}
			s.applyEntry(ctx, tick, now, p, entry)
			return true
		})
	}

	var total int
	for _, p := range s.pipelines {
		n := p.queue.Len()
		s.pending[p.category].Store(int64(n))
		total += n
	}
	s.metrics.Store(metricPending, uint64(total))
}

// applyEntry runs the category applier once. Whatever the outcome the entry
// is consumed by the caller.
func (s *Synchronizer) applyEntry(ctx context.Context, tick uint64, now float64, p *pipeline, entry pending.Entry) {
	err := apply.Recover(func() error { return p.apply(entry.Event) })
	s.counters.applied.Add(1)
	s.metrics.Add(metricApplied, 1)

	payload := replication.EventPayload{
		Category:  p.category.String(),
		Seq:       entry.Seq,
		EntryTime: entry.Event.EntryTime(),
		Age:       entry.Event.Age(now),
	}
	var spawnErr *apply.EffectSpawnError
	switch {
	case err == nil:
		replication.Applied(ctx, s.publisher, tick, now, p.subjectRef(entry.Event.Payload()), payload)
	case errors.Is(err, apply.ErrNotResolved):
		s.counters.resolutionFailures.Add(1)
		s.metrics.Add(metricResolutionFailures, 1)
		replication.ResolutionFailed(ctx, s.publisher, tick, now, p.subjectRef(entry.Event.Payload()), replication.ResolutionPayload{
			Category: p.category.String(),
			Seq:      entry.Seq,
			Reason:   err.Error(),
		})
	case errors.As(err, &spawnErr):
		s.counters.effectFailures.Add(1)
		s.metrics.Add(metricEffectFailures, 1)
		replication.EffectFailed(ctx, s.publisher, tick, now, replication.FailurePayload{
			Category: p.category.String(),
			Seq:      entry.Seq,
			Error:    err.Error(),
		})
	default:
		s.counters.applyFailures.Add(1)
		s.metrics.Add(metricApplyFailures, 1)
		replication.ApplyFailed(ctx, s.publisher, tick, now, replication.FailurePayload{
			Category: p.category.String(),
			Seq:      entry.Seq,
			Error:    err.Error(),
		})
	}
}

// Stats is a point-in-time view of the synchronizer counters.
type Stats struct {
	Ticks              uint64
	Pending            map[string]int
	Inbound            int
	Applied            uint64
	Evicted            uint64
	DecodeErrors       uint64
	ResolutionFailures uint64
	EffectFailures     uint64
	ApplyFailures      uint64
	InboundOverflow    uint64
	Sent               uint64
	Throttled          uint64
	SendErrors         uint64
	Skipped            uint64
	DamageRejected     uint64
}

// Stats reports counters. Pending counts reflect the end of the last tick.
func (s *Synchronizer) Stats() Stats {
	pendingCounts := make(map[string]int, events.CategoryCount)
	for _, category := range events.Categories() {
		pendingCounts[category.String()] = int(s.pending[category].Load())
	}
	return Stats{
		Ticks:              s.tick.Load(),
		Pending:            pendingCounts,
		Inbound:            s.inbound.Len(),
		Applied:            s.counters.applied.Load(),
		Evicted:            s.counters.evicted.Load(),
		DecodeErrors:       s.counters.decodeErrors.Load(),
		ResolutionFailures: s.counters.resolutionFailures.Load(),
		EffectFailures:     s.counters.effectFailures.Load(),
		ApplyFailures:      s.counters.applyFailures.Load(),
		InboundOverflow:    s.counters.overflow.Load(),
		Sent:               s.counters.sent.Load(),
		Throttled:          s.counters.throttled.Load(),
		SendErrors:         s.counters.sendErrors.Load(),
		Skipped:            s.counters.skipped.Load(),
		DamageRejected:     s.counters.damageRejected.Load(),
	}
}
