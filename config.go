package bddmp

import (
	"github.com/dsonbill/BDDMP/internal/config"
	"github.com/dsonbill/BDDMP/internal/gate"
	"github.com/dsonbill/BDDMP/internal/pending"
	"github.com/dsonbill/BDDMP/internal/ratelimit"
	"github.com/dsonbill/BDDMP/internal/telemetry"
	"github.com/dsonbill/BDDMP/logging"
)

const (
	// DefaultValidityWindow is how long after its timestamp an event may
	// still be applied, in simulation seconds.
	DefaultValidityWindow = gate.DefaultWindow
	// DefaultRetention bounds how long an unapplied event is kept.
	DefaultRetention = pending.DefaultRetention
	// DefaultSyncHz caps impact and explosion broadcasts per second.
	DefaultSyncHz = ratelimit.DefaultHz
	// DefaultInboundCapacity sizes the buffer between transport handlers and Tick.
	DefaultInboundCapacity = 4096
)

// Config tunes a Synchronizer. Zero fields take their defaults.
type Config struct {
	ValidityWindow  float64
	Retention       float64
	ImpactHz        int
	ExplosionHz     int
	InboundCapacity int
}

func DefaultConfig() Config {
	return Config{
		ValidityWindow:  DefaultValidityWindow,
		Retention:       DefaultRetention,
		ImpactHz:        DefaultSyncHz,
		ExplosionHz:     DefaultSyncHz,
		InboundCapacity: DefaultInboundCapacity,
	}
}

// ConfigFromSettings maps loaded process settings onto a Config.
func ConfigFromSettings(s config.SyncConfig) Config {
	return Config{
		ValidityWindow:  s.ValidityWindow,
		Retention:       s.Retention,
		ImpactHz:        s.ImpactHz,
		ExplosionHz:     s.ExplosionHz,
		InboundCapacity: s.InboundCapacity,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ValidityWindow <= 0 {
		c.ValidityWindow = d.ValidityWindow
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.ImpactHz <= 0 {
		c.ImpactHz = d.ImpactHz
	}
	if c.ExplosionHz <= 0 {
		c.ExplosionHz = d.ExplosionHz
	}
	if c.InboundCapacity <= 0 {
		c.InboundCapacity = d.InboundCapacity
	}
	return c
}

// Deps injects the host collaborators. Clock is required; everything else
// degrades to a no-op when nil.
type Deps struct {
	Clock     SimClock
	Registry  Registry
	Effects   Effects
	Timeline  Timeline
	Advisor   Advisor
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	// WallClock paces outbound rate limiting. Defaults to the system clock.
	WallClock ratelimit.Clock
}
