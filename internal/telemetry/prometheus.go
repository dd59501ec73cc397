package telemetry

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus exports Metrics keys as collectors. Keys passed to Add become
// counters and keys passed to Store become gauges; each collector is
// registered on first use.
type Prometheus struct {
	registerer prometheus.Registerer

	mu       sync.Mutex
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	failed   map[string]error
}

// NewPrometheus returns a Metrics backed by registerer. A nil registerer uses
// prometheus.DefaultRegisterer.
func NewPrometheus(registerer prometheus.Registerer) *Prometheus {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Prometheus{
		registerer: registerer,
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		failed:     make(map[string]error),
	}
}

func (p *Prometheus) Add(key string, delta uint64) {
	if p == nil {
		return
	}
	if counter := p.counter(key); counter != nil {
		counter.Add(float64(delta))
	}
}

func (p *Prometheus) Store(key string, value uint64) {
	if p == nil {
		return
	}
	if gauge := p.gauge(key); gauge != nil {
		gauge.Set(float64(value))
	}
}

func (p *Prometheus) counter(key string) prometheus.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[key]; ok {
		return c
	}
	if _, bad := p.failed[key]; bad {
		return nil
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: key, Help: "BDDMP counter " + key})
	if err := p.registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			p.failed[key] = err
			return nil
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			p.failed[key] = err
			return nil
		}
		c = existing
	}
	p.counters[key] = c
	return c
}

func (p *Prometheus) gauge(key string) prometheus.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.gauges[key]; ok {
		return g
	}
	if _, bad := p.failed[key]; bad {
		return nil
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: key, Help: "BDDMP gauge " + key})
	if err := p.registerer.Register(g); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			p.failed[key] = err
			return nil
		}
		existing, ok := already.ExistingCollector.(prometheus.Gauge)
		if !ok {
			p.failed[key] = err
			return nil
		}
		g = existing
	}
	p.gauges[key] = g
	return g
}
