package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dsonbill/BDDMP"
	"github.com/dsonbill/BDDMP/internal/config"
	"github.com/dsonbill/BDDMP/internal/headless"
	"github.com/dsonbill/BDDMP/internal/loop"
	"github.com/dsonbill/BDDMP/internal/telemetry"
	"github.com/dsonbill/BDDMP/internal/transport/ws"
	"github.com/dsonbill/BDDMP/logging"
)

// ErrRelayLost is returned when the relay connection ends before the probe
// is told to stop.
var ErrRelayLost = errors.New("relay connection lost")

// Probe is a headless peer: a synchronizer driven by a fixed rate loop and
// fed by a synthetic hit generator.
type Probe struct {
	cfg       config.ProbeConfig
	logger    telemetry.Logger
	logs      *loggingStack
	client    *ws.Client
	world     *headless.World
	generator *headless.Generator
	sync      *bddmp.Synchronizer
	loop      *loop.Loop
	metrics   *logging.Metrics
	metricsH  http.Handler
}

// NewProbe connects to the relay and assembles the peer. Close releases it
// when Run is not used.
func NewProbe(ctx context.Context, cfg config.Config, opts Options) (*Probe, error) {
	logger := opts.logger()
	probeCfg := cfg.Probe

	logs, err := newLogging(cfg.Logging, map[string]any{"process": "probe", "peer": probeCfg.PeerID}, os.Stdout, fallbackLogger(logger))
	if err != nil {
		return nil, err
	}
	publisher := logging.WithPeer(logs.router, probeCfg.PeerID)

	world, err := headless.NewWorld(probeCfg.PeerID, probeCfg.Vessels)
	if err != nil {
		logs.close(ctx, logger)
		return nil, fmt.Errorf("probe world: %w", err)
	}

	registry := newRegistry()
	local := &logging.Metrics{}
	metrics := telemetry.Tee(telemetry.WrapMetrics(local), telemetry.NewPrometheus(registry))

	effects := headless.NewEffects(logger, metrics)
	synchronizer, err := bddmp.New(bddmp.ConfigFromSettings(cfg.Sync), bddmp.Deps{
		Clock:     headless.WallClock{},
		Registry:  world,
		Effects:   effects,
		Timeline:  &headless.Timeline{},
		Advisor:   headless.LogAdvisor(logger, metrics),
		Publisher: publisher,
		Metrics:   metrics,
	})
	if err != nil {
		logs.close(ctx, logger)
		return nil, err
	}

	client, err := ws.Dial(ctx, ws.Config{
		URL:        probeCfg.RelayURL,
		PeerID:     probeCfg.PeerID,
		WriteWait:  cfg.Relay.WriteWait,
		PongWait:   cfg.Relay.PongWait,
		SendBuffer: cfg.Relay.SendBuffer,
		ReadLimit:  cfg.Relay.MaxMessageBytes,
		Logger:     logger,
		Metrics:    metrics,
		Publisher:  publisher,
	})
	if err != nil {
		logs.close(ctx, logger)
		return nil, err
	}

	generator := headless.NewGenerator(world, seedFor(probeCfg.PeerID))
	if err := synchronizer.Attach(client, generator); err != nil {
		client.Close()
		logs.close(ctx, logger)
		return nil, err
	}

	p := &Probe{
		cfg:       probeCfg,
		logger:    logger,
		logs:      logs,
		client:    client,
		world:     world,
		generator: generator,
		sync:      synchronizer,
		metrics:   local,
	}
	p.loop = loop.New(synchronizer, headless.WallClock{}, loop.Config{TickRate: probeCfg.TickRate}, loop.Hooks{}, loop.Deps{
		Logger:  logger,
		Metrics: metrics,
	})
	p.metricsH = p.routes(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return p, nil
}

// RunProbe connects a probe and runs it until ctx is cancelled.
func RunProbe(ctx context.Context, cfg config.Config, opts Options) error {
	probe, err := NewProbe(ctx, cfg, opts)
	if err != nil {
		return err
	}
	return probe.Run(ctx, opts.Listener)
}

// Run drives the loop and the hit generator until ctx is cancelled or the
// relay goes away. metrics, when non-nil, overrides the configured metrics
// address.
func (p *Probe) Run(ctx context.Context, metrics net.Listener) error {
	defer p.Close()

	if metrics == nil && p.cfg.MetricsAddr != "" {
		var err error
		metrics, err = net.Listen("tcp", p.cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", p.cfg.MetricsAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.loop.Run(gctx) })
	g.Go(func() error { return p.generator.Run(gctx, p.cfg.HitInterval) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-p.client.Done():
			if err := p.client.Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrRelayLost, err)
			}
			return ErrRelayLost
		}
	})
	if metrics != nil {
		srv := &http.Server{Handler: p.metricsH}
		p.logger.Printf("probe %s serving metrics on %s", p.cfg.PeerID, metrics.Addr())
		g.Go(func() error { return serve(gctx, srv, metrics, nil) })
	}

	err := g.Wait()
	stats := p.sync.Stats()
	p.logger.Printf("probe %s stopped after %d ticks: sent=%d applied=%d evicted=%d", p.cfg.PeerID, stats.Ticks, stats.Sent, stats.Applied, stats.Evicted)
	if err != nil && ctx.Err() != nil && errors.Is(err, ErrRelayLost) {
		return nil
	}
	return err
}

// Close disconnects from the relay and flushes logs. It is safe to call
// more than once.
func (p *Probe) Close() {
	p.client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	p.logs.close(ctx, p.logger)
}

// Stats reports synchronizer counters.
func (p *Probe) Stats() bddmp.Stats {
	return p.sync.Stats()
}

// Generator exposes the hit generator, mainly for tests.
func (p *Probe) Generator() *headless.Generator {
	return p.generator
}

// World exposes the probe's registry.
func (p *Probe) World() *headless.World {
	return p.world
}

func (p *Probe) routes(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", metrics)
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		payload := struct {
			Peer          string            `json:"peer"`
			Sync          bddmp.Stats       `json:"sync"`
			FramesDropped uint64            `json:"framesDropped"`
			Telemetry     map[string]uint64 `json:"telemetry"`
		}{
			Peer:          p.cfg.PeerID,
			Sync:          p.sync.Stats(),
			FramesDropped: p.client.Dropped(),
			Telemetry:     p.metrics.Snapshot(),
		}
		data, err := json.Marshal(payload)
		if err != nil {
			http.Error(w, "failed to encode", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})
	return r
}

func seedFor(peer string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(peer))
	return h.Sum64()
}
