// Package app wires configuration, logging and metrics into the relay and
// probe processes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dsonbill/BDDMP/internal/config"
	"github.com/dsonbill/BDDMP/internal/relay"
	"github.com/dsonbill/BDDMP/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// Options carries process-level dependencies shared by both commands.
type Options struct {
	Logger telemetry.Logger
	// Listener overrides the configured listen address.
	Listener net.Listener
}

func (o Options) logger() telemetry.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return telemetry.WrapLogger(log.Default())
}

// RunRelay serves the relay until ctx is cancelled.
func RunRelay(ctx context.Context, cfg config.Config, opts Options) error {
	logger := opts.logger()

	logs, err := newLogging(cfg.Logging, map[string]any{"process": "relay"}, os.Stdout, fallbackLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logs.close(closeCtx, logger)
	}()

	registry := newRegistry()
	hub := relay.NewHub(relay.HubConfigFromSettings(cfg.Relay), relay.HubDeps{
		Logger:    logger,
		Publisher: logs.router,
		Metrics:   telemetry.NewPrometheus(registry),
	})
	handler := relay.NewHandler(hub, relay.HandlerConfig{Logger: logger})

	listener := opts.Listener
	if listener == nil {
		listener, err = net.Listen("tcp", cfg.Relay.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Relay.Addr, err)
		}
	}

	srv := &http.Server{Handler: relay.NewRouter(handler, registry)}
	logger.Printf("relay listening on %s", listener.Addr())
	return serve(ctx, srv, listener, func() { hub.Close() })
}

// serve runs srv on listener until ctx ends, then shuts it down. onShutdown
// runs before the server waits for active handlers, which lets long-lived
// websocket sessions be closed.
func serve(ctx context.Context, srv *http.Server, listener net.Listener, onShutdown func()) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if onShutdown != nil {
			onShutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}
