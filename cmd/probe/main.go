package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dsonbill/BDDMP/internal/app"
	"github.com/dsonbill/BDDMP/internal/config"
)

func main() {
	var (
		configPath string
		peerID     string
		relayURL   string
	)
	flag.StringVar(&configPath, "config", os.Getenv(config.PathEnv), "path to a YAML config file")
	flag.StringVar(&peerID, "peer", "", "peer id, overriding the config")
	flag.StringVar(&relayURL, "relay", "", "relay websocket url, overriding the config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if peerID != "" {
		cfg.Probe.PeerID = peerID
	}
	if relayURL != "" {
		cfg.Probe.RelayURL = relayURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunProbe(ctx, cfg, app.Options{}); err != nil {
		log.Fatalf("%v", err)
	}
}
