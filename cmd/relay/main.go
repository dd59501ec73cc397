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
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv(config.PathEnv), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunRelay(ctx, cfg, app.Options{}); err != nil {
		log.Fatalf("%v", err)
	}
}
