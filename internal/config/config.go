// Package config loads process configuration for the relay and probe
// binaries. Values are layered: defaults, then an optional YAML file, then
// BDDMP_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dsonbill/BDDMP/internal/events"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "BDDMP_"

// PathEnv names the variable that points at an optional YAML file.
const PathEnv = "BDDMP_CONFIG"

type Config struct {
	Sync    SyncConfig    `yaml:"sync" envPrefix:"SYNC_"`
	Relay   RelayConfig   `yaml:"relay" envPrefix:"RELAY_"`
	Probe   ProbeConfig   `yaml:"probe" envPrefix:"PROBE_"`
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`
}

// SyncConfig tunes the synchronizer. Times are simulation seconds.
type SyncConfig struct {
	ValidityWindow  float64 `yaml:"validityWindow" env:"VALIDITY_WINDOW" jsonschema:"description=Seconds after its timestamp during which an event may be applied"`
	Retention       float64 `yaml:"retention" env:"RETENTION" jsonschema:"description=Seconds an unapplied event is retained before eviction"`
	ImpactHz        int     `yaml:"impactHz" env:"IMPACT_HZ"`
	ExplosionHz     int     `yaml:"explosionHz" env:"EXPLOSION_HZ"`
	InboundCapacity int     `yaml:"inboundCapacity" env:"INBOUND_CAPACITY"`
}

type RelayConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	PeerRate        float64       `yaml:"peerRate" env:"PEER_RATE" jsonschema:"description=Sustained frames per second accepted from one peer"`
	PeerBurst       int           `yaml:"peerBurst" env:"PEER_BURST"`
	WriteWait       time.Duration `yaml:"writeWait" env:"WRITE_WAIT"`
	PongWait        time.Duration `yaml:"pongWait" env:"PONG_WAIT"`
	MaxMessageBytes int64         `yaml:"maxMessageBytes" env:"MAX_MESSAGE_BYTES"`
	SendBuffer      int           `yaml:"sendBuffer" env:"SEND_BUFFER"`
}

// ProbeConfig drives the headless probe peer.
type ProbeConfig struct {
	RelayURL    string         `yaml:"relayURL" env:"RELAY_URL"`
	PeerID      string         `yaml:"peerID" env:"PEER_ID"`
	TickRate    int            `yaml:"tickRate" env:"TICK_RATE"`
	HitInterval time.Duration  `yaml:"hitInterval" env:"HIT_INTERVAL"`
	MetricsAddr string         `yaml:"metricsAddr" env:"METRICS_ADDR"`
	Vessels     []VesselConfig `yaml:"vessels" env:"-"`
}

// VesselConfig seeds one entity in the probe's registry.
type VesselConfig struct {
	ID     string      `yaml:"id"`
	Parts  uint32      `yaml:"parts"`
	Origin events.Vec3 `yaml:"origin"`
	Active bool        `yaml:"active"`
}

type LoggingConfig struct {
	Sinks      []string      `yaml:"sinks" env:"SINKS" envSeparator:","`
	Level      string        `yaml:"level" env:"LEVEL"`
	JSONPath   string        `yaml:"jsonPath" env:"JSON_PATH"`
	BufferSize int           `yaml:"bufferSize" env:"BUFFER_SIZE"`
	FlushEvery time.Duration `yaml:"flushEvery" env:"FLUSH_EVERY"`
}

func DefaultConfig() Config {
	return Config{
		Sync: SyncConfig{
			ValidityWindow:  3,
			Retention:       180,
			ImpactHz:        40,
			ExplosionHz:     40,
			InboundCapacity: 4096,
		},
		Relay: RelayConfig{
			Addr:            ":8080",
			PeerRate:        400,
			PeerBurst:       200,
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			MaxMessageBytes: 64 << 10,
			SendBuffer:      256,
		},
		Probe: ProbeConfig{
			RelayURL:    "ws://127.0.0.1:8080/ws",
			PeerID:      "probe",
			TickRate:    50,
			HitInterval: 250 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Sinks:      []string{"console"},
			Level:      "info",
			BufferSize: 512,
			FlushEvery: 2 * time.Second,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the process environment.
func Load(path string) (Config, error) {
	return load(path, nil)
}

func load(path string, environ map[string]string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate rejects settings the synchronizer cannot run with.
func (c Config) Validate() error {
	var errs []error
	if !finitePositive(c.Sync.ValidityWindow) {
		errs = append(errs, errors.New("sync.validityWindow must be positive"))
	}
	if !finitePositive(c.Sync.Retention) {
		errs = append(errs, errors.New("sync.retention must be positive"))
	} else if c.Sync.Retention < c.Sync.ValidityWindow {
		errs = append(errs, errors.New("sync.retention must not be shorter than sync.validityWindow"))
	}
	if c.Sync.ImpactHz <= 0 || c.Sync.ExplosionHz <= 0 {
		errs = append(errs, errors.New("sync rate limits must be positive"))
	}
	if c.Sync.InboundCapacity <= 0 {
		errs = append(errs, errors.New("sync.inboundCapacity must be positive"))
	}
	if !finitePositive(c.Relay.PeerRate) || c.Relay.PeerBurst <= 0 {
		errs = append(errs, errors.New("relay peer rate and burst must be positive"))
	}
	if c.Probe.TickRate <= 0 {
		errs = append(errs, errors.New("probe.tickRate must be positive"))
	}
	for i, v := range c.Probe.Vessels {
		if _, err := uuid.Parse(v.ID); err != nil {
			errs = append(errs, fmt.Errorf("probe.vessels[%d].id: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
