// Package relay fans BDDMP frames out between connected peers. It stands in
// for the multiplayer server that carries mod messages in production.
package relay

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/dsonbill/BDDMP/internal/config"
	"github.com/dsonbill/BDDMP/internal/telemetry"
	"github.com/dsonbill/BDDMP/internal/transport"
	"github.com/dsonbill/BDDMP/logging"
	"github.com/dsonbill/BDDMP/logging/network"
)

const (
	metricPeers     = "bddmp_relay_peers"
	metricRouted    = "bddmp_relay_frames_routed_total"
	metricThrottled = "bddmp_relay_frames_throttled_total"
	metricMalformed = "bddmp_relay_frames_malformed_total"
	metricDropped   = "bddmp_relay_frames_dropped_total"
	metricEvicted   = "bddmp_relay_peers_evicted_total"
)

// HubConfig bounds per-peer traffic.
type HubConfig struct {
	PeerRate        float64
	PeerBurst       int
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
	SendBuffer      int
}

// DefaultHubConfig mirrors the relay defaults in internal/config.
func DefaultHubConfig() HubConfig {
	return HubConfigFromSettings(config.DefaultConfig().Relay)
}

// HubConfigFromSettings converts loaded relay settings.
func HubConfigFromSettings(settings config.RelayConfig) HubConfig {
	return HubConfig{
		PeerRate:        settings.PeerRate,
		PeerBurst:       settings.PeerBurst,
		WriteWait:       settings.WriteWait,
		PongWait:        settings.PongWait,
		MaxMessageBytes: settings.MaxMessageBytes,
		SendBuffer:      settings.SendBuffer,
	}
}

func (c HubConfig) withDefaults() HubConfig {
	def := config.DefaultConfig().Relay
	if c.PeerRate <= 0 {
		c.PeerRate = def.PeerRate
	}
	if c.PeerBurst <= 0 {
		c.PeerBurst = def.PeerBurst
	}
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = def.MaxMessageBytes
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = def.SendBuffer
	}
	return c
}

// HubDeps injects reporting.
type HubDeps struct {
	Logger    telemetry.Logger
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	Clock     logging.Clock
}

// Hub tracks connected peers and routes frames between them.
type Hub struct {
	cfg       HubConfig
	logger    telemetry.Logger
	publisher logging.Publisher
	metrics   telemetry.Metrics
	clock     logging.Clock

	mu    sync.Mutex
	peers map[string]*peer

	routed    atomic.Uint64
	throttled atomic.Uint64
	malformed atomic.Uint64
	dropped   atomic.Uint64
	evicted   atomic.Uint64
}

type peer struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	joined  time.Time

	received atomic.Uint64
	sent     atomic.Uint64
}

func NewHub(cfg HubConfig, deps HubDeps) *Hub {
	cfg = cfg.withDefaults()
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	clock := deps.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}
	return &Hub{
		cfg:       cfg,
		logger:    deps.Logger,
		publisher: publisher,
		metrics:   deps.Metrics,
		clock:     clock,
		peers:     make(map[string]*peer),
	}
}

// Config returns the effective hub configuration.
func (h *Hub) Config() HubConfig {
	return h.cfg
}

func (h *Hub) newPeer(id string, conn *websocket.Conn) *peer {
	return &peer{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(h.cfg.PeerRate), h.cfg.PeerBurst),
		joined:  h.clock.Now(),
	}
}

// register adds p, closing any previous session under the same id.
func (h *Hub) register(ctx context.Context, p *peer, remote string) {
	h.mu.Lock()
	previous := h.peers[p.id]
	h.peers[p.id] = p
	count := len(h.peers)
	h.mu.Unlock()

	if previous != nil {
		previous.close(websocket.ClosePolicyViolation, "replaced by new session", h.cfg.WriteWait)
		network.PeerLeft(ctx, h.publisher, previous.id, network.SessionPayload{Reason: "replaced", Peers: count})
	}
	h.storeMetric(metricPeers, uint64(count))
	network.PeerJoined(ctx, h.publisher, p.id, network.SessionPayload{Remote: remote, Peers: count})
}

// unregister removes p if it is still the current session for its id.
func (h *Hub) unregister(ctx context.Context, p *peer, reason string) {
	h.mu.Lock()
	current, ok := h.peers[p.id]
	removed := ok && current == p
	if removed {
		delete(h.peers, p.id)
	}
	count := len(h.peers)
	h.mu.Unlock()

	p.close(websocket.CloseNormalClosure, "", h.cfg.WriteWait)
	if !removed {
		return
	}
	h.storeMetric(metricPeers, uint64(count))
	network.PeerLeft(ctx, h.publisher, p.id, network.SessionPayload{Reason: reason, Peers: count})
}

// route stamps a frame from sender and queues it for every other peer.
func (h *Hub) route(ctx context.Context, sender *peer, data []byte) {
	sender.received.Add(1)
	frame, err := transport.DecodeFrame(data)
	if err != nil {
		h.malformed.Add(1)
		h.addMetric(metricMalformed, 1)
		network.FrameMalformed(ctx, h.publisher, sender.id, network.FramePayload{Bytes: len(data), Error: err.Error()})
		return
	}
	if !frame.Guaranteed && !sender.limiter.Allow() {
		h.throttled.Add(1)
		h.addMetric(metricThrottled, 1)
		network.FrameThrottled(ctx, h.publisher, sender.id, network.FramePayload{Channel: frame.Channel, Bytes: len(data)})
		return
	}

	frame.Sender = sender.id
	out, err := transport.EncodeFrame(frame)
	if err != nil {
		h.logf("[relay] failed to re-encode frame from %s: %v", sender.id, err)
		return
	}

	h.mu.Lock()
	targets := make([]*peer, 0, len(h.peers))
	for id, p := range h.peers {
		if id == sender.id {
			continue
		}
		targets = append(targets, p)
	}
	h.mu.Unlock()

	for _, target := range targets {
		if target.enqueue(out) {
			continue
		}
		if !frame.Guaranteed {
			h.dropped.Add(1)
			h.addMetric(metricDropped, 1)
			continue
		}
		// Guaranteed frames are never dropped for a connected peer.
		h.evicted.Add(1)
		h.addMetric(metricEvicted, 1)
		h.logf("[relay] evicting slow peer %s", target.id)
		h.unregister(ctx, target, "slow consumer")
	}
	h.routed.Add(1)
	h.addMetric(metricRouted, 1)
}

func (p *peer) enqueue(data []byte) bool {
	select {
	case <-p.done:
		return true
	default:
	}
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

func (p *peer) close(code int, reason string, wait time.Duration) {
	p.once.Do(func() {
		close(p.done)
		if p.conn == nil {
			return
		}
		message := websocket.FormatCloseMessage(code, reason)
		_ = p.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(wait))
		_ = p.conn.Close()
	})
}

// PeerSnapshot describes one connected peer.
type PeerSnapshot struct {
	ID       string `json:"id"`
	JoinedAt int64  `json:"joinedAt"`
	Received uint64 `json:"received"`
	Sent     uint64 `json:"sent"`
	Queued   int    `json:"queued"`
}

// Stats summarizes relay activity.
type Stats struct {
	Peers     int            `json:"peers"`
	Routed    uint64         `json:"routed"`
	Throttled uint64         `json:"throttled"`
	Malformed uint64         `json:"malformed"`
	Dropped   uint64         `json:"dropped"`
	Evicted   uint64         `json:"evicted"`
	Sessions  []PeerSnapshot `json:"sessions"`
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	sessions := make([]PeerSnapshot, 0, len(h.peers))
	for _, p := range h.peers {
		sessions = append(sessions, PeerSnapshot{
			ID:       p.id,
			JoinedAt: p.joined.UnixMilli(),
			Received: p.received.Load(),
			Sent:     p.sent.Load(),
			Queued:   len(p.send),
		})
	}
	h.mu.Unlock()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })

	return Stats{
		Peers:     len(sessions),
		Routed:    h.routed.Load(),
		Throttled: h.throttled.Load(),
		Malformed: h.malformed.Load(),
		Dropped:   h.dropped.Load(),
		Evicted:   h.evicted.Load(),
		Sessions:  sessions,
	}
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for id, p := range h.peers {
		peers = append(peers, p)
		delete(h.peers, id)
	}
	h.mu.Unlock()
	for _, p := range peers {
		p.close(websocket.CloseGoingAway, "relay shutting down", h.cfg.WriteWait)
	}
	h.storeMetric(metricPeers, 0)
}

func (h *Hub) addMetric(key string, delta uint64) {
	if h.metrics != nil {
		h.metrics.Add(key, delta)
	}
}

func (h *Hub) storeMetric(key string, value uint64) {
	if h.metrics != nil {
		h.metrics.Store(key, value)
	}
}

func (h *Hub) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}
