package ws

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dsonbill/BDDMP/internal/relay"
	"github.com/dsonbill/BDDMP/internal/telemetry"
	"github.com/dsonbill/BDDMP/logging"
)

func startRelay(t *testing.T) (*relay.Hub, string) {
	t.Helper()
	hub := relay.NewHub(relay.HubConfig{}, relay.HubDeps{})
	handler := relay.NewHandler(hub, relay.HandlerConfig{Logger: telemetry.LoggerFunc(func(string, ...any) {})})
	srv := httptest.NewServer(relay.NewRouter(handler, nil))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url, peer string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Dial(ctx, Config{URL: url, PeerID: peer})
	if err != nil {
		t.Fatalf("Dial %s: %v", peer, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func waitForPeers(t *testing.T, hub *relay.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Stats().Peers != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d peers, have %d", n, hub.Stats().Peers)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClientsExchangeFramesThroughRelay(t *testing.T) {
	hub, url := startRelay(t)
	alpha := dial(t, url, "alpha")
	bravo := dial(t, url, "bravo")
	waitForPeers(t, hub, 2)

	received := make(chan []byte, 1)
	bravo.RegisterHandler("BDDMP:DamageHook", func(payload []byte) { received <- payload })
	bravo.RegisterHandler("BDDMP:ExplosionFXHook", func([]byte) {
		t.Errorf("unexpected delivery on another channel")
	})

	if err := alpha.Send("BDDMP:DamageHook", []byte{7, 8, 9}, true, true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case payload := <-received:
		if !bytes.Equal(payload, []byte{7, 8, 9}) {
			t.Fatalf("unexpected payload %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("frame was not delivered")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	_, url := startRelay(t)
	client := dial(t, url, "alpha")
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-client.Done():
	default:
		t.Fatalf("expected Done to be closed")
	}
	if err := client.Send("BDDMP:DamageHook", nil, true, true); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if client.Err() != nil {
		t.Fatalf("expected clean close, got %v", client.Err())
	}
}

func TestClientObservesRelayShutdown(t *testing.T) {
	hub, url := startRelay(t)
	client := dial(t, url, "alpha")
	waitForPeers(t, hub, 1)

	hub.Close()
	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("client did not notice relay shutdown")
	}
}

func TestDialRequiresPeerID(t *testing.T) {
	if _, err := Dial(context.Background(), Config{URL: "ws://127.0.0.1:1/ws"}); err == nil {
		t.Fatalf("expected error without peer id")
	}
}

func TestSendRequiresChannel(t *testing.T) {
	_, url := startRelay(t)
	client := dial(t, url, "alpha")
	if err := client.Send("", []byte{1}, false, false); err == nil {
		t.Fatalf("expected error for empty channel")
	}
}

func TestFullQueueDropsOnlyDroppableFrames(t *testing.T) {
	local := &logging.Metrics{}
	c := &Client{
		cfg:  Config{PeerID: "alpha", WriteWait: 20 * time.Millisecond, Metrics: telemetry.WrapMetrics(local)},
		send: make(chan []byte, 1),
		done: make(chan struct{}),
	}
	if err := c.Send("BDDMP:BulletHitFXHook", []byte{1}, false, false); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if err := c.Send("BDDMP:BulletHitFXHook", []byte{2}, false, false); err != nil {
		t.Fatalf("droppable Send should not fail: %v", err)
	}
	if c.Dropped() != 1 {
		t.Fatalf("expected one dropped frame, got %d", c.Dropped())
	}
	if got := local.Snapshot()[MetricFramesDropped]; got != 1 {
		t.Fatalf("expected drop metric 1, got %d", got)
	}
	if err := c.Send("BDDMP:DamageHook", []byte{3}, true, true); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("expected ErrBackpressure, got %v", err)
	}
	if c.Dropped() != 1 {
		t.Fatalf("guaranteed frames must not be counted as dropped")
	}
}
