package memory

import (
	"errors"
	"testing"
)

func TestBusFansOutToOtherPeers(t *testing.T) {
	bus := NewBus()
	a := bus.Join("a")
	b := bus.Join("b")
	c := bus.Join("c")

	var gotA, gotB, gotC [][]byte
	a.RegisterHandler("ch", func(p []byte) { gotA = append(gotA, p) })
	b.RegisterHandler("ch", func(p []byte) { gotB = append(gotB, p) })
	c.RegisterHandler("other", func(p []byte) { gotC = append(gotC, p) })

	if err := a.Send("ch", []byte("hello"), true, true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(gotA) != 0 {
		t.Fatalf("sender must not receive its own frame")
	}
	if len(gotB) != 1 || string(gotB[0]) != "hello" {
		t.Fatalf("unexpected delivery to b: %q", gotB)
	}
	if len(gotC) != 0 {
		t.Fatalf("c has no handler on ch")
	}
	frames := bus.Frames()
	if len(frames) != 1 || frames[0].Sender != "a" || !frames[0].Guaranteed {
		t.Fatalf("unexpected frames %+v", frames)
	}
}

func TestLossyBusDropsUnguaranteedFrames(t *testing.T) {
	bus := NewBus()
	bus.SetLossy(true)
	a := bus.Join("a")
	b := bus.Join("b")
	received := 0
	b.RegisterHandler("fx", func([]byte) { received++ })

	_ = a.Send("fx", []byte{1}, true, false)
	_ = a.Send("fx", []byte{2}, true, true)
	if received != 1 {
		t.Fatalf("expected only the guaranteed frame, got %d", received)
	}
}

func TestClosedEndpoint(t *testing.T) {
	bus := NewBus()
	a := bus.Join("a")
	b := bus.Join("b")
	received := 0
	b.RegisterHandler("ch", func([]byte) { received++ })

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = a.Send("ch", nil, true, true)
	if received != 0 {
		t.Fatalf("closed endpoint must not receive")
	}
	if err := b.Send("ch", nil, true, true); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if peers := bus.Peers(); len(peers) != 1 || peers[0] != "a" {
		t.Fatalf("unexpected peers %v", peers)
	}
}

func TestRejoinReplacesEndpoint(t *testing.T) {
	bus := NewBus()
	old := bus.Join("a")
	bus.Join("a")
	if err := old.Send("ch", nil, true, true); !errors.Is(err, ErrClosed) {
		t.Fatalf("replaced endpoint should be closed, got %v", err)
	}
	if len(bus.Peers()) != 1 {
		t.Fatalf("expected a single peer")
	}
}
