// Package memory is an in-process message bus connecting several peers
// without a network.
package memory

import (
	"errors"
	"slices"
	"sort"
	"sync"
)

// ErrClosed is returned when sending through a closed endpoint.
var ErrClosed = errors.New("memory: endpoint closed")

// Frame records one message sent on the bus.
type Frame struct {
	Sender     string
	Channel    string
	Payload    []byte
	Reliable   bool
	Guaranteed bool
}

// Bus fans every frame out to all endpoints except the sender. Delivery is
// synchronous on the sending goroutine.
type Bus struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	frames    []Frame
	// dropUnguaranteed discards frames not flagged guaranteed, standing in
	// for a lossy link.
	dropUnguaranteed bool
}

func NewBus() *Bus {
	return &Bus{endpoints: make(map[string]*Endpoint)}
}

// SetLossy toggles dropping of non-guaranteed frames.
func (b *Bus) SetLossy(lossy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropUnguaranteed = lossy
}

// Join registers a peer. Joining with an existing id replaces the previous
// endpoint, which is closed.
func (b *Bus) Join(peer string) *Endpoint {
	endpoint := &Endpoint{bus: b, peer: peer, handlers: make(map[string][]func([]byte))}
	b.mu.Lock()
	previous := b.endpoints[peer]
	b.endpoints[peer] = endpoint
	b.mu.Unlock()
	if previous != nil {
		previous.markClosed()
	}
	return endpoint
}

// Peers lists the joined peer ids in sorted order.
func (b *Bus) Peers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	peers := make([]string, 0, len(b.endpoints))
	for id := range b.endpoints {
		peers = append(peers, id)
	}
	sort.Strings(peers)
	return peers
}

// Frames returns a copy of every frame sent so far.
func (b *Bus) Frames() []Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Frame, len(b.frames))
	copy(out, b.frames)
	return out
}

func (b *Bus) leave(e *Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.endpoints[e.peer] == e {
		delete(b.endpoints, e.peer)
	}
}

func (b *Bus) publish(frame Frame) {
	b.mu.Lock()
	b.frames = append(b.frames, frame)
	if b.dropUnguaranteed && !frame.Guaranteed {
		b.mu.Unlock()
		return
	}
	targets := make([]*Endpoint, 0, len(b.endpoints))
	for id, endpoint := range b.endpoints {
		if id != frame.Sender {
			targets = append(targets, endpoint)
		}
	}
	b.mu.Unlock()

	for _, target := range targets {
		target.deliver(frame.Channel, frame.Payload)
	}
}

// Endpoint is one peer's view of the bus. It satisfies bddmp.Transport.
type Endpoint struct {
	bus  *Bus
	peer string

	mu       sync.RWMutex
	handlers map[string][]func([]byte)
	closed   bool
}

// Peer returns the endpoint id.
func (e *Endpoint) Peer() string {
	return e.peer
}

func (e *Endpoint) RegisterHandler(channel string, handler func([]byte)) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[channel] = append(e.handlers[channel], handler)
}

func (e *Endpoint) Send(channel string, payload []byte, reliable, guaranteed bool) error {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	e.bus.publish(Frame{
		Sender:     e.peer,
		Channel:    channel,
		Payload:    append([]byte(nil), payload...),
		Reliable:   reliable,
		Guaranteed: guaranteed,
	})
	return nil
}

// Close leaves the bus. Further sends fail with ErrClosed.
func (e *Endpoint) Close() error {
	e.markClosed()
	e.bus.leave(e)
	return nil
}

func (e *Endpoint) markClosed() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

func (e *Endpoint) deliver(channel string, payload []byte) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return
	}
	handlers := slices.Clone(e.handlers[channel])
	e.mu.RUnlock()
	for _, handler := range handlers {
		handler(append([]byte(nil), payload...))
	}
}
