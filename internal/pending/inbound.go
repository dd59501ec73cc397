package pending

import (
	"sync"

	"github.com/dsonbill/BDDMP/internal/events"
)

const (
	inboundOccupancyMetricKey = "bddmp_inbound_occupancy"
	inboundOverflowMetricKey  = "bddmp_inbound_overflow_total"
)

type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// Inbound stages decoded events in a fixed-size ring between transport
// goroutines and the tick. It is safe for concurrent producers and a single
// consumer.
type Inbound struct {
	mu      sync.Mutex
	data    []Entry
	head    int
	tail    int
	count   int
	nextSeq uint64
	metrics telemetryMetrics
}

// NewInbound constructs a ring buffer with the provided capacity.
func NewInbound(capacity int, metrics telemetryMetrics) *Inbound {
	if capacity < 1 {
		capacity = 1
	}
	return &Inbound{
		data:    make([]Entry, capacity),
		metrics: metrics,
	}
}

// Capacity reports the maximum number of staged events.
func (b *Inbound) Capacity() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Push stages an event and assigns its arrival sequence. It returns false
// when the buffer is full and the event was dropped.
func (b *Inbound) Push(evt events.Event) (uint64, bool) {
	if b == nil {
		return 0, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == len(b.data) {
		if b.metrics != nil {
			b.metrics.Add(inboundOverflowMetricKey, 1)
		}
		return 0, false
	}
	b.nextSeq++
	b.data[b.tail] = Entry{Seq: b.nextSeq, Event: evt}
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	b.storeOccupancyLocked()
	return b.nextSeq, true
}

// Drain returns every staged entry in arrival order and empties the buffer.
func (b *Inbound) Drain() []Entry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	entries := make([]Entry, b.count)
	for i := 0; i < b.count; i++ {
		idx := (b.head + i) % len(b.data)
		entries[i] = b.data[idx]
		b.data[idx] = Entry{}
	}
	b.head = 0
	b.tail = 0
	b.count = 0
	b.storeOccupancyLocked()
	return entries
}

// Len reports the number of staged events.
func (b *Inbound) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *Inbound) storeOccupancyLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(inboundOccupancyMetricKey, uint64(b.count))
}
