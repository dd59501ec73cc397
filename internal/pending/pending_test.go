package pending

import (
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/dsonbill/BDDMP/internal/events"
)

type recordingMetrics struct {
	mu     sync.Mutex
	added  map[string]uint64
	stored map[string]uint64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{added: make(map[string]uint64), stored: make(map[string]uint64)}
}

func (m *recordingMetrics) Add(key string, delta uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added[key] += delta
}

func (m *recordingMetrics) Store(key string, value uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[key] = value
}

func damageAt(ts float64) events.Event {
	return events.New(ts, events.Damage{EntityID: uuid.New(), PartID: 1})
}

func TestQueueRejectsOtherCategories(t *testing.T) {
	q := NewQueue(events.CategoryImpact)
	if q.Push(Entry{Seq: 1, Event: damageAt(0)}) {
		t.Fatalf("expected impact queue to reject a damage event")
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue to stay empty, got %d", q.Len())
	}
}

func TestQueueScanPreservesArrivalOrder(t *testing.T) {
	q := NewQueue(events.CategoryDamage)
	// Later timestamps arrive first; the scan must not reorder them.
	for i, ts := range []float64{30, 10, 20} {
		q.Push(Entry{Seq: uint64(i + 1), Event: damageAt(ts)})
	}
	var order []uint64
	q.Scan(func(e Entry) bool {
		order = append(order, e.Seq)
		return false
	})
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected arrival order [1 2 3], got %v", order)
	}
}

func TestQueueScanSkipsConsumedEntries(t *testing.T) {
	q := NewQueue(events.CategoryDamage)
	q.Push(Entry{Seq: 1, Event: damageAt(0)})
	q.Push(Entry{Seq: 2, Event: damageAt(0)})

	consumed := q.Scan(func(e Entry) bool { return e.Seq == 1 })
	if consumed != 1 {
		t.Fatalf("expected one consumed entry, got %d", consumed)
	}
	visits := 0
	q.Scan(func(e Entry) bool {
		visits++
		if e.Seq == 1 {
			t.Fatalf("consumed entry revisited")
		}
		return false
	})
	if visits != 1 {
		t.Fatalf("expected one remaining visit, got %d", visits)
	}
	if q.Len() != 2 {
		t.Fatalf("consumed entries stay queued until swept, got len %d", q.Len())
	}
}

func TestSweepRemovesConsumedAndExpired(t *testing.T) {
	q := NewQueue(events.CategoryDamage)
	q.Push(Entry{Seq: 1, Event: damageAt(0)})
	q.Push(Entry{Seq: 2, Event: damageAt(100)})
	q.Push(Entry{Seq: 3, Event: damageAt(200)})
	q.Scan(func(e Entry) bool { return e.Seq == 3 })

	result := q.Sweep(200, DefaultRetention)
	if result.Consumed != 1 || result.Expired != 1 {
		t.Fatalf("expected 1 consumed and 1 expired, got %+v", result)
	}
	if len(result.ExpiredEntries) != 1 || result.ExpiredEntries[0].Seq != 1 {
		t.Fatalf("expected entry 1 to expire, got %+v", result.ExpiredEntries)
	}
	remaining := q.Entries()
	if len(remaining) != 1 || remaining[0].Seq != 2 {
		t.Fatalf("expected only entry 2 to remain, got %+v", remaining)
	}
}

func TestSweepRetentionBoundaryIsExclusive(t *testing.T) {
	q := NewQueue(events.CategoryDamage)
	q.Push(Entry{Seq: 1, Event: damageAt(0)})
	if r := q.Sweep(DefaultRetention, DefaultRetention); r.Removed() != 0 {
		t.Fatalf("expected entry exactly at the retention ceiling to survive, got %+v", r)
	}
	if r := q.Sweep(DefaultRetention+0.5, DefaultRetention); r.Expired != 1 {
		t.Fatalf("expected entry past the retention ceiling to expire, got %+v", r)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	q := NewQueue(events.CategoryDamage)
	q.Push(Entry{Seq: 1, Event: damageAt(0)})
	q.Push(Entry{Seq: 2, Event: damageAt(500)})
	q.Scan(func(e Entry) bool { return e.Seq == 2 })

	first := q.Sweep(500, DefaultRetention)
	if first.Removed() != 2 {
		t.Fatalf("expected first sweep to remove 2 entries, got %+v", first)
	}
	before := q.Entries()
	second := q.Sweep(500, DefaultRetention)
	if second.Removed() != 0 {
		t.Fatalf("expected second sweep to be a no-op, got %+v", second)
	}
	if len(q.Entries()) != len(before) {
		t.Fatalf("second sweep changed the queue")
	}
}

func TestInboundWraparound(t *testing.T) {
	buffer := NewInbound(3, nil)
	for i := 0; i < 3; i++ {
		if _, ok := buffer.Push(damageAt(float64(i))); !ok {
			t.Fatalf("expected push %d to succeed", i)
		}
	}
	if _, ok := buffer.Push(damageAt(99)); ok {
		t.Fatalf("expected push to fail when buffer full")
	}
	drained := buffer.Drain()
	if len(drained) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(drained))
	}
	for i, entry := range drained {
		if entry.Seq != uint64(i+1) {
			t.Fatalf("expected seq %d at %d, got %d", i+1, i, entry.Seq)
		}
		if entry.Event.EntryTime() != float64(i) {
			t.Fatalf("expected drain order by arrival, got ts %v at %d", entry.Event.EntryTime(), i)
		}
	}
	for _, ts := range []float64{4, 5} {
		if _, ok := buffer.Push(damageAt(ts)); !ok {
			t.Fatalf("expected push to succeed after drain")
		}
	}
	wrapped := buffer.Drain()
	if len(wrapped) != 2 || wrapped[0].Seq != 4 || wrapped[1].Seq != 5 {
		t.Fatalf("unexpected entries after wraparound: %+v", wrapped)
	}
}

func TestInboundOverflowMetrics(t *testing.T) {
	metrics := newRecordingMetrics()
	buffer := NewInbound(1, metrics)
	buffer.Push(damageAt(1))
	buffer.Push(damageAt(2))

	if got := metrics.added[inboundOverflowMetricKey]; got != 1 {
		t.Fatalf("expected 1 overflow, got %d", got)
	}
	if got := metrics.stored[inboundOccupancyMetricKey]; got != 1 {
		t.Fatalf("expected occupancy 1, got %d", got)
	}
	buffer.Drain()
	if got := metrics.stored[inboundOccupancyMetricKey]; got != 0 {
		t.Fatalf("expected occupancy 0 after drain, got %d", got)
	}
}

func TestInboundConcurrentProducers(t *testing.T) {
	buffer := NewInbound(1024, nil)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 64; i++ {
				buffer.Push(damageAt(float64(i)))
			}
		}()
	}
	wg.Wait()
	drained := buffer.Drain()
	if len(drained) != 512 {
		t.Fatalf("expected 512 entries, got %d", len(drained))
	}
	for i := 1; i < len(drained); i++ {
		if drained[i].Seq <= drained[i-1].Seq {
			t.Fatalf("sequence not increasing at %d: %d <= %d", i, drained[i].Seq, drained[i-1].Seq)
		}
	}
}
