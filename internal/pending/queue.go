// Package pending holds received events until the local clock reaches them.
package pending

import (
	"github.com/dsonbill/BDDMP/internal/events"
)

// DefaultRetention is the age in simulation seconds after which an unapplied
// event is evicted regardless of eligibility.
const DefaultRetention = 3 * 60.0

// Entry is a queued event tagged with its arrival sequence.
type Entry struct {
	Seq   uint64
	Event events.Event

	consumed bool
}

// SweepResult reports what a sweep removed.
type SweepResult struct {
	Consumed int
	Expired  int
	// ExpiredEntries lists evicted entries that were never applied.
	ExpiredEntries []Entry
}

// Removed returns the total number of entries dropped.
func (r SweepResult) Removed() int {
	return r.Consumed + r.Expired
}

// Queue is the arrival-ordered pending list for a single category. It is not
// safe for concurrent use; the owner drives it from the tick.
type Queue struct {
	category events.Category
	entries  []Entry
}

// NewQueue constructs an empty queue for category.
func NewQueue(category events.Category) *Queue {
	return &Queue{category: category}
}

// Category returns the category the queue accepts.
func (q *Queue) Category() events.Category {
	return q.category
}

// Push appends an entry. Entries of another category are rejected.
func (q *Queue) Push(entry Entry) bool {
	if entry.Event.Category() != q.category {
		return false
	}
	entry.consumed = false
	q.entries = append(q.entries, entry)
	return true
}

// Len reports the number of queued entries, consumed ones included.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of the queued entries in arrival order.
func (q *Queue) Entries() []Entry {
	if len(q.entries) == 0 {
		return nil
	}
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Scan visits unconsumed entries in arrival order. When visit returns true
// the entry is marked consumed and skipped by later scans; it stays queued
// until the next Sweep.
func (q *Queue) Scan(visit func(Entry) bool) int {
	consumed := 0
	for i := range q.entries {
		entry := &q.entries[i]
		if entry.consumed {
			continue
		}
		if visit(*entry) {
			entry.consumed = true
			consumed++
		}
	}
	return consumed
}

// Sweep drops consumed entries and entries older than retention at now. It
// never invokes the gate or an applier and is idempotent.
func (q *Queue) Sweep(now, retention float64) SweepResult {
	var result SweepResult
	kept := q.entries[:0]
	for _, entry := range q.entries {
		switch {
		case entry.consumed:
			result.Consumed++
		case entry.Event.Age(now) > retention:
			result.Expired++
			result.ExpiredEntries = append(result.ExpiredEntries, entry)
		default:
			kept = append(kept, entry)
		}
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = Entry{}
	}
	q.entries = kept
	return result
}
