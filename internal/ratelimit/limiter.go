// Package ratelimit throttles how often high frequency effect categories are
// broadcast, independent of how often the gameplay hook fires.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultHz is the maximum number of effect broadcasts per second.
const DefaultHz = 40

// Clock supplies wall clock readings.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Limiter clears at most one send per 1/Hz interval. It is safe for
// concurrent use.
type Limiter struct {
	mu       sync.Mutex
	hz       int
	interval time.Duration
	clock    Clock
	lastSync time.Time
	count    int
	synced   bool
}

// New constructs a limiter. A nil clock uses the system clock and hz <= 0
// falls back to DefaultHz.
func New(hz int, clock Clock) *Limiter {
	if hz <= 0 {
		hz = DefaultHz
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Limiter{
		hz:       hz,
		interval: time.Second / time.Duration(hz),
		clock:    clock,
	}
}

// Hz reports the configured frequency.
func (l *Limiter) Hz() int {
	return l.hz
}

// Allow reports whether a send is cleared now. A cleared send records the
// sync time immediately, before the caller encodes anything, and bumps the
// tick count once.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	elapsed := now.Sub(l.lastSync)
	if l.count >= l.hz && elapsed >= time.Second {
		l.count = 0
	}
	if l.synced && elapsed <= l.interval {
		return false
	}
	l.lastSync = now
	l.synced = true
	l.count++
	return true
}

// Count reports the sends cleared in the current saturation window.
func (l *Limiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// LastSync reports when the most recent send was cleared.
func (l *Limiter) LastSync() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSync, l.synced
}
