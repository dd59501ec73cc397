// Package gate decides when a pending event may be applied relative to the
// local simulation clock.
package gate

import "fmt"

// Status classifies an event relative to the local clock.
type Status uint8

const (
	// Future events carry an authoritative time the local clock has not yet
	// reached.
	Future Status = iota
	// Eligible events are inside the validity window and may be applied.
	Eligible
	// Stale events aged past the validity window and must never be applied.
	Stale
)

func (s Status) String() string {
	switch s {
	case Future:
		return "future"
	case Eligible:
		return "eligible"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// DefaultWindow is the validity window in simulation seconds.
const DefaultWindow = 3.0

// Classify reports the status of an event with entryTime at local time now.
// An event is eligible iff 0 <= now-entryTime < window.
func Classify(now, entryTime, window float64) Status {
	age := now - entryTime
	switch {
	case age < 0:
		return Future
	case age < window:
		return Eligible
	default:
		return Stale
	}
}

// IsEligible reports whether Classify returns Eligible.
func IsEligible(now, entryTime, window float64) bool {
	return Classify(now, entryTime, window) == Eligible
}
