package apply

import (
	"time"

	"github.com/google/uuid"
)

const (
	// AdvisoryMessage is shown when damage to an entity is refused.
	AdvisoryMessage = "BDArmory-DMP: Cannot damage vessel from the past!"
	// AdvisoryDuration is how long the advisory stays on screen.
	AdvisoryDuration = 3 * time.Second
)

// Permission decides whether the local hit detector may generate damage for
// an entity. Damage is refused while the local copy of the entity is ahead of
// the peer timeline.
type Permission struct {
	Timeline Timeline
	Advisor  Advisor
}

// Allow reports whether id may be damaged, posting an advisory when not.
func (p Permission) Allow(id uuid.UUID) bool {
	if p.Timeline == nil || !p.Timeline.UpdatedInFuture(id) {
		return true
	}
	if p.Advisor != nil {
		p.Advisor.Advise(AdvisoryMessage, AdvisoryDuration)
	}
	return false
}
