package headless

import (
	"time"

	"github.com/dsonbill/BDDMP/logging"
)

// WallClock reports simulation time as seconds since the Unix epoch so that
// probes on synchronized machines share a timeline.
type WallClock struct {
	Clock logging.Clock
}

func (c WallClock) Now() float64 {
	clock := c.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}
	return float64(clock.Now().UnixNano()) / float64(time.Second)
}
