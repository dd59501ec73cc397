package bddmp

import (
	"context"
	"errors"

	"github.com/dsonbill/BDDMP/internal/wire"
	"github.com/dsonbill/BDDMP/logging/replication"
)

func (s *Synchronizer) handler(d descriptor) func([]byte) {
	return func(data []byte) {
		s.receive(d, data)
	}
}

// receive decodes a payload and stages it for the next tick. Malformed
// payloads and overflow drop the message.
func (s *Synchronizer) receive(d descriptor, data []byte) {
	ctx := context.Background()
	evt, err := d.decode(data)
	if err != nil {
		s.counters.decodeErrors.Add(1)
		s.metrics.Add(metricDecodeErrors, 1)
		payload := replication.DecodePayload{Channel: d.channel, Bytes: len(data), Error: err.Error()}
		var decodeErr *wire.DecodeError
		if errors.As(err, &decodeErr) {
			payload.Field = decodeErr.Field
		}
		replication.DecodeFailed(ctx, s.publisher, payload)
		return
	}
	if _, ok := s.inbound.Push(evt); !ok {
		s.counters.overflow.Add(1)
		replication.InboundOverflow(ctx, s.publisher, replication.OverflowPayload{
			Category: d.category.String(),
			Capacity: s.inbound.Capacity(),
		})
	}
}
