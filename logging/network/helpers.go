package network

import (
	"context"

	"github.com/dsonbill/BDDMP/logging"
)

const (
	// EventPeerJoined is emitted when a peer session is established.
	EventPeerJoined logging.EventType = "network.peer_joined"
	// EventPeerLeft is emitted when a peer session ends.
	EventPeerLeft logging.EventType = "network.peer_left"
	// EventFrameThrottled is emitted when a relay drops a droppable frame.
	EventFrameThrottled logging.EventType = "network.frame_throttled"
	// EventFrameMalformed is emitted when a frame envelope cannot be parsed.
	EventFrameMalformed logging.EventType = "network.frame_malformed"
)

// SessionPayload captures session lifecycle details.
type SessionPayload struct {
	Remote string `json:"remote,omitempty"`
	Reason string `json:"reason,omitempty"`
	Peers  int    `json:"peers"`
}

// FramePayload identifies a frame by channel.
type FramePayload struct {
	Channel string `json:"channel,omitempty"`
	Bytes   int    `json:"bytes"`
	Error   string `json:"error,omitempty"`
}

func peerRef(id string) logging.EntityRef {
	return logging.EntityRef{ID: id, Kind: logging.EntityKindPeer}
}

// PeerJoined publishes an info event for a new peer session.
func PeerJoined(ctx context.Context, pub logging.Publisher, peer string, payload SessionPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPeerJoined,
		Actor:    peerRef(peer),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// PeerLeft publishes an info event when a peer session ends.
func PeerLeft(ctx context.Context, pub logging.Publisher, peer string, payload SessionPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPeerLeft,
		Actor:    peerRef(peer),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// FrameThrottled publishes a debug event for a rate limited frame.
func FrameThrottled(ctx context.Context, pub logging.Publisher, peer string, payload FramePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFrameThrottled,
		Actor:    peerRef(peer),
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// FrameMalformed publishes a warning for an unparseable frame.
func FrameMalformed(ctx context.Context, pub logging.Publisher, peer string, payload FramePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFrameMalformed,
		Actor:    peerRef(peer),
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
