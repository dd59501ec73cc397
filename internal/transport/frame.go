// Package transport defines the envelope peers exchange through a relay.
package transport

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrEmptyChannel rejects frames that name no channel.
var ErrEmptyChannel = errors.New("transport: frame has no channel")

// Frame wraps one mod message. Sender is stamped by the relay.
type Frame struct {
	Channel    string `msgpack:"channel"`
	Reliable   bool   `msgpack:"reliable"`
	Guaranteed bool   `msgpack:"guaranteed"`
	Sender     string `msgpack:"sender,omitempty"`
	Payload    []byte `msgpack:"payload"`
}

// EncodeFrame serializes a frame as MessagePack.
func EncodeFrame(frame Frame) ([]byte, error) {
	if frame.Channel == "" {
		return nil, ErrEmptyChannel
	}
	data, err := msgpack.Marshal(&frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// DecodeFrame parses a MessagePack frame.
func DecodeFrame(data []byte) (Frame, error) {
	var frame Frame
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if frame.Channel == "" {
		return Frame{}, ErrEmptyChannel
	}
	return frame, nil
}
