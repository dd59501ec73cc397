package wire

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dsonbill/BDDMP/internal/events"
)

// ErrMalformed is wrapped by every DecodeError.
var ErrMalformed = errors.New("wire: malformed payload")

// DecodeError reports the channel and field at which decoding failed.
type DecodeError struct {
	Channel string
	Field   string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s: %v", e.Channel, e.Err)
	}
	return fmt.Sprintf("decode %s field %s: %v", e.Channel, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrMalformed, e.Err}
}

// Reader consumes typed fields in order. The first failure is sticky; later
// reads return zero values.
type Reader struct {
	channel string
	src     *bytes.Reader
	dec     *msgpack.Decoder
	err     error
}

// NewReader wraps a payload received on channel.
func NewReader(channel string, data []byte) *Reader {
	src := bytes.NewReader(data)
	return &Reader{channel: channel, src: src, dec: msgpack.NewDecoder(src)}
}

func (r *Reader) fail(field string, err error) {
	if r.err == nil {
		r.err = &DecodeError{Channel: r.channel, Field: field, Err: err}
	}
}

// Float64 reads a double.
func (r *Reader) Float64(field string) float64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.DecodeFloat64()
	if err != nil {
		r.fail(field, err)
		return 0
	}
	return v
}

// Float32 reads a single.
func (r *Reader) Float32(field string) float32 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.DecodeFloat32()
	if err != nil {
		r.fail(field, err)
		return 0
	}
	return v
}

// Uint32 reads an unsigned integer and rejects values that overflow 32 bits.
func (r *Reader) Uint32(field string) uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.DecodeUint64()
	if err != nil {
		r.fail(field, err)
		return 0
	}
	if v > math.MaxUint32 {
		r.fail(field, fmt.Errorf("value %d overflows uint32", v))
		return 0
	}
	return uint32(v)
}

// String reads a string.
func (r *Reader) String(field string) string {
	if r.err != nil {
		return ""
	}
	v, err := r.dec.DecodeString()
	if err != nil {
		r.fail(field, err)
		return ""
	}
	return v
}

// Bool reads a boolean.
func (r *Reader) Bool(field string) bool {
	if r.err != nil {
		return false
	}
	v, err := r.dec.DecodeBool()
	if err != nil {
		r.fail(field, err)
		return false
	}
	return v
}

// UUID reads and parses a string identifier.
func (r *Reader) UUID(field string) uuid.UUID {
	raw := r.String(field)
	if r.err != nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		r.fail(field, err)
		return uuid.Nil
	}
	return id
}

// Vec3 reads three singles.
func (r *Reader) Vec3(field string) events.Vec3 {
	return events.Vec3{
		X: r.Float32(field + ".x"),
		Y: r.Float32(field + ".y"),
		Z: r.Float32(field + ".z"),
	}
}

// Finish reports the first read failure, or an error if unread bytes remain.
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if remaining := r.src.Len(); remaining > 0 {
		r.fail("", fmt.Errorf("%d trailing bytes", remaining))
	}
	return r.err
}
