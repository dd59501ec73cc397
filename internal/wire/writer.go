// Package wire implements the ordered-field payload encoding shared by every
// peer. Each field is written as a single MessagePack value in declaration
// order; there are no field names or envelopes at this layer.
package wire

import (
	"bytes"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dsonbill/BDDMP/internal/events"
)

// Writer appends typed fields to a payload. The first failure is sticky and
// reported by Bytes.
type Writer struct {
	buf bytes.Buffer
	enc *msgpack.Encoder
	err error
}

// NewWriter returns an empty payload writer.
func NewWriter() *Writer {
	w := &Writer{}
	w.enc = msgpack.NewEncoder(&w.buf)
	return w
}

func (w *Writer) do(fn func() error) *Writer {
	if w.err != nil {
		return w
	}
	w.err = fn()
	return w
}

// Float64 appends a double.
func (w *Writer) Float64(v float64) *Writer {
	return w.do(func() error { return w.enc.EncodeFloat64(v) })
}

// Float32 appends a single.
func (w *Writer) Float32(v float32) *Writer {
	return w.do(func() error { return w.enc.EncodeFloat32(v) })
}

// Uint32 appends a fixed width unsigned integer.
func (w *Writer) Uint32(v uint32) *Writer {
	return w.do(func() error { return w.enc.EncodeUint32(v) })
}

// String appends a UTF-8 string.
func (w *Writer) String(v string) *Writer {
	return w.do(func() error { return w.enc.EncodeString(v) })
}

// Bool appends a boolean.
func (w *Writer) Bool(v bool) *Writer {
	return w.do(func() error { return w.enc.EncodeBool(v) })
}

// UUID appends an identifier in its canonical string form.
func (w *Writer) UUID(id uuid.UUID) *Writer {
	return w.String(id.String())
}

// Vec3 appends three singles.
func (w *Writer) Vec3(v events.Vec3) *Writer {
	return w.Float32(v.X).Float32(v.Y).Float32(v.Z)
}

// Bytes returns the encoded payload.
func (w *Writer) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	out := make([]byte, w.buf.Len())
	copy(out, w.buf.Bytes())
	return out, nil
}
