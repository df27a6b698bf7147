package testutils

import (
	"encoding/binary"
	"math"
)

// FrameBuilder builds accelerometer notification payloads for tests.
type FrameBuilder struct {
	typ       byte
	ref       byte
	timestamp uint32
	records   [][3]float32
	trailing  []byte
}

// NewFrameBuilder creates a builder for a data notification on stream reference 99.
func NewFrameBuilder() *FrameBuilder {
	return &FrameBuilder{typ: 2, ref: 99}
}

// WithRef sets the stream reference byte.
func (b *FrameBuilder) WithRef(ref byte) *FrameBuilder {
	b.ref = ref
	return b
}

// WithTimestamp sets the device timestamp in milliseconds.
func (b *FrameBuilder) WithTimestamp(ts uint32) *FrameBuilder {
	b.timestamp = ts
	return b
}

// WithRecord appends one (x, y, z) record.
func (b *FrameBuilder) WithRecord(x, y, z float32) *FrameBuilder {
	b.records = append(b.records, [3]float32{x, y, z})
	return b
}

// WithTrailing appends raw bytes after the records.
func (b *FrameBuilder) WithTrailing(data ...byte) *FrameBuilder {
	b.trailing = append(b.trailing, data...)
	return b
}

// Build returns the encoded payload.
func (b *FrameBuilder) Build() []byte {
	out := make([]byte, 6, 6+len(b.records)*12+len(b.trailing))
	out[0] = b.typ
	out[1] = b.ref
	binary.LittleEndian.PutUint32(out[2:6], b.timestamp)
	for _, r := range b.records {
		for _, v := range r {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}
	return append(out, b.trailing...)
}

// TwoRecordFrame is the canonical well-formed frame used across tests:
// (1.0, -2.5, 0.125) followed by (3.25, 0.0, -1.0).
func TwoRecordFrame() []byte {
	return NewFrameBuilder().
		WithTimestamp(1000).
		WithRecord(1.0, -2.5, 0.125).
		WithRecord(3.25, 0.0, -1.0).
		Build()
}
