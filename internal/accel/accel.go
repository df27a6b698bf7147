// Package accel decodes accelerometer notification frames streamed by a
// Movesense sensor and builds the commands that start and stop that stream.
//
// A frame is a 6-byte preamble followed by records of three little-endian
// IEEE-754 float32 values (x, y, z). The sensor batches exactly two records
// per notification; anything else is treated as unrecognized and dropped.
package accel

import (
	"encoding/binary"
	"math"
)

// GATT identifiers of the sensor's accelerometer profile.
const (
	ServiceUUID    = "34802252-7185-4d5d-b431-630e7050e8f0"
	NotifyCharUUID = "34800002-7185-4d5d-b431-630e7050e8f0"
	WriteCharUUID  = "34800001-7185-4d5d-b431-630e7050e8f0"
)

// Stream defaults matching the sensor firmware.
const (
	DefaultStreamRef  = 99
	DefaultSampleRate = 26
)

// RecordsPerFrame is the fixed number of samples the sensor batches per notification.
const RecordsPerFrame = 2

const (
	headerSize         = 2
	preambleSize       = 6
	recordSize         = 3 * 4
	frameSize          = preambleSize + RecordsPerFrame*recordSize
	displayPrecisionE4 = 1e4
)

// Sample is a single accelerometer reading in m/s^2.
type Sample struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Frame is a decoded notification: preamble fields plus the samples it carries.
type Frame struct {
	Type      byte     `json:"type"`
	Ref       byte     `json:"ref"`
	Timestamp uint32   `json:"timestamp_ms"`
	Samples   []Sample `json:"samples"`
}

// Decode turns a raw notification into samples in record order.
// Short, truncated or oddly sized frames yield no samples.
func Decode(frame []byte) []Sample {
	f, ok := DecodeFrame(frame)
	if !ok {
		return nil
	}
	return f.Samples
}

// DecodeFrame decodes the preamble and both records of a notification.
// It reports false for anything that is not exactly one two-record frame.
func DecodeFrame(frame []byte) (Frame, bool) {
	if len(frame) <= headerSize {
		return Frame{}, false
	}
	// Only a whole number of records equal to RecordsPerFrame is accepted,
	// so a frame must be exactly frameSize bytes long.
	if len(frame) != frameSize {
		return Frame{}, false
	}

	f := Frame{
		Type:      frame[0],
		Ref:       frame[1],
		Timestamp: binary.LittleEndian.Uint32(frame[headerSize:preambleSize]),
		Samples:   make([]Sample, 0, RecordsPerFrame),
	}
	for i := 0; i < RecordsPerFrame; i++ {
		off := preambleSize + i*recordSize
		f.Samples = append(f.Samples, Sample{
			X: readFloat(frame[off:]),
			Y: readFloat(frame[off+4:]),
			Z: readFloat(frame[off+8:]),
		})
	}
	return f, true
}

// Latest returns the sample a consumer keeps for display: the last one.
func Latest(samples []Sample) (Sample, bool) {
	if len(samples) == 0 {
		return Sample{}, false
	}
	return samples[len(samples)-1], true
}

func readFloat(b []byte) float32 {
	return round4(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}

// round4 rounds to four decimal places, the precision samples are displayed with.
func round4(v float32) float32 {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return v
	}
	return float32(math.Round(f*displayPrecisionE4) / displayPrecisionE4)
}
