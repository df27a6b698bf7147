package accel

import (
	"fmt"
	"strconv"
)

// Stream command opcodes understood by the sensor's GATT service protocol.
const (
	opSubscribe   byte = 1
	opUnsubscribe byte = 2
)

var sampleRates = []int{13, 26, 52, 104, 208, 416, 833, 1666}

// SampleRates returns the accelerometer rates (Hz) the sensor accepts.
func SampleRates() []int {
	return append([]int(nil), sampleRates...)
}

// ValidSampleRate reports whether rate is one the sensor accepts.
func ValidSampleRate(rate int) bool {
	for _, r := range sampleRates {
		if r == rate {
			return true
		}
	}
	return false
}

// ResourcePath returns the sensor resource streamed at the given rate.
func ResourcePath(rate int) string {
	return "/Meas/Acc/" + strconv.Itoa(rate)
}

// SubscribeCommand builds the payload that starts the accelerometer stream.
// Notifications for it carry ref as their second byte.
func SubscribeCommand(ref byte, rate int) ([]byte, error) {
	if !ValidSampleRate(rate) {
		return nil, fmt.Errorf("unsupported sample rate %d Hz (supported: %v)", rate, sampleRates)
	}
	path := ResourcePath(rate)
	cmd := make([]byte, 0, 2+len(path))
	cmd = append(cmd, opSubscribe, ref)
	return append(cmd, path...), nil
}

// UnsubscribeCommand builds the payload that stops the stream identified by ref.
func UnsubscribeCommand(ref byte) []byte {
	return []byte{opUnsubscribe, ref}
}
