package accel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeCommand(t *testing.T) {
	tests := []struct {
		name     string
		ref      byte
		rate     int
		expected []byte
	}{
		{
			name:     "default stream",
			ref:      DefaultStreamRef,
			rate:     DefaultSampleRate,
			expected: []byte{1, 99, 47, 77, 101, 97, 115, 47, 65, 99, 99, 47, 50, 54},
		},
		{
			name:     "other ref and rate",
			ref:      5,
			rate:     104,
			expected: append([]byte{1, 5}, "/Meas/Acc/104"...),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := SubscribeCommand(tt.ref, tt.rate)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cmd)
		})
	}
}

func TestSubscribeCommand_RejectsUnsupportedRate(t *testing.T) {
	_, err := SubscribeCommand(DefaultStreamRef, 25)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported sample rate 25")
}

func TestUnsubscribeCommand(t *testing.T) {
	assert.Equal(t, []byte{2, 99}, UnsubscribeCommand(DefaultStreamRef))
}

func TestSampleRates(t *testing.T) {
	rates := SampleRates()
	rates[0] = -1
	assert.True(t, ValidSampleRate(13), "SampleRates MUST return a copy")
	assert.False(t, ValidSampleRate(0))
}
