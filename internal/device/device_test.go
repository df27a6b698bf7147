package device_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/accstream/internal/device"
	"github.com/srg/accstream/internal/testutils"
	"github.com/stretchr/testify/assert"
)

func TestNewDevice(t *testing.T) {
	// GOAL: Verify a Device captures identity and connectability from the advertisement
	//
	// TEST SCENARIO: Advertisement with name, address, services → NewDevice → fields copied, UUIDs normalized

	adv := testutils.CreateMockAdvertisement("Movesense 174630000192", "AA:BB:CC:DD:EE:FF", -61).
		WithServices("180F", "34802252-7185-4D5D-B431-630E7050E8F0").
		Build()

	dev := device.NewDevice(adv)

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", dev.ID, "ID MUST be the advertised address")
	assert.Equal(t, "Movesense 174630000192", dev.Name)
	assert.True(t, dev.Connectable)
	assert.Equal(t, -61, dev.RSSI)
	assert.Equal(t, []string{"180f", "3480225271854d5db431630e7050e8f0"}, dev.Services, "service UUIDs MUST be normalized")
}

func TestDevice_DisplayName(t *testing.T) {
	named := testutils.CreateMockAdvertisement("Movesense 1", "11:22", 0).BuildDevice()
	unnamed := testutils.CreateMockAdvertisement("", "11:22", 0).BuildDevice()

	assert.Equal(t, "Movesense 1", named.DisplayName())
	assert.Equal(t, "11:22", unnamed.DisplayName(), "unnamed device MUST fall back to its address")
}

func TestConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   error
		expected string
	}{
		{
			name:     "sentinel not connected",
			err:      device.ErrNotConnected,
			target:   device.ErrNotConnected,
			expected: "not_connected",
		},
		{
			name:     "wrapped already connected",
			err:      fmt.Errorf("%w: %v", device.ErrAlreadyConnected, errors.New("device already connected")),
			target:   device.ErrAlreadyConnected,
			expected: "already_connected: device already connected",
		},
		{
			name:     "message carried",
			err:      &device.ConnectionError{State: device.NotInitialized, Msg: "no adapter"},
			target:   device.ErrNotInitialized,
			expected: "not_initialized: no adapter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.target)
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}

	assert.NotErrorIs(t, device.ErrNotConnected, device.ErrAlreadyConnected, "different states MUST NOT match")
	assert.NotErrorIs(t, errors.New("other"), device.ErrNotConnected, "plain errors MUST NOT match a connection state")
}

func TestNotFoundError(t *testing.T) {
	assert.EqualError(t, &device.NotFoundError{Resource: "service"}, "service not found")
	assert.EqualError(t, &device.NotFoundError{Resource: "service", UUIDs: []string{"3480"}}, `service "3480" not found`)
	assert.EqualError(t,
		&device.NotFoundError{Resource: "characteristic", UUIDs: []string{"3480", "0002"}},
		`characteristic "0002" not found in service "3480"`)
}

func TestVendorName(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{name: "suunto", data: []byte{0x9F, 0x00, 0x01, 0x02}, expected: "Suunto"},
		{name: "polar", data: []byte{0x6B, 0x00}, expected: "Polar"},
		{name: "unknown company", data: []byte{0xFE, 0xFF, 0x00}, expected: ""},
		{name: "too short", data: []byte{0x9F}, expected: ""},
		{name: "absent", data: nil, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, device.VendorName(tt.data))
		})
	}

	_, err := device.CompanyID([]byte{0x01})
	assert.ErrorContains(t, err, "too short")

	dev := testutils.CreateMockAdvertisement("Movesense 1", "11:22", -40).
		WithManufacturerData([]byte{0x9F, 0x00, 0x10}).
		BuildDevice()
	assert.Equal(t, "Suunto", dev.Vendor, "NewDevice MUST resolve the vendor from manufacturer data")
}
