package session

import (
	"github.com/srg/accstream/internal/accel"
	"github.com/srg/accstream/internal/device"
)

// State is the lifecycle position of the sensor session.
type State int

const (
	Idle State = iota
	Scanning
	Discovered
	Connecting
	Connected
	Subscribing
	Streaming
	Disconnecting
)

var stateNames = [...]string{
	Idle:          "idle",
	Scanning:      "scanning",
	Discovered:    "discovered",
	Connecting:    "connecting",
	Connected:     "connected",
	Subscribing:   "subscribing",
	Streaming:     "streaming",
	Disconnecting: "disconnecting",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// HasSelection reports whether a device may be selected in this state.
func (s State) HasSelection() bool {
	return s >= Discovered
}

// linked reports whether the transport holds (or is acquiring) a connection.
func (s State) linked() bool {
	return s >= Connecting
}

// Snapshot is an immutable copy of the session as the presentation layer sees it.
type Snapshot struct {
	State      State           `json:"state"`
	Selected   *device.Device  `json:"selected,omitempty"`
	Subscribed bool            `json:"subscribed"`
	Scanning   bool            `json:"scanning"`
	Devices    []device.Device `json:"devices"`
	Sample     *accel.Sample   `json:"sample,omitempty"`
}
