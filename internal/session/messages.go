package session

import "github.com/srg/accstream/internal/device"

// message is anything the actor consumes from its inbox.
type message interface{}

type intentKind int

const (
	intentStartScan intentKind = iota
	intentStopScan
	intentSelect
	intentConnect
	intentStartStream
	intentStopStream
	intentDisconnect
)

var intentNames = [...]string{
	intentStartScan:   "start scan",
	intentStopScan:    "stop scan",
	intentSelect:      "select device",
	intentConnect:     "connect",
	intentStartStream: "start stream",
	intentStopStream:  "stop stream",
	intentDisconnect:  "disconnect",
}

func (k intentKind) String() string {
	return intentNames[k]
}

// intent is a presentation-layer command. reply receives the acceptance result.
type intent struct {
	kind  intentKind
	key   string
	reply chan error
}

type snapshotRequest struct {
	reply chan Snapshot
}

type closeRequest struct{}

// Transport-originated events. gen ties each one to the scan or link
// attempt that produced it; stale events are dropped on arrival.

type advertisement struct {
	gen uint64
	dev device.Device
}

type scanStopped struct {
	gen uint64
	err error
}

type opKind int

const (
	opConnect opKind = iota
	opStartStream
	opStopStream
	opDisconnect
)

func (k opKind) String() string {
	switch k {
	case opConnect:
		return "connect"
	case opStartStream:
		return "start stream"
	case opStopStream:
		return "stop stream"
	case opDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

type opResult struct {
	op  opKind
	gen uint64
	id  string
	err error

	// disconnected is set by a successful connect.
	disconnected <-chan struct{}
	// linked reports that a connect left the transport holding a link.
	linked bool
}

type frameReceived struct {
	gen  uint64
	data []byte
}

type linkLost struct {
	gen uint64
}
