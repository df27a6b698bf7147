package device

import (
	"context"
)

// Advertisement is the platform-neutral view of a received advertising packet.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	Services() []string
	Connectable() bool
	RSSI() int
	Addr() string
}

// Device is a peripheral seen during a scan. It is immutable once created;
// ID is the transport-assigned address and the device's identity.
type Device struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Connectable bool     `json:"connectable"`
	RSSI        int      `json:"rssi"`
	Services    []string `json:"services,omitempty"`
	Vendor      string   `json:"vendor,omitempty"`
}

// NewDevice builds a Device from an advertisement.
func NewDevice(adv Advertisement) Device {
	d := Device{
		ID:          adv.Addr(),
		Name:        adv.LocalName(),
		Connectable: adv.Connectable(),
		RSSI:        adv.RSSI(),
		Vendor:      VendorName(adv.ManufacturerData()),
	}
	for _, svc := range adv.Services() {
		d.Services = append(d.Services, NormalizeUUID(svc))
	}
	return d
}

// DisplayName returns the advertised name, or the address for unnamed devices.
func (d Device) DisplayName() string {
	if d.Name == "" {
		return d.ID
	}
	return d.Name
}

// Scanner delivers advertisements until ctx is done.
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Transport is the wireless-link capability a session drives. All calls
// may block; implementations must be safe for use from multiple goroutines.
type Transport interface {
	Scanner

	Connect(ctx context.Context, id string) error
	DiscoverServices(ctx context.Context, id string) error
	Subscribe(ctx context.Context, id, service, characteristic string, handler func([]byte)) error
	Write(ctx context.Context, id, service, characteristic string, data []byte) error
	Disconnect(ctx context.Context, id string) error

	// Disconnected returns a channel closed when the link to id goes away,
	// or nil when id is not connected.
	Disconnected(id string) <-chan struct{}
}
