package testutils

import (
	"github.com/srg/accstream/internal/device"
)

// AdvertisementBuilder builds device.Advertisement values for testing.
// It provides a fluent API; unset fields keep zero values except
// connectable, which defaults to true.
type AdvertisementBuilder struct {
	adv advertisement
}

// NewAdvertisementBuilder creates a new AdvertisementBuilder with default values.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: advertisement{connectable: true}}
}

// CreateMockAdvertisement is shorthand for a named, addressed advertisement.
func CreateMockAdvertisement(name, address string, rssi int) *AdvertisementBuilder {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi)
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

// WithServices adds service UUIDs to the advertisement.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.services = append(b.adv.services, uuids...)
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.manufData = data
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.connectable = c
	return b
}

// Build returns the advertisement.
func (b *AdvertisementBuilder) Build() device.Advertisement {
	adv := b.adv
	adv.services = append([]string(nil), b.adv.services...)
	return &adv
}

// BuildDevice returns the device.Device a scan would create from this advertisement.
func (b *AdvertisementBuilder) BuildDevice() device.Device {
	return device.NewDevice(b.Build())
}

type advertisement struct {
	name        string
	address     string
	rssi        int
	services    []string
	manufData   []byte
	connectable bool
}

func (a *advertisement) LocalName() string        { return a.name }
func (a *advertisement) ManufacturerData() []byte { return a.manufData }
func (a *advertisement) Services() []string       { return a.services }
func (a *advertisement) Connectable() bool        { return a.connectable }
func (a *advertisement) RSSI() int                { return a.rssi }
func (a *advertisement) Addr() string             { return a.address }
