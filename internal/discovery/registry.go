// Package discovery keeps the list of connectable devices seen during a scan.
package discovery

import (
	"fmt"
	"sync"

	"github.com/srg/accstream/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DedupKey selects which device attribute collapses repeated advertisements.
type DedupKey string

const (
	// DedupByName keeps the first device seen for each advertised name.
	DedupByName DedupKey = "name"
	// DedupByID keeps the first device seen for each transport address.
	DedupByID DedupKey = "id"
)

// ParseDedupKey validates a configured dedup key.
func ParseDedupKey(s string) (DedupKey, error) {
	switch DedupKey(s) {
	case DedupByName, DedupByID:
		return DedupKey(s), nil
	default:
		return "", fmt.Errorf("invalid dedup key %q (must be %q or %q)", s, DedupByName, DedupByID)
	}
}

// Registry is an insertion-ordered, deduplicated set of discovered devices.
// Entries never expire; they stay until Reset. Safe for concurrent use.
type Registry struct {
	key     DedupKey
	mu      sync.RWMutex
	devices *orderedmap.OrderedMap[string, device.Device]
}

// New creates an empty registry. An unknown key falls back to DedupByName.
func New(key DedupKey) *Registry {
	if key != DedupByID {
		key = DedupByName
	}
	return &Registry{
		key:     key,
		devices: orderedmap.New[string, device.Device](),
	}
}

// Key returns the attribute the registry deduplicates on.
func (r *Registry) Key() DedupKey {
	return r.key
}

// OnAdvertisement registers d unless it is not connectable or its key was
// already seen. It reports whether d was added.
func (r *Registry) OnAdvertisement(d device.Device) bool {
	if !d.Connectable {
		return false
	}

	k := r.keyOf(d)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices.Get(k); exists {
		return false
	}
	r.devices.Set(k, d)
	return true
}

// Reset forgets every registered device.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = orderedmap.New[string, device.Device]()
}

// List returns the registered devices in discovery order.
func (r *Registry) List() []device.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]device.Device, 0, r.devices.Len())
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices.Len()
}

// Find looks a device up by ID first and by name second.
func (r *Registry) Find(key string) (device.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var byName *device.Device
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.ID == key {
			return pair.Value, true
		}
		if byName == nil && pair.Value.Name == key {
			d := pair.Value
			byName = &d
		}
	}
	if byName != nil {
		return *byName, true
	}
	return device.Device{}, false
}

func (r *Registry) keyOf(d device.Device) string {
	if r.key == DedupByID {
		return d.ID
	}
	return d.Name
}
