package inventory

import (
	"sync"
)

// Registry is the in-memory device inventory shared by the server.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Device
	order []string
}

// NewRegistry returns a registry holding devices.
func NewRegistry(devices ...Device) *Registry {
	r := &Registry{}
	r.Replace(devices)
	return r
}

// Replace swaps the full device set, keeping the given order.
func (r *Registry) Replace(devices []Device) {
	byID := make(map[string]Device, len(devices))
	order := make([]string, 0, len(devices))
	for _, d := range devices {
		if _, ok := byID[d.UDID]; !ok {
			order = append(order, d.UDID)
		}
		byID[d.UDID] = d
	}
	r.mu.Lock()
	r.byID = byID
	r.order = order
	r.mu.Unlock()
}

// List returns a copy of all devices.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Get looks up a device by udid.
func (r *Registry) Get(udid string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[udid]
	return d, ok
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
