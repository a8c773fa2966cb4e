package quota

import "sync"

// Registry holds one Manager per external service name, created on first
// use. Workers in the same process share a Registry so concurrent items
// calling the same AI service are governed by a single quota budget.
type Registry struct {
	mu       sync.Mutex
	managers map[string]*Manager
	limits   []Limit
	pricing  Pricing
}

// NewRegistry constructs a Registry that creates Managers with the given
// default limits and pricing for any service name it hasn't seen before.
func NewRegistry(limits []Limit, pricing Pricing) *Registry {
	return &Registry{
		managers: make(map[string]*Manager),
		limits:   limits,
		pricing:  pricing,
	}
}

// Get returns the Manager for service, creating one with the registry's
// default limits and pricing if this is the first request for it.
func (r *Registry) Get(service string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[service]; ok {
		return m
	}
	m := NewManager(service, r.limits, r.pricing)
	r.managers[service] = m
	return m
}

// Snapshot returns a Status for every service the registry has created a
// Manager for.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	services := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		services = append(services, m)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(services))
	for _, m := range services {
		out = append(out, m.GetStatus())
	}
	return out
}
