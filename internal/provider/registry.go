package provider

import (
	"errors"
	"fmt"
	"maps"

	"marketfeed/internal/market"
)

// Entry pairs a descriptor with the normalizer that understands it.
type Entry struct {
	Descriptor Descriptor
	Normalizer Normalizer
}

// Registry is the read-only, priority-ordered set of market sources.
type Registry struct {
	order   []string
	entries map[string]Entry
}

// NewRegistry validates entries and keeps them in the given priority order.
// Misconfiguration is reported here so it surfaces at startup.
func NewRegistry(entries ...Entry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, errors.New("registry: no sources")
	}
	r := &Registry{
		order:   make([]string, 0, len(entries)),
		entries: make(map[string]Entry, len(entries)),
	}
	for _, e := range entries {
		d := e.Descriptor
		if d.ID == "" {
			return nil, errors.New("registry: source without id")
		}
		if _, dup := r.entries[d.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate source %q", d.ID)
		}
		if d.BaseURL == "" {
			return nil, fmt.Errorf("registry: source %q has no base url", d.ID)
		}
		if d.RateLimit <= 0 {
			return nil, fmt.Errorf("registry: source %q has no rate limit", d.ID)
		}
		if e.Normalizer == nil {
			return nil, fmt.Errorf("registry: source %q has no normalizer", d.ID)
		}
		for _, op := range market.Operations {
			if d.Endpoints[op] == "" {
				return nil, fmt.Errorf("registry: source %q has no endpoint for %s", d.ID, op)
			}
		}
		if d.Name == "" {
			e.Descriptor.Name = d.ID
		}
		e.Descriptor = e.Descriptor.clone()
		r.order = append(r.order, d.ID)
		r.entries[d.ID] = e
	}
	return r, nil
}

// Describe returns the descriptor for id.
func (r *Registry) Describe(id string) (Descriptor, bool) {
	e, ok := r.entries[id]
	if !ok {
		return Descriptor{}, false
	}
	return e.Descriptor.clone(), true
}

// Normalizer returns the normalizer registered for id.
func (r *Registry) Normalizer(id string) (Normalizer, bool) {
	e, ok := r.entries[id]
	return e.Normalizer, ok
}

// IDs returns source ids in failover order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Descriptors returns all descriptors in failover order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].Descriptor.clone())
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }

// clone copies the endpoint table so the registry never shares it.
func (d Descriptor) clone() Descriptor {
	d.Endpoints = maps.Clone(d.Endpoints)
	return d
}
