package identity

import (
	"fmt"
	"sort"
)

// Registry holds the configured providers keyed by name. It is populated once
// at startup and only read afterwards.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry registers the given providers by name. Later duplicates replace
// earlier ones; nil entries are skipped.
func NewRegistry(list ...Provider) *Registry {
	m := make(map[string]Provider, len(list))
	for _, p := range list {
		if p == nil {
			continue
		}
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown identity provider: %q", name)
	}
	return p, nil
}

// Names returns the registered provider names in a stable order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int { return len(r.providers) }
