// Package provider implements the pluggable data sources (weather, forecast,
// joke) that contribute fields to aggregated render data, plus the TTL cache
// that keeps upstream calls cheap.
package provider

import (
	"context"
	"encoding/json"
	"time"
)

// Params carries per-request inputs a provider may use.
type Params struct {
	City string
}

// Provider is one named data source. Fetch must be idempotent and
// side-effect-free; failures are absorbed by the cache layer, which
// substitutes Fallback.
type Provider interface {
	// Name returns the stable key this provider contributes under.
	Name() string
	// Fetch retrieves a fresh value. The context carries the configured
	// per-call timeout.
	Fetch(ctx context.Context, p Params) (json.RawMessage, error)
	// Fallback returns the static substitute value. It must be well-formed
	// JSON and never nil.
	Fallback() json.RawMessage
}

// Registration binds a provider to its cache and retry policy.
type Registration struct {
	Provider Provider
	Enabled  bool
	TTL      time.Duration
	Timeout  time.Duration
	Retries  int
}

// Registry is the fixed provider table built once at startup. There is no
// runtime registration; the set of providers is part of configuration.
type Registry struct {
	entries map[string]Registration
	order   []string
}

// NewRegistry builds a registry from registrations. Later duplicates of a
// name replace earlier ones.
func NewRegistry(regs ...Registration) *Registry {
	r := &Registry{entries: make(map[string]Registration, len(regs))}
	for _, reg := range regs {
		name := reg.Provider.Name()
		if _, seen := r.entries[name]; !seen {
			r.order = append(r.order, name)
		}
		r.entries[name] = reg
	}
	return r
}

// Lookup returns the registration for name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	reg, ok := r.entries[name]
	return reg, ok
}

// Enabled returns the names of all enabled providers in registration order.
func (r *Registry) Enabled() []string {
	var out []string
	for _, name := range r.order {
		if r.entries[name].Enabled {
			out = append(out, name)
		}
	}
	return out
}
