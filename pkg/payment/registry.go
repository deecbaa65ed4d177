package payment

import (
	"fmt"
	"sort"
)

// Registry holds the configured gateways keyed by identifier.
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry builds a registry from the given gateways. Duplicate
// identifiers are a wiring bug and panic at startup.
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, gw := range gateways {
		if _, dup := r.gateways[gw.ID()]; dup {
			panic(fmt.Sprintf("payment: duplicate gateway %q", gw.ID()))
		}
		r.gateways[gw.ID()] = gw
	}
	return r
}

// Get returns the gateway with the given identifier.
func (r *Registry) Get(id string) (Gateway, error) {
	gw, ok := r.gateways[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, id)
	}
	return gw, nil
}

// IDs returns the registered identifiers in stable order.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.gateways))
	for id := range r.gateways {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
