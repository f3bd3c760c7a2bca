package chain

import (
	"strings"

	"nft-metadata-resolver/internal/domain"
	domainService "nft-metadata-resolver/internal/domain/service"
)

// Compile-time check
var _ domainService.ChainRegistry = (*Registry)(nil)

// Registry maps chain identifiers to the adapter created for them at startup.
// It is read-only after construction and safe for concurrent use.
type Registry struct {
	adapters map[string]domainService.ChainAdapter
	order    []string
}

// NewRegistry indexes adapters by their Chain() identifier, keeping registration order.
// A later adapter for the same chain replaces the earlier one.
func NewRegistry(adapters ...domainService.ChainAdapter) *Registry {
	r := &Registry{adapters: make(map[string]domainService.ChainAdapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		id := strings.ToLower(a.Chain())
		if _, exists := r.adapters[id]; !exists {
			r.order = append(r.order, id)
		}
		r.adapters[id] = a
	}
	return r
}

// Resolve returns the adapter for chain, ignoring case.
func (r *Registry) Resolve(chain string) (domainService.ChainAdapter, error) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(chain))]
	if !ok {
		return nil, &domain.UnsupportedChainError{Chain: chain, Supported: r.Supported()}
	}
	return a, nil
}

// Supported lists the registered chains in registration order.
func (r *Registry) Supported() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) IsSupported(chain string) bool {
	_, ok := r.adapters[strings.ToLower(strings.TrimSpace(chain))]
	return ok
}

// All returns the adapters in registration order.
func (r *Registry) All() []domainService.ChainAdapter {
	out := make([]domainService.ChainAdapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}

// Close releases every adapter's node connection.
func (r *Registry) Close() {
	for _, a := range r.All() {
		a.Close()
	}
}
