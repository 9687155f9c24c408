package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Factory describes a strategy kind and how to build it from parameters.
type Factory struct {
	ID          string
	Description string
	Params      []ParamSpec
	Build       func(p Params) (Kind, error)
}

// Registry maps strategy identifiers to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the built-in kinds.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(maRSIFactory())
	r.Register(rsiThresholdFactory())
	r.Register(macdCrossFactory())
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(f Factory) {
	r.mu.Lock()
	r.factories[f.ID] = f
	r.mu.Unlock()
}

// Lookup returns the factory for id.
func (r *Registry) Lookup(id string) (Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return Factory{}, fmt.Errorf("%w: %q", ErrUnknownKind, id)
	}
	return f, nil
}

// Build validates params and constructs the kind.
func (r *Registry) Build(id string, params map[string]float64) (Kind, Params, error) {
	f, err := r.Lookup(id)
	if err != nil {
		return nil, nil, err
	}
	p, err := Validate(f.Params, params)
	if err != nil {
		return nil, nil, fmt.Errorf("strategy %s: %w", id, err)
	}
	k, err := f.Build(p)
	if err != nil {
		return nil, nil, fmt.Errorf("strategy %s: %w", id, err)
	}
	return k, p, nil
}

// Kinds lists registered factories sorted by ID.
func (r *Registry) Kinds() []Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Factory, 0, len(r.factories))
	for _, f := range r.factories {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
