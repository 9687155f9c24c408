package engine

import "sync"

// Registry is the single active-run slot. Acquire is a compare-and-set:
// it succeeds only when the slot is empty.
type Registry struct {
	mu     sync.Mutex
	active *Run
}

// Acquire claims the slot for r, or returns ErrAlreadyRunning.
func (g *Registry) Acquire(r *Run) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active != nil {
		return ErrAlreadyRunning
	}
	g.active = r
	return nil
}

// Release frees the slot if r holds it.
func (g *Registry) Release(r *Run) {
	g.mu.Lock()
	if g.active == r {
		g.active = nil
	}
	g.mu.Unlock()
}

// Active returns the run holding the slot, or nil.
func (g *Registry) Active() *Run {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
