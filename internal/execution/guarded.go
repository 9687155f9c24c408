package execution

import (
	"context"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/circuit"
)

// Guarded stops hammering a failing venue: after repeated transport errors
// the breaker opens and Submit fails fast with circuit.ErrOpen.
type Guarded struct {
	next    Gateway
	breaker *circuit.Breaker
}

// NewGuarded wraps next with cb.
func NewGuarded(next Gateway, cb *circuit.Breaker) *Guarded {
	return &Guarded{next: next, breaker: cb}
}

// Submit implements Gateway.
func (g *Guarded) Submit(ctx context.Context, req OrderRequest) (Fill, error) {
	var fill Fill
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		fill, err = g.next.Submit(ctx, req)
		return err
	})
	return fill, err
}

// Breaker exposes the breaker for state reporting.
func (g *Guarded) Breaker() *circuit.Breaker { return g.breaker }
