package execution

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles order submission to a venue's request budget.
type RateLimited struct {
	next    Gateway
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket of perSecond orders and the
// given burst.
func NewRateLimited(next Gateway, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Submit waits for a token, then forwards the order.
func (r *RateLimited) Submit(ctx context.Context, req OrderRequest) (Fill, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Fill{}, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Submit(ctx, req)
}
