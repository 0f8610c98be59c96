package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to the wrapped Generator with a token bucket
// shared by every caller. Waiting is bounded by the call's context.
type RateLimited struct {
	next    Generator
	limiter *rate.Limiter
}

// NewRateLimited converts requestsPerMinute to a per-second rate. A
// non-positive rate disables throttling.
func NewRateLimited(next Generator, requestsPerMinute float64, burst int) *RateLimited {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(requestsPerMinute / 60.0)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (r *RateLimited) Generate(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limit wait: %v", ErrUpstream, err)
	}
	return r.next.Generate(ctx, req)
}
