package market

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an upstream provider with a token bucket.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p; rps <= 0 disables throttling and returns p unchanged.
func NewRateLimited(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) History(ctx context.Context, symbol, timeframe string, count int) ([]PriceBar, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, unavailable(symbol, timeframe, err)
	}
	return r.next.History(ctx, symbol, timeframe, count)
}

func (r *RateLimited) LatestBar(ctx context.Context, symbol, timeframe string) (PriceBar, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return PriceBar{}, unavailable(symbol, timeframe, err)
	}
	return r.next.LatestBar(ctx, symbol, timeframe)
}
