package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signal-core/pkg/cache"
)

// Cached serves repeated History requests from memory for ttl, so dashboard
// polling of live signals does not multiply upstream kline requests.
type Cached struct {
	next    Provider
	ttl     time.Duration
	history *cache.ShardedCache[[]PriceBar]

	pruneMu   sync.Mutex
	lastPrune time.Time
}

// NewCached wraps p; ttl <= 0 disables caching and returns p unchanged.
func NewCached(p Provider, ttl time.Duration) Provider {
	if ttl <= 0 {
		return p
	}
	return &Cached{next: p, ttl: ttl, history: cache.NewShardedCache[[]PriceBar]()}
}

func historyKey(symbol, timeframe string, count int) string {
	return fmt.Sprintf("%s|%s|%d", symbol, timeframe, count)
}

func (c *Cached) History(ctx context.Context, symbol, timeframe string, count int) ([]PriceBar, error) {
	key := historyKey(symbol, timeframe, count)
	if bars, ok := c.history.GetFresh(key, c.ttl); ok {
		return copyBars(bars), nil
	}
	c.pruneStale()
	bars, err := c.next.History(ctx, symbol, timeframe, count)
	if err != nil {
		return nil, err
	}
	c.history.Set(key, copyBars(bars))
	return bars, nil
}

// LatestBar always goes upstream; closes and marks must see the newest price.
func (c *Cached) LatestBar(ctx context.Context, symbol, timeframe string) (PriceBar, error) {
	return c.next.LatestBar(ctx, symbol, timeframe)
}

// pruneStale drops expired windows, at most once per ttl, so keys that are no
// longer requested do not pile up.
func (c *Cached) pruneStale() int {
	c.pruneMu.Lock()
	if time.Since(c.lastPrune) < c.ttl {
		c.pruneMu.Unlock()
		return 0
	}
	c.lastPrune = time.Now()
	c.pruneMu.Unlock()
	return c.history.Cleanup(c.ttl)
}

func copyBars(bars []PriceBar) []PriceBar {
	out := make([]PriceBar, len(bars))
	copy(out, bars)
	return out
}
