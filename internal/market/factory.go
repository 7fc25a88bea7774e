package market

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"signal-core/pkg/config"
	"signal-core/pkg/market/binance"
)

// NewFromConfig builds the provider named by cfg.DataSource, wrapped in the
// configured request limiter and history cache.
func NewFromConfig(cfg *config.Config, log *zap.Logger) (Provider, error) {
	var p Provider
	switch cfg.DataSource {
	case config.SourceMock:
		p = NewMockProvider(time.Now().UnixNano())
	case config.SourceBinance:
		p = NewSpotProvider(binance.NewClient(cfg.BinanceTestnet))
	case config.SourceBinanceFutures:
		p = NewFuturesProvider(cfg.BinanceTestnet)
	default:
		return nil, fmt.Errorf("%w: unknown data source %q", config.ErrInvalidConfiguration, cfg.DataSource)
	}

	if log != nil {
		log.Info("📈 price provider ready",
			zap.String("source", cfg.DataSource),
			zap.Bool("testnet", cfg.BinanceTestnet),
			zap.Float64("rps", cfg.ProviderRateLimit),
			zap.Duration("cache_ttl", cfg.ProviderCacheTTL))
	}
	return NewCached(NewRateLimited(p, cfg.ProviderRateLimit, len(cfg.Symbols)*2), cfg.ProviderCacheTTL), nil
}
