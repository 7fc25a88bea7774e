package market

import (
	"context"
	"time"

	"signal-core/pkg/market/binance"
)

// SpotProvider reads klines from the Binance spot REST API.
type SpotProvider struct {
	client *binance.Client
}

func NewSpotProvider(client *binance.Client) *SpotProvider {
	return &SpotProvider{client: client}
}

func (p *SpotProvider) History(ctx context.Context, symbol, timeframe string, count int) ([]PriceBar, error) {
	klines, err := p.client.GetKlines(ctx, symbol, timeframe, count, 0, 0)
	if err != nil {
		return nil, unavailable(symbol, timeframe, err)
	}
	bars := make([]PriceBar, 0, len(klines))
	for _, k := range klines {
		bars = append(bars, PriceBar{
			OpenTime: time.UnixMilli(k.OpenTime).UTC(),
			Open:     k.Open,
			High:     k.High,
			Low:      k.Low,
			Close:    k.Close,
			Volume:   k.Volume,
		})
	}
	if err := validate(bars); err != nil {
		return nil, unavailable(symbol, timeframe, err)
	}
	return bars, nil
}

func (p *SpotProvider) LatestBar(ctx context.Context, symbol, timeframe string) (PriceBar, error) {
	bars, err := p.History(ctx, symbol, timeframe, 1)
	if err != nil {
		return PriceBar{}, err
	}
	return bars[len(bars)-1], nil
}
