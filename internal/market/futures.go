package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

// FuturesProvider reads USDT-M perpetual klines through go-binance.
type FuturesProvider struct {
	client *futures.Client
}

// NewFuturesProvider creates an unauthenticated client; klines are public.
func NewFuturesProvider(testnet bool) *FuturesProvider {
	futures.UseTestnet = testnet
	return &FuturesProvider{client: futures.NewClient("", "")}
}

func (p *FuturesProvider) History(ctx context.Context, symbol, timeframe string, count int) ([]PriceBar, error) {
	klines, err := p.client.NewKlinesService().
		Symbol(symbol).
		Interval(timeframe).
		Limit(count).
		Do(ctx)
	if err != nil {
		return nil, unavailable(symbol, timeframe, err)
	}

	bars := make([]PriceBar, 0, len(klines))
	for i, k := range klines {
		bar, err := parseFuturesKline(k)
		if err != nil {
			return nil, unavailable(symbol, timeframe, fmt.Errorf("kline %d: %w", i, err))
		}
		bars = append(bars, bar)
	}
	if err := validate(bars); err != nil {
		return nil, unavailable(symbol, timeframe, err)
	}
	return bars, nil
}

func (p *FuturesProvider) LatestBar(ctx context.Context, symbol, timeframe string) (PriceBar, error) {
	bars, err := p.History(ctx, symbol, timeframe, 1)
	if err != nil {
		return PriceBar{}, err
	}
	return bars[len(bars)-1], nil
}

func parseFuturesKline(k *futures.Kline) (PriceBar, error) {
	fields := [5]string{k.Open, k.High, k.Low, k.Close, k.Volume}
	var vals [5]float64
	for i, raw := range fields {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return PriceBar{}, err
		}
		vals[i] = v
	}
	return PriceBar{
		OpenTime: time.UnixMilli(k.OpenTime).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}
