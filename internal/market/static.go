package market

import (
	"context"
	"errors"
	"sync"
)

// StaticProvider serves fixed bar sets. Used by tests and replays.
type StaticProvider struct {
	mu   sync.RWMutex
	bars map[string][]PriceBar
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{bars: make(map[string][]PriceBar)}
}

// Set replaces the bars for symbol/timeframe.
func (s *StaticProvider) Set(symbol, timeframe string, bars []PriceBar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[symbol+"|"+timeframe] = append([]PriceBar(nil), bars...)
}

func (s *StaticProvider) History(ctx context.Context, symbol, timeframe string, count int) ([]PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(symbol, timeframe, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	bars, ok := s.bars[symbol+"|"+timeframe]
	if !ok || len(bars) == 0 {
		return nil, unavailable(symbol, timeframe, errors.New("no bars loaded"))
	}
	if count > 0 && count < len(bars) {
		bars = bars[len(bars)-count:]
	}
	return append([]PriceBar(nil), bars...), nil
}

func (s *StaticProvider) LatestBar(ctx context.Context, symbol, timeframe string) (PriceBar, error) {
	bars, err := s.History(ctx, symbol, timeframe, 1)
	if err != nil {
		return PriceBar{}, err
	}
	return bars[0], nil
}
