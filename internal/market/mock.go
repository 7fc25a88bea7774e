package market

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"
)

var mockEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// MockProvider generates a seeded random walk per symbol/timeframe for local
// development. Every History call advances the walk by one bar so repeated
// cycles see fresh prices.
type MockProvider struct {
	StartPrice float64
	Step       float64 // max fractional move per bar
	Drift      float64 // fractional bias per bar

	mu      sync.Mutex
	rng     *rand.Rand
	series  map[string][]PriceBar
	failing map[string]bool
}

func NewMockProvider(seed int64) *MockProvider {
	return &MockProvider{
		StartPrice: 100,
		Step:       0.01,
		rng:        rand.New(rand.NewSource(seed)),
		series:     make(map[string][]PriceBar),
		failing:    make(map[string]bool),
	}
}

// Fail makes every request for symbol return DataUnavailable until cleared.
func (m *MockProvider) Fail(symbol string, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[symbol] = fail
}

func (m *MockProvider) History(ctx context.Context, symbol, timeframe string, count int) ([]PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(symbol, timeframe, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing[symbol] {
		return nil, unavailable(symbol, timeframe, errors.New("mock failure"))
	}
	step, err := IntervalDuration(timeframe)
	if err != nil {
		return nil, unavailable(symbol, timeframe, err)
	}

	key := symbol + "|" + timeframe
	bars := m.series[key]
	for len(bars) < count {
		bars = append(bars, m.nextBar(bars, step))
	}
	bars = append(bars, m.nextBar(bars, step))
	m.series[key] = bars

	out := make([]PriceBar, count)
	copy(out, bars[len(bars)-count:])
	return out, nil
}

func (m *MockProvider) LatestBar(ctx context.Context, symbol, timeframe string) (PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return PriceBar{}, unavailable(symbol, timeframe, err)
	}
	m.mu.Lock()
	failing := m.failing[symbol]
	bars := m.series[symbol+"|"+timeframe]
	m.mu.Unlock()

	if failing {
		return PriceBar{}, unavailable(symbol, timeframe, errors.New("mock failure"))
	}
	if len(bars) == 0 {
		h, err := m.History(ctx, symbol, timeframe, 1)
		if err != nil {
			return PriceBar{}, err
		}
		return h[0], nil
	}
	return bars[len(bars)-1], nil
}

func (m *MockProvider) nextBar(prev []PriceBar, step time.Duration) PriceBar {
	open := m.StartPrice
	openTime := mockEpoch
	if n := len(prev); n > 0 {
		open = prev[n-1].Close
		openTime = prev[n-1].OpenTime.Add(step)
	}

	// simple random walk
	move := (m.rng.Float64()*2-1)*m.Step + m.Drift
	closePrice := math.Max(open*(1+move), 0.0001)
	wick := m.rng.Float64() * m.Step / 2

	return PriceBar{
		OpenTime: openTime,
		Open:     open,
		High:     math.Max(open, closePrice) * (1 + wick),
		Low:      math.Min(open, closePrice) * (1 - wick),
		Close:    closePrice,
		Volume:   100 + m.rng.Float64()*900,
	}
}
