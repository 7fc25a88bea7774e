package market

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"signal-core/internal/indicators"
)

// ErrDataUnavailable marks any fetch or format failure for a symbol/timeframe.
var ErrDataUnavailable = errors.New("market data unavailable")

// PriceBar is one closed OHLCV candle.
type PriceBar struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Provider supplies bars per symbol and timeframe. History is oldest first.
type Provider interface {
	LatestBar(ctx context.Context, symbol, timeframe string) (PriceBar, error)
	History(ctx context.Context, symbol, timeframe string, count int) ([]PriceBar, error)
}

// DataUnavailableError wraps the underlying cause of a failed fetch.
type DataUnavailableError struct {
	Symbol    string
	Timeframe string
	Err       error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Symbol, e.Timeframe, ErrDataUnavailable, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDataUnavailable) match regardless of the cause.
func (e *DataUnavailableError) Is(target error) bool { return target == ErrDataUnavailable }

func unavailable(symbol, timeframe string, err error) error {
	var due *DataUnavailableError
	if errors.As(err, &due) {
		return err
	}
	return &DataUnavailableError{Symbol: symbol, Timeframe: timeframe, Err: err}
}

// ToSeries splits bars into the column form the indicator library works on.
func ToSeries(bars []PriceBar) indicators.Series {
	s := indicators.Series{
		Closes:  make([]float64, len(bars)),
		Highs:   make([]float64, len(bars)),
		Lows:    make([]float64, len(bars)),
		Volumes: make([]float64, len(bars)),
	}
	for i, b := range bars {
		s.Closes[i] = b.Close
		s.Highs[i] = b.High
		s.Lows[i] = b.Low
		s.Volumes[i] = b.Volume
	}
	return s
}

func validate(bars []PriceBar) error {
	if len(bars) == 0 {
		return errors.New("empty response")
	}
	for i, b := range bars {
		if b.Close <= 0 || b.High < b.Low {
			return fmt.Errorf("malformed bar %d: %+v", i, b)
		}
	}
	return nil
}

// IntervalDuration converts exchange interval strings ("1m", "4h", "1d", "1w") to durations.
func IntervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	unit := interval[len(interval)-1]
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	switch strings.ToLower(string(unit)) {
	case "m":
		if unit == 'M' {
			return time.Duration(n) * 30 * 24 * time.Hour, nil
		}
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid interval %q", interval)
}
