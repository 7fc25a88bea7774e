package indicators

import "math"

// ATR computes the Average True Range series with Wilder smoothing. True ranges
// start at the second bar, so at least period+1 bars are required.
func ATR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	if len(highs) != n || len(lows) != n || period <= 0 || n < period+1 {
		return nil
	}

	tr := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr = append(tr, math.Max(hl, math.Max(hc, lc)))
	}

	out := make([]float64, 0, len(tr)-period+1)
	out = append(out, SMA(tr[:period], period))

	p := float64(period)
	for i := period; i < len(tr); i++ {
		prev := out[len(out)-1]
		out = append(out, (prev*(p-1)+tr[i])/p)
	}
	return out
}
