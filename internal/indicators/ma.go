package indicators

// SMA calculates the simple moving average for the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average series of prices. The first value is
// the SMA of the first period prices; each later value applies k = 2/(period+1).
// The result has len(prices)-period+1 points, or is empty when there is not enough data.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}

	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(prices)-period+1)
	out = append(out, SMA(prices[:period], period))
	for i := period; i < len(prices); i++ {
		prev := out[len(out)-1]
		out = append(out, prices[i]*k+prev*(1-k))
	}
	return out
}
