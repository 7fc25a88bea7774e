package indicators

// MACDResult holds the three MACD series. Signal and Histogram are aligned to the
// tail of Line and may be empty when Line is shorter than the signal period.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// Empty reports whether the MACD line could not be computed.
func (m MACDResult) Empty() bool { return len(m.Line) == 0 }

// MACD computes EMA(fast) - EMA(slow), its signal EMA and the histogram.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	if fast <= 0 || slow <= fast || signal <= 0 || len(prices) < slow {
		return MACDResult{}
	}

	emaFast := EMA(prices, fast)
	emaSlow := EMA(prices, slow)

	// emaFast starts slow-fast bars earlier than emaSlow.
	offset := slow - fast
	line := make([]float64, len(emaSlow))
	for i := range emaSlow {
		line[i] = emaFast[offset+i] - emaSlow[i]
	}

	sig := EMA(line, signal)
	hist := make([]float64, len(sig))
	start := len(line) - len(sig)
	for i := range sig {
		hist[i] = line[start+i] - sig[i]
	}

	return MACDResult{Line: line, Signal: sig, Histogram: hist}
}

// DefaultMACD uses the conventional 12/26/9 periods.
func DefaultMACD(prices []float64) MACDResult {
	return MACD(prices, 12, 26, 9)
}
