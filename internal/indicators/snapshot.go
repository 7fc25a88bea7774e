package indicators

// MinBars is the shortest history a Snapshot is built from.
const MinBars = 50

const (
	trailingLen  = 10
	volumeWindow = 20
)

// Series is a column view over a bar window, oldest first.
type Series struct {
	Closes  []float64
	Highs   []float64
	Lows    []float64
	Volumes []float64
}

// Len returns the number of bars in the window.
func (s Series) Len() int { return len(s.Closes) }

// Snapshot holds the current indicator values for one timeframe plus short
// trailing series for trend checks.
type Snapshot struct {
	Price     float64 `json:"price"`
	EMA20     float64 `json:"ema20"`
	EMA50     float64 `json:"ema50"`
	MACD      float64 `json:"macd"`
	MACDSig   float64 `json:"macd_signal"`
	MACDHist  float64 `json:"macd_histogram"`
	RSI7      float64 `json:"rsi7"`
	RSI14     float64 `json:"rsi14"`
	ATR3      float64 `json:"atr3"`
	ATR14     float64 `json:"atr14"`
	Volume    float64 `json:"volume"`
	AvgVolume float64 `json:"avg_volume"`

	PriceSeries []float64 `json:"price_series"`
	EMA20Series []float64 `json:"ema20_series"`
	MACDSeries  []float64 `json:"macd_series"`
	RSI7Series  []float64 `json:"rsi7_series"`
	RSI14Series []float64 `json:"rsi14_series"`
}

// VolumeRatio compares the latest volume with the 20-bar average; 1 when the
// average is zero.
func (s Snapshot) VolumeRatio() float64 {
	if s.AvgVolume <= 0 {
		return 1
	}
	return s.Volume / s.AvgVolume
}

// Build computes a Snapshot from the window. ok is false when the window is
// shorter than MinBars or the columns are inconsistent.
func Build(s Series) (snap Snapshot, ok bool) {
	n := s.Len()
	if n < MinBars || len(s.Highs) != n || len(s.Lows) != n || len(s.Volumes) != n {
		return Snapshot{}, false
	}

	ema20 := EMA(s.Closes, 20)
	ema50 := EMA(s.Closes, 50)
	macd := DefaultMACD(s.Closes)
	rsi7 := RSI(s.Closes, 7)
	rsi14 := RSI(s.Closes, 14)
	atr3 := ATR(s.Highs, s.Lows, s.Closes, 3)
	atr14 := ATR(s.Highs, s.Lows, s.Closes, 14)

	snap = Snapshot{
		Price:     s.Closes[n-1],
		EMA20:     last(ema20),
		EMA50:     last(ema50),
		MACD:      last(macd.Line),
		MACDSig:   last(macd.Signal),
		MACDHist:  last(macd.Histogram),
		RSI7:      last(rsi7),
		RSI14:     last(rsi14),
		ATR3:      last(atr3),
		ATR14:     last(atr14),
		Volume:    s.Volumes[n-1],
		AvgVolume: SMA(s.Volumes, min(volumeWindow, n)),

		PriceSeries: tail(s.Closes, trailingLen),
		EMA20Series: tail(ema20, trailingLen),
		MACDSeries:  tail(macd.Line, trailingLen),
		RSI7Series:  tail(rsi7, trailingLen),
		RSI14Series: tail(rsi14, trailingLen),
	}
	return snap, true
}

func last(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[len(v)-1]
}

func tail(v []float64, n int) []float64 {
	if len(v) > n {
		v = v[len(v)-n:]
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
