package strategy

import (
	"fmt"
	"math"

	"signal-core/internal/indicators"
)

// factor is one rule outcome. An empty vote marks a non-directional modifier.
type factor struct {
	vote   Direction
	weight float64
	reason string
}

type rule func(s indicators.Snapshot) []factor

// RuleAnalyzer scores a snapshot against a fixed rule table.
type RuleAnalyzer struct {
	name  string
	rules []rule
}

// Name implements Analyzer.
func (a *RuleAnalyzer) Name() string { return a.name }

// NewShortTerm builds the analyzer for the fast timeframe.
func NewShortTerm(label string) *RuleAnalyzer {
	return &RuleAnalyzer{
		name: label,
		rules: []rule{
			emaOrdering(25, 0),
			macdSign(0, 15, 15),
			rsiShortZone,
			rsiFastZone,
			volumeFast,
			momentumFast,
		},
	}
}

// NewLongTerm builds the analyzer for the slow timeframe.
func NewLongTerm(label string) *RuleAnalyzer {
	return &RuleAnalyzer{
		name: label,
		rules: []rule{
			emaOrdering(35, -10),
			macdSign(50, 15, 25),
			rsiSlowZone,
			volumeSlow,
			volatility,
			momentumSlow,
		},
	}
}

// Analyze implements Analyzer. Direction is the majority of LONG vs SHORT votes;
// a tie is FLAT. Confidence adds the winning votes and every modifier, clamped
// to [0,100]. A FLAT result sums every factor.
func (a *RuleAnalyzer) Analyze(s indicators.Snapshot) TimeframeSignal {
	var factors []factor
	for _, r := range a.rules {
		factors = append(factors, r(s)...)
	}

	out := TimeframeSignal{
		Timeframe:   a.name,
		VolumeRatio: s.VolumeRatio(),
		Reasons:     make([]string, 0, len(factors)),
	}
	for _, f := range factors {
		switch f.vote {
		case Long:
			out.LongVotes++
		case Short:
			out.ShortVotes++
		}
		out.Reasons = append(out.Reasons, f.reason)
	}

	switch {
	case out.LongVotes > out.ShortVotes:
		out.Direction = Long
	case out.ShortVotes > out.LongVotes:
		out.Direction = Short
	default:
		out.Direction = Flat
	}

	var score float64
	for _, f := range factors {
		if f.vote == "" || out.Direction == Flat || f.vote == out.Direction {
			score += f.weight
		}
	}
	out.Confidence = clamp(score, 0, 100)
	return out
}

func emaOrdering(weight, mixedPenalty float64) rule {
	return func(s indicators.Snapshot) []factor {
		p, fast, slow := s.Price, s.EMA20, s.EMA50
		if fast == 0 || slow == 0 {
			return nil
		}
		switch {
		case p > fast && fast > slow:
			return []factor{{Long, weight, fmt.Sprintf("Price (%.4f) > EMA20 (%.4f) > EMA50 (%.4f)", p, fast, slow)}}
		case p < fast && fast < slow:
			return []factor{{Short, weight, fmt.Sprintf("Price (%.4f) < EMA20 (%.4f) < EMA50 (%.4f)", p, fast, slow)}}
		case mixedPenalty != 0:
			return []factor{{"", mixedPenalty, "Mixed EMA alignment"}}
		}
		return nil
	}
}

// macdSign votes on the MACD line. Above strong (when non-zero) the vote uses
// strongWeight instead of weight.
func macdSign(strong, weight, strongWeight float64) rule {
	return func(s indicators.Snapshot) []factor {
		m := s.MACD
		switch {
		case strong > 0 && m > strong:
			return []factor{{Long, strongWeight, fmt.Sprintf("Very strong bullish momentum: MACD = %.4f", m)}}
		case m > 0:
			return []factor{{Long, weight, fmt.Sprintf("Bullish MACD: %.4f", m)}}
		case strong > 0 && m < -strong:
			return []factor{{Short, strongWeight, fmt.Sprintf("Very strong bearish momentum: MACD = %.4f", m)}}
		case m < 0:
			return []factor{{Short, weight, fmt.Sprintf("Bearish MACD: %.4f", m)}}
		}
		return nil
	}
}

func neutralRSI(label string, v float64) []factor {
	if v >= 40 && v <= 60 {
		return []factor{{"", 10, fmt.Sprintf("%s neutral (%.2f)", label, v)}}
	}
	return nil
}

func rsiShortZone(s indicators.Snapshot) []factor {
	v := s.RSI7
	switch {
	case v < 30:
		return []factor{{Long, 20, fmt.Sprintf("RSI(7) oversold (%.2f)", v)}}
	case v > 70:
		return []factor{{Short, 20, fmt.Sprintf("RSI(7) overbought (%.2f)", v)}}
	}
	return neutralRSI("RSI(7)", v)
}

func rsiFastZone(s indicators.Snapshot) []factor {
	v := s.RSI14
	switch {
	case v < 35:
		return []factor{{Long, 15, fmt.Sprintf("RSI(14) oversold (%.2f)", v)}}
	case v > 65:
		return []factor{{Short, 15, fmt.Sprintf("RSI(14) overbought (%.2f)", v)}}
	}
	return nil
}

func rsiSlowZone(s indicators.Snapshot) []factor {
	v := s.RSI14
	switch {
	case v < 25:
		return []factor{{Long, 30, fmt.Sprintf("RSI(14) severely oversold (%.2f)", v)}}
	case v < 35:
		return []factor{{Long, 20, fmt.Sprintf("RSI(14) oversold (%.2f)", v)}}
	case v > 75:
		return []factor{{Short, 30, fmt.Sprintf("RSI(14) severely overbought (%.2f)", v)}}
	case v > 65:
		return []factor{{Short, 20, fmt.Sprintf("RSI(14) overbought (%.2f)", v)}}
	}
	return neutralRSI("RSI(14)", v)
}

func volumeFast(s indicators.Snapshot) []factor {
	r := s.VolumeRatio()
	switch {
	case r > 1.5:
		return []factor{{"", 10, fmt.Sprintf("High volume confirmation (x%.4f)", r)}}
	case r < 0.5:
		return []factor{{"", -5, fmt.Sprintf("Low volume warning (x%.4f)", r)}}
	}
	return nil
}

func volumeSlow(s indicators.Snapshot) []factor {
	r := s.VolumeRatio()
	switch {
	case r > 2.0:
		return []factor{{"", 20, fmt.Sprintf("Very high volume confirmation (x%.4f)", r)}}
	case r > 1.2:
		return []factor{{"", 15, fmt.Sprintf("High volume confirmation (x%.4f)", r)}}
	case r < 0.3:
		return []factor{{"", -15, fmt.Sprintf("Very low volume warning (x%.4f)", r)}}
	case r < 0.7:
		return []factor{{"", -5, fmt.Sprintf("Low volume warning (x%.4f)", r)}}
	}
	return nil
}

func volatility(s indicators.Snapshot) []factor {
	if s.Price <= 0 || s.ATR14 <= 0 {
		return nil
	}
	pct := s.ATR14 / s.Price * 100
	switch {
	case pct > 3:
		return []factor{{"", 10, fmt.Sprintf("High volatility (ATR %.2f%% of price)", pct)}}
	case pct < 1:
		return []factor{{"", -10, fmt.Sprintf("Low volatility (ATR %.2f%% of price)", pct)}}
	}
	return nil
}

// momentumFast compares the latest close with the close four bars earlier.
func momentumFast(s indicators.Snapshot) []factor {
	ps := s.PriceSeries
	if len(ps) < 5 {
		return nil
	}
	return momentum(ps[len(ps)-5], ps[len(ps)-1], 1, 10, "Short-term")
}

// momentumSlow compares the ends of the trailing close series.
func momentumSlow(s indicators.Snapshot) []factor {
	ps := s.PriceSeries
	if len(ps) < 5 {
		return nil
	}
	return momentum(ps[0], ps[len(ps)-1], 3, 20, "Long-term")
}

func momentum(from, to, thresholdPct, weight float64, label string) []factor {
	if from == 0 {
		return nil
	}
	change := (to - from) / from * 100
	switch {
	case change > thresholdPct:
		return []factor{{Long, weight, fmt.Sprintf("%s uptrend (%+.2f%%)", label, change)}}
	case change < -thresholdPct:
		return []factor{{Short, weight, fmt.Sprintf("%s downtrend (%+.2f%%)", label, change)}}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
