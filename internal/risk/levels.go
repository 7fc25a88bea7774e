package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"signal-core/internal/strategy"
)

const levelDecimals = 4

// TradeLevels holds the entry, protective stop and target for a trade.
// RiskAmount and RewardAmount are per unit of size.
type TradeLevels struct {
	Direction       strategy.Direction `json:"direction"`
	Entry           float64            `json:"entry_price"`
	StopLoss        float64            `json:"stop_loss"`
	TakeProfit      float64            `json:"take_profit"`
	RiskAmount      float64            `json:"risk_amount"`
	RewardAmount    float64            `json:"reward_amount"`
	RiskRewardRatio float64            `json:"risk_reward_ratio"`
	ATR             float64            `json:"atr"`
	StopMultiplier  float64            `json:"atr_multiplier_sl"`
	TargetMult      float64            `json:"atr_multiplier_tp"`
}

// Multipliers picks the ATR stop and target multipliers from the two
// per-timeframe confidences.
func Multipliers(fastConf, slowConf float64) (stop, target float64) {
	switch {
	case fastConf >= 70 && slowConf >= 70:
		return 1.2, 3.5
	case fastConf >= 60 || slowConf >= 60:
		return 1.5, 3.0
	default:
		return 2.0, 2.5
	}
}

// CalculateLevels derives trade levels for sig at entry. It returns nil when the
// signal is FLAT, below threshold, or entry is not a positive price. A
// non-positive atr falls back to entry*atrFallback.
func CalculateLevels(sig strategy.FusedSignal, entry, atr, threshold, atrFallback float64) *TradeLevels {
	if !sig.Actionable() || sig.Confidence < threshold || entry <= 0 {
		return nil
	}
	if atr <= 0 || math.IsNaN(atr) {
		atr = entry * atrFallback
	}
	if atr <= 0 {
		return nil
	}

	stopMult, targetMult := Multipliers(sig.Fast.Confidence, sig.Slow.Confidence)

	var stop, target float64
	if sig.Direction == strategy.Long {
		stop = entry - stopMult*atr
		target = entry + targetMult*atr
	} else {
		stop = entry + stopMult*atr
		target = entry - targetMult*atr
	}

	// Rounding must not collapse a level onto the entry.
	rs, rt := round(stop, levelDecimals), round(target, levelDecimals)
	if LevelsOrdered(sig.Direction, entry, rs, rt) {
		stop, target = rs, rt
	}

	risk := math.Abs(entry - stop)
	reward := math.Abs(target - entry)
	return &TradeLevels{
		Direction:       sig.Direction,
		Entry:           entry,
		StopLoss:        stop,
		TakeProfit:      target,
		RiskAmount:      risk,
		RewardAmount:    reward,
		RiskRewardRatio: round(reward/risk, levelDecimals),
		ATR:             atr,
		StopMultiplier:  stopMult,
		TargetMult:      targetMult,
	}
}

// LevelsOrdered reports whether stop and target are positive and bracket entry
// on the correct sides for d.
func LevelsOrdered(d strategy.Direction, entry, stop, target float64) bool {
	if stop <= 0 || target <= 0 {
		return false
	}
	if d == strategy.Long {
		return stop < entry && entry < target
	}
	return target < entry && entry < stop
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
