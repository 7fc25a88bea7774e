package strategy

import "signal-core/internal/indicators"

// Direction is the side a signal recommends.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	Flat  Direction = "FLAT"
)

// TimeframeSignal is the scored opinion of one timeframe.
type TimeframeSignal struct {
	Timeframe   string    `json:"timeframe"`
	Direction   Direction `json:"direction"`
	Confidence  float64   `json:"confidence"`
	VolumeRatio float64   `json:"volume_ratio"`
	LongVotes   int       `json:"long_votes"`
	ShortVotes  int       `json:"short_votes"`
	// Reasons is diagnostic only and never feeds back into scoring.
	Reasons []string `json:"reasons"`
}

// FusedSignal combines a fast and a slow TimeframeSignal.
type FusedSignal struct {
	Direction      Direction       `json:"direction"`
	Confidence     float64         `json:"confidence"`
	AlignmentBonus float64         `json:"alignment_bonus"`
	Fast           TimeframeSignal `json:"fast"`
	Slow           TimeframeSignal `json:"slow"`
	Reasons        []string        `json:"reasons"`
}

// Actionable reports whether the fused signal picks a side.
func (f FusedSignal) Actionable() bool {
	return f.Direction == Long || f.Direction == Short
}

// Analyzer scores one timeframe from its indicator snapshot.
type Analyzer interface {
	// Name returns the timeframe label used in reasons and logs.
	Name() string
	// Analyze applies the rule table to snap.
	Analyze(snap indicators.Snapshot) TimeframeSignal
}
