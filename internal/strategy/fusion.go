package strategy

import (
	"fmt"
	"math"
)

const (
	alignedBonus  = 15
	conflictBonus = -20
	conflictCut   = 30
)

// Fuse combines the fast and slow timeframe signals into one decision.
// The confidence is rounded to the nearest integer and kept within [0,100].
func Fuse(fast, slow TimeframeSignal) FusedSignal {
	out := FusedSignal{Fast: fast, Slow: slow}
	mean := (fast.Confidence + slow.Confidence) / 2

	switch {
	case fast.Direction != Flat && fast.Direction == slow.Direction:
		out.Direction = fast.Direction
		out.Confidence = math.Min(100, (fast.Confidence*0.6+slow.Confidence*0.4)*1.2)
		out.AlignmentBonus = alignedBonus
		out.Reasons = append(out.Reasons,
			fmt.Sprintf("Strong alignment: both %s and %s suggest %s", fast.Timeframe, slow.Timeframe, out.Direction))

	case fast.Direction != Flat && slow.Direction == Flat:
		out.Direction = fast.Direction
		out.Confidence = fast.Confidence * 0.8
		out.Reasons = append(out.Reasons,
			fmt.Sprintf("%s suggests %s, %s neutral", fast.Timeframe, fast.Direction, slow.Timeframe))

	case fast.Direction == Flat && slow.Direction != Flat:
		out.Direction = slow.Direction
		out.Confidence = slow.Confidence * 0.7
		out.Reasons = append(out.Reasons,
			fmt.Sprintf("%s suggests %s, %s neutral", slow.Timeframe, slow.Direction, fast.Timeframe))

	case fast.Direction == Flat && slow.Direction == Flat:
		out.Direction = Flat
		out.Confidence = mean
		out.Reasons = append(out.Reasons, "Both timeframes neutral")

	default:
		out.Direction = Flat
		out.Confidence = math.Max(0, mean-conflictCut)
		out.AlignmentBonus = conflictBonus
		out.Reasons = append(out.Reasons,
			fmt.Sprintf("Timeframe conflict: %s suggests %s, %s suggests %s",
				fast.Timeframe, fast.Direction, slow.Timeframe, slow.Direction))
	}

	out.Confidence = clamp(math.Round(out.Confidence), 0, 100)
	return out
}
