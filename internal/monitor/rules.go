package monitor

import (
	"fmt"
	"math"
	"time"

	"signal-core/internal/ledger"
)

// RuleEvaluator inspects ledger activity and decides which alerts to raise.
// Drawdown alerts fire once per whole-percent step above the threshold.
type RuleEvaluator struct {
	DrawdownAlertPct float64

	lastDrawdownStep float64
}

// Seed marks the drawdown already recorded in a restored snapshot as alerted,
// so a restart does not repeat the alert for the same step.
func (r *RuleEvaluator) Seed(s ledger.Snapshot) {
	if dd := s.Portfolio.MaxDrawdownPct; r.DrawdownAlertPct > 0 && dd >= r.DrawdownAlertPct {
		r.lastDrawdownStep = math.Floor(dd)
	}
}

// CheckClose raises an alert for every exit; stop-losses are warnings.
func (r *RuleEvaluator) CheckClose(t ledger.ClosedTrade, now time.Time) Alert {
	sev := SeverityInfo
	if t.CloseReason == ledger.ReasonStopLoss {
		sev = SeverityWarning
	}
	return Alert{
		Kind:     "position_closed",
		Severity: sev,
		Symbol:   t.Symbol,
		Message: fmt.Sprintf("%s %s closed (%s) at %.4f, pnl %.2f (%.2f%%)",
			t.Symbol, t.Direction, t.CloseReason, t.ExitPrice, t.RealizedPnL, t.ReturnPct),
		Value: t.RealizedPnL,
		At:    now,
	}
}

// CheckSnapshot returns a drawdown alert when max drawdown crosses a new step.
func (r *RuleEvaluator) CheckSnapshot(s ledger.Snapshot, now time.Time) (Alert, bool) {
	dd := s.Portfolio.MaxDrawdownPct
	if r.DrawdownAlertPct <= 0 || dd < r.DrawdownAlertPct {
		return Alert{}, false
	}
	step := math.Floor(dd)
	if step <= r.lastDrawdownStep {
		return Alert{}, false
	}
	r.lastDrawdownStep = step

	sev := SeverityWarning
	if dd >= 2*r.DrawdownAlertPct {
		sev = SeverityCritical
	}
	return Alert{
		Kind:     "max_drawdown",
		Severity: sev,
		Message:  fmt.Sprintf("max drawdown %.2f%% exceeds %.2f%%", dd, r.DrawdownAlertPct),
		Value:    dd,
		At:       now,
	}, true
}
