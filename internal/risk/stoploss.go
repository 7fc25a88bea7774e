package risk

import "signal-core/internal/strategy"

// TriggerKind names which protective level fired.
type TriggerKind string

const (
	TriggerNone       TriggerKind = ""
	TriggerStopLoss   TriggerKind = "STOP_LOSS"
	TriggerTakeProfit TriggerKind = "TAKE_PROFIT"
)

// Trigger is the result of checking a price against protective levels.
// ExitPrice is the level that fired, not the observed price.
type Trigger struct {
	Kind      TriggerKind
	ExitPrice float64
}

// Fired reports whether any level was crossed.
func (t Trigger) Fired() bool { return t.Kind != TriggerNone }

// CheckProtection tests price against stop and target for a position held in
// direction. Levels are inclusive.
func CheckProtection(direction strategy.Direction, price, stop, target float64) Trigger {
	if direction == strategy.Long {
		switch {
		case price <= stop:
			return Trigger{Kind: TriggerStopLoss, ExitPrice: stop}
		case price >= target:
			return Trigger{Kind: TriggerTakeProfit, ExitPrice: target}
		}
		return Trigger{}
	}

	switch {
	case price >= stop:
		return Trigger{Kind: TriggerStopLoss, ExitPrice: stop}
	case price <= target:
		return Trigger{Kind: TriggerTakeProfit, ExitPrice: target}
	}
	return Trigger{}
}
