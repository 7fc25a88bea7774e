package risk

import (
	"errors"
	"math"
	"testing"

	"signal-core/internal/strategy"
)

func fused(d strategy.Direction, conf, fastConf, slowConf float64) strategy.FusedSignal {
	return strategy.FusedSignal{
		Direction:  d,
		Confidence: conf,
		Fast:       strategy.TimeframeSignal{Direction: d, Confidence: fastConf},
		Slow:       strategy.TimeframeSignal{Direction: d, Confidence: slowConf},
	}
}

func TestMultipliers(t *testing.T) {
	tests := []struct {
		fast, slow        float64
		wantStop, wantTgt float64
	}{
		{70, 70, 1.2, 3.5},
		{90, 75, 1.2, 3.5},
		{69, 95, 1.5, 3.0},
		{60, 10, 1.5, 3.0},
		{59, 59, 2.0, 2.5},
	}
	for _, tt := range tests {
		stop, tgt := Multipliers(tt.fast, tt.slow)
		if stop != tt.wantStop || tgt != tt.wantTgt {
			t.Fatalf("Multipliers(%v,%v)=%v/%v, expected %v/%v", tt.fast, tt.slow, stop, tgt, tt.wantStop, tt.wantTgt)
		}
	}
}

func TestCalculateLevels(t *testing.T) {
	long := CalculateLevels(fused(strategy.Long, 91, 80, 70), 100, 2, 80, 0.02)
	if long == nil {
		t.Fatalf("expected levels for LONG")
	}
	if long.StopLoss != 97.6 || long.TakeProfit != 107 {
		t.Fatalf("LONG stop/target=%v/%v, expected 97.6/107", long.StopLoss, long.TakeProfit)
	}
	if math.Abs(long.RiskAmount-2.4) > 1e-9 || math.Abs(long.RewardAmount-7) > 1e-9 {
		t.Fatalf("risk/reward=%v/%v, expected 2.4/7", long.RiskAmount, long.RewardAmount)
	}
	if long.RiskRewardRatio != 2.9167 {
		t.Fatalf("ratio=%v, expected 2.9167", long.RiskRewardRatio)
	}

	short := CalculateLevels(fused(strategy.Short, 85, 65, 50), 100, 2, 80, 0.02)
	if short == nil {
		t.Fatalf("expected levels for SHORT")
	}
	if !(short.TakeProfit < short.Entry && short.Entry < short.StopLoss) {
		t.Fatalf("SHORT ordering violated: %+v", short)
	}
	if short.StopLoss != 103 || short.TakeProfit != 94 {
		t.Fatalf("SHORT stop/target=%v/%v, expected 103/94", short.StopLoss, short.TakeProfit)
	}
}

func TestCalculateLevelsRejects(t *testing.T) {
	if got := CalculateLevels(fused(strategy.Flat, 95, 90, 90), 100, 2, 80, 0.02); got != nil {
		t.Fatalf("FLAT produced levels: %+v", got)
	}
	if got := CalculateLevels(fused(strategy.Long, 79, 90, 90), 100, 2, 80, 0.02); got != nil {
		t.Fatalf("below threshold produced levels: %+v", got)
	}
	if got := CalculateLevels(fused(strategy.Long, 90, 90, 90), 0, 2, 80, 0.02); got != nil {
		t.Fatalf("zero entry produced levels: %+v", got)
	}
}

func TestCalculateLevelsATRFallback(t *testing.T) {
	lv := CalculateLevels(fused(strategy.Long, 90, 50, 50), 200, 0, 80, 0.02)
	if lv == nil {
		t.Fatalf("expected levels")
	}
	if lv.ATR != 4 {
		t.Fatalf("ATR=%v, expected fallback 4", lv.ATR)
	}
	if lv.StopLoss != 192 || lv.TakeProfit != 210 {
		t.Fatalf("stop/target=%v/%v, expected 192/210", lv.StopLoss, lv.TakeProfit)
	}
}

func TestSizePosition(t *testing.T) {
	s, err := SizePosition(Account{Equity: 10000, AvailableCash: 10000}, 100, 98, 0.02, 0.1)
	if err != nil {
		t.Fatalf("SizePosition: %v", err)
	}
	if s.RiskAmount != 200 {
		t.Fatalf("RiskAmount=%v, expected 200", s.RiskAmount)
	}
	if s.Size != 100 {
		t.Fatalf("Size=%v, expected 100", s.Size)
	}
	if s.Margin != 1000 {
		t.Fatalf("Margin=%v, expected 1000", s.Margin)
	}
}

func TestSizePositionErrors(t *testing.T) {
	if _, err := SizePosition(Account{Equity: 10000, AvailableCash: 10000}, 100, 100, 0.02, 0.1); !errors.Is(err, ErrArithmeticGuard) {
		t.Fatalf("err=%v, expected ErrArithmeticGuard", err)
	}

	s, err := SizePosition(Account{Equity: 10000, AvailableCash: 500}, 100, 98, 0.02, 0.1)
	if !errors.Is(err, ErrInsufficientMargin) {
		t.Fatalf("err=%v, expected ErrInsufficientMargin", err)
	}
	if s.Margin != 1000 {
		t.Fatalf("Margin=%v, expected 1000 reported with rejection", s.Margin)
	}

	if _, err := SizePosition(Account{Equity: 0, AvailableCash: 500}, 100, 98, 0.02, 0.1); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("err=%v, expected ErrInvalidSize", err)
	}
}

func TestCheckProtection(t *testing.T) {
	tests := []struct {
		name      string
		dir       strategy.Direction
		price     float64
		wantKind  TriggerKind
		wantPrice float64
	}{
		{"long at target", strategy.Long, 110, TriggerTakeProfit, 110},
		{"long through target", strategy.Long, 115, TriggerTakeProfit, 110},
		{"long at stop", strategy.Long, 95, TriggerStopLoss, 95},
		{"long gap below stop", strategy.Long, 90, TriggerStopLoss, 95},
		{"long inside", strategy.Long, 100, TriggerNone, 0},
		{"short at target", strategy.Short, 90, TriggerTakeProfit, 90},
		{"short through stop", strategy.Short, 108, TriggerStopLoss, 105},
		{"short inside", strategy.Short, 100, TriggerNone, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stop, target := 95.0, 110.0
			if tt.dir == strategy.Short {
				stop, target = 105, 90
			}
			got := CheckProtection(tt.dir, tt.price, stop, target)
			if got.Kind != tt.wantKind || got.ExitPrice != tt.wantPrice {
				t.Fatalf("got %+v, expected %v at %v", got, tt.wantKind, tt.wantPrice)
			}
		})
	}
}

func TestManagerAssess(t *testing.T) {
	mgr := NewInMemory()
	acct := Account{Equity: 10000, AvailableCash: 10000}

	d := mgr.Assess(fused(strategy.Long, 91, 80, 70), 100, 2, acct)
	if !d.Approved || d.Levels == nil || d.Sizing == nil {
		t.Fatalf("expected approved decision, got %+v", d)
	}
	// risk 200 over a 2.4 stop distance
	if math.Abs(d.Sizing.Size-83.333333) > 1e-6 {
		t.Fatalf("Size=%v, expected 83.333333", d.Sizing.Size)
	}

	if d := mgr.Assess(fused(strategy.Long, 70, 80, 70), 100, 2, acct); d.Approved || d.Levels != nil {
		t.Fatalf("below threshold should be rejected: %+v", d)
	}

	poor := Account{Equity: 10000, AvailableCash: 10}
	d = mgr.Assess(fused(strategy.Short, 95, 90, 90), 100, 2, poor)
	if d.Approved || !errors.Is(d.Err, ErrInsufficientMargin) {
		t.Fatalf("expected insufficient margin, got %+v", d)
	}
}

func TestManagerUpdateConfig(t *testing.T) {
	mgr := NewInMemory()
	bad := DefaultConfig()
	bad.RiskPerTrade = 0
	if err := mgr.UpdateConfig(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err=%v, expected ErrInvalidConfig", err)
	}
	if mgr.GetConfig().RiskPerTrade != 0.02 {
		t.Fatalf("config changed after rejected update")
	}

	good := DefaultConfig()
	good.MaxPositions = 5
	if err := mgr.UpdateConfig(good); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if mgr.GetConfig().MaxPositions != 5 {
		t.Fatalf("MaxPositions=%d, expected 5", mgr.GetConfig().MaxPositions)
	}
}
