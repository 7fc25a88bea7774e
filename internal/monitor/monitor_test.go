package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"signal-core/internal/events"
	"signal-core/internal/ledger"
	"signal-core/internal/strategy"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []Alert
}

func (c *captureSink) Send(a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *captureSink) wait(t *testing.T, n int) []Alert {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.alerts) >= n {
			out := append([]Alert(nil), c.alerts...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d alerts", n)
	return nil
}

func TestLatencyHistogramStats(t *testing.T) {
	h := NewLatencyHistogram(4)
	for _, v := range []float64{10, 20, 30, 40, 50} {
		h.Record(v)
	}
	s := h.Stats()
	if s.Count != 4 || s.Min != 20 || s.Max != 50 || s.Avg != 35 {
		t.Fatalf("stats=%+v, expected window [20..50]", s)
	}
	if empty := NewLatencyHistogram(0).Stats(); empty.Count != 0 {
		t.Fatalf("empty histogram count=%d", empty.Count)
	}
}

func TestSystemMetricsCounters(t *testing.T) {
	m := NewSystemMetrics()
	m.IncrementEvaluations()
	m.IncrementEvaluations()
	m.IncrementFetchFailures()
	m.IncrementOpened()
	m.AddClosed(2)
	m.AddClosed(0)
	m.CycleCompleted(15 * time.Millisecond)

	s := m.GetSnapshot()
	if s.Evaluations != 2 || s.FetchFailures != 1 || s.PositionsOpened != 1 || s.PositionsClosed != 2 || s.Cycles != 1 {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if s.CycleLatency.Count != 1 || s.LastCycle.IsZero() {
		t.Fatalf("cycle latency not recorded: %+v", s.CycleLatency)
	}
}

func TestRuleEvaluatorDrawdownSteps(t *testing.T) {
	r := &RuleEvaluator{DrawdownAlertPct: 5}
	now := time.Now()
	snap := func(dd float64) ledger.Snapshot {
		return ledger.Snapshot{Portfolio: ledger.Portfolio{MaxDrawdownPct: dd}}
	}

	tests := []struct {
		dd   float64
		fire bool
		sev  Severity
	}{
		{3, false, ""},
		{5.2, true, SeverityWarning},
		{5.8, false, ""},
		{6.1, true, SeverityWarning},
		{10.5, true, SeverityCritical},
	}
	for _, tt := range tests {
		a, ok := r.CheckSnapshot(snap(tt.dd), now)
		if ok != tt.fire {
			t.Fatalf("dd=%v fired=%v, expected %v", tt.dd, ok, tt.fire)
		}
		if ok && a.Severity != tt.sev {
			t.Fatalf("dd=%v severity=%v, expected %v", tt.dd, a.Severity, tt.sev)
		}
	}
}

func TestRuleEvaluatorSeedFromRestoredSnapshot(t *testing.T) {
	snap := func(dd float64) ledger.Snapshot {
		return ledger.Snapshot{Portfolio: ledger.Portfolio{MaxDrawdownPct: dd}}
	}
	tests := []struct {
		name     string
		restored float64
		next     float64
		fire     bool
	}{
		{"same step after restart", 6.4, 6.4, false},
		{"still inside restored step", 6.4, 6.9, false},
		{"next step after restart", 6.4, 7.1, true},
		{"restored below threshold", 3, 5.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &RuleEvaluator{DrawdownAlertPct: 5}
			r.Seed(snap(tt.restored))
			if _, ok := r.CheckSnapshot(snap(tt.next), time.Now()); ok != tt.fire {
				t.Fatalf("fired=%v, expected %v", ok, tt.fire)
			}
		})
	}
}

func TestRuleEvaluatorCloseSeverity(t *testing.T) {
	r := &RuleEvaluator{}
	trade := ledger.ClosedTrade{
		Position:    ledger.Position{Symbol: "BTCUSDT", Direction: strategy.Long},
		CloseReason: ledger.ReasonStopLoss,
		RealizedPnL: -30,
	}
	if a := r.CheckClose(trade, time.Now()); a.Severity != SeverityWarning || a.Symbol != "BTCUSDT" {
		t.Fatalf("stop-loss alert=%+v, expected warning", a)
	}
	trade.CloseReason = ledger.ReasonTakeProfit
	if a := r.CheckClose(trade, time.Now()); a.Severity != SeverityInfo {
		t.Fatalf("take-profit severity=%v, expected info", a.Severity)
	}
}

func TestMonitorDeliversAlerts(t *testing.T) {
	bus := events.NewBus()
	sink := &captureSink{}
	m := &Monitor{Bus: bus, Sinks: []AlertSink{sink}, Rules: &RuleEvaluator{DrawdownAlertPct: 5}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	bus.Publish(events.EventPositionClosed, ledger.ClosedTrade{
		Position:    ledger.Position{Symbol: "ETHUSDT", Direction: strategy.Short},
		CloseReason: ledger.ReasonTakeProfit,
	})
	bus.Publish(events.EventLedgerSnapshot, ledger.Snapshot{Portfolio: ledger.Portfolio{MaxDrawdownPct: 7}})
	bus.Publish(events.EventRiskAlert, Alert{Kind: "cycle_failed", Severity: SeverityWarning, Message: "no symbol could be evaluated"})

	alerts := sink.wait(t, 3)
	kinds := map[string]bool{}
	for _, a := range alerts {
		kinds[a.Kind] = true
	}
	for _, k := range []string{"position_closed", "max_drawdown", "cycle_failed"} {
		if !kinds[k] {
			t.Fatalf("missing alert kind %q in %+v", k, alerts)
		}
	}
}
