package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"signal-core/internal/events"
	"signal-core/internal/indicators"
	"signal-core/internal/ledger"
	"signal-core/internal/market"
	"signal-core/internal/risk"
	"signal-core/internal/strategy"
)

// stubAnalyzer returns a fixed signal per last price so tests control fusion.
type stubAnalyzer struct {
	name    string
	byPrice map[float64]strategy.TimeframeSignal
}

func (s stubAnalyzer) Name() string { return s.name }

func (s stubAnalyzer) Analyze(snap indicators.Snapshot) strategy.TimeframeSignal {
	sig, ok := s.byPrice[snap.Price]
	if !ok {
		sig = strategy.TimeframeSignal{Direction: strategy.Flat}
	}
	sig.Timeframe = s.name
	return sig
}

func flatBars(n int, price float64) []market.PriceBar {
	bars := make([]market.PriceBar, n)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = market.PriceBar{
			OpenTime: t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:     price,
			High:     price + 1,
			Low:      price - 1,
			Close:    price,
			Volume:   10,
		}
	}
	return bars
}

type fixture struct {
	provider *market.StaticProvider
	ledger   *ledger.Ledger
	bus      *events.Bus
	engine   *Impl
}

func newFixture(t *testing.T, maxPositions int) *fixture {
	t.Helper()

	p := market.NewStaticProvider()
	for sym, price := range map[string]float64{"BTCUSDT": 100, "ETHUSDT": 200, "SOLUSDT": 50} {
		p.Set(sym, "5m", flatBars(60, price))
		p.Set(sym, "4h", flatBars(60, price))
	}

	bus := events.NewBus()
	l, err := ledger.New(ledger.Config{StartingBalance: 10000, MaxPositions: maxPositions, MarginRate: 0.1}, ledger.WithBus(bus))
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}

	signals := map[float64]strategy.TimeframeSignal{
		100: {Direction: strategy.Long, Confidence: 90},
		200: {Direction: strategy.Short, Confidence: 80},
		50:  {Direction: strategy.Long, Confidence: 60},
	}
	e, err := NewImpl(Config{
		Symbols:      []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"},
		FastInterval: "5m",
		SlowInterval: "4h",
		HistoryBars:  60,
		FetchTimeout: time.Second,
		Workers:      2,
		Provider:     p,
		RiskMgr:      risk.NewInMemory(),
		Ledger:       l,
		Bus:          bus,
		FastAnalyzer: stubAnalyzer{name: "5m", byPrice: signals},
		SlowAnalyzer: stubAnalyzer{name: "4h", byPrice: signals},
	})
	if err != nil {
		t.Fatalf("NewImpl: %v", err)
	}
	return &fixture{provider: p, ledger: l, bus: bus, engine: e}
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t, 3)

	a, err := f.engine.Evaluate(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if a.Price != 100 || a.ATR != 2 {
		t.Fatalf("price/atr=%v/%v, expected 100/2", a.Price, a.ATR)
	}
	if a.Signal.Direction != strategy.Long || a.Signal.Confidence != 100 {
		t.Fatalf("signal=%s/%v, expected LONG/100", a.Signal.Direction, a.Signal.Confidence)
	}
	if !a.Decision.Approved || a.Decision.Levels.StopLoss != 97.6 || a.Decision.Levels.TakeProfit != 107 {
		t.Fatalf("decision=%+v levels=%+v", a.Decision, a.Decision.Levels)
	}
	if f.ledger.OpenCount() != 0 {
		t.Fatalf("Evaluate must not open positions")
	}
}

func TestEvaluateDataUnavailable(t *testing.T) {
	f := newFixture(t, 3)
	f.provider.Set("ADAUSDT", "5m", flatBars(10, 1))
	f.provider.Set("ADAUSDT", "4h", flatBars(60, 1))

	for _, sym := range []string{"XRPUSDT", "ADAUSDT"} {
		_, err := f.engine.Evaluate(context.Background(), sym)
		if !errors.Is(err, market.ErrDataUnavailable) {
			t.Fatalf("%s err=%v, expected ErrDataUnavailable", sym, err)
		}
	}
}

// stallingProvider never answers History for the listed symbol/timeframe pairs
// until the caller gives up.
type stallingProvider struct {
	*market.StaticProvider
	stalled map[string]bool
	calls   atomic.Int32
}

func (p *stallingProvider) History(ctx context.Context, symbol, timeframe string, count int) ([]market.PriceBar, error) {
	if p.stalled[symbol+"|"+timeframe] {
		p.calls.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return p.StaticProvider.History(ctx, symbol, timeframe, count)
}

func withStalledFetch(t *testing.T, f *fixture, keys ...string) (*Impl, *stallingProvider) {
	t.Helper()
	sp := &stallingProvider{StaticProvider: f.provider, stalled: make(map[string]bool)}
	for _, k := range keys {
		sp.stalled[k] = true
	}
	cfg := f.engine.cfg
	cfg.Provider = sp
	cfg.FetchTimeout = 50 * time.Millisecond
	e, err := NewImpl(cfg)
	if err != nil {
		t.Fatalf("NewImpl: %v", err)
	}
	return e, sp
}

func TestEvaluateFetchTimeout(t *testing.T) {
	f := newFixture(t, 3)
	e, sp := withStalledFetch(t, f, "BTCUSDT|4h")

	start := time.Now()
	_, err := e.Evaluate(context.Background(), "BTCUSDT")
	took := time.Since(start)

	if !errors.Is(err, market.ErrDataUnavailable) {
		t.Fatalf("err=%v, expected ErrDataUnavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, expected the deadline as cause", err)
	}
	if took > time.Second {
		t.Fatalf("Evaluate took %v, expected about the 50ms fetch timeout", took)
	}
	if sp.calls.Load() != 1 {
		t.Fatalf("stalled calls=%d, expected 1", sp.calls.Load())
	}
}

func TestRunCycleIsolatesStalledSymbol(t *testing.T) {
	f := newFixture(t, 3)
	e, _ := withStalledFetch(t, f, "BTCUSDT|5m")

	start := time.Now()
	report := e.RunCycle(context.Background())
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("RunCycle took %v, expected the stalled fetch to time out", took)
	}

	if msg, ok := report.Failed["BTCUSDT"]; !ok {
		t.Fatalf("failed=%v, expected BTCUSDT", report.Failed)
	} else if msg == "" {
		t.Fatalf("BTCUSDT failure has no message")
	}
	evaluated := make(map[string]bool)
	for _, sym := range report.Evaluated {
		evaluated[sym] = true
	}
	if len(evaluated) != 2 || !evaluated["ETHUSDT"] || !evaluated["SOLUSDT"] {
		t.Fatalf("evaluated=%v, expected ETHUSDT and SOLUSDT", report.Evaluated)
	}
	for _, pos := range report.Opened {
		if pos.Symbol == "BTCUSDT" {
			t.Fatalf("opened a position for the stalled symbol")
		}
	}
}

func TestRunCycleOpensRankedAndIsolatesFailures(t *testing.T) {
	f := newFixture(t, 3)
	cycles, unsub := f.bus.Subscribe(events.EventCycleCompleted, 4)
	defer unsub()

	report := f.engine.RunCycle(context.Background())

	if len(report.Evaluated) != 3 {
		t.Fatalf("evaluated=%v, expected 3 symbols", report.Evaluated)
	}
	if _, ok := report.Failed["XRPUSDT"]; !ok || len(report.Failed) != 1 {
		t.Fatalf("failed=%v, expected only XRPUSDT", report.Failed)
	}
	if len(report.Opened) != 2 || report.Opened[0].Symbol != "BTCUSDT" || report.Opened[1].Symbol != "ETHUSDT" {
		t.Fatalf("opened=%+v, expected BTCUSDT then ETHUSDT", report.Opened)
	}
	if eth := report.Opened[1]; eth.Direction != strategy.Short || eth.StopLoss != 202.4 || eth.TakeProfit != 193 {
		t.Fatalf("ETH position=%+v", eth)
	}
	if f.ledger.OpenCount() != 2 {
		t.Fatalf("OpenCount=%d, expected 2", f.ledger.OpenCount())
	}

	select {
	case msg := <-cycles:
		if r, ok := msg.(CycleReport); !ok || len(r.Opened) != 2 {
			t.Fatalf("cycle event payload=%#v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("no cycle.completed event")
	}

	again := f.engine.RunCycle(context.Background())
	if len(again.Opened) != 0 || len(again.Closed) != 0 {
		t.Fatalf("second cycle opened=%d closed=%d, expected none", len(again.Opened), len(again.Closed))
	}
}

func TestRunCycleRespectsPositionLimit(t *testing.T) {
	f := newFixture(t, 1)

	report := f.engine.RunCycle(context.Background())
	if len(report.Opened) != 1 || report.Opened[0].Symbol != "BTCUSDT" {
		t.Fatalf("opened=%+v, expected only the strongest signal", report.Opened)
	}
	if _, ok := report.Rejected["ETHUSDT"]; !ok {
		t.Fatalf("rejected=%v, expected ETHUSDT", report.Rejected)
	}
}

func TestRunCycleClosesOnTakeProfit(t *testing.T) {
	f := newFixture(t, 3)
	f.engine.RunCycle(context.Background())

	bars := flatBars(60, 100)
	bars[59].Close, bars[59].High = 108, 108.5
	f.provider.Set("BTCUSDT", "5m", bars)

	report := f.engine.RunCycle(context.Background())
	if len(report.Closed) != 1 {
		t.Fatalf("closed=%+v, expected BTCUSDT take-profit", report.Closed)
	}
	trade := report.Closed[0]
	if trade.Symbol != "BTCUSDT" || trade.CloseReason != ledger.ReasonTakeProfit || trade.ExitPrice != 107 {
		t.Fatalf("trade=%+v, expected TP exit at 107", trade)
	}
	if _, open := f.ledger.Position("BTCUSDT"); open {
		t.Fatalf("BTCUSDT should not reopen on a non-qualifying signal")
	}
}

func TestClosePosition(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	if _, err := f.engine.ClosePosition(ctx, "BTCUSDT"); !errors.Is(err, ledger.ErrPositionNotFound) {
		t.Fatalf("err=%v, expected ErrPositionNotFound", err)
	}

	f.engine.RunCycle(ctx)
	trade, err := f.engine.ClosePosition(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if trade.CloseReason != ledger.ReasonManual || trade.ExitPrice != 100 || trade.RealizedPnL != 0 {
		t.Fatalf("trade=%+v, expected manual exit at 100", trade)
	}
	if got := f.engine.Snapshot().Portfolio.TotalTrades; got != 1 {
		t.Fatalf("TotalTrades=%d, expected 1", got)
	}
}

func TestScan(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	all, err := f.engine.Scan(ctx, 80, 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(all) != 2 || all[0].Symbol != "BTCUSDT" || all[1].Symbol != "ETHUSDT" {
		t.Fatalf("scan=%v, expected BTCUSDT, ETHUSDT", symbols(all))
	}

	top, _ := f.engine.Scan(ctx, 0, 1)
	if len(top) != 1 || top[0].Signal.Confidence != 100 {
		t.Fatalf("limit=1 gave %v", symbols(top))
	}
	if f.ledger.OpenCount() != 0 {
		t.Fatalf("Scan must not open positions")
	}
}

func TestSystemStatus(t *testing.T) {
	f := newFixture(t, 3)
	s := f.engine.GetSystemStatus(context.Background())
	if len(s.Symbols) != 4 || s.FastInterval != "5m" || s.SlowInterval != "4h" {
		t.Fatalf("status=%+v", s)
	}
}

type countingService struct {
	Service
	calls atomic.Int32
}

func (c *countingService) RunCycle(context.Context) CycleReport {
	c.calls.Add(1)
	return CycleReport{}
}

func TestSchedulerRunsUntilCanceled(t *testing.T) {
	svc := &countingService{}
	s := NewScheduler(svc, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for svc.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	s.Wait()

	if n := svc.calls.Load(); n < 3 {
		t.Fatalf("cycles=%d, expected at least 3", n)
	}
}

func symbols(list []Analysis) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Symbol
	}
	return out
}
