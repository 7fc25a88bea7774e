package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"signal-core/internal/events"
	"signal-core/internal/indicators"
	"signal-core/internal/ledger"
	"signal-core/internal/market"
	"signal-core/internal/monitor"
	"signal-core/internal/risk"
	"signal-core/internal/strategy"
	"signal-core/pkg/logger"
)

// Impl implements the Service interface by composing the pipeline modules.
type Impl struct {
	cfg      Config
	provider market.Provider
	fast     strategy.Analyzer
	slow     strategy.Analyzer
	riskMgr  *risk.Manager
	ledger   *ledger.Ledger
	bus      *events.Bus
	metrics  *monitor.SystemMetrics
	log      *zap.Logger
	now      func() time.Time

	// one cycle at a time; the ledger serializes its own mutations
	cycleMu sync.Mutex
}

// Config holds the configuration for creating an engine implementation.
type Config struct {
	Symbols      []string
	FastInterval string
	SlowInterval string
	HistoryBars  int
	FetchTimeout time.Duration
	Workers      int

	Provider market.Provider
	RiskMgr  *risk.Manager
	Ledger   *ledger.Ledger
	Bus      *events.Bus
	Metrics  *monitor.SystemMetrics
	Log      *zap.Logger
	Meta     SystemStatus

	// Optional overrides, mainly for tests.
	FastAnalyzer strategy.Analyzer
	SlowAnalyzer strategy.Analyzer
	Clock        func() time.Time
}

// NewImpl creates a new engine implementation.
func NewImpl(cfg Config) (*Impl, error) {
	if cfg.Provider == nil || cfg.RiskMgr == nil || cfg.Ledger == nil {
		return nil, errors.New("engine: provider, risk manager and ledger are required")
	}
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("engine: no symbols")
	}
	if cfg.HistoryBars < indicators.MinBars {
		cfg.HistoryBars = indicators.MinBars
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	e := &Impl{
		cfg:      cfg,
		provider: cfg.Provider,
		fast:     cfg.FastAnalyzer,
		slow:     cfg.SlowAnalyzer,
		riskMgr:  cfg.RiskMgr,
		ledger:   cfg.Ledger,
		bus:      cfg.Bus,
		metrics:  cfg.Metrics,
		log:      logger.OrNop(cfg.Log),
		now:      cfg.Clock,
	}
	if e.fast == nil {
		e.fast = strategy.NewShortTerm(cfg.FastInterval)
	}
	if e.slow == nil {
		e.slow = strategy.NewLongTerm(cfg.SlowInterval)
	}
	if e.metrics == nil {
		e.metrics = monitor.NewSystemMetrics()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// --- Evaluation ---

// Evaluate fetches both timeframes for symbol and runs the full pipeline.
// It reads account state but never mutates the ledger.
func (e *Impl) Evaluate(ctx context.Context, symbol string) (Analysis, error) {
	timer := monitor.NewTimer(e.metrics.EvalLatency)
	defer timer.Stop()

	fast, err := e.fetch(ctx, symbol, e.cfg.FastInterval)
	if err != nil {
		return Analysis{}, err
	}
	slow, err := e.fetch(ctx, symbol, e.cfg.SlowInterval)
	if err != nil {
		return Analysis{}, err
	}

	fused := strategy.Fuse(e.fast.Analyze(fast), e.slow.Analyze(slow))
	price := fast.Price
	atr := slow.ATR14
	decision := e.riskMgr.Assess(fused, price, atr, e.ledger.Account())
	e.metrics.IncrementEvaluations()

	return Analysis{
		Symbol:      symbol,
		Price:       price,
		ATR:         atr,
		Fast:        fast,
		Slow:        slow,
		Signal:      fused,
		Decision:    decision,
		EvaluatedAt: e.now(),
	}, nil
}

func (e *Impl) fetch(ctx context.Context, symbol, timeframe string) (indicators.Snapshot, error) {
	fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	timer := monitor.NewTimer(e.metrics.FetchLatency)
	bars, err := e.provider.History(fctx, symbol, timeframe, e.cfg.HistoryBars)
	timer.Stop()
	if err != nil {
		e.metrics.IncrementFetchFailures()
		if !errors.Is(err, market.ErrDataUnavailable) {
			err = &market.DataUnavailableError{Symbol: symbol, Timeframe: timeframe, Err: err}
		}
		return indicators.Snapshot{}, err
	}

	snap, ok := indicators.Build(market.ToSeries(bars))
	if !ok {
		e.metrics.IncrementFetchFailures()
		return indicators.Snapshot{}, &market.DataUnavailableError{
			Symbol:    symbol,
			Timeframe: timeframe,
			Err:       fmt.Errorf("insufficient history: %d bars, need %d", len(bars), indicators.MinBars),
		}
	}
	return snap, nil
}

// evaluateAll runs Evaluate for every symbol on a bounded worker pool. Results
// keep the configured symbol order; failures are isolated per symbol.
func (e *Impl) evaluateAll(ctx context.Context) ([]Analysis, map[string]error) {
	var (
		symbols = e.cfg.Symbols
		results = make([]*Analysis, len(symbols))
		errs    = make([]error, len(symbols))
		g       errgroup.Group
	)
	g.SetLimit(e.cfg.Workers)

	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			a, err := e.Evaluate(ctx, sym)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = &a
			return nil
		})
	}
	_ = g.Wait()

	var (
		out      []Analysis
		failures = make(map[string]error)
	)
	for i, sym := range symbols {
		if errs[i] != nil {
			failures[sym] = errs[i]
			continue
		}
		out = append(out, *results[i])
	}
	return out, failures
}

// Scan evaluates all symbols and returns directional signals at or above
// minConfidence, strongest first. limit <= 0 means no cap.
func (e *Impl) Scan(ctx context.Context, minConfidence float64, limit int) ([]Analysis, error) {
	analyses, failures := e.evaluateAll(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for sym, err := range failures {
		e.log.Debug("scan skipped symbol", zap.String("symbol", sym), zap.Error(err))
	}

	var out []Analysis
	for _, a := range analyses {
		if a.Signal.Actionable() && a.Signal.Confidence >= minConfidence {
			out = append(out, a)
		}
	}
	rankByConfidence(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Cycle ---

// RunCycle evaluates every symbol in parallel, marks open positions to the
// fresh prices and then opens positions for approved signals, strongest first.
func (e *Impl) RunCycle(ctx context.Context) CycleReport {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	start := e.now()
	report := CycleReport{
		StartedAt: start,
		Failed:    make(map[string]string),
		Rejected:  make(map[string]string),
	}

	analyses, failures := e.evaluateAll(ctx)
	for sym, err := range failures {
		report.Failed[sym] = err.Error()
		e.log.Warn("⚠️ symbol skipped this cycle", zap.String("symbol", sym), zap.Error(err))
	}

	prices := make(map[string]float64, len(analyses))
	for _, a := range analyses {
		prices[a.Symbol] = a.Price
		report.Evaluated = append(report.Evaluated, a.Symbol)
		if a.Signal.Actionable() {
			e.metrics.IncrementSignals()
		}
		e.bus.Publish(events.EventSignal, a)
	}

	report.Closed = e.ledger.MarkAll(prices)
	e.metrics.AddClosed(len(report.Closed))

	e.openRanked(analyses, &report)

	report.Duration = e.now().Sub(start)
	e.metrics.CycleCompleted(report.Duration)
	e.bus.Publish(events.EventCycleCompleted, report)

	if len(analyses) == 0 && len(failures) > 0 {
		e.metrics.IncrementErrors()
		e.bus.Publish(events.EventRiskAlert, monitor.Alert{
			Kind:     "cycle_failed",
			Severity: monitor.SeverityWarning,
			Message:  fmt.Sprintf("no symbol could be evaluated (%d failures)", len(failures)),
			At:       e.now(),
		})
	}

	e.log.Info("🔄 cycle completed",
		zap.Int("evaluated", len(report.Evaluated)),
		zap.Int("failed", len(report.Failed)),
		zap.Int("opened", len(report.Opened)),
		zap.Int("closed", len(report.Closed)),
		zap.Duration("took", report.Duration))
	return report
}

func (e *Impl) openRanked(analyses []Analysis, report *CycleReport) {
	var candidates []Analysis
	for _, a := range analyses {
		if a.Decision.Approved {
			candidates = append(candidates, a)
		}
	}
	rankByConfidence(candidates)

	for _, a := range candidates {
		if _, open := e.ledger.Position(a.Symbol); open {
			continue
		}

		// resize against the account as it stands after earlier opens
		d := e.riskMgr.Assess(a.Signal, a.Price, a.ATR, e.ledger.Account())
		if !d.Approved {
			report.Rejected[a.Symbol] = d.Reason
			e.metrics.IncrementRejections()
			continue
		}

		pos, err := e.ledger.Open(ledger.OpenRequest{
			Symbol:         a.Symbol,
			Direction:      d.Levels.Direction,
			Entry:          d.Levels.Entry,
			StopLoss:       d.Levels.StopLoss,
			TakeProfit:     d.Levels.TakeProfit,
			Size:           d.Sizing.Size,
			Confidence:     a.Signal.Confidence,
			FastConfidence: a.Signal.Fast.Confidence,
			SlowConfidence: a.Signal.Slow.Confidence,
		})
		if err != nil {
			report.Rejected[a.Symbol] = err.Error()
			e.metrics.IncrementRejections()
			e.log.Info("open rejected", zap.String("symbol", a.Symbol), zap.Error(err))
			if errors.Is(err, ledger.ErrPositionLimitReached) {
				return
			}
			continue
		}
		report.Opened = append(report.Opened, pos)
		e.metrics.IncrementOpened()
	}
}

// rankByConfidence sorts strongest first; ties fall back to symbol order.
func rankByConfidence(list []Analysis) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Signal.Confidence != list[j].Signal.Confidence {
			return list[i].Signal.Confidence > list[j].Signal.Confidence
		}
		return list[i].Symbol < list[j].Symbol
	})
}

// --- Positions ---

// ClosePosition exits symbol at the latest fast-timeframe close.
func (e *Impl) ClosePosition(ctx context.Context, symbol string) (ledger.ClosedTrade, error) {
	if _, ok := e.ledger.Position(symbol); !ok {
		return ledger.ClosedTrade{}, &ledger.ViolationError{Op: "close", Symbol: symbol, Err: ledger.ErrPositionNotFound}
	}

	fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()
	bar, err := e.provider.LatestBar(fctx, symbol, e.cfg.FastInterval)
	if err != nil {
		e.metrics.IncrementFetchFailures()
		if !errors.Is(err, market.ErrDataUnavailable) {
			err = &market.DataUnavailableError{Symbol: symbol, Timeframe: e.cfg.FastInterval, Err: err}
		}
		return ledger.ClosedTrade{}, err
	}

	trade, err := e.ledger.Close(symbol, bar.Close, ledger.ReasonManual)
	if err != nil {
		return ledger.ClosedTrade{}, err
	}
	e.metrics.AddClosed(1)
	return trade, nil
}

func (e *Impl) Snapshot() ledger.Snapshot {
	return e.ledger.Snapshot()
}

// --- System ---

func (e *Impl) GetSystemStatus(ctx context.Context) *SystemStatus {
	s := e.cfg.Meta
	s.Symbols = append([]string(nil), e.cfg.Symbols...)
	s.FastInterval = e.cfg.FastInterval
	s.SlowInterval = e.cfg.SlowInterval
	s.OpenCount = e.ledger.OpenCount()
	s.ServerTime = e.now()
	return &s
}
