// Package ledger keeps the paper-trading book: open positions, closed trades
// and portfolio accounting. All mutations go through one mutex.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signal-core/internal/events"
	"signal-core/internal/risk"
	"signal-core/internal/strategy"
	"signal-core/pkg/logger"
)

// PublishedClosedTrades caps the closed trades carried by snapshot events.
// Snapshot.ClosedCount still reports the full count.
const PublishedClosedTrades = 32

// Config bounds the book.
type Config struct {
	StartingBalance float64
	MaxPositions    int
	MarginRate      float64
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithBus publishes position and snapshot events on bus.
func WithBus(bus *events.Bus) Option { return func(l *Ledger) { l.bus = bus } }

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option { return func(l *Ledger) { l.log = logger.OrNop(log) } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// Ledger is the single writer for paper positions and the portfolio.
type Ledger struct {
	mu  sync.Mutex
	cfg Config

	cash        decimal.Decimal
	realized    decimal.Decimal
	grossWins   decimal.Decimal
	grossLosses decimal.Decimal
	peakEquity  float64
	maxDDPct    float64
	total       int
	wins        int
	losses      int

	positions map[string]*Position
	closed    []ClosedTrade
	version   uint64

	bus *events.Bus
	log *zap.Logger
	now func() time.Time
}

// New creates an empty ledger funded with cfg.StartingBalance.
func New(cfg Config, opts ...Option) (*Ledger, error) {
	if cfg.StartingBalance <= 0 {
		return nil, fmt.Errorf("%w: starting balance %.2f", risk.ErrInvalidConfig, cfg.StartingBalance)
	}
	if cfg.MaxPositions <= 0 {
		return nil, fmt.Errorf("%w: max positions %d", risk.ErrInvalidConfig, cfg.MaxPositions)
	}
	if cfg.MarginRate <= 0 || cfg.MarginRate > 1 {
		return nil, fmt.Errorf("%w: margin rate %.4f", risk.ErrInvalidConfig, cfg.MarginRate)
	}

	l := &Ledger{
		cfg:        cfg,
		cash:       decimal.NewFromFloat(cfg.StartingBalance),
		peakEquity: cfg.StartingBalance,
		positions:  make(map[string]*Position),
		log:        zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Open inserts a new OPEN position and debits its margin. Every failure is a
// *ViolationError and leaves the ledger untouched.
func (l *Ledger) Open(req OpenRequest) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	const op = "open"
	if _, exists := l.positions[req.Symbol]; exists {
		return Position{}, violation(op, req.Symbol, ErrDuplicatePosition, "")
	}
	if len(l.positions) >= l.cfg.MaxPositions {
		return Position{}, violation(op, req.Symbol, ErrPositionLimitReached, "max %d", l.cfg.MaxPositions)
	}
	if req.Size <= 0 {
		return Position{}, violation(op, req.Symbol, ErrInvalidSize, "size %v", req.Size)
	}
	if req.Direction != strategy.Long && req.Direction != strategy.Short {
		return Position{}, violation(op, req.Symbol, ErrInvalidDirection, "got %q", req.Direction)
	}
	if req.Entry <= 0 {
		return Position{}, violation(op, req.Symbol, ErrInvalidPrice, "entry %v", req.Entry)
	}
	if !risk.LevelsOrdered(req.Direction, req.Entry, req.StopLoss, req.TakeProfit) {
		return Position{}, violation(op, req.Symbol, ErrInvalidLevels,
			"%s entry %v stop %v target %v", req.Direction, req.Entry, req.StopLoss, req.TakeProfit)
	}

	margin := risk.MarginFor(req.Size, req.Entry, l.cfg.MarginRate)
	marginDec := decimal.NewFromFloat(margin)
	if marginDec.GreaterThan(l.cash) {
		return Position{}, violation(op, req.Symbol, ErrInsufficientMargin,
			"need %.2f, have %.2f", margin, l.cash.InexactFloat64())
	}

	pos := &Position{
		ID:             uuid.NewString(),
		Symbol:         req.Symbol,
		Direction:      req.Direction,
		Entry:          req.Entry,
		StopLoss:       req.StopLoss,
		TakeProfit:     req.TakeProfit,
		Size:           req.Size,
		MarginUsed:     margin,
		OpenedAt:       l.now(),
		Status:         StatusOpen,
		CurrentPrice:   req.Entry,
		Confidence:     req.Confidence,
		FastConfidence: req.FastConfidence,
		SlowConfidence: req.SlowConfidence,
	}
	l.cash = l.cash.Sub(marginDec)
	l.positions[req.Symbol] = pos

	l.log.Info("📈 position opened",
		zap.String("symbol", pos.Symbol),
		zap.String("direction", string(pos.Direction)),
		zap.Float64("entry", pos.Entry),
		zap.Float64("size", pos.Size),
		zap.Float64("margin", margin),
		zap.Float64("stop_loss", pos.StopLoss),
		zap.Float64("take_profit", pos.TakeProfit))

	out := *pos
	l.publish(events.EventPositionOpened, out)
	return out, nil
}

// MarkResult reports the outcome of a mark-to-market.
type MarkResult struct {
	Position Position     `json:"position"`
	Closed   *ClosedTrade `json:"closed,omitempty"`
}

// MarkToMarket revalues the symbol's position at price and closes it at the
// protective level when price crosses stop or target.
func (l *Ledger) MarkToMarket(symbol string, price float64) (MarkResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.markLocked(symbol, price)
}

// MarkAll marks every open position that has a price in prices and returns the
// trades closed by a trigger.
func (l *Ledger) MarkAll(prices map[string]float64) []ClosedTrade {
	l.mu.Lock()
	defer l.mu.Unlock()

	var closed []ClosedTrade
	for _, sym := range l.symbolsLocked() {
		price, ok := prices[sym]
		if !ok {
			continue
		}
		res, err := l.markLocked(sym, price)
		if err != nil {
			l.log.Warn("mark to market skipped", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		if res.Closed != nil {
			closed = append(closed, *res.Closed)
		}
	}
	return closed
}

func (l *Ledger) markLocked(symbol string, price float64) (MarkResult, error) {
	pos, ok := l.positions[symbol]
	if !ok {
		return MarkResult{}, violation("mark", symbol, ErrPositionNotFound, "")
	}
	if price <= 0 {
		return MarkResult{}, violation("mark", symbol, ErrInvalidPrice, "price %v", price)
	}

	pos.CurrentPrice = price
	pos.UnrealizedPnL = pnl(pos.Direction, pos.Entry, price, pos.Size).InexactFloat64()

	trig := risk.CheckProtection(pos.Direction, price, pos.StopLoss, pos.TakeProfit)
	if !trig.Fired() {
		out := *pos
		l.publish(events.EventPositionUpdated, out)
		return MarkResult{Position: out}, nil
	}

	reason := ReasonStopLoss
	if trig.Kind == risk.TriggerTakeProfit {
		reason = ReasonTakeProfit
	}
	trade := l.closeLocked(pos, trig.ExitPrice, reason)
	return MarkResult{Position: trade.Position, Closed: &trade}, nil
}

// Close exits the symbol's position at exitPrice.
func (l *Ledger) Close(symbol string, exitPrice float64, reason CloseReason) (ClosedTrade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return ClosedTrade{}, violation("close", symbol, ErrPositionNotFound, "")
	}
	if exitPrice <= 0 {
		return ClosedTrade{}, violation("close", symbol, ErrInvalidPrice, "exit %v", exitPrice)
	}
	return l.closeLocked(pos, exitPrice, reason), nil
}

func (l *Ledger) closeLocked(pos *Position, exitPrice float64, reason CloseReason) ClosedTrade {
	now := l.now()
	realized := pnl(pos.Direction, pos.Entry, exitPrice, pos.Size)

	l.cash = l.cash.Add(decimal.NewFromFloat(pos.MarginUsed)).Add(realized)
	l.realized = l.realized.Add(realized)
	l.total++
	if realized.IsPositive() {
		l.wins++
		l.grossWins = l.grossWins.Add(realized)
	} else {
		l.losses++
		l.grossLosses = l.grossLosses.Add(realized)
	}

	pos.Status = StatusClosed
	pos.CurrentPrice = exitPrice
	pos.UnrealizedPnL = 0
	delete(l.positions, pos.Symbol)

	trade := ClosedTrade{
		Position:    *pos,
		ExitPrice:   exitPrice,
		ClosedAt:    now,
		RealizedPnL: realized.InexactFloat64(),
		Duration:    now.Sub(pos.OpenedAt),
		CloseReason: reason,
	}
	if pos.MarginUsed > 0 {
		trade.ReturnPct = realized.Div(decimal.NewFromFloat(pos.MarginUsed)).
			Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
	}
	l.closed = append(l.closed, trade)

	equity := l.equityLocked()
	if equity > l.peakEquity {
		l.peakEquity = equity
	}
	if l.peakEquity > 0 {
		if dd := (l.peakEquity - equity) / l.peakEquity * 100; dd > l.maxDDPct {
			l.maxDDPct = dd
		}
	}

	l.log.Info("🔔 position closed",
		zap.String("symbol", trade.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("exit", exitPrice),
		zap.Float64("pnl", trade.RealizedPnL),
		zap.Float64("return_pct", trade.ReturnPct))

	l.publish(events.EventPositionClosed, trade)
	return trade
}

// Position returns the open position for symbol.
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// Account returns the equity and free cash used for sizing.
func (l *Ledger) Account() risk.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return risk.Account{Equity: l.equityLocked(), AvailableCash: l.cash.InexactFloat64()}
}

// Snapshot returns a deep copy of the ledger state, including every closed
// trade.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked(len(l.closed))
}

// Summary returns the portfolio summary.
func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summaryLocked()
}

// snapshotLocked copies the state with at most the last recent closed trades.
func (l *Ledger) snapshotLocked(recent int) Snapshot {
	open := make([]Position, 0, len(l.positions))
	for _, sym := range l.symbolsLocked() {
		open = append(open, *l.positions[sym])
	}
	if recent > len(l.closed) {
		recent = len(l.closed)
	}
	closed := make([]ClosedTrade, recent)
	copy(closed, l.closed[len(l.closed)-recent:])

	return Snapshot{
		Version:       l.version,
		TakenAt:       l.now(),
		OpenPositions: open,
		ClosedTrades:  closed,
		ClosedCount:   len(l.closed),
		Portfolio:     l.portfolioLocked(),
		Summary:       l.summaryLocked(),
	}
}

func (l *Ledger) portfolioLocked() Portfolio {
	return Portfolio{
		StartingBalance: l.cfg.StartingBalance,
		Cash:            l.cash.InexactFloat64(),
		Equity:          l.equityLocked(),
		PeakEquity:      l.peakEquity,
		MaxDrawdownPct:  l.maxDDPct,
		TotalTrades:     l.total,
		WinningTrades:   l.wins,
		LosingTrades:    l.losses,
		RealizedPnL:     l.realized.InexactFloat64(),
		GrossWins:       l.grossWins.InexactFloat64(),
		GrossLosses:     l.grossLosses.InexactFloat64(),
	}
}

func (l *Ledger) equityLocked() float64 {
	eq := l.cash
	for _, p := range l.positions {
		eq = eq.Add(decimal.NewFromFloat(p.MarginUsed)).Add(decimal.NewFromFloat(p.UnrealizedPnL))
	}
	return eq.InexactFloat64()
}

func (l *Ledger) symbolsLocked() []string {
	syms := make([]string, 0, len(l.positions))
	for s := range l.positions {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}

// publish bumps the version and emits the event plus a fresh snapshot that
// carries only the most recent closed trades.
func (l *Ledger) publish(e events.Event, payload any) {
	l.version++
	if l.bus == nil {
		return
	}
	l.bus.Publish(e, payload)
	l.bus.Publish(events.EventLedgerSnapshot, l.snapshotLocked(PublishedClosedTrades))
}

func pnl(d strategy.Direction, entry, exit, size float64) decimal.Decimal {
	diff := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry))
	if d == strategy.Short {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromFloat(size))
}
