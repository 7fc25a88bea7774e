package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (l *Ledger) summaryLocked() Summary {
	var margin, unrealized decimal.Decimal
	for _, p := range l.positions {
		margin = margin.Add(decimal.NewFromFloat(p.MarginUsed))
		unrealized = unrealized.Add(decimal.NewFromFloat(p.UnrealizedPnL))
	}
	total := l.cash.Add(margin).Add(unrealized)

	s := Summary{
		StartingBalance: l.cfg.StartingBalance,
		CurrentBalance:  l.cash.InexactFloat64(),
		MarginUsed:      margin.InexactFloat64(),
		UnrealizedPnL:   unrealized.InexactFloat64(),
		RealizedPnL:     l.realized.InexactFloat64(),
		TotalValue:      total.InexactFloat64(),
		ActivePositions: len(l.positions),
		TotalTrades:     l.total,
		WinningTrades:   l.wins,
		LosingTrades:    l.losses,
		PeakEquity:      l.peakEquity,
		MaxDrawdownPct:  l.maxDDPct,
	}

	start := decimal.NewFromFloat(l.cfg.StartingBalance)
	if start.IsPositive() {
		s.TotalReturnPct = total.Sub(start).Div(start).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
	}
	if l.total > 0 {
		s.WinRate = float64(l.wins) / float64(l.total) * 100
	}
	if l.wins > 0 {
		s.AvgWin = l.grossWins.Div(decimal.NewFromInt(int64(l.wins))).InexactFloat64()
	}
	if l.losses > 0 {
		s.AvgLoss = l.grossLosses.Div(decimal.NewFromInt(int64(l.losses))).InexactFloat64()
	}
	return s
}

// Restore replaces the ledger contents with a previously saved snapshot. It is
// meant for startup, before the scheduler runs. The version continues from the
// saved one so downstream writers can keep discarding stale snapshots.
func (l *Ledger) Restore(s Snapshot) error {
	p, open, closed := s.Portfolio, s.OpenPositions, s.ClosedTrades
	if len(open) > l.cfg.MaxPositions {
		return fmt.Errorf("restore: %d open positions exceed max %d", len(open), l.cfg.MaxPositions)
	}

	positions := make(map[string]*Position, len(open))
	for i := range open {
		pos := open[i]
		if _, dup := positions[pos.Symbol]; dup {
			return fmt.Errorf("restore: %w: %s", ErrDuplicatePosition, pos.Symbol)
		}
		pos.Status = StatusOpen
		positions[pos.Symbol] = &pos
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = decimal.NewFromFloat(p.Cash)
	l.realized = decimal.NewFromFloat(p.RealizedPnL)
	l.grossWins = decimal.NewFromFloat(p.GrossWins)
	l.grossLosses = decimal.NewFromFloat(p.GrossLosses)
	l.peakEquity = p.PeakEquity
	if l.peakEquity <= 0 {
		l.peakEquity = l.cfg.StartingBalance
	}
	l.maxDDPct = p.MaxDrawdownPct
	l.total = p.TotalTrades
	l.wins = p.WinningTrades
	l.losses = p.LosingTrades
	l.positions = positions
	l.closed = append([]ClosedTrade(nil), closed...)
	if s.Version > l.version {
		l.version = s.Version
	}
	l.version++

	l.log.Info("♻️ ledger restored",
		zap.Int("open_positions", len(positions)),
		zap.Int("closed_trades", len(closed)),
		zap.Float64("cash", p.Cash))
	return nil
}
