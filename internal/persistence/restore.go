package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signal-core/internal/ledger"
	"signal-core/internal/strategy"
	"signal-core/pkg/db"
)

// LoadSnapshot rebuilds a ledger snapshot from the database. found is false on
// a fresh database.
func LoadSnapshot(ctx context.Context, database *db.Database) (snap ledger.Snapshot, found bool, err error) {
	p, err := database.LoadPortfolio(ctx)
	if errors.Is(err, db.ErrNotFound) {
		return ledger.Snapshot{}, false, nil
	}
	if err != nil {
		return ledger.Snapshot{}, false, err
	}

	positions, err := database.ListPositions(ctx)
	if err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("load positions: %w", err)
	}
	trades, err := database.ListClosedTrades(ctx, 0)
	if err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("load closed trades: %w", err)
	}

	snap = ledger.Snapshot{
		Version: p.Version,
		TakenAt: p.UpdatedAt,
		Portfolio: ledger.Portfolio{
			StartingBalance: p.StartingBalance,
			Cash:            p.Cash,
			PeakEquity:      p.PeakEquity,
			MaxDrawdownPct:  p.MaxDrawdownPct,
			TotalTrades:     p.TotalTrades,
			WinningTrades:   p.WinningTrades,
			LosingTrades:    p.LosingTrades,
			RealizedPnL:     p.RealizedPnL,
			GrossWins:       p.GrossWins,
			GrossLosses:     p.GrossLosses,
		},
	}
	for _, row := range positions {
		snap.OpenPositions = append(snap.OpenPositions, fromPositionRow(row))
	}
	for _, row := range trades {
		snap.ClosedTrades = append(snap.ClosedTrades, fromClosedTradeRow(row))
	}
	return snap, true, nil
}

// RestoreLedger loads the saved state into l and seeds rec so restored trades
// are not written twice. It returns false when there was nothing to restore.
func RestoreLedger(ctx context.Context, database *db.Database, l *ledger.Ledger, rec *Recorder) (bool, error) {
	snap, found, err := LoadSnapshot(ctx, database)
	if err != nil || !found {
		return false, err
	}
	if err := l.Restore(snap); err != nil {
		return false, err
	}
	if rec != nil {
		rec.Seed(l.Snapshot())
	}
	return true, nil
}

func fromPositionRow(r db.PositionRow) ledger.Position {
	return ledger.Position{
		ID:             r.ID,
		Symbol:         r.Symbol,
		Direction:      strategy.Direction(r.Direction),
		Entry:          r.EntryPrice,
		StopLoss:       r.StopLoss,
		TakeProfit:     r.TakeProfit,
		Size:           r.Size,
		MarginUsed:     r.MarginUsed,
		OpenedAt:       r.OpenedAt,
		Status:         ledger.StatusOpen,
		CurrentPrice:   r.CurrentPrice,
		UnrealizedPnL:  r.UnrealizedPnL,
		Confidence:     r.Confidence,
		FastConfidence: r.FastConfidence,
		SlowConfidence: r.SlowConfidence,
	}
}

func fromClosedTradeRow(r db.ClosedTradeRow) ledger.ClosedTrade {
	var d time.Duration
	if !r.OpenedAt.IsZero() && !r.ClosedAt.IsZero() {
		d = r.ClosedAt.Sub(r.OpenedAt)
	}
	return ledger.ClosedTrade{
		Position: ledger.Position{
			ID:         r.ID,
			Symbol:     r.Symbol,
			Direction:  strategy.Direction(r.Direction),
			Entry:      r.EntryPrice,
			StopLoss:   r.StopLoss,
			TakeProfit: r.TakeProfit,
			Size:       r.Size,
			MarginUsed: r.MarginUsed,
			OpenedAt:   r.OpenedAt,
			Status:     ledger.StatusClosed,
			Confidence: r.Confidence,
		},
		ExitPrice:   r.ExitPrice,
		ClosedAt:    r.ClosedAt,
		RealizedPnL: r.RealizedPnL,
		ReturnPct:   r.ReturnPct,
		Duration:    d,
		CloseReason: ledger.CloseReason(r.CloseReason),
	}
}
