package persistence

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"signal-core/internal/engine"
	"signal-core/internal/events"
	"signal-core/internal/ledger"
	"signal-core/pkg/db"
	"signal-core/pkg/logger"
)

// Recorder mirrors ledger state and evaluated signals into SQLite through a
// BatchWriter. Ledger state is taken from snapshot events only, since the bus
// does not order deliveries across topics.
type Recorder struct {
	Bus    *events.Bus
	Writer *BatchWriter
	Log    *zap.Logger

	closedSeen int
	version    uint64
}

// Start subscribes and returns immediately. The returned channel closes once
// the recorder has stopped and flushed after ctx is done.
func (r *Recorder) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	log := logger.OrNop(r.Log)
	if r.Bus == nil || r.Writer == nil {
		log.Warn("recorder not fully configured; skipping")
		close(done)
		return done
	}

	stream, unsub := r.Bus.SubscribeMany([]events.Event{
		events.EventLedgerSnapshot,
		events.EventSignal,
	}, 1024)

	go func() {
		defer close(done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				if err := r.Writer.Flush(); err != nil {
					log.Warn("recorder final flush failed", zap.Error(err))
				}
				return
			case env, ok := <-stream:
				if !ok {
					return
				}
				r.Writer.WriteBatch(r.statementsFor(env))
			}
		}
	}()
	return done
}

// Seed tells the recorder which closed trades are already stored, so restored
// history is not rewritten on the first snapshot.
func (r *Recorder) Seed(s ledger.Snapshot) {
	r.closedSeen = closedTotal(s)
	r.version = s.Version
}

// Record queues the statements for s directly. Call it only after the channel
// returned by Start has closed.
func (r *Recorder) Record(s ledger.Snapshot) {
	r.Writer.WriteBatch(r.snapshotStatements(s))
}

func (r *Recorder) statementsFor(env events.Envelope) []db.Statement {
	switch p := env.Payload.(type) {
	case ledger.Snapshot:
		return r.snapshotStatements(p)
	case engine.Analysis:
		return []db.Statement{db.InsertSignalStmt(signalRow(p))}
	}
	return nil
}

func (r *Recorder) snapshotStatements(s ledger.Snapshot) []db.Statement {
	if s.Version < r.version {
		return nil
	}
	r.version = s.Version

	stmts := []db.Statement{db.ClearPositionsStmt()}
	for _, p := range s.OpenPositions {
		stmts = append(stmts, db.UpsertPositionStmt(positionRow(p, s.TakenAt)))
	}
	total := closedTotal(s)
	if r.closedSeen < total {
		// s.ClosedTrades holds the trades numbered first..total-1.
		first := total - len(s.ClosedTrades)
		from := r.closedSeen - first
		if from < 0 {
			logger.OrNop(r.Log).Warn("⚠️ closed trades fell out of the snapshot window before being stored",
				zap.Int("missed", -from), zap.Uint64("version", s.Version))
			from = 0
		}
		for _, t := range s.ClosedTrades[from:] {
			stmts = append(stmts, db.InsertClosedTradeStmt(closedTradeRow(t)))
		}
		r.closedSeen = total
	}
	return append(stmts, db.SavePortfolioStmt(portfolioRow(s)))
}

// closedTotal tolerates snapshots built without ClosedCount.
func closedTotal(s ledger.Snapshot) int {
	if s.ClosedCount > len(s.ClosedTrades) {
		return s.ClosedCount
	}
	return len(s.ClosedTrades)
}

func positionRow(p ledger.Position, at time.Time) db.PositionRow {
	return db.PositionRow{
		ID:             p.ID,
		Symbol:         p.Symbol,
		Direction:      string(p.Direction),
		EntryPrice:     p.Entry,
		StopLoss:       p.StopLoss,
		TakeProfit:     p.TakeProfit,
		Size:           p.Size,
		MarginUsed:     p.MarginUsed,
		CurrentPrice:   p.CurrentPrice,
		UnrealizedPnL:  p.UnrealizedPnL,
		Confidence:     p.Confidence,
		FastConfidence: p.FastConfidence,
		SlowConfidence: p.SlowConfidence,
		OpenedAt:       p.OpenedAt,
		UpdatedAt:      at,
	}
}

func closedTradeRow(t ledger.ClosedTrade) db.ClosedTradeRow {
	return db.ClosedTradeRow{
		ID:          t.ID,
		Symbol:      t.Symbol,
		Direction:   string(t.Direction),
		EntryPrice:  t.Entry,
		ExitPrice:   t.ExitPrice,
		StopLoss:    t.StopLoss,
		TakeProfit:  t.TakeProfit,
		Size:        t.Size,
		MarginUsed:  t.MarginUsed,
		RealizedPnL: t.RealizedPnL,
		ReturnPct:   t.ReturnPct,
		CloseReason: string(t.CloseReason),
		Confidence:  t.Confidence,
		OpenedAt:    t.OpenedAt,
		ClosedAt:    t.ClosedAt,
	}
}

func portfolioRow(s ledger.Snapshot) db.PortfolioRow {
	p := s.Portfolio
	return db.PortfolioRow{
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
		Version:         s.Version,
		UpdatedAt:       s.TakenAt,
	}
}

func signalRow(a engine.Analysis) db.SignalRow {
	s := a.Signal
	return db.SignalRow{
		Symbol:         a.Symbol,
		Direction:      string(s.Direction),
		Confidence:     s.Confidence,
		AlignmentBonus: s.AlignmentBonus,
		FastDirection:  string(s.Fast.Direction),
		FastConfidence: s.Fast.Confidence,
		SlowDirection:  string(s.Slow.Direction),
		SlowConfidence: s.Slow.Confidence,
		Price:          a.Price,
		Reasons:        strings.Join(s.Reasons, "; "),
		Actionable:     a.Decision.Approved,
		CreatedAt:      a.EvaluatedAt,
	}
}
