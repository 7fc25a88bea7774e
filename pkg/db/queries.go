package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("record not found")

// Statement is a prepared write, usable directly or through a batch writer.
type Statement struct {
	Table string
	Query string
	Args  []any
}

// Exec runs a single statement outside any batch.
func (d *Database) Exec(ctx context.Context, s Statement) error {
	if _, err := d.DB.ExecContext(ctx, s.Query, s.Args...); err != nil {
		return fmt.Errorf("exec %s: %w", s.Table, err)
	}
	return nil
}

// ----------------------------------------
// Positions
// ----------------------------------------

func UpsertPositionStmt(p PositionRow) Statement {
	return Statement{
		Table: "positions",
		Query: `
		INSERT INTO positions (symbol, id, direction, entry_price, stop_loss, take_profit, size, margin_used,
			current_price, unrealized_pnl, confidence, fast_confidence, slow_confidence, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			id = excluded.id,
			direction = excluded.direction,
			entry_price = excluded.entry_price,
			stop_loss = excluded.stop_loss,
			take_profit = excluded.take_profit,
			size = excluded.size,
			margin_used = excluded.margin_used,
			current_price = excluded.current_price,
			unrealized_pnl = excluded.unrealized_pnl,
			confidence = excluded.confidence,
			fast_confidence = excluded.fast_confidence,
			slow_confidence = excluded.slow_confidence,
			opened_at = excluded.opened_at,
			updated_at = excluded.updated_at`,
		Args: []any{p.Symbol, p.ID, p.Direction, p.EntryPrice, p.StopLoss, p.TakeProfit, p.Size, p.MarginUsed,
			p.CurrentPrice, p.UnrealizedPnL, p.Confidence, p.FastConfidence, p.SlowConfidence,
			millis(p.OpenedAt), millis(p.UpdatedAt)},
	}
}

// ClearPositionsStmt removes every stored position, ahead of rewriting the open set.
func ClearPositionsStmt() Statement {
	return Statement{Table: "positions", Query: `DELETE FROM positions`}
}

func DeletePositionStmt(symbol string) Statement {
	return Statement{
		Table: "positions",
		Query: `DELETE FROM positions WHERE symbol = ?`,
		Args:  []any{symbol},
	}
}

// ListPositions returns all stored open positions ordered by open time.
func (d *Database) ListPositions(ctx context.Context) ([]PositionRow, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, direction, entry_price, stop_loss, take_profit, size, margin_used,
		       COALESCE(current_price, 0), COALESCE(unrealized_pnl, 0), COALESCE(confidence, 0),
		       COALESCE(fast_confidence, 0), COALESCE(slow_confidence, 0), opened_at, updated_at
		FROM positions
		ORDER BY opened_at, symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRow
	for rows.Next() {
		var (
			p              PositionRow
			opened, update int64
		)
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Direction, &p.EntryPrice, &p.StopLoss, &p.TakeProfit, &p.Size,
			&p.MarginUsed, &p.CurrentPrice, &p.UnrealizedPnL, &p.Confidence, &p.FastConfidence,
			&p.SlowConfidence, &opened, &update); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.OpenedAt = fromMillis(opened)
		p.UpdatedAt = fromMillis(update)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ----------------------------------------
// Closed trades
// ----------------------------------------

func InsertClosedTradeStmt(t ClosedTradeRow) Statement {
	return Statement{
		Table: "closed_trades",
		Query: `
		INSERT OR IGNORE INTO closed_trades (id, symbol, direction, entry_price, exit_price, stop_loss, take_profit,
			size, margin_used, realized_pnl, return_pct, close_reason, confidence, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		Args: []any{t.ID, t.Symbol, t.Direction, t.EntryPrice, t.ExitPrice, t.StopLoss, t.TakeProfit,
			t.Size, t.MarginUsed, t.RealizedPnL, t.ReturnPct, t.CloseReason, t.Confidence,
			millis(t.OpenedAt), millis(t.ClosedAt)},
	}
}

// ListClosedTrades returns trades oldest first. limit <= 0 returns all of them;
// otherwise only the most recent limit trades are returned.
func (d *Database) ListClosedTrades(ctx context.Context, limit int) ([]ClosedTradeRow, error) {
	query := `
		SELECT id, symbol, direction, entry_price, exit_price, stop_loss, take_profit, size, margin_used,
		       realized_pnl, return_pct, close_reason, COALESCE(confidence, 0), opened_at, closed_at
		FROM (
			SELECT * FROM closed_trades ORDER BY closed_at DESC, id DESC LIMIT ?
		)
		ORDER BY closed_at, id`
	if limit <= 0 {
		limit = -1
	}

	rows, err := d.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query closed trades: %w", err)
	}
	defer rows.Close()

	var out []ClosedTradeRow
	for rows.Next() {
		var (
			t              ClosedTradeRow
			opened, closed int64
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Direction, &t.EntryPrice, &t.ExitPrice, &t.StopLoss,
			&t.TakeProfit, &t.Size, &t.MarginUsed, &t.RealizedPnL, &t.ReturnPct, &t.CloseReason,
			&t.Confidence, &opened, &closed); err != nil {
			return nil, fmt.Errorf("scan closed trade: %w", err)
		}
		t.OpenedAt = fromMillis(opened)
		t.ClosedAt = fromMillis(closed)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ----------------------------------------
// Portfolio
// ----------------------------------------

func SavePortfolioStmt(p PortfolioRow) Statement {
	return Statement{
		Table: "portfolio_state",
		Query: `
		INSERT INTO portfolio_state (id, starting_balance, cash, peak_equity, max_drawdown_pct, total_trades,
			winning_trades, losing_trades, realized_pnl, gross_wins, gross_losses, version, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			starting_balance = excluded.starting_balance,
			cash = excluded.cash,
			peak_equity = excluded.peak_equity,
			max_drawdown_pct = excluded.max_drawdown_pct,
			total_trades = excluded.total_trades,
			winning_trades = excluded.winning_trades,
			losing_trades = excluded.losing_trades,
			realized_pnl = excluded.realized_pnl,
			gross_wins = excluded.gross_wins,
			gross_losses = excluded.gross_losses,
			version = excluded.version,
			updated_at = excluded.updated_at
		WHERE excluded.version >= portfolio_state.version`,
		Args: []any{p.StartingBalance, p.Cash, p.PeakEquity, p.MaxDrawdownPct, p.TotalTrades,
			p.WinningTrades, p.LosingTrades, p.RealizedPnL, p.GrossWins, p.GrossLosses,
			int64(p.Version), millis(p.UpdatedAt)},
	}
}

// LoadPortfolio returns ErrNotFound on a fresh database.
func (d *Database) LoadPortfolio(ctx context.Context) (PortfolioRow, error) {
	var (
		p               PortfolioRow
		version, update int64
	)
	err := d.DB.QueryRowContext(ctx, `
		SELECT starting_balance, cash, peak_equity, max_drawdown_pct, total_trades, winning_trades,
		       losing_trades, realized_pnl, gross_wins, gross_losses, version, updated_at
		FROM portfolio_state WHERE id = 1
	`).Scan(&p.StartingBalance, &p.Cash, &p.PeakEquity, &p.MaxDrawdownPct, &p.TotalTrades,
		&p.WinningTrades, &p.LosingTrades, &p.RealizedPnL, &p.GrossWins, &p.GrossLosses, &version, &update)
	if errors.Is(err, sql.ErrNoRows) {
		return PortfolioRow{}, ErrNotFound
	}
	if err != nil {
		return PortfolioRow{}, fmt.Errorf("load portfolio: %w", err)
	}
	p.Version = uint64(version)
	p.UpdatedAt = fromMillis(update)
	return p, nil
}

// ----------------------------------------
// Signal log
// ----------------------------------------

func InsertSignalStmt(s SignalRow) Statement {
	return Statement{
		Table: "signal_log",
		Query: `
		INSERT INTO signal_log (symbol, direction, confidence, alignment_bonus, fast_direction, fast_confidence,
			slow_direction, slow_confidence, price, reasons, actionable, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		Args: []any{s.Symbol, s.Direction, s.Confidence, s.AlignmentBonus, s.FastDirection, s.FastConfidence,
			s.SlowDirection, s.SlowConfidence, s.Price, s.Reasons, s.Actionable, millis(s.CreatedAt)},
	}
}

// ListSignals returns the most recent signals for symbol, newest first.
// An empty symbol lists all symbols.
func (d *Database) ListSignals(ctx context.Context, symbol string, limit int) ([]SignalRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, direction, confidence, COALESCE(alignment_bonus, 0), fast_direction, fast_confidence,
		       slow_direction, slow_confidence, price, COALESCE(reasons, ''), COALESCE(actionable, 0), created_at
		FROM signal_log
		WHERE (? = '' OR symbol = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRow
	for rows.Next() {
		var (
			s          SignalRow
			actionable int
			created    int64
		)
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Direction, &s.Confidence, &s.AlignmentBonus, &s.FastDirection,
			&s.FastConfidence, &s.SlowDirection, &s.SlowConfidence, &s.Price, &s.Reasons, &actionable,
			&created); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		s.Actionable = actionable != 0
		s.CreatedAt = fromMillis(created)
		out = append(out, s)
	}
	return out, rows.Err()
}
