package ledger

import (
	"time"

	"signal-core/internal/strategy"
)

// Status is the lifecycle state of a virtual position.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// CloseReason records why a position left the book.
type CloseReason string

const (
	ReasonTakeProfit CloseReason = "TakeProfitHit"
	ReasonStopLoss   CloseReason = "StopLossHit"
	ReasonManual     CloseReason = "ManualClose"
)

// Position is a simulated trade held in the ledger.
type Position struct {
	ID             string             `json:"id"`
	Symbol         string             `json:"symbol"`
	Direction      strategy.Direction `json:"direction"`
	Entry          float64            `json:"entry_price"`
	StopLoss       float64            `json:"stop_loss"`
	TakeProfit     float64            `json:"take_profit"`
	Size           float64            `json:"size"`
	MarginUsed     float64            `json:"margin_used"`
	OpenedAt       time.Time          `json:"opened_at"`
	Status         Status             `json:"status"`
	CurrentPrice   float64            `json:"current_price"`
	UnrealizedPnL  float64            `json:"unrealized_pnl"`
	Confidence     float64            `json:"confidence"`
	FastConfidence float64            `json:"fast_confidence"`
	SlowConfidence float64            `json:"slow_confidence"`
}

// ClosedTrade is a position after exit.
type ClosedTrade struct {
	Position
	ExitPrice   float64       `json:"exit_price"`
	ClosedAt    time.Time     `json:"closed_at"`
	RealizedPnL float64       `json:"realized_pnl"`
	ReturnPct   float64       `json:"return_pct"`
	Duration    time.Duration `json:"duration"`
	CloseReason CloseReason   `json:"close_reason"`
}

// OpenRequest carries everything needed to open a position.
type OpenRequest struct {
	Symbol         string
	Direction      strategy.Direction
	Entry          float64
	StopLoss       float64
	TakeProfit     float64
	Size           float64
	Confidence     float64
	FastConfidence float64
	SlowConfidence float64
}

// Portfolio is the account-level accounting state.
type Portfolio struct {
	StartingBalance float64 `json:"starting_balance"`
	Cash            float64 `json:"cash_balance"`
	Equity          float64 `json:"equity"`
	PeakEquity      float64 `json:"peak_equity"`
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	RealizedPnL     float64 `json:"realized_pnl"`
	GrossWins       float64 `json:"gross_wins"`
	GrossLosses     float64 `json:"gross_losses"`
}

// Summary is the dashboard view of the portfolio.
type Summary struct {
	StartingBalance float64 `json:"starting_balance"`
	CurrentBalance  float64 `json:"current_balance"`
	MarginUsed      float64 `json:"margin_used"`
	UnrealizedPnL   float64 `json:"unrealized_pnl"`
	RealizedPnL     float64 `json:"realized_pnl"`
	TotalValue      float64 `json:"total_portfolio_value"`
	TotalReturnPct  float64 `json:"total_return_pct"`
	ActivePositions int     `json:"active_positions"`
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
	AvgWin          float64 `json:"avg_win"`
	AvgLoss         float64 `json:"avg_loss"`
	PeakEquity      float64 `json:"peak_equity"`
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
}

// Snapshot is a serializable copy of the ledger. Snapshot events carry only the
// latest closed trades; ClosedCount is the total ever closed.
type Snapshot struct {
	Version       uint64        `json:"version"`
	TakenAt       time.Time     `json:"taken_at"`
	OpenPositions []Position    `json:"open_positions"`
	ClosedTrades  []ClosedTrade `json:"closed_trades"`
	ClosedCount   int           `json:"closed_count"`
	Portfolio     Portfolio     `json:"portfolio"`
	Summary       Summary       `json:"portfolio_summary"`
}
