package db

import "time"

// PositionRow mirrors an open ledger position.
type PositionRow struct {
	ID             string
	Symbol         string
	Direction      string
	EntryPrice     float64
	StopLoss       float64
	TakeProfit     float64
	Size           float64
	MarginUsed     float64
	CurrentPrice   float64
	UnrealizedPnL  float64
	Confidence     float64
	FastConfidence float64
	SlowConfidence float64
	OpenedAt       time.Time
	UpdatedAt      time.Time
}

// ClosedTradeRow is one finished trade.
type ClosedTradeRow struct {
	ID          string
	Symbol      string
	Direction   string
	EntryPrice  float64
	ExitPrice   float64
	StopLoss    float64
	TakeProfit  float64
	Size        float64
	MarginUsed  float64
	RealizedPnL float64
	ReturnPct   float64
	CloseReason string
	Confidence  float64
	OpenedAt    time.Time
	ClosedAt    time.Time
}

// PortfolioRow is the single-row account state.
type PortfolioRow struct {
	StartingBalance float64
	Cash            float64
	PeakEquity      float64
	MaxDrawdownPct  float64
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	RealizedPnL     float64
	GrossWins       float64
	GrossLosses     float64
	Version         uint64
	UpdatedAt       time.Time
}

// SignalRow is an audit record of one fused evaluation.
type SignalRow struct {
	ID             int64     `json:"id"`
	Symbol         string    `json:"symbol"`
	Direction      string    `json:"direction"`
	Confidence     float64   `json:"confidence"`
	AlignmentBonus float64   `json:"alignment_bonus"`
	FastDirection  string    `json:"fast_direction"`
	FastConfidence float64   `json:"fast_confidence"`
	SlowDirection  string    `json:"slow_direction"`
	SlowConfidence float64   `json:"slow_confidence"`
	Price          float64   `json:"price"`
	Reasons        string    `json:"reasons"`
	Actionable     bool      `json:"actionable"`
	CreatedAt      time.Time `json:"created_at"`
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
