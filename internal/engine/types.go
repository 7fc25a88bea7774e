package engine

import (
	"time"

	"signal-core/internal/indicators"
	"signal-core/internal/ledger"
	"signal-core/internal/risk"
	"signal-core/internal/strategy"
)

// Analysis is the full, read-only evaluation record for one symbol.
type Analysis struct {
	Symbol      string               `json:"symbol"`
	Price       float64              `json:"price"`
	ATR         float64              `json:"atr14"`
	Fast        indicators.Snapshot  `json:"fast_indicators"`
	Slow        indicators.Snapshot  `json:"slow_indicators"`
	Signal      strategy.FusedSignal `json:"signal"`
	Decision    risk.Decision        `json:"decision"`
	EvaluatedAt time.Time            `json:"evaluated_at"`
}

// CycleReport summarizes one evaluate-mark-open pass over all symbols.
type CycleReport struct {
	StartedAt time.Time            `json:"started_at"`
	Duration  time.Duration        `json:"duration"`
	Evaluated []string             `json:"evaluated"`
	Failed    map[string]string    `json:"failed,omitempty"`
	Opened    []ledger.Position    `json:"opened,omitempty"`
	Closed    []ledger.ClosedTrade `json:"closed,omitempty"`
	Rejected  map[string]string    `json:"rejected,omitempty"`
}

// SystemStatus represents the system runtime status.
type SystemStatus struct {
	Mode         string    `json:"mode"`
	DataSource   string    `json:"data_source"`
	Symbols      []string  `json:"symbols"`
	FastInterval string    `json:"fast_interval"`
	SlowInterval string    `json:"slow_interval"`
	EvalInterval string    `json:"eval_interval"`
	Version      string    `json:"version"`
	OpenCount    int       `json:"open_positions"`
	ServerTime   time.Time `json:"server_time"`
}
