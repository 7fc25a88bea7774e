// Package engine provides a unified interface for the signal core.
// The API and scheduler talk to the evaluation pipeline and the paper ledger
// only through this package.
package engine

import (
	"context"

	"signal-core/internal/ledger"
)

// Service defines the operations exposed to dashboards, alerting and persistence.
// The API layer should only interact with the engine through this interface.
type Service interface {
	// Evaluation
	Evaluate(ctx context.Context, symbol string) (Analysis, error)
	Scan(ctx context.Context, minConfidence float64, limit int) ([]Analysis, error)
	RunCycle(ctx context.Context) CycleReport

	// Positions
	ClosePosition(ctx context.Context, symbol string) (ledger.ClosedTrade, error)
	Snapshot() ledger.Snapshot

	// System
	GetSystemStatus(ctx context.Context) *SystemStatus
}
