package risk

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"signal-core/internal/strategy"
	"signal-core/pkg/logger"
)

// Manager holds the live risk configuration and turns fused signals into
// sized trade decisions.
type Manager struct {
	config Config
	log    *zap.Logger
	mu     sync.RWMutex
}

// NewManager validates cfg and returns a manager.
func NewManager(cfg Config, log *zap.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{config: cfg, log: logger.OrNop(log)}, nil
}

// NewInMemory creates a manager with the stock configuration.
func NewInMemory() *Manager {
	return &Manager{config: DefaultConfig(), log: zap.NewNop()}
}

// GetConfig returns a copy of the current configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// UpdateConfig swaps in a new configuration after validating it.
func (m *Manager) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	m.log.Info("risk config updated",
		zap.Float64("confidence_threshold", cfg.ConfidenceThreshold),
		zap.Float64("risk_per_trade", cfg.RiskPerTrade),
		zap.Int("max_positions", cfg.MaxPositions))
	return nil
}

// Assess computes trade levels and sizing for sig. Rejections are reported on
// the Decision, never as a panic; Err holds the typed cause when sizing fails.
func (m *Manager) Assess(sig strategy.FusedSignal, price, atr float64, acct Account) Decision {
	cfg := m.GetConfig()

	if !sig.Actionable() {
		return Decision{Reason: "no directional signal"}
	}
	if sig.Confidence < cfg.ConfidenceThreshold {
		return Decision{Reason: fmt.Sprintf("confidence %.0f below threshold %.0f", sig.Confidence, cfg.ConfidenceThreshold)}
	}

	levels := CalculateLevels(sig, price, atr, cfg.ConfidenceThreshold, cfg.ATRFallback)
	if levels == nil {
		return Decision{Reason: "trade levels unavailable"}
	}

	sizing, err := SizePosition(acct, levels.Entry, levels.StopLoss, cfg.RiskPerTrade, cfg.MarginRate)
	if err != nil {
		d := Decision{Levels: levels, Reason: err.Error(), Err: err}
		if errors.Is(err, ErrInsufficientMargin) {
			d.Sizing = &sizing
		}
		return d
	}

	return Decision{Approved: true, Levels: levels, Sizing: &sizing}
}
