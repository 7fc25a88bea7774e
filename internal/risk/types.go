package risk

import (
	"errors"
	"fmt"
)

var (
	// ErrArithmeticGuard is returned instead of dividing by a zero stop distance.
	ErrArithmeticGuard = errors.New("arithmetic guard: entry equals stop")
	// ErrInsufficientMargin means the required margin exceeds available cash.
	ErrInsufficientMargin = errors.New("insufficient margin")
	// ErrInvalidSize rejects non-positive position sizes.
	ErrInvalidSize = errors.New("invalid position size")
	// ErrInvalidConfig rejects risk settings outside their valid range.
	ErrInvalidConfig = errors.New("invalid risk config")
)

// Config defines risk management parameters.
type Config struct {
	// Minimum fused confidence for trade levels to be produced.
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	// Fraction of equity risked per trade (0.02 = 2%).
	RiskPerTrade float64 `json:"risk_per_trade"`
	// Margin posted per unit of notional (0.1 = 10x leverage).
	MarginRate float64 `json:"margin_rate"`
	// Upper bound on simultaneously open positions.
	MaxPositions int `json:"max_positions"`
	// ATR fallback as a fraction of price when ATR is unavailable.
	ATRFallback float64 `json:"atr_fallback"`
}

// DefaultConfig returns the stock parameters.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 80,
		RiskPerTrade:        0.02,
		MarginRate:          0.1,
		MaxPositions:        3,
		ATRFallback:         0.02,
	}
}

// Validate checks ranges; it wraps ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100:
		return fmt.Errorf("%w: confidence threshold %.2f", ErrInvalidConfig, c.ConfidenceThreshold)
	case c.RiskPerTrade <= 0 || c.RiskPerTrade >= 1:
		return fmt.Errorf("%w: risk per trade %.4f", ErrInvalidConfig, c.RiskPerTrade)
	case c.MarginRate <= 0 || c.MarginRate > 1:
		return fmt.Errorf("%w: margin rate %.4f", ErrInvalidConfig, c.MarginRate)
	case c.MaxPositions <= 0:
		return fmt.Errorf("%w: max positions %d", ErrInvalidConfig, c.MaxPositions)
	case c.ATRFallback < 0:
		return fmt.Errorf("%w: atr fallback %.4f", ErrInvalidConfig, c.ATRFallback)
	}
	return nil
}

// Account is the slice of portfolio state sizing needs.
type Account struct {
	Equity        float64 `json:"equity"`
	AvailableCash float64 `json:"available_cash"`
}

// Decision is the outcome of assessing a fused signal.
type Decision struct {
	Approved bool         `json:"approved"`
	Reason   string       `json:"reason,omitempty"`
	Levels   *TradeLevels `json:"trade_levels,omitempty"`
	Sizing   *Sizing      `json:"sizing,omitempty"`
	// Err carries the typed rejection (ErrInsufficientMargin, ErrArithmeticGuard).
	Err error `json:"-"`
}
