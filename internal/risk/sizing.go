package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const sizeDecimals = 6

// Sizing is the risk-based quantity for a trade.
type Sizing struct {
	RiskAmount float64 `json:"risk_amount"`
	Size       float64 `json:"size"`
	Margin     float64 `json:"margin_required"`
	Notional   float64 `json:"notional"`
}

// SizePosition risks riskFraction of equity over the entry/stop distance and
// checks the resulting margin against available cash.
func SizePosition(acct Account, entry, stop, riskFraction, marginRate float64) (Sizing, error) {
	dist := math.Abs(entry - stop)
	if dist == 0 {
		return Sizing{}, ErrArithmeticGuard
	}

	riskAmount := decimal.NewFromFloat(acct.Equity).Mul(decimal.NewFromFloat(riskFraction))
	size := riskAmount.Div(decimal.NewFromFloat(dist)).Round(sizeDecimals)
	if !size.IsPositive() {
		return Sizing{}, fmt.Errorf("%w: %s", ErrInvalidSize, size.String())
	}

	notional := size.Mul(decimal.NewFromFloat(entry))
	margin := MarginFor(size.InexactFloat64(), entry, marginRate)

	s := Sizing{
		RiskAmount: riskAmount.InexactFloat64(),
		Size:       size.InexactFloat64(),
		Margin:     margin,
		Notional:   notional.InexactFloat64(),
	}
	if margin > acct.AvailableCash {
		return s, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientMargin, margin, acct.AvailableCash)
	}
	return s, nil
}

// MarginFor returns size*entry*marginRate.
func MarginFor(size, entry, marginRate float64) float64 {
	return decimal.NewFromFloat(size).
		Mul(decimal.NewFromFloat(entry)).
		Mul(decimal.NewFromFloat(marginRate)).
		InexactFloat64()
}
