package ledger

import (
	"errors"
	"fmt"

	"signal-core/internal/risk"
)

var (
	ErrDuplicatePosition    = errors.New("position already open for symbol")
	ErrPositionLimitReached = errors.New("position limit reached")
	ErrInvalidDirection     = errors.New("direction must be LONG or SHORT")
	ErrPositionNotFound     = errors.New("no open position for symbol")
	ErrInvalidPrice         = errors.New("invalid price")
	ErrInvalidLevels        = errors.New("stop loss and take profit must bracket the entry")

	// Shared with sizing so callers can match either source.
	ErrInsufficientMargin = risk.ErrInsufficientMargin
	ErrInvalidSize        = risk.ErrInvalidSize
)

// ViolationError is a synchronous rejection; the ledger is unchanged when one is returned.
type ViolationError struct {
	Op     string
	Symbol string
	Err    error
	Detail string
}

func (e *ViolationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ledger %s %s: %v (%s)", e.Op, e.Symbol, e.Err, e.Detail)
	}
	return fmt.Sprintf("ledger %s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *ViolationError) Unwrap() error { return e.Err }

// IsViolation reports whether err is a ledger rejection.
func IsViolation(err error) bool {
	var v *ViolationError
	return errors.As(err, &v)
}

func violation(op, symbol string, err error, format string, args ...any) error {
	v := &ViolationError{Op: op, Symbol: symbol, Err: err}
	if format != "" {
		v.Detail = fmt.Sprintf(format, args...)
	}
	return v
}
