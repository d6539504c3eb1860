package common

import (
	"errors"
	"fmt"
)

// Sentinel error kinds surfaced synchronously to the caller of SubmitOrder
// or CancelOrder. None of these mutate engine state before being returned.
var (
	ErrInvalidOrder         = errors.New("invalid order")
	ErrSymbolMismatch       = errors.New("symbol mismatch")
	ErrUnknownSymbol        = errors.New("unknown symbol")
	ErrUnsupportedOrderType = errors.New("unsupported order type for direct book insertion")
	ErrNotFound             = errors.New("order not found")
	ErrUnmatchableMarket    = errors.New("market order has no opposite-side liquidity")
	ErrUnknownTrader        = errors.New("unknown trader")
	ErrDuplicateSymbol      = errors.New("symbol already registered")
	ErrDuplicateTrader      = errors.New("trader already registered")
)

// RiskRejectedError carries the specific rule that failed, so callers can
// branch on it without string-matching.
type RiskRejectedError struct {
	Rule   string
	Detail string
}

func (e *RiskRejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("risk rejected: %s", e.Rule)
	}
	return fmt.Sprintf("risk rejected: %s (%s)", e.Rule, e.Detail)
}

// Is lets errors.Is(err, ErrRiskRejected) work as a category check.
func (e *RiskRejectedError) Is(target error) bool {
	return target == ErrRiskRejected
}

// ErrRiskRejected is the category sentinel; use errors.As to recover the
// failing rule from a *RiskRejectedError.
var ErrRiskRejected = errors.New("risk rejected")
