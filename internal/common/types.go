package common

import "github.com/shopspring/decimal"

// Side is the direction of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType distinguishes the six order shapes the core understands.
type OrderType int

const (
	LimitOrder OrderType = iota
	MarketOrder
	StopLossOrder
	StopLimitOrder
	TrailingStopOrder
	IcebergOrder
)

func (t OrderType) String() string {
	switch t {
	case LimitOrder:
		return "LIMIT"
	case MarketOrder:
		return "MARKET"
	case StopLossOrder:
		return "STOP_LOSS"
	case StopLimitOrder:
		return "STOP_LIMIT"
	case TrailingStopOrder:
		return "TRAILING_STOP"
	case IcebergOrder:
		return "ICEBERG"
	default:
		return "UNKNOWN"
	}
}

// IsAdvanced reports whether the type requires engine-level routing instead
// of a direct OrderBook insertion.
func (t OrderType) IsAdvanced() bool {
	switch t {
	case StopLossOrder, StopLimitOrder, TrailingStopOrder, IcebergOrder:
		return true
	default:
		return false
	}
}

// TimeInForce controls whether a residual rests or is canceled immediately.
type TimeInForce int

const (
	GTC TimeInForce = iota
	IOC
)

func (tif TimeInForce) String() string {
	if tif == IOC {
		return "IOC"
	}
	return "GTC"
}

// MatchingStrategy selects how liquidity at a price level is allocated to
// an aggressor.
type MatchingStrategy int

const (
	FIFO MatchingStrategy = iota
	ProRata
)

func (m MatchingStrategy) String() string {
	if m == ProRata {
		return "PRO_RATA"
	}
	return "FIFO"
}

// decMin and decMax are small helpers: shopspring/decimal has no built-in
// ordering min/max.
func decMin(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func decMax(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// DecMin and DecMax are the exported forms, used across engine and trader.
func DecMin(a, b decimal.Decimal) decimal.Decimal { return decMin(a, b) }
func DecMax(a, b decimal.Decimal) decimal.Decimal { return decMax(a, b) }
