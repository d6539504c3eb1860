package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the immutable description of an order request plus its mutable
// residual quantity. Construction-time invariants are enforced by
// Validate; everything after that (sequence assignment, remaining-quantity
// decrements, the canceled tombstone flag) is engine/book bookkeeping.
type Order struct {
	ID     string
	Symbol string
	Side   Side
	Type   OrderType
	TIF    TimeInForce

	// Price is the limit price for LIMIT and ICEBERG (display-slice limit)
	// orders. It is the zero Decimal for MARKET.
	Price decimal.Decimal

	// StopPrice is the trigger for STOP_LOSS / STOP_LIMIT / TRAILING_STOP.
	StopPrice decimal.Decimal
	// LimitPrice is the resting price a STOP_LIMIT converts to once
	// triggered.
	LimitPrice decimal.Decimal
	// TrailingOffset is the distance TRAILING_STOP trails its watermark by.
	TrailingOffset decimal.Decimal
	// Watermark is the TRAILING_STOP high/low-water mark of last trade
	// price since submission. Engine-maintained, not caller-supplied.
	Watermark decimal.Decimal

	// Quantity is the original size; for ICEBERG this is TotalQuantity.
	Quantity decimal.Decimal
	// Remaining is monotonically non-increasing and always in [0, Quantity].
	Remaining decimal.Decimal

	// ICEBERG-only auxiliaries.
	DisplayQuantity decimal.Decimal
	TotalQuantity   decimal.Decimal
	HiddenRemaining decimal.Decimal

	TraderID string

	Timestamp      time.Time
	SequenceNumber uint64

	// canceled is the lazy-deletion tombstone: set by OrderBook.Remove,
	// checked (and skipped) whenever the order surfaces at the top of a
	// heap.
	canceled bool
}

// Canceled reports the tombstone flag.
func (o *Order) Canceled() bool { return o.canceled }

// MarkCanceled sets the tombstone flag. Idempotent.
func (o *Order) MarkCanceled() { o.canceled = true }

// Validate enforces the construction-time invariants of spec §3. It never
// mutates engine or book state; a failure here is always ErrInvalidOrder
// and is surfaced before the order is resolved against any book.
func (o *Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: missing order id", ErrInvalidOrder)
	}
	if o.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidOrder)
	}
	if o.Quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}

	switch o.Type {
	case LimitOrder:
		if o.Price.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: limit order requires positive price", ErrInvalidOrder)
		}
	case MarketOrder:
		if !o.Price.IsZero() {
			return fmt.Errorf("%w: market order must not carry a price", ErrInvalidOrder)
		}
	case StopLossOrder:
		if o.StopPrice.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: stop-loss requires a positive stop price", ErrInvalidOrder)
		}
	case StopLimitOrder:
		if o.StopPrice.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: stop-limit requires a positive stop price", ErrInvalidOrder)
		}
		if o.LimitPrice.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: stop-limit requires a positive limit price", ErrInvalidOrder)
		}
	case TrailingStopOrder:
		if o.TrailingOffset.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: trailing stop requires a positive offset", ErrInvalidOrder)
		}
	case IcebergOrder:
		if o.Price.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: iceberg requires a positive display price", ErrInvalidOrder)
		}
		if o.DisplayQuantity.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: iceberg requires a positive display quantity", ErrInvalidOrder)
		}
		if o.TotalQuantity.LessThan(o.DisplayQuantity) {
			return fmt.Errorf("%w: iceberg total quantity must be >= display quantity", ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: unrecognized order type", ErrInvalidOrder)
	}

	if o.Remaining.IsZero() {
		// Not yet placed: default Remaining to the order's full size when
		// the caller leaves it unset.
		if o.Type == IcebergOrder {
			o.Remaining = o.TotalQuantity
		} else {
			o.Remaining = o.Quantity
		}
	}
	if o.Remaining.LessThan(decimal.Zero) {
		return fmt.Errorf("%w: remaining quantity negative", ErrInvalidOrder)
	}
	if o.Type != IcebergOrder && o.Remaining.GreaterThan(o.Quantity) {
		return fmt.Errorf("%w: remaining quantity exceeds original quantity", ErrInvalidOrder)
	}

	return nil
}

// IsMarketable reports whether the order's priority is the dominant,
// always-crosses effective price for its side (spec §4.1's effective price
// rule: MARKET buys are +inf, MARKET sells are 0).
func (o *Order) IsMarketable() bool { return o.Type == MarketOrder }

func (order Order) String() string {
	return fmt.Sprintf(
		`ID:             %s
Symbol:         %s
Side:           %v
Type:           %v
TIF:            %v
Price:          %s
Quantity:       %s (Remaining: %s)
TraderID:       %s
Timestamp:      %v
SequenceNumber: %d`,
		order.ID,
		order.Symbol,
		order.Side,
		order.Type,
		order.TIF,
		order.Price.String(),
		order.Quantity.String(),
		order.Remaining.String(),
		order.TraderID,
		order.Timestamp.Format(time.RFC3339Nano),
		order.SequenceNumber,
	)
}
