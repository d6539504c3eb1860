package engine

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"fenrir/internal/common"
)

// stopKey partitions the stop index by (symbol, side), per spec §9's
// recommendation for scanning thousands of live stops: "partition by
// (symbol, side) and keep them in ordered maps keyed on trigger price for
// O(log n) scanning."
type stopKey struct {
	symbol string
	side   common.Side
}

// stopBook is the static-trigger-price half of the stop index (STOP_LOSS
// and STOP_LIMIT), ordered ascending by StopPrice, then sequence number.
// collectStaticTriggers walks every pending stop in the partition; it
// does not start the scan at the last-trade-price boundary.
type stopBook = btree.BTreeG[*common.Order]

func newStopBook() *stopBook {
	return btree.NewBTreeG(func(a, b *common.Order) bool {
		if !a.StopPrice.Equal(b.StopPrice) {
			return a.StopPrice.LessThan(b.StopPrice)
		}
		return a.SequenceNumber < b.SequenceNumber
	})
}

// addStop files a STOP_LOSS/STOP_LIMIT order into its (symbol, side)
// ordered book, or a TRAILING_STOP into the flat trailing list (its
// trigger price moves every tick, so a static-key ordered tree cannot
// index it usefully — see DESIGN.md).
func (e *Engine) addStop(order *common.Order) {
	if order.Type == common.TrailingStopOrder {
		if order.Watermark.IsZero() {
			order.Watermark = e.initialWatermark(order)
		}
		e.trailingStops = append(e.trailingStops, order)
		return
	}

	key := stopKey{symbol: order.Symbol, side: order.Side}
	book, ok := e.stopBooks[key]
	if !ok {
		book = newStopBook()
		e.stopBooks[key] = book
	}
	book.Set(order)
	e.stopByID[order.ID] = key
}

// initialWatermark seeds a TRAILING_STOP's high/low-water mark from the
// last trade price if the symbol has traded, falling back to the stop's
// own trigger price otherwise (documented Open Question resolution in
// SPEC_FULL.md — unspecified by spec §4.2).
func (e *Engine) initialWatermark(order *common.Order) decimal.Decimal {
	if last, ok := e.lastTradePrice[order.Symbol]; ok {
		return last
	}
	return order.StopPrice
}

// removeStop cancels a pending stop order by id, searching both indexes.
// Returns ErrNotFound if the id is not a pending stop.
func (e *Engine) removeStop(orderID string) error {
	if key, ok := e.stopByID[orderID]; ok {
		book := e.stopBooks[key]
		removed := false
		book.Scan(func(o *common.Order) bool {
			if o.ID == orderID {
				book.Delete(o)
				removed = true
				return false
			}
			return true
		})
		delete(e.stopByID, orderID)
		if removed {
			return nil
		}
	}

	for i, o := range e.trailingStops {
		if o.ID == orderID {
			e.trailingStops = append(e.trailingStops[:i], e.trailingStops[i+1:]...)
			return nil
		}
	}
	return common.ErrNotFound
}

// activateStops scans every pending stop for symbol against the latest
// last-trade price and re-submits each one whose condition now holds,
// converting it to the order type it fires as (spec §4.2). Called once
// per completed aggressor match, never per sub-fill — convergence is
// bounded by each stop firing exactly once and being removed from its
// index immediately on trigger.
func (e *Engine) activateStops(symbol string) {
	last, ok := e.lastTradePrice[symbol]
	if !ok {
		return
	}

	triggered := e.collectStaticTriggers(symbol, last)
	triggered = append(triggered, e.collectTrailingTriggers(symbol, last)...)

	for _, stop := range triggered {
		converted := convertTriggeredStop(stop)
		if _, err := e.submitLocked(converted); err != nil {
			log.Error().
				Err(err).
				Str("orderID", converted.ID).
				Str("symbol", symbol).
				Msg("triggered stop order failed re-entry")
		}
	}
}

func (e *Engine) collectStaticTriggers(symbol string, last decimal.Decimal) []*common.Order {
	var triggered []*common.Order
	for _, side := range []common.Side{common.Buy, common.Sell} {
		key := stopKey{symbol: symbol, side: side}
		book, ok := e.stopBooks[key]
		if !ok {
			continue
		}
		var hit []*common.Order
		book.Scan(func(o *common.Order) bool {
			if isStaticStopTriggered(o, last) {
				hit = append(hit, o)
			}
			return true
		})
		for _, o := range hit {
			book.Delete(o)
			delete(e.stopByID, o.ID)
		}
		triggered = append(triggered, hit...)
	}
	return triggered
}

func isStaticStopTriggered(o *common.Order, last decimal.Decimal) bool {
	if o.Side == common.Sell {
		return last.LessThanOrEqual(o.StopPrice)
	}
	return last.GreaterThanOrEqual(o.StopPrice)
}

func (e *Engine) collectTrailingTriggers(symbol string, last decimal.Decimal) []*common.Order {
	var triggered []*common.Order
	var remaining []*common.Order
	for _, o := range e.trailingStops {
		if o.Symbol != symbol {
			remaining = append(remaining, o)
			continue
		}
		if o.Side == common.Sell {
			o.Watermark = common.DecMax(o.Watermark, last)
		} else {
			o.Watermark = common.DecMin(o.Watermark, last)
		}
		if isTrailingTriggered(o, last) {
			triggered = append(triggered, o)
		} else {
			remaining = append(remaining, o)
		}
	}
	e.trailingStops = remaining
	return triggered
}

func isTrailingTriggered(o *common.Order, last decimal.Decimal) bool {
	if o.Side == common.Sell {
		effective := o.Watermark.Sub(o.TrailingOffset)
		return last.LessThanOrEqual(effective)
	}
	effective := o.Watermark.Add(o.TrailingOffset)
	return last.GreaterThanOrEqual(effective)
}

// convertTriggeredStop turns a fired stop into the concrete order it acts
// as from here on: STOP_LOSS and TRAILING_STOP become a MARKET order of
// the same side and residual size, STOP_LIMIT becomes a LIMIT at its
// limit_price. The id is kept so callers can still track/cancel it by its
// original identity.
func convertTriggeredStop(stop *common.Order) *common.Order {
	converted := *stop
	converted.Watermark = decimal.Zero
	converted.SequenceNumber = 0
	// Re-entering the book is a fresh submission: it must not carry the
	// stop's original creation timestamp forward into price-time priority.
	converted.Timestamp = time.Time{}

	switch stop.Type {
	case common.StopLimitOrder:
		converted.Type = common.LimitOrder
		converted.Price = stop.LimitPrice
	default: // StopLossOrder, TrailingStopOrder
		converted.Type = common.MarketOrder
		converted.Price = decimal.Zero
	}
	return &converted
}
