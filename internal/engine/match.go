package engine

import (
	"github.com/shopspring/decimal"

	"fenrir/internal/common"
	"fenrir/internal/events"
)

// allocationPrecision bounds the decimal places PRO_RATA rounds share
// allocations down to before assigning the residue to the top maker.
const allocationPrecision = 8

// runMatchLoop drains crossed liquidity on symbol's book, settling fills
// against both traders, publishing trade events, replenishing icebergs,
// and re-checking stop triggers after each completed aggressor match
// (spec §4.2's match loop). It returns once best_bid/best_ask no longer
// cross or one side empties.
func (e *Engine) runMatchLoop(symbol string) {
	book, ok := e.books[symbol]
	if !ok {
		return
	}

	matched, proRataDone := false, false
	for {
		bid, hasBid := book.BestBid()
		ask, hasAsk := book.BestAsk()
		if !hasBid || !hasAsk || !crosses(bid, ask) {
			break
		}

		if e.strategy == common.ProRata && !proRataDone && !bid.IsMarketable() && !ask.IsMarketable() {
			e.matchProRataLevel(symbol, book, bid, ask)
			proRataDone = true
		} else {
			e.matchOnePair(symbol, book, bid, ask)
		}
		matched = true
	}

	if matched {
		e.activateStops(symbol)
	}
}

// crosses reports whether bid and ask currently cross, honoring the
// MARKET-dominance effective price rule without materializing infinities.
func crosses(bid, ask *common.Order) bool {
	if bid.IsMarketable() || ask.IsMarketable() {
		return true
	}
	return bid.Price.GreaterThanOrEqual(ask.Price)
}

// matchOnePair executes the FIFO fill between the current top bid and
// ask: min(remaining) at the maker's resting price, the just-submitted
// order being the taker (spec §9's resolved maker/taker ambiguity).
func (e *Engine) matchOnePair(symbol string, book *OrderBook, bid, ask *common.Order) {
	taker, maker := e.classify(bid, ask)
	price, ok := e.executionPrice(symbol, maker, taker)
	if !ok {
		// Neither side carries a usable resting price (only reachable if
		// both are MARKET, which requires an empty opposite book at
		// submission time and is already rejected upstream). Defensive stop.
		return
	}

	qty := common.DecMin(bid.Remaining, ask.Remaining)
	e.settleFill(symbol, book, bid, ask, taker, maker, price, qty)
}

// classify implements spec §9's explicit maker/taker rule: the order just
// submitted in this call is the taker; the other, already-resting order
// is the maker. The taker is identified as whichever of bid/ask has the
// higher sequence number (it was inserted most recently).
func (e *Engine) classify(bid, ask *common.Order) (taker, maker *common.Order) {
	if bid.SequenceNumber > ask.SequenceNumber {
		return bid, ask
	}
	return ask, bid
}

// executionPrice is the maker's resting limit price. If both sides are
// MARKET (only possible during stop activation with an empty book on
// entry, which submit_order prevents), fall back to the last trade price.
func (e *Engine) executionPrice(symbol string, maker, taker *common.Order) (decimal.Decimal, bool) {
	if !maker.IsMarketable() {
		return maker.Price, true
	}
	if !taker.IsMarketable() {
		return taker.Price, true
	}
	if last, ok := e.lastTradePrice[symbol]; ok {
		return last, true
	}
	return decimal.Zero, false
}

// matchProRataLevel allocates the aggressor's quantity across every live
// maker order resting at the top maker price, proportional to remaining
// quantity, rounded down with the residue assigned to the earliest
// maker (spec §4.2). Only the first level crossed in a runMatchLoop call
// uses this allocation; if the aggressor still has quantity once that
// level is exhausted, runMatchLoop fills the deeper levels FIFO.
func (e *Engine) matchProRataLevel(symbol string, book *OrderBook, bid, ask *common.Order) {
	taker, maker := e.classify(bid, ask)
	makerSide := maker.Side
	level := book.OrdersAtPrice(makerSide, maker.Price)
	if len(level) == 0 {
		e.matchOnePair(symbol, book, bid, ask)
		return
	}

	total := decimal.Zero
	for _, o := range level {
		total = total.Add(o.Remaining)
	}
	allocable := common.DecMin(taker.Remaining, total)
	if allocable.LessThanOrEqual(decimal.Zero) {
		return
	}

	allocated := decimal.Zero
	shares := make([]decimal.Decimal, len(level))
	for i, o := range level {
		share := allocable.Mul(o.Remaining).Div(total).Truncate(allocationPrecision)
		shares[i] = share
		allocated = allocated.Add(share)
	}
	// Residue from rounding down goes to the earliest-priority maker.
	residue := allocable.Sub(allocated)
	if residue.GreaterThan(decimal.Zero) {
		shares[0] = shares[0].Add(residue)
	}

	for i, o := range level {
		qty := common.DecMin(shares[i], common.DecMin(o.Remaining, taker.Remaining))
		if qty.LessThanOrEqual(decimal.Zero) {
			continue
		}
		if taker.Remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		e.settleFill(symbol, book, bidOf(taker, o, makerSide), askOf(taker, o, makerSide), taker, o, maker.Price, qty)
	}
}

// bidOf/askOf resolve which of (taker, maker) plays the bid role for
// settleFill's bookkeeping, since the pro-rata allocator iterates makers
// individually while the taker stays fixed across allocations.
func bidOf(taker, maker *common.Order, makerSide common.Side) *common.Order {
	if makerSide == common.Sell {
		return taker
	}
	return maker
}

func askOf(taker, maker *common.Order, makerSide common.Side) *common.Order {
	if makerSide == common.Sell {
		return maker
	}
	return taker
}

// settleFill is the shared per-trade settlement step: apply fees, update
// trader cash/positions, decrement remaining quantities, evict orders
// that are now fully filled (replenishing icebergs as needed), append
// the Trade, update last_trade_price, and publish trade_executed (spec
// §4.2's bookkeeping + §4.3's settlement).
func (e *Engine) settleFill(symbol string, book *OrderBook, bid, ask, taker, maker *common.Order, price, qty decimal.Decimal) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return
	}

	bid.Remaining = bid.Remaining.Sub(qty)
	ask.Remaining = ask.Remaining.Sub(qty)

	makerFee := e.makerFee.Mul(price).Mul(qty)
	takerFee := e.takerFee.Mul(price).Mul(qty)

	if t, ok := e.traders[taker.TraderID]; ok {
		t.ApplyFill(symbol, taker.Side, qty, price, takerFee)
	}
	if t, ok := e.traders[maker.TraderID]; ok {
		t.ApplyFill(symbol, maker.Side, qty, price, makerFee)
	}

	e.tradeSeq++
	trade := common.Trade{
		ID:           e.tradeSeq,
		Symbol:       symbol,
		Price:        price,
		Quantity:     qty,
		TakerOrderID: taker.ID,
		MakerOrderID: maker.ID,
		TakerSide:    taker.Side,
		Timestamp:    e.clock(),
		MakerFee:     makerFee,
		TakerFee:     takerFee,
	}
	e.trades = append(e.trades, trade)
	e.lastTradePrice[symbol] = price
	e.bus.Publish(events.TradeExecuted, trade)

	e.evictIfFilled(symbol, book, bid)
	e.evictIfFilled(symbol, book, ask)
}

// evictIfFilled removes order from book once its remainder hits zero,
// publishing order_removed and replenishing an iceberg child if order
// was one.
func (e *Engine) evictIfFilled(symbol string, book *OrderBook, order *common.Order) {
	if order.Remaining.GreaterThan(decimal.Zero) {
		return
	}
	_ = book.Remove(order.ID)
	e.bus.Publish(events.OrderRemoved, *order)
	e.replenishIceberg(order.ID, book)
}
