package engine

import (
	"github.com/shopspring/decimal"

	"fenrir/internal/common"
	"fenrir/internal/trader"
)

// checkRisk evaluates every applicable risk check for order against t,
// implementing spec §4.2 step 2. A MARKET order's notional is estimated
// from the symbol's last trade price, falling back to the opposite side's
// best quote, and skipped entirely if neither is available — each
// fallback step is explicit, never silent.
func (e *Engine) checkRisk(order *common.Order, t *trader.Trader) error {
	notional, haveNotional := e.estimateNotional(order)

	if haveNotional && t.Risk.MaxOrderNotional.GreaterThan(decimal.Zero) {
		if notional.GreaterThan(t.Risk.MaxOrderNotional) {
			return &common.RiskRejectedError{
				Rule:   "max_order_notional",
				Detail: notional.String() + " > " + t.Risk.MaxOrderNotional.String(),
			}
		}
	}

	if haveNotional && t.Risk.RiskPerTradeFraction.GreaterThan(decimal.Zero) {
		equity := t.Equity()
		limit := equity.Mul(t.Risk.RiskPerTradeFraction)
		if notional.GreaterThan(limit) {
			return &common.RiskRejectedError{
				Rule:   "risk_per_trade_fraction",
				Detail: notional.String() + " exceeds " + limit.String() + " of equity",
			}
		}
	}

	if order.Side == common.Buy && haveNotional {
		if notional.GreaterThan(t.Balance) {
			return &common.RiskRejectedError{
				Rule:   "buyer_balance",
				Detail: "insufficient cash balance",
			}
		}
	}

	if haveNotional && t.Risk.MaxExposurePerSymbol.GreaterThan(decimal.Zero) {
		pos := t.Position(order.Symbol)
		projected := pos.Quantity
		if order.Side == common.Buy {
			projected = projected.Add(order.Quantity)
		} else {
			projected = projected.Sub(order.Quantity)
		}
		if projected.Abs().GreaterThan(t.Risk.MaxExposurePerSymbol) {
			return &common.RiskRejectedError{
				Rule:   "max_exposure_per_symbol",
				Detail: "projected position " + projected.String() + " exceeds cap",
			}
		}
	}

	return nil
}

// estimateNotional computes price*quantity for the risk checks above. A
// LIMIT/STOP_LIMIT-family order always has an explicit price. A MARKET
// order (or a STOP_LOSS/TRAILING_STOP, which convert to MARKET on
// trigger) has none yet, so the fallback chain of spec §4.2 applies:
// last trade price, then the opposite side's best quote, then "skip".
func (e *Engine) estimateNotional(order *common.Order) (decimal.Decimal, bool) {
	price := order.Price
	switch order.Type {
	case common.StopLimitOrder:
		price = order.LimitPrice
	case common.StopLossOrder, common.TrailingStopOrder:
		price = decimal.Zero
	}

	if price.GreaterThan(decimal.Zero) {
		return price.Mul(order.Quantity), true
	}

	if last, ok := e.lastTradePrice[order.Symbol]; ok {
		return last.Mul(order.Quantity), true
	}

	book, ok := e.books[order.Symbol]
	if !ok {
		return decimal.Zero, false
	}
	var quote *common.Order
	var found bool
	if order.Side == common.Buy {
		quote, found = book.BestAsk()
	} else {
		quote, found = book.BestBid()
	}
	if !found || quote.Price.IsZero() {
		return decimal.Zero, false
	}
	return quote.Price.Mul(order.Quantity), true
}
