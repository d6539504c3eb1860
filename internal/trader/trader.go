// Package trader holds per-trader cash, positions, weighted-average cost,
// realized/unrealized P&L, and the risk configuration the matching engine
// checks orders against (spec §3's C3 and §4.3).
package trader

import (
	"sync"

	"github.com/shopspring/decimal"

	"fenrir/internal/common"
)

// epsilon is the tolerance below which a position is considered flat and
// dropped from the positions map, per spec §4.3.
var epsilon = decimal.New(1, -12)

// RiskConfig holds the per-trader limits the engine's risk gate checks.
type RiskConfig struct {
	MaxOrderNotional      decimal.Decimal
	MaxExposurePerSymbol  decimal.Decimal
	RiskPerTradeFraction  decimal.Decimal
	// DailyLossLimit is reserved: windowed-reset semantics are deliberately
	// unspecified (spec §9) and are not enforced here.
	DailyLossLimit decimal.Decimal
}

// Position is the signed quantity a trader holds in one symbol, plus its
// cost basis. Dropped from the positions map once flat — realized P&L is
// tracked separately on Trader.realizedPnL precisely because it must
// survive that cleanup (spec §3 models positions, avg_cost, and
// realized_pnl as three independent per-symbol maps).
type Position struct {
	Quantity      decimal.Decimal // signed: positive long, negative short
	AvgCost       decimal.Decimal // non-negative
	LastMarkPrice decimal.Decimal
}

// Trader is long-lived: registered once with the engine, then referenced
// by every order it submits for the lifetime of the run.
type Trader struct {
	mu sync.Mutex

	ID      string
	Balance decimal.Decimal
	Risk    RiskConfig

	positions map[string]*Position
	// realizedPnL accumulates per symbol for the life of the trader,
	// independent of whether a position is currently open in that symbol.
	realizedPnL map[string]decimal.Decimal
	// OrderHistory is append-only: every order submitted through the
	// engine is recorded here whether or not it ultimately executes.
	OrderHistory []common.Order
}

func New(id string, initialBalance decimal.Decimal, risk RiskConfig) *Trader {
	return &Trader{
		ID:          id,
		Balance:     initialBalance,
		Risk:        risk,
		positions:   make(map[string]*Position),
		realizedPnL: make(map[string]decimal.Decimal),
	}
}

// RecordSubmission appends a snapshot of order to OrderHistory. Called
// whether or not the order goes on to execute.
func (t *Trader) RecordSubmission(order common.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.OrderHistory = append(t.OrderHistory, order)
}

// Position returns the trader's current position in symbol, or a zeroed
// one if none is held.
func (t *Trader) Position(symbol string) Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.positions[symbol]; ok {
		return *p
	}
	return Position{}
}

// Equity is cash plus the mark-to-market value of every open position.
func (t *Trader) Equity() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	equity := t.Balance
	for _, p := range t.positions {
		equity = equity.Add(p.Quantity.Mul(p.LastMarkPrice))
	}
	return equity
}

// Report is the shape pnl_report returns (spec §4.2).
type Report struct {
	Realized   decimal.Decimal
	Unrealized decimal.Decimal
	Equity     decimal.Decimal
	Cash       decimal.Decimal
}

// PnLReport sums realized P&L (from realizedPnL, which outlives any single
// position) and unrealized P&L (from currently open positions only).
func (t *Trader) PnLReport() Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	realized := decimal.Zero
	for _, r := range t.realizedPnL {
		realized = realized.Add(r)
	}

	unrealized := decimal.Zero
	equity := t.Balance
	for _, p := range t.positions {
		u := p.LastMarkPrice.Sub(p.AvgCost).Mul(p.Quantity)
		unrealized = unrealized.Add(u)
		equity = equity.Add(p.Quantity.Mul(p.LastMarkPrice))
	}
	return Report{Realized: realized, Unrealized: unrealized, Equity: equity, Cash: t.Balance}
}

// RealizedPnL returns the cumulative realized P&L for symbol, surviving
// the position itself going flat and being dropped from positions.
func (t *Trader) RealizedPnL(symbol string) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.realizedPnL[symbol]
}

// PositionReport returns a symbol -> signed quantity snapshot.
func (t *Trader) PositionReport() map[string]decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(t.positions))
	for symbol, p := range t.positions {
		out[symbol] = p.Quantity
	}
	return out
}

// UpdateMark records the latest observed price for a symbol, used by
// UnrealizedPnL and PnLReport/Equity. A position is created if one does
// not exist yet, so marks on flat positions are harmless.
func (t *Trader) UpdateMark(symbol string, price decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.positionLocked(symbol)
	p.LastMarkPrice = price
}

// UnrealizedPnL is (mark - avg_cost) * position, the sign following
// position automatically (spec §4.3).
func (t *Trader) UnrealizedPnL(symbol string) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[symbol]
	if !ok {
		return decimal.Zero
	}
	return p.LastMarkPrice.Sub(p.AvgCost).Mul(p.Quantity)
}

func (t *Trader) positionLocked(symbol string) *Position {
	p, ok := t.positions[symbol]
	if !ok {
		p = &Position{}
		t.positions[symbol] = p
	}
	return p
}

// ApplyFill settles one fill of size qty at price on symbol for side,
// debiting fee from the trader's cash balance, implementing the
// weighted-average-cost model of spec §4.3.
//
// BUY: balance -= price*qty + fee. If the prior position was flat or
// long, avg_cost becomes the quantity-weighted average of the old and new
// lots. If the prior position was short, the fill first covers the short
// (realizing (avg_cost_short - price) * min(qty, |prior|)); any quantity
// beyond the cover opens a new long lot at price.
//
// SELL is the mirror image: covers/reduces a long first, realizing
// (price - avg_cost_long) * min(qty, prior_long); any remainder opens or
// extends a short at entry price.
func (t *Trader) ApplyFill(symbol string, side common.Side, qty, price, fee decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	notional := price.Mul(qty)
	if side == common.Buy {
		t.Balance = t.Balance.Sub(notional).Sub(fee)
	} else {
		t.Balance = t.Balance.Add(notional).Sub(fee)
	}

	p := t.positionLocked(symbol)
	signedQty := qty
	if side == common.Sell {
		signedQty = qty.Neg()
	}

	switch {
	case p.Quantity.IsZero():
		// Flat: open a fresh lot in the direction of the trade.
		p.Quantity = signedQty
		p.AvgCost = price
	case p.Quantity.GreaterThan(decimal.Zero) && side == common.Buy:
		// Extending a long: weighted-average the cost basis.
		newQty := p.Quantity.Add(qty)
		p.AvgCost = p.AvgCost.Mul(p.Quantity).Add(price.Mul(qty)).Div(newQty)
		p.Quantity = newQty
	case p.Quantity.LessThan(decimal.Zero) && side == common.Sell:
		// Extending a short: weighted-average the cost basis.
		absQty := p.Quantity.Neg()
		newAbsQty := absQty.Add(qty)
		p.AvgCost = p.AvgCost.Mul(absQty).Add(price.Mul(qty)).Div(newAbsQty)
		p.Quantity = newAbsQty.Neg()
	case p.Quantity.GreaterThan(decimal.Zero) && side == common.Sell:
		// Reducing/covering a long.
		covered := common.DecMin(qty, p.Quantity)
		t.realizedPnL[symbol] = t.realizedPnL[symbol].Add(price.Sub(p.AvgCost).Mul(covered))
		residual := qty.Sub(covered)
		p.Quantity = p.Quantity.Sub(covered)
		if residual.GreaterThan(decimal.Zero) {
			// Flips through flat into a fresh short.
			p.Quantity = residual.Neg()
			p.AvgCost = price
		}
	case p.Quantity.LessThan(decimal.Zero) && side == common.Buy:
		// Reducing/covering a short.
		absQty := p.Quantity.Neg()
		covered := common.DecMin(qty, absQty)
		t.realizedPnL[symbol] = t.realizedPnL[symbol].Add(p.AvgCost.Sub(price).Mul(covered))
		residual := qty.Sub(covered)
		p.Quantity = p.Quantity.Add(covered)
		if residual.GreaterThan(decimal.Zero) {
			// Flips through flat into a fresh long.
			p.Quantity = residual
			p.AvgCost = price
		}
	}

	p.LastMarkPrice = price

	if p.Quantity.Abs().LessThan(epsilon) {
		delete(t.positions, symbol)
	}
}
