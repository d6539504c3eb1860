// Package engine implements the matching core: per-symbol order books, the
// risk gate, the FIFO/PRO_RATA match loop, stop and iceberg routing, and
// trade settlement against registered traders.
package engine

import (
	"container/heap"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fenrir/internal/common"
	"fenrir/internal/events"
	"fenrir/internal/trader"
)

// Config holds the engine-wide parameters spec §4.2's registry lists
// alongside the per-symbol/per-trader maps: the matching strategy and the
// flat maker/taker fee rates charged on every fill's notional.
type Config struct {
	Strategy common.MatchingStrategy
	MakerFee decimal.Decimal
	TakerFee decimal.Decimal
}

// Engine is the sole ingress for order submission and cancellation (spec
// §4.2). It is guarded by a single coarse mutex: one submission, including
// every recursive stop/iceberg trigger it causes, runs to completion
// before the next begins, which is the serialization property spec §5
// requires of any concurrent wrapping of this core.
type Engine struct {
	mu sync.Mutex

	books   map[string]*OrderBook
	traders map[string]*trader.Trader

	trades   []common.Trade
	tradeSeq uint64
	seq      uint64

	lastTradePrice map[string]decimal.Decimal
	strategy       common.MatchingStrategy
	makerFee       decimal.Decimal
	takerFee       decimal.Decimal

	stopBooks     map[stopKey]*stopBook
	stopByID      map[string]stopKey
	trailingStops []*common.Order

	icebergParents map[string]*icebergParent
	icebergChildOf map[string]string

	bus *events.Bus

	// clock is swappable in tests so trade timestamps are deterministic;
	// defaults to time.Now().UTC.
	clock func() time.Time
}

func New(cfg Config) *Engine {
	return &Engine{
		books:          make(map[string]*OrderBook),
		traders:        make(map[string]*trader.Trader),
		lastTradePrice: make(map[string]decimal.Decimal),
		strategy:       cfg.Strategy,
		makerFee:       cfg.MakerFee,
		takerFee:       cfg.TakerFee,
		stopBooks:      make(map[stopKey]*stopBook),
		stopByID:       make(map[string]stopKey),
		icebergParents: make(map[string]*icebergParent),
		icebergChildOf: make(map[string]string),
		bus:            events.New(),
		clock:          func() time.Time { return time.Now().UTC() },
	}
}

// nextSeq assigns the next engine-wide, monotonically increasing
// sequence number. Never reused, matching spec §5's ordering guarantee.
func (e *Engine) nextSeq() uint64 {
	e.seq++
	return e.seq
}

// AddOrderBook registers a new tradable symbol. Fails if the symbol is
// already registered.
func (e *Engine) AddOrderBook(symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.books[symbol]; exists {
		return common.ErrDuplicateSymbol
	}
	e.books[symbol] = NewOrderBook(symbol, e.nextSeq)
	return nil
}

// RegisterTrader adds t to the engine's trader registry. Fails if a
// trader with the same id is already registered.
func (e *Engine) RegisterTrader(t *trader.Trader) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.traders[t.ID]; exists {
		return common.ErrDuplicateTrader
	}
	e.traders[t.ID] = t
	return nil
}

// Subscribe registers handler for topic on the engine's event bus.
func (e *Engine) Subscribe(topic events.Topic, handler events.Handler) {
	e.bus.Subscribe(topic, handler)
}

// Trades returns a copy of every trade executed so far, oldest first.
func (e *Engine) Trades() []common.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]common.Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// Book returns the order book for symbol, or false if unregistered. Used
// by external collaborators (depth snapshots) that only need read access.
func (e *Engine) Book(symbol string) (*OrderBook, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[symbol]
	return b, ok
}

// PnLReport delegates to the named trader's report.
func (e *Engine) PnLReport(traderID string) (trader.Report, error) {
	e.mu.Lock()
	t, ok := e.traders[traderID]
	e.mu.Unlock()
	if !ok {
		return trader.Report{}, common.ErrUnknownTrader
	}
	return t.PnLReport(), nil
}

// PositionReport delegates to the named trader's report.
func (e *Engine) PositionReport(traderID string) (map[string]decimal.Decimal, error) {
	e.mu.Lock()
	t, ok := e.traders[traderID]
	e.mu.Unlock()
	if !ok {
		return nil, common.ErrUnknownTrader
	}
	return t.PositionReport(), nil
}

// SubmitOrder is the sole ingress for every order type, implementing the
// five-step pipeline of spec §4.2: resolve the symbol, run the risk gate,
// record the submission, route by type, then apply TIF. The returned
// *common.Order is the caller's own order value (possibly with
// SequenceNumber/Timestamp now assigned) for types that rest directly;
// for ICEBERG it is the parent, not the first child slice.
func (e *Engine) SubmitOrder(order *common.Order) (*common.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitLocked(order)
}

func (e *Engine) submitLocked(order *common.Order) (*common.Order, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	// 1. Resolution.
	book, ok := e.books[order.Symbol]
	if !ok {
		return nil, common.ErrUnknownSymbol
	}

	// 2. Risk gate. Unregistered traders skip the gate entirely (spec
	// §4.2: "if order.trader_id is registered").
	if t, registered := e.traders[order.TraderID]; registered {
		if err := e.checkRisk(order, t); err != nil {
			return nil, err
		}
	}

	// 3. Recording — after risk passes, before routing, whether or not
	// the order goes on to execute.
	if t, registered := e.traders[order.TraderID]; registered {
		t.RecordSubmission(*order)
	}

	// 4. Routing.
	switch order.Type {
	case common.StopLossOrder, common.StopLimitOrder, common.TrailingStopOrder:
		e.addStop(order)
		return order, nil

	case common.IcebergOrder:
		child := e.registerIceberg(order)
		if _, err := e.submitLocked(child); err != nil {
			return nil, err
		}
		return order, nil

	case common.MarketOrder:
		return e.submitMarket(order, book)

	default: // LimitOrder
		if err := book.Add(order); err != nil {
			return nil, err
		}
		e.bus.Publish(events.OrderAdded, *order)
		e.runMatchLoop(order.Symbol)

		// 5. TIF resolution.
		if order.TIF == common.IOC && order.Remaining.GreaterThan(decimal.Zero) {
			_ = book.Remove(order.ID)
		}
		return order, nil
	}
}

// submitMarket matches a MARKET order against the opposite book (spec
// §4.2). It is rejected with UnmatchableMarket if the opposite side is
// empty at submission time. Otherwise the order is pushed onto its side's
// heap (where its effective price puts it on top) for the duration of the
// match loop only, and any residual left when the sweep stops is removed
// before returning, so it never rests.
func (e *Engine) submitMarket(order *common.Order, book *OrderBook) (*common.Order, error) {
	var hasOpposite bool
	if order.Side == common.Buy {
		_, hasOpposite = book.BestAsk()
	} else {
		_, hasOpposite = book.BestBid()
	}
	if !hasOpposite {
		return nil, common.ErrUnmatchableMarket
	}

	order.SequenceNumber = e.nextSeq()
	if order.Timestamp.IsZero() {
		order.Timestamp = e.clock()
	}

	book.ordersByID[order.ID] = order
	if order.Side == common.Buy {
		heap.Push(book.bids, order)
	} else {
		heap.Push(book.asks, order)
	}
	e.runMatchLoop(order.Symbol)

	// A MARKET order never rests: drop any unmatched residual from the
	// book instead of leaving it resident.
	_ = book.Remove(order.ID)
	return order, nil
}

// CancelOrder removes order_id from wherever it is currently held: the
// symbol's book, the stop index, or the iceberg parent table (spec
// §4.2). Unknown ids return the benign ErrNotFound, treated as a no-op
// by callers.
func (e *Engine) CancelOrder(orderID, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if symbol != "" {
		if book, ok := e.books[symbol]; ok {
			if err := book.Remove(orderID); err == nil {
				return nil
			}
			if err := e.cancelIceberg(orderID, book); err == nil {
				return nil
			}
		}
	} else {
		for _, book := range e.books {
			if err := book.Remove(orderID); err == nil {
				return nil
			}
			if err := e.cancelIceberg(orderID, book); err == nil {
				return nil
			}
		}
	}

	if err := e.removeStop(orderID); err == nil {
		return nil
	}
	return common.ErrNotFound
}
