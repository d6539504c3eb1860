package engine

import (
	"container/heap"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fenrir/internal/common"
)

// OrderBook maintains the two priority structures for one symbol: bids
// ordered by (-effective_price, timestamp, sequence_number) and asks
// ordered by (+effective_price, timestamp, sequence_number), each a
// lazy-deletion heap (spec §4.1, §9 — heaps win over a balanced ordered
// map at the shallow, high-turnover top-of-book depths this core serves).
//
// A MARKET order never rests here: the engine's market sweep places it on
// its side's heap only while the match loop runs and removes any residual
// afterwards. Add accepts only LIMIT orders (including iceberg display
// slices and triggered STOP_LIMIT conversions).
type OrderBook struct {
	Symbol string

	bids *bidHeap
	asks *askHeap

	// ordersByID gives O(1) lookup and O(1) cancel-mark; Remove never
	// rebalances either heap, it only flips the tombstone and deletes the
	// index entry.
	ordersByID map[string]*common.Order

	nextSeq func() uint64
}

func NewOrderBook(symbol string, nextSeq func() uint64) *OrderBook {
	bids := &bidHeap{}
	asks := &askHeap{}
	heap.Init(bids)
	heap.Init(asks)
	return &OrderBook{
		Symbol:     symbol,
		bids:       bids,
		asks:       asks,
		ordersByID: make(map[string]*common.Order),
		nextSeq:    nextSeq,
	}
}

// Add inserts a LIMIT order (including an iceberg display slice) into the
// book. STOP_*, TRAILING_STOP, and ICEBERG parents must never reach here;
// the engine routes those elsewhere (spec §4.1: direct insertion of an
// advanced type is UnsupportedOrderType).
func (b *OrderBook) Add(order *common.Order) error {
	if order.Symbol != b.Symbol {
		return common.ErrSymbolMismatch
	}
	if order.Type != common.LimitOrder {
		return common.ErrUnsupportedOrderType
	}

	order.SequenceNumber = b.nextSeq()
	if order.Timestamp.IsZero() {
		order.Timestamp = time.Now().UTC()
	}

	b.ordersByID[order.ID] = order
	if order.Side == common.Buy {
		heap.Push(b.bids, order)
	} else {
		heap.Push(b.asks, order)
	}
	return nil
}

// Remove marks order as a tombstone and drops it from the id index. It is
// O(1) amortized and idempotent: canceling an already-gone id returns the
// benign ErrNotFound, which higher levels treat as a no-op.
func (b *OrderBook) Remove(orderID string) error {
	order, ok := b.ordersByID[orderID]
	if !ok {
		return common.ErrNotFound
	}
	order.MarkCanceled()
	delete(b.ordersByID, orderID)
	return nil
}

// BestBid peeks the top of the bid heap, discarding any tombstones that
// have surfaced, and returns the live order without removing it.
func (b *OrderBook) BestBid() (*common.Order, bool) {
	for b.bids.Len() > 0 {
		top := (*b.bids)[0]
		if top.Canceled() {
			heap.Pop(b.bids)
			continue
		}
		return top, true
	}
	return nil, false
}

// BestAsk is BestBid's mirror for the ask side.
func (b *OrderBook) BestAsk() (*common.Order, bool) {
	for b.asks.Len() > 0 {
		top := (*b.asks)[0]
		if top.Canceled() {
			heap.Pop(b.asks)
			continue
		}
		return top, true
	}
	return nil, false
}

// OrdersAtPrice returns every live resting order on side at price, earliest
// timestamp/sequence first. Used only by the PRO_RATA allocator (spec
// §4.2), which needs the whole level rather than just the top. This is a
// linear scan over the heap's backing slice — acceptable for the
// alternate strategy at the shallow depths this core targets; FIFO
// matching never calls it.
func (b *OrderBook) OrdersAtPrice(side common.Side, price decimal.Decimal) []*common.Order {
	var src []*common.Order
	if side == common.Buy {
		src = []*common.Order(*b.bids)
	} else {
		src = []*common.Order(*b.asks)
	}
	var out []*common.Order
	for _, o := range src {
		if o.Canceled() || o.Type == common.MarketOrder {
			continue
		}
		if o.Price.Equal(price) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].SequenceNumber < out[j].SequenceNumber
	})
	return out
}

// PriceLevel is one aggregated row of a Depth snapshot.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Depth aggregates live resting quantity by price for up to levels
// distinct prices on each side. ICEBERG children only contribute their
// displayed remaining quantity — the parent's hidden remainder never
// appears here, since it was never inserted into the book. Aggregation
// does not mutate the book: tombstones it walks over are skipped, not
// evicted.
func (b *OrderBook) Depth(levels int) (bids, asks []PriceLevel) {
	return b.aggregateSide(bidsSide, levels), b.aggregateSide(asksSide, levels)
}

type bookSide int

const (
	bidsSide bookSide = iota
	asksSide
)

func (b *OrderBook) aggregateSide(side bookSide, levels int) []PriceLevel {
	totals := make(map[string]decimal.Decimal)
	order := make(map[string]decimal.Decimal) // price string -> price, for ordering
	var prices []decimal.Decimal

	visit := func(o *common.Order) {
		if o.Canceled() {
			return
		}
		key := o.Price.String()
		if _, seen := totals[key]; !seen {
			prices = append(prices, o.Price)
			order[key] = o.Price
		}
		totals[key] = totals[key].Add(o.Remaining)
	}

	switch side {
	case bidsSide:
		for _, o := range *b.bids {
			visit(o)
		}
		sort.Slice(prices, func(i, j int) bool { return prices[i].GreaterThan(prices[j]) })
	case asksSide:
		for _, o := range *b.asks {
			visit(o)
		}
		sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })
	}

	if levels > 0 && len(prices) > levels {
		prices = prices[:levels]
	}
	out := make([]PriceLevel, 0, len(prices))
	for _, p := range prices {
		out = append(out, PriceLevel{Price: p, Quantity: totals[p.String()]})
	}
	return out
}

// CancelAll marks every resting order owned by traderID as canceled.
func (b *OrderBook) CancelAll(traderID string) {
	for id, order := range b.ordersByID {
		if order.TraderID == traderID {
			order.MarkCanceled()
			delete(b.ordersByID, id)
		}
	}
}
