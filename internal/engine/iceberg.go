package engine

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"fenrir/internal/common"
)

// icebergParent tracks a registered ICEBERG order's total hidden size and
// the id of the child LIMIT currently resting in the book on its behalf.
type icebergParent struct {
	order       *common.Order
	activeChild string
}

// registerIceberg files order as a parent and returns its first child
// LIMIT slice of size min(display_quantity, total_quantity), per spec
// §4.2 step 4. The child is a distinct Order with its own id so book
// bookkeeping (fills, cancels) targets it directly; the parent is never
// inserted into any OrderBook.
func (e *Engine) registerIceberg(order *common.Order) *common.Order {
	order.HiddenRemaining = order.TotalQuantity
	parent := &icebergParent{order: order}
	e.icebergParents[order.ID] = parent

	child := e.nextIcebergChild(parent)
	return child
}

// nextIcebergChild slices off the next display-size LIMIT from parent's
// hidden remainder, consuming that much from HiddenRemaining immediately.
// The child always carries a fresh id derived from the parent's, since it
// is tracked as its own resting order.
func (e *Engine) nextIcebergChild(parent *icebergParent) *common.Order {
	size := common.DecMin(parent.order.DisplayQuantity, parent.order.HiddenRemaining)
	parent.order.HiddenRemaining = parent.order.HiddenRemaining.Sub(size)

	child := &common.Order{
		ID:        parent.order.ID + "#" + parent.order.HiddenRemaining.String(),
		Symbol:    parent.order.Symbol,
		Side:      parent.order.Side,
		Type:      common.LimitOrder,
		TIF:       common.GTC,
		Price:     parent.order.Price,
		Quantity:  size,
		Remaining: size,
		TraderID:  parent.order.TraderID,
	}
	parent.activeChild = child.ID
	e.icebergChildOf[child.ID] = parent.order.ID
	return child
}

// replenishIceberg is called from the match loop whenever a removed
// resting order turns out to be a registered iceberg child with hidden
// quantity left. It slices a fresh child at the same price, assigns a
// new timestamp/sequence (so it loses priority, by design — spec §4.2),
// and inserts it directly into book.
func (e *Engine) replenishIceberg(childID string, book *OrderBook) {
	parentID, ok := e.icebergChildOf[childID]
	if !ok {
		return
	}
	parent, ok := e.icebergParents[parentID]
	if !ok {
		return
	}
	delete(e.icebergChildOf, childID)

	if parent.order.HiddenRemaining.LessThanOrEqual(decimal.Zero) {
		delete(e.icebergParents, parentID)
		return
	}

	child := e.nextIcebergChild(parent)
	if err := book.Add(child); err != nil {
		log.Error().Err(err).Str("parentID", parentID).Msg("iceberg replenishment failed to post")
		return
	}
	e.icebergChildOf[child.ID] = parentID
}

// cancelIceberg tombstones a parent's currently resting child (if any)
// and drops the parent, so no further replenishment occurs.
func (e *Engine) cancelIceberg(parentID string, book *OrderBook) error {
	parent, ok := e.icebergParents[parentID]
	if !ok {
		return common.ErrNotFound
	}
	delete(e.icebergParents, parentID)
	if parent.activeChild != "" {
		delete(e.icebergChildOf, parent.activeChild)
		_ = book.Remove(parent.activeChild)
	}
	return nil
}
