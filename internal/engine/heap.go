package engine

import "fenrir/internal/common"

// bidHeap and askHeap implement container/heap.Interface directly over
// *common.Order, generalizing the teacher's BuyBook/SellBook (which sorted
// a heap of *Order by price then arrival time) to the full tie-break chain
// spec §4.1 specifies: effective price, then timestamp, then
// sequence_number. A MARKET order's effective price dominates its side
// unconditionally, so it is always compared first.

type bidHeap []*common.Order

func (h bidHeap) Len() int { return len(h) }

func (h bidHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	aMkt, bMkt := a.Type == common.MarketOrder, b.Type == common.MarketOrder
	switch {
	case aMkt && !bMkt:
		return true
	case bMkt && !aMkt:
		return false
	case !aMkt && !bMkt:
		if !a.Price.Equal(b.Price) {
			return a.Price.GreaterThan(b.Price) // highest bid first
		}
	}
	return tieBreak(a, b)
}

func (h bidHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *bidHeap) Push(x any) { *h = append(*h, x.(*common.Order)) }

func (h *bidHeap) Pop() any {
	old := *h
	n := len(old)
	o := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return o
}

type askHeap []*common.Order

func (h askHeap) Len() int { return len(h) }

func (h askHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	aMkt, bMkt := a.Type == common.MarketOrder, b.Type == common.MarketOrder
	switch {
	case aMkt && !bMkt:
		return true
	case bMkt && !aMkt:
		return false
	case !aMkt && !bMkt:
		if !a.Price.Equal(b.Price) {
			return a.Price.LessThan(b.Price) // lowest ask first
		}
	}
	return tieBreak(a, b)
}

func (h askHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *askHeap) Push(x any) { *h = append(*h, x.(*common.Order)) }

func (h *askHeap) Pop() any {
	old := *h
	n := len(old)
	o := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return o
}

// tieBreak is the (timestamp, sequence_number) chain shared by both sides.
// Partial fills never reassign either field, so an order keeps its
// original priority across its whole resident lifetime (spec §4.1).
func tieBreak(a, b *common.Order) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.SequenceNumber < b.SequenceNumber
}
