// Package events implements the minimal publish/subscribe bus the matching
// engine uses to announce order_added, order_removed, and trade_executed
// notifications to external collaborators (spec §2's C5).
package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Topic names the well-known event kinds.
type Topic string

const (
	OrderAdded    Topic = "order_added"
	OrderRemoved  Topic = "order_removed"
	TradeExecuted Topic = "trade_executed"
)

// Handler receives the event payload. A handler must be total: Publish
// isolates a panicking handler so one broken subscriber cannot halt the
// matching loop or drop the event for the remaining subscribers.
type Handler func(payload any)

// Bus is a single-process multi-producer/single-consumer-style registry:
// any number of goroutines may Publish, any number of handlers may
// Subscribe, delivery is synchronous and in registration order.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]Handler
}

func New() *Bus {
	return &Bus{subscribers: make(map[Topic][]Handler)}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic Topic, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Publish delivers payload to every handler registered for topic, in the
// order the matching engine produced the events (spec §5: "trade events
// are published in the order the matches occur"). Subscribers must not
// mutate engine state re-entrantly; this bus makes no attempt to detect
// that, it only guarantees a panicking handler is contained.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[topic]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(h, payload)
	}
}

func (b *Bus) dispatch(h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("event subscriber panicked, isolating")
		}
	}()
	h(payload)
}
