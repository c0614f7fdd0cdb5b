package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"folio.org/internal/workflow"
)

// Hub fans committed transitions out to live subscribers (SSE clients).
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	dropped atomic.Uint64
}

type subscriber struct {
	ch     chan workflow.Event
	filter func(workflow.Event) bool
}

var _ workflow.Notifier = (*Hub)(nil)

// New initialises an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events accepted by filter (nil accepts all). The channel is closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, filter func(workflow.Event) bool) <-chan workflow.Event {
	ch := make(chan workflow.Event, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscriber{ch: ch, filter: filter}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// ScopeFilter limits a subscription to documents the actor may see.
func ScopeFilter(actor workflow.Actor) func(workflow.Event) bool {
	scope := workflow.ScopeFor(actor)
	return func(evt workflow.Event) bool {
		return scope.Allows(workflow.Document{OwnerID: evt.OwnerID, AdviserID: evt.AdviserID})
	}
}

// Publish fans the event out to all subscribers without blocking.
func (h *Hub) Publish(evt workflow.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.filter != nil && !sub.filter(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
			h.dropped.Add(1)
		}
	}
}

// Notify implements workflow.Notifier.
func (h *Hub) Notify(_ context.Context, evt workflow.Event) error {
	h.Publish(evt)
	return nil
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
