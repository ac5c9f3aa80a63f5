package store

import (
	"sync"
	"sync/atomic"
)

// subscriptionBuffer is how many events a subscriber may lag behind before
// further events are dropped for it.
const subscriptionBuffer = 64

// Subscription receives the live events of one automation, optionally
// restricted to a set of event types.
type Subscription struct {
	C <-chan *Event

	automationID string
	ch           chan *Event
	types        map[EventType]bool
	dropped      atomic.Int64
}

// Wants reports whether the subscription accepts events of type t.
func (s *Subscription) Wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// Dropped returns how many events were discarded because the subscriber was
// not reading fast enough. Clients can backfill them from GetEvents.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// EventBus fans automation events out to live subscribers such as SSE streams.
type EventBus struct {
	mu   sync.RWMutex
	subs map[string][]*Subscription
}

// NewEventBus creates a new EventBus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[string][]*Subscription),
	}
}

// Subscribe registers interest in an automation's events. With no types every
// event is delivered.
func (b *EventBus) Subscribe(automationID string, types ...EventType) *Subscription {
	ch := make(chan *Event, subscriptionBuffer)
	sub := &Subscription{C: ch, automationID: automationID, ch: ch}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[automationID] = append(b.subs[automationID], sub)
	return sub
}

// Unsubscribe detaches sub and closes its channel. Calling it twice is a no-op.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.automationID]
	for i, s := range subs {
		if s == sub {
			b.subs[sub.automationID] = append(subs[:i], subs[i+1:]...)
			if len(b.subs[sub.automationID]) == 0 {
				delete(b.subs, sub.automationID)
			}
			close(sub.ch)
			return
		}
	}
}

// Publish delivers event to the subscribers of event.AutomationID that want
// its type. A full subscriber loses the event rather than blocking the turn.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[event.AutomationID] {
		if !sub.Wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
		}
	}
}
