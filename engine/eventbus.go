package engine

import (
	"sort"
	"sync"
	"time"
)

type EventType int

type SubscriberID int

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// EventBus fans internal lifecycle events out to in-process subscribers
// (journal writer, SSE hub). Handlers are keyed by event type so an Emit
// only touches the handlers that asked for that type; they run synchronously
// on the emitter's goroutine and must not block.
type EventBus struct {
	mu     sync.RWMutex
	nextID SubscriberID
	all    map[SubscriberID]func(Event)
	typed  map[EventType]map[SubscriberID]func(Event)
	// types remembers which buckets a typed subscriber sits in, so
	// Unsubscribe does not have to sweep every event type.
	types map[SubscriberID][]EventType
}

func NewEventBus() *EventBus {
	return &EventBus{
		all:   make(map[SubscriberID]func(Event)),
		typed: make(map[EventType]map[SubscriberID]func(Event)),
		types: make(map[SubscriberID][]EventType),
	}
}

// Subscribe registers a handler for all event types.
func (eb *EventBus) Subscribe(fn func(Event)) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	eb.all[eb.nextID] = fn
	return eb.nextID
}

// SubscribeTypes registers a handler for specific event types.
func (eb *EventBus) SubscribeTypes(fn func(Event), types ...EventType) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eb.nextID
	for _, t := range types {
		bucket := eb.typed[t]
		if bucket == nil {
			bucket = make(map[SubscriberID]func(Event))
			eb.typed[t] = bucket
		}
		bucket[id] = fn
	}
	eb.types[id] = types
	return id
}

// Unsubscribe removes a subscriber by ID.
func (eb *EventBus) Unsubscribe(id SubscriberID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	delete(eb.all, id)
	for _, t := range eb.types[id] {
		delete(eb.typed[t], id)
		if len(eb.typed[t]) == 0 {
			delete(eb.typed, t)
		}
	}
	delete(eb.types, id)
}

// Emit sends an event to every catch-all subscriber and to the subscribers
// registered for the event's type, in subscription order.
func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	type handler struct {
		id SubscriberID
		fn func(Event)
	}

	eb.mu.RLock()
	handlers := make([]handler, 0, len(eb.all)+len(eb.typed[evt.Type]))
	for id, fn := range eb.all {
		handlers = append(handlers, handler{id, fn})
	}
	for id, fn := range eb.typed[evt.Type] {
		handlers = append(handlers, handler{id, fn})
	}
	eb.mu.RUnlock()

	sort.Slice(handlers, func(i, j int) bool { return handlers[i].id < handlers[j].id })
	for _, h := range handlers {
		h.fn(evt)
	}
}
