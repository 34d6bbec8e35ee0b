// Package events implements a named-event subscription bus for
// lifecycle observability.
//
// Simplified from the richer async/filtered event buses found
// elsewhere in the corpus (see DESIGN.md) down to exactly what
// spec.md §6 specifies: additive subscriptions, synchronous delivery,
// handlers invoked in registration order.
package events

import "sync"

// Name identifies one of the event kinds declared in spec.md §6.
type Name string

const (
	QueueEnqueued Name = "queue:enqueued"
	QueueDequeued Name = "queue:dequeued"
	QueueFull     Name = "queue:full"
	QueueTimeout  Name = "queue:timeout"

	RequestStart    Name = "request:start"
	RequestSuccess  Name = "request:success"
	RequestFailure  Name = "request:failure"
	RequestRejected Name = "request:rejected"

	BreakerState Name = "breaker:state"
)

// Event is the payload delivered to subscribers. Not every field is
// populated for every Name — see spec.md §6's payload table.
type Event struct {
	Name       Name
	Key        string
	Request    string // request URL; empty for breaker:state, which has no request in flight
	RequestID  string
	QueueDepth int

	Status     int
	DurationMS int64
	ErrorName  string
	Err        error

	From State
	To   State
}

// State mirrors breaker.State without importing the breaker package,
// keeping events dependency-free of the subsystems that publish to it.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Handler processes one Event. Handlers run synchronously, in the
// order they were registered; a slow or panicking handler blocks (or
// aborts) the publisher.
type Handler func(Event)

// Bus is a synchronous, named-event publish/subscribe hub. The zero
// value is ready to use.
type Bus struct {
	mu       sync.Mutex
	handlers map[Name][]Handler
}

// Subscribe registers handler for events named name. Subscriptions are
// additive: there is no Unsubscribe, matching spec.md §6's "additive"
// contract.
func (b *Bus) Subscribe(name Name, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[Name][]Handler)
	}
	b.handlers[name] = append(b.handlers[name], handler)
}

// Publish invokes every handler registered for event.Name, synchronously
// and in registration order.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	handlers := append([]Handler(nil), b.handlers[event.Name]...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(event)
	}
}
