// Package pipeline orchestrates the circuit breaker, concurrency
// limiter, and transport adapter into the request flow spec.md §4.5
// describes: breaker admission, limiter admission, transport exchange,
// outcome classification, and event emission.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/go-resilient/shieldhttp/internal/breaker"
	"github.com/go-resilient/shieldhttp/internal/events"
	"github.com/go-resilient/shieldhttp/internal/limiter"
	"github.com/go-resilient/shieldhttp/internal/transport"
)

// KeyFunc derives a breaker key from a request. DefaultKeyFunc uses the
// request URL's host.
type KeyFunc func(transport.Request) string

// DefaultKeyFunc derives the breaker key from the request URL's host
// component, per spec.md §3.
func DefaultKeyFunc(req transport.Request) string {
	u, err := url.Parse(req.URL)
	if err != nil {
		return req.URL
	}
	return u.Hostname()
}

// CircuitOpenError is returned when the breaker denies admission.
type CircuitOpenError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("pipeline: circuit open for %q, retry after %s", e.Key, e.RetryAfter)
}

// Config configures a Pipeline.
type Config struct {
	Limiter        *limiter.Limiter
	Breaker        *breaker.Breaker
	Transport      *transport.Adapter
	RequestTimeout time.Duration
	KeyFunc        KeyFunc
	Now            func() time.Time // overridable for tests; defaults to time.Now
}

// Pipeline executes logical requests through the composed resilience
// stack.
type Pipeline struct {
	limiter        *limiter.Limiter
	breaker        *breaker.Breaker
	transport      *transport.Adapter
	requestTimeout time.Duration
	keyFunc        KeyFunc
	now            func() time.Time
	bus            events.Bus
}

// New constructs a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = DefaultKeyFunc
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		limiter:        cfg.Limiter,
		breaker:        cfg.Breaker,
		transport:      cfg.Transport,
		requestTimeout: cfg.RequestTimeout,
		keyFunc:        cfg.KeyFunc,
		now:            cfg.Now,
	}
}

// Subscribe registers handler for the named event, delegating to the
// pipeline's internal event bus.
func (p *Pipeline) Subscribe(name events.Name, handler events.Handler) {
	p.bus.Subscribe(name, handler)
}

// Snapshot reports limiter occupancy and every breaker bucket's state.
type Snapshot struct {
	InFlight    int
	QueueDepth  int
	MaxInFlight int
	MaxQueue    int
	Breakers    []breaker.BucketSnapshot
}

// Diagnostics returns a deeper, single-key view of one breaker bucket,
// including remaining cooldown if it is OPEN. The second return value
// is false if key has never been referenced.
func (p *Pipeline) Diagnostics(key string) (breaker.BucketSnapshot, time.Duration, bool) {
	return p.breaker.Diagnostics(key, p.now())
}

// Snapshot returns the current limiter and breaker state.
func (p *Pipeline) Snapshot() Snapshot {
	limSnap := p.limiter.Snapshot()
	return Snapshot{
		InFlight:    limSnap.InFlight,
		QueueDepth:  limSnap.QueueDepth,
		MaxInFlight: limSnap.MaxInFlight,
		MaxQueue:    limSnap.MaxQueue,
		Breakers:    p.breaker.Snapshot(),
	}
}

// Request executes req through the full resilience pipeline: breaker
// admission, limiter admission, the transport exchange under
// RequestTimeout, outcome classification, and event emission. See
// spec.md §4.5 for the exact sequencing this method implements.
func (p *Pipeline) Request(ctx context.Context, req transport.Request) (transport.Response, error) {
	key := p.keyFunc(req)
	requestID := uuid.New().String()

	decision, transition := p.breaker.Allow(key, p.now())
	p.emitBreakerTransition(key, transition)
	if !decision.Allowed {
		err := &CircuitOpenError{Key: key, RetryAfter: decision.RetryAfter}
		p.bus.Publish(events.Event{Name: events.RequestRejected, Key: key, Request: req.URL, RequestID: requestID, Err: err})
		return transport.Response{}, err
	}

	hooks := limiter.AcquireHooks{
		OnEnqueue: func(depth int) {
			p.bus.Publish(events.Event{Name: events.QueueEnqueued, Key: key, Request: req.URL, RequestID: requestID, QueueDepth: depth})
		},
		OnDequeue: func(depth int) {
			p.bus.Publish(events.Event{Name: events.QueueDequeued, Key: key, Request: req.URL, RequestID: requestID, QueueDepth: depth})
		},
	}
	if err := p.limiter.Acquire(ctx, hooks); err != nil {
		// This rejection is local load-shedding: it must never reach the
		// breaker as an outcome. But if Allow reserved a HALF_OPEN probe
		// slot above, that reservation must still be released — spec.md
		// §9's first open question, resolved via option (b): decrement
		// half_open_in_flight without recording an outcome (see
		// DESIGN.md "Open Question resolutions").
		if decision.State == breaker.StateHalfOpen {
			p.breaker.ReleaseProbe(key)
		}
		p.emitQueueRejection(key, req.URL, requestID, err)
		p.bus.Publish(events.Event{Name: events.RequestRejected, Key: key, Request: req.URL, RequestID: requestID, Err: err})
		return transport.Response{}, err
	}
	defer p.limiter.Release()

	start := p.now()
	p.bus.Publish(events.Event{Name: events.RequestStart, Key: key, Request: req.URL, RequestID: requestID})

	resp, err := p.transport.Do(ctx, req, p.requestTimeout)
	duration := p.now().Sub(start)

	if err != nil {
		transition := p.breaker.OnFailure(key, p.now())
		p.emitBreakerTransition(key, transition)
		p.bus.Publish(events.Event{
			Name: events.RequestFailure, Key: key, Request: req.URL, RequestID: requestID,
			ErrorName: errorName(err), DurationMS: duration.Milliseconds(), Err: err,
		})
		return transport.Response{}, err
	}

	if resp.Status >= 500 {
		transition := p.breaker.OnFailure(key, p.now())
		p.emitBreakerTransition(key, transition)
	} else {
		transition := p.breaker.OnSuccess(key)
		p.emitBreakerTransition(key, transition)
	}
	p.bus.Publish(events.Event{
		Name: events.RequestSuccess, Key: key, Request: req.URL, RequestID: requestID,
		Status: resp.Status, DurationMS: duration.Milliseconds(),
	})
	return resp, nil
}

func (p *Pipeline) emitBreakerTransition(key string, t breaker.Transition) {
	if !t.Changed {
		return
	}
	p.bus.Publish(events.Event{
		Name: events.BreakerState, Key: key,
		From: breakerStateToEventState(t.From),
		To:   breakerStateToEventState(t.To),
	})
}

func (p *Pipeline) emitQueueRejection(key, requestURL, requestID string, err error) {
	depth := p.limiter.Snapshot().QueueDepth
	switch err.(type) {
	case *limiter.QueueFullError:
		p.bus.Publish(events.Event{Name: events.QueueFull, Key: key, Request: requestURL, RequestID: requestID, QueueDepth: depth})
	case *limiter.QueueTimeoutError:
		p.bus.Publish(events.Event{Name: events.QueueTimeout, Key: key, Request: requestURL, RequestID: requestID, QueueDepth: depth})
	}
}

func breakerStateToEventState(s breaker.State) events.State {
	switch s {
	case breaker.StateOpen:
		return events.StateOpen
	case breaker.StateHalfOpen:
		return events.StateHalfOpen
	default:
		return events.StateClosed
	}
}

func errorName(err error) string {
	switch err.(type) {
	case *transport.RequestTimeoutError:
		return "RequestTimeout"
	default:
		return "TransportError"
	}
}
