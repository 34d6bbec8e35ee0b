// Package shieldhttp is a process-local resilience layer for outbound
// HTTP calls: a bounded-queue concurrency limiter, a per-upstream
// rolling-window circuit breaker, and a hard per-request deadline,
// composed into a single request pipeline with synchronous
// observability events.
//
// # Quick Start
//
// Create a client and issue requests through it:
//
//	client := shieldhttp.New(shieldhttp.Config{
//	    MaxInFlight:      16,
//	    MaxQueue:         64,
//	    EnqueueTimeoutMS: 200,
//	    RequestTimeoutMS: 2000,
//	    Breaker: shieldhttp.BreakerConfig{
//	        WindowSize:         20,
//	        MinRequests:        10,
//	        FailureThreshold:   0.5,
//	        CooldownMS:         5000,
//	        HalfOpenProbeCount: 3,
//	    },
//	})
//
//	resp, err := client.Request(ctx, shieldhttp.Request{
//	    Method: shieldhttp.MethodGet,
//	    URL:    "https://api.example.com/widgets",
//	})
//	if err != nil {
//	    var open *shieldhttp.CircuitOpenError
//	    if errors.As(err, &open) {
//	        // fail fast, upstream is unhealthy
//	    }
//	}
//
// # Observability
//
// Subscribe to named lifecycle events; handlers run synchronously, in
// registration order:
//
//	client.Subscribe(shieldhttp.RequestFailure, func(e shieldhttp.Event) {
//	    log.Printf("request %s to %s failed: %s", e.RequestID, e.Key, e.ErrorName)
//	})
//
// # No Persistent State
//
// The client reads no files and no environment variables; every
// setting is explicit in Config.
package shieldhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resilient/shieldhttp/internal/breaker"
	"github.com/go-resilient/shieldhttp/internal/events"
	"github.com/go-resilient/shieldhttp/internal/limiter"
	"github.com/go-resilient/shieldhttp/internal/pipeline"
	"github.com/go-resilient/shieldhttp/internal/transport"
)

// Core Types
//
// These types form the public API and are aliases over the internal
// packages that implement them — see those packages for field-level
// documentation.

// Request is the wire-agnostic outbound request descriptor.
type Request = transport.Request

// Response is the wire-agnostic response descriptor. Header keys are
// lower-cased; multi-value headers are joined with ", ".
type Response = transport.Response

// Method is an enumerated HTTP method.
type Method = transport.Method

const (
	MethodGet     = transport.MethodGet
	MethodPost    = transport.MethodPost
	MethodPut     = transport.MethodPut
	MethodPatch   = transport.MethodPatch
	MethodDelete  = transport.MethodDelete
	MethodHead    = transport.MethodHead
	MethodOptions = transport.MethodOptions
)

// State is one of the three circuit breaker states.
type State = breaker.State

const (
	StateClosed   = breaker.StateClosed
	StateOpen     = breaker.StateOpen
	StateHalfOpen = breaker.StateHalfOpen
)

// Name identifies one of the event kinds a Client publishes.
type Name = events.Name

// Event is the payload delivered to subscribers. See the Event Names
// section below for which fields are populated for each Name.
type Event = events.Event

// Handler processes one Event.
type Handler = events.Handler

// Event Names
//
// Subscribe to these with Client.Subscribe.
const (
	QueueEnqueued = events.QueueEnqueued
	QueueDequeued = events.QueueDequeued
	QueueFull     = events.QueueFull
	QueueTimeout  = events.QueueTimeout

	RequestStart    = events.RequestStart
	RequestSuccess  = events.RequestSuccess
	RequestFailure  = events.RequestFailure
	RequestRejected = events.RequestRejected

	BreakerState = events.BreakerState
)

// Errors
//
// The client's error taxonomy is closed: every rejection or transport
// failure is one of these types (transport errors besides timeout are
// surfaced from net/http unmodified, and a caller whose ctx is
// cancelled while queued for a permit gets ctx.Err()).

// QueueFullError is returned when the limiter's wait queue has no room
// for a new caller.
type QueueFullError = limiter.QueueFullError

// QueueTimeoutError is returned when a queued caller's enqueue timeout
// elapses before a permit becomes available.
type QueueTimeoutError = limiter.QueueTimeoutError

// CircuitOpenError is returned when the breaker denies admission for a
// key, because it is OPEN or its HALF_OPEN probe budget is exhausted.
type CircuitOpenError = pipeline.CircuitOpenError

// RequestTimeoutError is returned when a request's hard deadline
// elapses before the transport exchange completes.
type RequestTimeoutError = transport.RequestTimeoutError

// KeyFunc derives the breaker/observability key from a request.
// DefaultKeyFunc uses the request URL's host.
type KeyFunc = pipeline.KeyFunc

// DefaultKeyFunc is the default KeyFunc: the request URL's host.
var DefaultKeyFunc = pipeline.DefaultKeyFunc

// BreakerConfig configures the per-key circuit breaker embedded in a
// Client. All fields are required; New panics on an invalid
// combination (see internal/breaker.Settings.validate).
type BreakerConfig struct {
	// WindowSize is the rolling outcome window's capacity.
	WindowSize int

	// MinRequests is the minimum window population evaluated before a
	// CLOSED bucket can trip.
	MinRequests int

	// FailureThreshold is the failure rate, in [0, 1], at or above
	// which a CLOSED bucket trips to OPEN.
	FailureThreshold float64

	// CooldownMS is the minimum time an OPEN bucket stays OPEN before
	// probing HALF_OPEN.
	CooldownMS int64

	// HalfOpenProbeCount bounds concurrent HALF_OPEN probes and the
	// consecutive successes required to close again.
	HalfOpenProbeCount int
}

// Config configures a Client. See spec.md §6 for the exact option set
// this mirrors.
type Config struct {
	// MaxInFlight caps concurrently admitted requests. Must be > 0.
	MaxInFlight int

	// MaxQueue caps callers waiting for a permit once MaxInFlight is
	// reached. 0 means no waiting.
	MaxQueue int

	// EnqueueTimeoutMS bounds how long a queued caller waits for a
	// permit. Must be > 0.
	EnqueueTimeoutMS int64

	// RequestTimeoutMS is the hard per-request deadline passed to the
	// transport adapter. Must be > 0.
	RequestTimeoutMS int64

	// Breaker configures the embedded circuit breaker.
	Breaker BreakerConfig

	// KeyFunc derives the breaker/observability key from a request.
	// Defaults to DefaultKeyFunc (the request URL's host).
	KeyFunc KeyFunc

	// HTTPClient is the underlying *http.Client used for outbound
	// exchanges. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Now is overridable for deterministic tests; defaults to
	// time.Now.
	Now func() time.Time
}

// Client composes a concurrency limiter, a per-key circuit breaker,
// and a transport adapter into a single resilient HTTP entry point.
// The zero value is not usable; construct with New.
type Client struct {
	pipeline *pipeline.Pipeline
}

// New constructs a Client. It panics if Config (or its embedded
// BreakerConfig) is invalid — these are programmer errors caught at
// construction, matching the breaker and limiter's own panic-on-bad-
// settings convention.
func New(cfg Config) *Client {
	if cfg.RequestTimeoutMS <= 0 {
		panic("shieldhttp: RequestTimeoutMS must be > 0")
	}
	lim := limiter.New(limiter.Config{
		MaxInFlight:    cfg.MaxInFlight,
		MaxQueue:       cfg.MaxQueue,
		EnqueueTimeout: time.Duration(cfg.EnqueueTimeoutMS) * time.Millisecond,
	})
	brk := breaker.New(breaker.Settings{
		WindowSize:         cfg.Breaker.WindowSize,
		MinRequests:        cfg.Breaker.MinRequests,
		FailureThreshold:   cfg.Breaker.FailureThreshold,
		Cooldown:           time.Duration(cfg.Breaker.CooldownMS) * time.Millisecond,
		HalfOpenProbeCount: cfg.Breaker.HalfOpenProbeCount,
	})
	tr := transport.New(cfg.HTTPClient)

	return &Client{
		pipeline: pipeline.New(pipeline.Config{
			Limiter:        lim,
			Breaker:        brk,
			Transport:      tr,
			RequestTimeout: time.Duration(cfg.RequestTimeoutMS) * time.Millisecond,
			KeyFunc:        cfg.KeyFunc,
			Now:            cfg.Now,
		}),
	}
}

// Request executes req through the full resilience pipeline: breaker
// admission, limiter admission, the transport exchange under the
// configured deadline, outcome classification, and event emission.
func (c *Client) Request(ctx context.Context, req Request) (Response, error) {
	return c.pipeline.Request(ctx, req)
}

// Subscribe registers handler for the named event. Subscriptions are
// additive; handlers run synchronously, in registration order.
func (c *Client) Subscribe(name events.Name, handler Handler) {
	c.pipeline.Subscribe(name, handler)
}

// Snapshot is a point-in-time view of limiter occupancy and every
// breaker bucket the client has created so far.
type Snapshot = pipeline.Snapshot

// Snapshot returns the client's current limiter and breaker state.
func (c *Client) Snapshot() Snapshot {
	return c.pipeline.Snapshot()
}

// BucketSnapshot is a point-in-time view of one key's breaker bucket.
type BucketSnapshot = breaker.BucketSnapshot

// Diagnostics returns a deeper, single-key view of a breaker bucket
// than Snapshot: its current state, window contents, half-open
// accounting, and — if OPEN — how much cooldown remains. The second
// return value is false if key has never been referenced.
func (c *Client) Diagnostics(key string) (BucketSnapshot, time.Duration, bool) {
	return c.pipeline.Diagnostics(key)
}
