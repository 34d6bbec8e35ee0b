// Package limiter implements a bounded-queue, fair-FIFO concurrency
// limiter with direct permit hand-off.
//
// A Limiter caps the number of in-flight operations at MaxInFlight. Once
// that cap is reached, callers either wait in a bounded FIFO queue (up
// to MaxQueue deep) or are rejected outright. Waiters are granted their
// permit directly from Release — never by re-checking the in-flight
// counter — so a freed permit cannot be stolen by a caller that did not
// queue (anti-starvation, strict FIFO).
package limiter

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// QueueFullError is returned by Acquire when the wait queue is already
// at capacity (or MaxQueue is 0) and a new caller would otherwise have
// to enqueue.
type QueueFullError struct {
	MaxQueue int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("limiter: queue full (max_queue=%d)", e.MaxQueue)
}

// QueueTimeoutError is returned by Acquire when a waiter's enqueue
// timeout elapses before a permit becomes available.
type QueueTimeoutError struct {
	Timeout time.Duration
}

func (e *QueueTimeoutError) Error() string {
	return fmt.Sprintf("limiter: queue timeout after %s", e.Timeout)
}

// Config configures a Limiter. All fields are required; New panics if
// they are out of range.
type Config struct {
	// MaxInFlight is the maximum number of concurrently admitted
	// operations. Must be > 0.
	MaxInFlight int

	// MaxQueue is the maximum number of callers allowed to wait for a
	// permit once MaxInFlight is reached. 0 means no waiting: the next
	// caller is rejected immediately with QueueFullError.
	MaxQueue int

	// EnqueueTimeout bounds how long a queued waiter waits for a
	// permit before it is removed from the queue and rejected with
	// QueueTimeoutError. Must be > 0.
	EnqueueTimeout time.Duration
}

// Snapshot is a point-in-time view of limiter occupancy.
type Snapshot struct {
	InFlight    int
	QueueDepth  int
	MaxInFlight int
	MaxQueue    int
}

// Limiter is a bounded-queue FIFO semaphore. The zero value is not
// usable; construct with New.
type Limiter struct {
	cfg Config

	mu        sync.Mutex
	inFlight  int
	waitQueue *list.List // of *waiter
}

type waiter struct {
	done      chan error // buffered(1); nil error means a permit was granted
	timer     *time.Timer
	elem      *list.Element
	onDequeue func(queueDepth int)
}

// AcquireHooks lets a caller observe queue entry/exit for one Acquire
// call, for observability only — hooks never affect admission. Either
// field may be nil. Hooks fire only when the caller actually waits in
// the queue; the fast (no-wait) admission path never invokes them.
type AcquireHooks struct {
	// OnEnqueue fires once, synchronously within Acquire, right after
	// the caller is added to the wait queue.
	OnEnqueue func(queueDepth int)

	// OnDequeue fires when the caller's permit is handed off by a
	// concurrent Release call (queue_depth reflects the queue
	// immediately after removal).
	OnDequeue func(queueDepth int)
}

// New constructs a Limiter. It panics if cfg.MaxInFlight <= 0 or
// cfg.EnqueueTimeout <= 0 — these are programmer errors, not runtime
// conditions a caller should need to recover from.
func New(cfg Config) *Limiter {
	if cfg.MaxInFlight <= 0 {
		panic("limiter: MaxInFlight must be > 0")
	}
	if cfg.EnqueueTimeout <= 0 {
		panic("limiter: EnqueueTimeout must be > 0")
	}
	if cfg.MaxQueue < 0 {
		panic("limiter: MaxQueue must be >= 0")
	}
	return &Limiter{cfg: cfg, waitQueue: list.New()}
}

// Acquire admits the caller, possibly after waiting in the FIFO queue.
// On success the caller owns a permit that MUST be paired with exactly
// one Release call. Acquire fails with *QueueFullError when the queue
// has no room, with *QueueTimeoutError when a queued wait exceeds
// EnqueueTimeout, or with ctx.Err() if ctx is cancelled while queued.
//
// Acquire never performs outbound I/O; rejection here is local
// load-shedding.
func (l *Limiter) Acquire(ctx context.Context, hooks AcquireHooks) error {
	l.mu.Lock()

	// Fast path: a free permit is available, no scheduling needed.
	if l.inFlight < l.cfg.MaxInFlight {
		l.inFlight++
		l.mu.Unlock()
		return nil
	}

	// No free permit. Either reject immediately or enqueue.
	if l.cfg.MaxQueue == 0 || l.waitQueue.Len() >= l.cfg.MaxQueue {
		l.mu.Unlock()
		return &QueueFullError{MaxQueue: l.cfg.MaxQueue}
	}

	w := &waiter{done: make(chan error, 1), onDequeue: hooks.OnDequeue}
	w.elem = l.waitQueue.PushBack(w)
	depth := l.waitQueue.Len()
	w.timer = time.AfterFunc(l.cfg.EnqueueTimeout, func() {
		l.expire(w)
	})
	l.mu.Unlock()
	if hooks.OnEnqueue != nil {
		hooks.OnEnqueue(depth)
	}

	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		if !l.cancelWaiter(w) {
			// Release (or expire) already resolved this waiter before we
			// could remove it from the queue; find out which and, if a
			// permit was actually handed to us, give it back rather than
			// leaking it — the caller is no longer around to do so.
			if err := <-w.done; err == nil {
				l.Release()
			}
		}
		return ctx.Err()
	}
}

// expire fires when a waiter's enqueue timeout elapses. If the waiter
// is still queued it is removed atomically and completed with
// QueueTimeoutError; the permit it was waiting for is neither produced
// nor consumed.
func (l *Limiter) expire(w *waiter) {
	l.mu.Lock()
	if w.elem == nil {
		l.mu.Unlock()
		return // already handed a permit or cancelled
	}
	l.waitQueue.Remove(w.elem)
	w.elem = nil
	l.mu.Unlock()

	select {
	case w.done <- &QueueTimeoutError{Timeout: l.cfg.EnqueueTimeout}:
	default:
	}
}

// cancelWaiter removes a waiter from the queue in response to external
// context cancellation, returning true if it was still queued (and so
// neither produced nor consumed a permit). It returns false if Release
// or expire already resolved the waiter first.
func (l *Limiter) cancelWaiter(w *waiter) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w.elem == nil {
		return false
	}
	w.timer.Stop()
	l.waitQueue.Remove(w.elem)
	w.elem = nil
	return true
}

// Release gives back a permit acquired by a successful Acquire call.
// If the wait queue is non-empty, the permit is handed directly to the
// head waiter (FIFO, no re-check of in-flight count, no possibility of
// a new caller stealing it ahead of an already-queued one). Otherwise
// the in-flight count is simply decremented.
//
// Calling Release when no permit is outstanding (in_flight == 0) is a
// programmer error and panics.
func (l *Limiter) Release() {
	l.mu.Lock()
	if l.inFlight == 0 {
		l.mu.Unlock()
		panic("limiter: Release called with in_flight == 0")
	}

	front := l.waitQueue.Front()
	if front == nil {
		l.inFlight--
		l.mu.Unlock()
		return
	}

	w := l.waitQueue.Remove(front).(*waiter)
	w.elem = nil
	w.timer.Stop()
	depth := l.waitQueue.Len()
	l.mu.Unlock()

	if w.onDequeue != nil {
		w.onDequeue(depth)
	}
	// in_flight is unchanged: the permit transfers directly.
	w.done <- nil
}

// Snapshot returns a point-in-time view of limiter occupancy.
func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		InFlight:    l.inFlight,
		QueueDepth:  l.waitQueue.Len(),
		MaxInFlight: l.cfg.MaxInFlight,
		MaxQueue:    l.cfg.MaxQueue,
	}
}
