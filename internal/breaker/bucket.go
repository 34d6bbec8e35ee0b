package breaker

import (
	"time"

	"github.com/go-resilient/shieldhttp/internal/ringwindow"
)

// bucket holds the per-key breaker state. Buckets are created lazily on
// first reference to a key and live for the lifetime of the Breaker —
// there is no eviction (see spec.md §9 "Per-key buckets" for the LRU
// escape hatch this module deliberately does not need yet).
type bucket struct {
	state State

	// opened_at is set iff state == StateOpen; it anchors the cooldown
	// computed lazily as now - opened_at.
	openedAt time.Time

	halfOpenInFlight  int
	halfOpenSuccesses int
	halfOpenFailures  int

	window *ringwindow.Window
}

func newBucket(windowSize int) *bucket {
	return &bucket{window: ringwindow.New(windowSize)}
}

func (b *bucket) snapshot(key string) BucketSnapshot {
	return BucketSnapshot{
		Key:               key,
		State:             b.state,
		WindowCount:       b.window.Count(),
		WindowFailures:    b.window.Failures(),
		FailureRate:       b.window.FailureRate(),
		OpenedAt:          b.openedAt,
		HalfOpenInFlight:  b.halfOpenInFlight,
		HalfOpenSuccesses: b.halfOpenSuccesses,
		HalfOpenFailures:  b.halfOpenFailures,
	}
}

// resetHalfOpenCounters clears half-open accounting. Called on every
// transition into or out of HALF_OPEN.
func (b *bucket) resetHalfOpenCounters() {
	b.halfOpenInFlight = 0
	b.halfOpenSuccesses = 0
	b.halfOpenFailures = 0
}

// getOrCreate returns the bucket for key, creating it on first
// reference. Caller must hold br.mu.
func (br *Breaker) getOrCreate(key string) *bucket {
	if b, ok := br.buckets[key]; ok {
		return b
	}
	b := newBucket(br.settings.WindowSize)
	br.buckets[key] = b
	return b
}
