package limiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewPanicsOnInvalidConfig(t *testing.T) {
	cases := []Config{
		{MaxInFlight: 0, EnqueueTimeout: time.Second},
		{MaxInFlight: 1, EnqueueTimeout: 0},
		{MaxInFlight: 1, MaxQueue: -1, EnqueueTimeout: time.Second},
	}
	for _, cfg := range cases {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("New(%+v) did not panic", cfg)
				}
			}()
			New(cfg)
		}()
	}
}

func TestAcquireFastPath(t *testing.T) {
	l := New(Config{MaxInFlight: 2, MaxQueue: 1, EnqueueTimeout: time.Second})
	if err := l.Acquire(context.Background(), AcquireHooks{}); err != nil {
		t.Fatalf("Acquire #1: %v", err)
	}
	if err := l.Acquire(context.Background(), AcquireHooks{}); err != nil {
		t.Fatalf("Acquire #2: %v", err)
	}
	snap := l.Snapshot()
	if snap.InFlight != 2 {
		t.Errorf("InFlight = %d, want 2", snap.InFlight)
	}
}

func TestAcquireQueueFull(t *testing.T) {
	l := New(Config{MaxInFlight: 1, MaxQueue: 1, EnqueueTimeout: 200 * time.Millisecond})
	if err := l.Acquire(context.Background(), AcquireHooks{}); err != nil {
		t.Fatalf("Acquire #1: %v", err)
	}

	// #2 enqueues (holds the one queue slot); run it in a goroutine so
	// it doesn't block the test on the enqueue timeout.
	enqueued := make(chan struct{})
	go func() {
		close(enqueued)
		_ = l.Acquire(context.Background(), AcquireHooks{})
	}()
	<-enqueued
	// give the goroutine a moment to reach PushBack
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if l.Snapshot().QueueDepth == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if depth := l.Snapshot().QueueDepth; depth != 1 {
		t.Fatalf("QueueDepth = %d, want 1", depth)
	}

	// #3 must reject synchronously with QueueFullError, no I/O performed.
	err := l.Acquire(context.Background(), AcquireHooks{})
	var qf *QueueFullError
	if !errors.As(err, &qf) {
		t.Fatalf("Acquire #3 err = %v, want *QueueFullError", err)
	}
}

func TestAcquireQueueTimeout(t *testing.T) {
	l := New(Config{MaxInFlight: 1, MaxQueue: 10, EnqueueTimeout: 30 * time.Millisecond})
	if err := l.Acquire(context.Background(), AcquireHooks{}); err != nil {
		t.Fatalf("Acquire #1: %v", err)
	}

	start := time.Now()
	err := l.Acquire(context.Background(), AcquireHooks{})
	elapsed := time.Since(start)

	var qt *QueueTimeoutError
	if !errors.As(err, &qt) {
		t.Fatalf("Acquire #2 err = %v, want *QueueTimeoutError", err)
	}
	if elapsed < 30*time.Millisecond {
		t.Errorf("Acquire #2 returned after %s, want >= 30ms", elapsed)
	}
	if depth := l.Snapshot().QueueDepth; depth != 0 {
		t.Errorf("QueueDepth after timeout = %d, want 0 (waiter must be absent)", depth)
	}
}

func TestReleaseHandsOffFIFO(t *testing.T) {
	l := New(Config{MaxInFlight: 1, MaxQueue: 2, EnqueueTimeout: time.Second})
	if err := l.Acquire(context.Background(), AcquireHooks{}); err != nil {
		t.Fatalf("Acquire #1: %v", err)
	}

	order := make(chan string, 2)
	go func() {
		if err := l.Acquire(context.Background(), AcquireHooks{}); err == nil {
			order <- "A"
		}
	}()
	// ensure A enqueues before B
	for l.Snapshot().QueueDepth != 1 {
		time.Sleep(time.Millisecond)
	}
	go func() {
		if err := l.Acquire(context.Background(), AcquireHooks{}); err == nil {
			order <- "B"
		}
	}()
	for l.Snapshot().QueueDepth != 2 {
		time.Sleep(time.Millisecond)
	}

	l.Release() // should hand off to A
	first := <-order
	if first != "A" {
		t.Fatalf("first granted waiter = %q, want A", first)
	}
	l.Release() // should hand off to B
	second := <-order
	if second != "B" {
		t.Fatalf("second granted waiter = %q, want B", second)
	}
}

func TestReleaseWithoutAcquirePanics(t *testing.T) {
	l := New(Config{MaxInFlight: 1, EnqueueTimeout: time.Second})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic calling Release with in_flight == 0")
		}
	}()
	l.Release()
}

func TestAcquireCancelledWhileQueuedDoesNotLeakPermit(t *testing.T) {
	l := New(Config{MaxInFlight: 1, MaxQueue: 1, EnqueueTimeout: time.Second})
	if err := l.Acquire(context.Background(), AcquireHooks{}); err != nil {
		t.Fatalf("Acquire #1: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Acquire(ctx, AcquireHooks{})
	}()
	for l.Snapshot().QueueDepth != 1 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err == nil {
		t.Fatal("cancelled Acquire returned nil error")
	}
	if depth := l.Snapshot().QueueDepth; depth != 0 {
		t.Errorf("QueueDepth after cancel = %d, want 0", depth)
	}

	// the permit must still be obtainable by a fresh caller: Release
	// the original holder and confirm it is not swallowed.
	l.Release()
	if err := l.Acquire(context.Background(), AcquireHooks{}); err != nil {
		t.Fatalf("Acquire after cancel+release: %v", err)
	}
}

func TestAcquireHooksFireOnlyWhenQueued(t *testing.T) {
	l := New(Config{MaxInFlight: 1, MaxQueue: 1, EnqueueTimeout: time.Second})

	var fastPathEnqueued int32
	if err := l.Acquire(context.Background(), AcquireHooks{
		OnEnqueue: func(int) { fastPathEnqueued++ },
	}); err != nil {
		t.Fatalf("Acquire #1: %v", err)
	}
	if fastPathEnqueued != 0 {
		t.Error("OnEnqueue fired on the fast (no-wait) path")
	}

	var enqueueDepth, dequeueDepth int
	queuedDone := make(chan error, 1)
	go func() {
		queuedDone <- l.Acquire(context.Background(), AcquireHooks{
			OnEnqueue: func(depth int) { enqueueDepth = depth },
			OnDequeue: func(depth int) { dequeueDepth = depth },
		})
	}()
	for l.Snapshot().QueueDepth != 1 {
		time.Sleep(time.Millisecond)
	}
	if enqueueDepth != 1 {
		t.Errorf("enqueueDepth = %d, want 1", enqueueDepth)
	}

	l.Release()
	if err := <-queuedDone; err != nil {
		t.Fatalf("queued Acquire: %v", err)
	}
	if dequeueDepth != 0 {
		t.Errorf("dequeueDepth = %d, want 0", dequeueDepth)
	}
}
