package breaker

import "time"

// allowLocked implements the Allow admission algorithm of spec.md §4.3.
// Caller must hold br.mu. The returned Transition is non-zero when the
// cooldown elapsed and the bucket moved OPEN -> HALF_OPEN as a side
// effect of this call.
func (br *Breaker) allowLocked(b *bucket, now time.Time) (Decision, Transition) {
	var t Transition
	switch b.state {
	case StateOpen:
		elapsed := now.Sub(b.openedAt)
		if elapsed < br.settings.Cooldown {
			return Decision{Allowed: false, State: StateOpen, RetryAfter: br.settings.Cooldown - elapsed}, t
		}
		t = br.transitionToHalfOpen(b)
		fallthrough
	case StateHalfOpen:
		if b.halfOpenInFlight >= br.settings.HalfOpenProbeCount {
			return Decision{Allowed: false, State: StateHalfOpen, RetryAfter: 0}, t
		}
		b.halfOpenInFlight++
		return Decision{Allowed: true, State: StateHalfOpen}, t
	default: // StateClosed
		return Decision{Allowed: true, State: StateClosed}, t
	}
}

// releaseProbeLocked decrements halfOpenInFlight without recording any
// outcome, for a HALF_OPEN probe reserved by allowLocked that never
// actually ran (spec.md §9, resolved via option (b) — see
// DESIGN.md). Caller must hold br.mu.
func releaseProbeLocked(b *bucket) {
	if b.state != StateHalfOpen {
		return
	}
	if b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
}

// onSuccessLocked implements the success half of spec.md §4.3's result
// algorithm. Caller must hold br.mu.
func (br *Breaker) onSuccessLocked(b *bucket) Transition {
	switch b.state {
	case StateHalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= br.settings.HalfOpenProbeCount {
			return br.transitionToClosed(b)
		}
		return Transition{}
	case StateClosed:
		b.window.Push(false)
		return Transition{}
	default: // StateOpen: ignored
		return Transition{}
	}
}

// onFailureLocked implements the failure half of spec.md §4.3's result
// algorithm. Caller must hold br.mu.
func (br *Breaker) onFailureLocked(b *bucket, now time.Time) Transition {
	switch b.state {
	case StateHalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		b.halfOpenFailures++
		return br.transitionToOpen(b, now)
	case StateClosed:
		b.window.Push(true)
		if b.window.Count() >= br.settings.MinRequests && b.window.FailureRate() >= br.settings.FailureThreshold {
			return br.transitionToOpen(b, now)
		}
		return Transition{}
	default: // StateOpen: ignored
		return Transition{}
	}
}

func (br *Breaker) transitionToHalfOpen(b *bucket) Transition {
	from := b.state
	b.state = StateHalfOpen
	b.openedAt = time.Time{}
	b.resetHalfOpenCounters()
	return Transition{Changed: true, From: from, To: StateHalfOpen}
}

// transitionToOpen moves a bucket to OPEN from either CLOSED or
// HALF_OPEN. The rolling window is deliberately NOT reset here — its
// failure memory is preserved for when the breaker re-closes later via
// HALF_OPEN (spec.md §4.3 rationale).
func (br *Breaker) transitionToOpen(b *bucket, now time.Time) Transition {
	from := b.state
	b.state = StateOpen
	b.openedAt = now
	b.resetHalfOpenCounters()
	return Transition{Changed: true, From: from, To: StateOpen}
}

// transitionToClosed moves a bucket from HALF_OPEN to CLOSED (recovery
// confirmed). The window IS reset here, preventing an immediate
// re-open from stale failures accumulated before the outage.
func (br *Breaker) transitionToClosed(b *bucket) Transition {
	from := b.state
	b.state = StateClosed
	b.window.Reset()
	b.resetHalfOpenCounters()
	return Transition{Changed: true, From: from, To: StateClosed}
}
