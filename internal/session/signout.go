package session

import (
	"sync"
	"time"
)

// SignOutTimer is a countdown-based forced sign-out. The purge and the
// completion callback run exactly once, after the delay, unless Cancel is
// called first (the user re-authenticated before the timer elapsed).
// Whichever of the callback and Cancel flips done first owns the outcome;
// the mutex is never held across the purge or the callback.
type SignOutTimer struct {
	timer *time.Timer
	fired chan struct{}
	mu    sync.Mutex
	done  bool
}

// claim marks the timer settled. It reports whether the caller won and is
// responsible for finishing (purge or close).
func (t *SignOutTimer) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// ScheduleSignOut arms a forced sign-out for the session after delay.
// onSignedOut, when non-nil, runs after the purge (e.g. redirect).
func (r *Resolver) ScheduleSignOut(sessionID string, delay time.Duration, cause string, onSignedOut func()) *SignOutTimer {
	t := &SignOutTimer{fired: make(chan struct{})}
	t.timer = time.AfterFunc(delay, func() {
		if !t.claim() {
			return
		}
		r.ForceSignOut(sessionID, cause)
		if onSignedOut != nil {
			onSignedOut()
		}
		close(t.fired)
	})
	return t
}

// Cancel stops the countdown. It reports whether the sign-out was
// prevented; false means the purge already ran or is underway.
func (t *SignOutTimer) Cancel() bool {
	if !t.claim() {
		return false
	}
	t.timer.Stop()
	close(t.fired)
	return true
}

// Fired returns a channel closed once the sign-out ran or was cancelled.
func (t *SignOutTimer) Fired() <-chan struct{} { return t.fired }
