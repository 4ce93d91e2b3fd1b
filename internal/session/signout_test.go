package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleSignOutFires(t *testing.T) {
	fb := newFakeBackend(t)
	r := newTestResolver(t, fb)
	r.cache.StoreCredentials("s", Credentials{RESTToken: "rest"})

	redirected := make(chan struct{})
	timer := r.ScheduleSignOut("s", 10*time.Millisecond, "inactivity", func() {
		close(redirected)
	})

	select {
	case <-timer.Fired():
	case <-time.After(2 * time.Second):
		t.Fatal("sign-out timer never fired")
	}
	select {
	case <-redirected:
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never ran")
	}

	_, ok := r.cache.Credentials("s")
	assert.False(t, ok, "fired timer must purge the session")
	assert.False(t, timer.Cancel(), "cancelling after the purge reports false")
}

func TestScheduleSignOutCancel(t *testing.T) {
	fb := newFakeBackend(t)
	r := newTestResolver(t, fb)
	r.cache.StoreCredentials("s", Credentials{RESTToken: "rest"})

	timer := r.ScheduleSignOut("s", time.Hour, "inactivity", nil)
	require.True(t, timer.Cancel())

	select {
	case <-timer.Fired():
	case <-time.After(2 * time.Second):
		t.Fatal("Fired channel must close on cancel")
	}

	_, ok := r.cache.Credentials("s")
	assert.True(t, ok, "cancelled timer must not purge the session")
}

// Racing Cancel against an already-firing timer must settle exactly one
// way, without stalling either side: Cancel returns promptly, Fired always
// closes, and the purge runs iff Cancel lost.
func TestScheduleSignOutCancelFireRace(t *testing.T) {
	fb := newFakeBackend(t)
	r := newTestResolver(t, fb)

	for i := 0; i < 300; i++ {
		sid := fmt.Sprintf("s-%d", i)
		r.cache.StoreCredentials(sid, Credentials{RESTToken: "rest"})

		timer := r.ScheduleSignOut(sid, time.Microsecond, "inactivity", nil)
		cancelled := make(chan bool, 1)
		go func() { cancelled <- timer.Cancel() }()

		var won bool
		select {
		case won = <-cancelled:
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: Cancel never returned", i)
		}
		select {
		case <-timer.Fired():
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: Fired never closed", i)
		}

		_, ok := r.cache.Credentials(sid)
		if won {
			assert.True(t, ok, "iteration %d: cancelled sign-out must not purge", i)
			assert.False(t, timer.Cancel(), "iteration %d: second Cancel reports settled", i)
		} else {
			assert.False(t, ok, "iteration %d: fired sign-out must purge", i)
		}
	}
}
