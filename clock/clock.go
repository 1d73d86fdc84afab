// Package clock provides the scheduling capability used by the poll loop. The
// adapter never sleeps or ticks on its own, it asks a Clock for a single-shot
// deferred call, so tests can swap in a Mock and advance time by hand.
package clock

import "time"

// Timer is a handle to a pending deferred call.
type Timer interface {
	// Stop prevents the call from firing. It reports whether the call was
	// still pending.
	Stop() bool
}

// Clock schedules single-shot deferred calls.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

var _ Clock = Real{}

// Real implements Clock with the runtime timers.
type Real struct{}

// AfterFunc implements Clock
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
