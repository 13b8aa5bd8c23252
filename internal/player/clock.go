package player

import "time"

// Timer is a stoppable pending callback.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. Callbacks run on a goroutine of the clock's
// choosing, never inside AfterFunc.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock is the wall clock.
type RealClock struct{}

// AfterFunc implements Clock.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
