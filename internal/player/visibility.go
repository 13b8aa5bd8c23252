package player

import "time"

// Inactivity timeout bounds.
const (
	DefaultInactivityTimeout = 10 * time.Second
	MinInactivityTimeout     = 5 * time.Second
	MaxInactivityTimeout     = 10 * time.Second
)

// Visibility auto-hides the control overlay after a period without
// activity. It is not safe for concurrent use; the owning session
// serializes access, including the timer callback passed to arm.
type Visibility struct {
	timeout time.Duration
	touch   bool
	arm     func(d time.Duration, fire func()) Timer

	shown    bool
	dragging bool
	timer    Timer
	gen      int
}

// NewVisibility creates a Shown visibility controller. arm schedules the
// expiry callback; the session wraps it so it runs under its lock.
func NewVisibility(timeout time.Duration, touch bool, arm func(time.Duration, func()) Timer) *Visibility {
	if timeout < MinInactivityTimeout || timeout > MaxInactivityTimeout {
		timeout = DefaultInactivityTimeout
	}
	return &Visibility{timeout: timeout, touch: touch, arm: arm, shown: true}
}

// Shown reports whether the controls are visible.
func (v *Visibility) Shown() bool {
	return v.shown
}

// Timeout returns the effective inactivity timeout.
func (v *Visibility) Timeout() time.Duration {
	return v.timeout
}

// Activity shows the controls and restarts the inactivity timer.
func (v *Visibility) Activity() {
	v.shown = true
	v.restart()
}

// Leave hides the controls when the pointer leaves the player. Touch
// devices have no hover, so it is ignored there, as it is mid-drag.
func (v *Visibility) Leave() {
	if v.touch || v.dragging {
		return
	}
	v.stopTimer()
	v.shown = false
}

// SetDragging suspends hiding while a scrub drag is in progress.
func (v *Visibility) SetDragging(dragging bool) {
	v.dragging = dragging
}

// Stop cancels the timer for good.
func (v *Visibility) Stop() {
	v.stopTimer()
}

func (v *Visibility) restart() {
	v.stopTimer()
	gen := v.gen
	v.timer = v.arm(v.timeout, func() { v.expire(gen) })
}

func (v *Visibility) stopTimer() {
	v.gen++
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
}

func (v *Visibility) expire(gen int) {
	if gen != v.gen {
		return
	}
	v.timer = nil
	if v.dragging {
		v.restart()
		return
	}
	v.shown = false
}
