package breakpoint

import "time"

// Scheduler arms timed breakpoint actions such as automatic expiry.
type Scheduler interface {
	// Schedule runs fn after d. The returned cancel function stops the
	// timer; calling it after fn ran is a no-op.
	Schedule(d time.Duration, fn func()) (cancel func())
}

// TimerScheduler is the default Scheduler backed by runtime timers.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
