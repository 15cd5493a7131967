package autopause

import "time"

// Timer is the minimal handle the scheduler needs from a running timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Clock abstracts wall time so tests can drive the scheduler
// deterministically.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

type systemClock struct{}

type systemTimer struct {
	t *time.Timer
}

func (t systemTimer) C() <-chan time.Time { return t.t.C }
func (t systemTimer) Stop() bool          { return t.t.Stop() }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTimer(d time.Duration) Timer {
	return systemTimer{t: time.NewTimer(d)}
}

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }
