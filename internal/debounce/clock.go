package debounce

import "time"

// Timer is a pending one-shot callback.
type Timer interface {
	// Stop prevents the timer from firing. Returns false if it already fired.
	Stop() bool
}

// Clock supplies the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the wall clock. time.Now carries a monotonic reading, so
// durations measured between two Now calls are immune to clock steps.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
