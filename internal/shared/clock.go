package shared

import "time"

// Clock supplies the current instant to status derivations.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// FixedClock always reports the same instant.
func FixedClock(at time.Time) Clock {
	return ClockFunc(func() time.Time { return at })
}

// ClockOrSystem returns c, falling back to SystemClock when nil.
func ClockOrSystem(c Clock) Clock {
	if c == nil {
		return SystemClock
	}
	return c
}
