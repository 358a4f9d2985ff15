package service

import "time"

// Clock provides the time stamped on results. Tests inject TestClock.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the actual system time in UTC.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// TestClock implements Clock with a fixed time for testing.
type TestClock struct {
	FixedTime time.Time
}

// Now returns the fixed time.
func (t TestClock) Now() time.Time {
	return t.FixedTime
}

func clockOrReal(c Clock) Clock {
	if c == nil {
		return RealClock{}
	}
	return c
}
