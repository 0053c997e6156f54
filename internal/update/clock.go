package update

import "time"

// Clock abstracts the wall clock so freshness checks and history
// timestamps can be pinned in tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system time.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// TestClock always reports FixedTime.
type TestClock struct {
	FixedTime time.Time
}

func (t TestClock) Now() time.Time {
	return t.FixedTime
}
