package queue

import "time"

// Clock provides a mockable notion of the current time, so tests can
// control scheduling and expiry logic without real delays.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// WallClock is the default Clock, backed by time.Now.
var WallClock Clock = wallClock{}

func unixToTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func nowFunc(clock Clock) func() int64 {
	return func() int64 { return clock.Now().Unix() }
}

func secondsDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
