package engine

import "time"

// Clock supplies the wall-clock time stamped on records as they are folded.
//
// This is processing time, not log time: replaying the same log later
// produces different LastUpdated values and nothing else.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
//
// Thread-safety: SystemClock is stateless and safe for concurrent use.
type SystemClock struct{}

// Now returns time.Now truncated to milliseconds, the precision snapshots
// persist.
func (SystemClock) Now() time.Time {
	return time.Now().Truncate(time.Millisecond)
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}
