package codec

import "time"

// TicksPerSecond is the resolution of every timestamp stored on disk.
// One tick is 100ns.
const TicksPerSecond = int64(time.Second / tickUnit)

const tickUnit = 100 * time.Nanosecond

// DurationToTicks converts an elapsed capture time to ticks.
func DurationToTicks(d time.Duration) int64 {
	return int64(d / tickUnit)
}

// TicksToDuration converts stored ticks back to an elapsed capture time.
func TicksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks) * tickUnit
}

// TimeToTicks converts a wall-clock time to ticks since the Unix epoch (UTC).
func TimeToTicks(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano() / int64(tickUnit)
}

// TicksToTime is the inverse of TimeToTicks.
func TicksToTime(ticks int64) time.Time {
	if ticks == 0 {
		return time.Time{}
	}
	return time.Unix(0, ticks*int64(tickUnit)).UTC()
}
