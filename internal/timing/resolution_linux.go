//go:build linux

package timing

import (
	"time"

	"golang.org/x/sys/unix"
)

// raiseTimerResolution reports whether the monotonic clock resolves 1ms.
// Linux timers need no global setting, so restore is a no-op.
func raiseTimerResolution() (restore func(), precise bool) {
	var ts unix.Timespec
	if err := unix.ClockGetres(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return func() {}, false
	}
	return func() {}, time.Duration(ts.Nano()) <= time.Millisecond
}
