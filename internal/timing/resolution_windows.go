//go:build windows

package timing

import "golang.org/x/sys/windows"

var (
	winmm           = windows.NewLazySystemDLL("winmm.dll")
	timeBeginPeriod = winmm.NewProc("timeBeginPeriod")
	timeEndPeriod   = winmm.NewProc("timeEndPeriod")
)

// raiseTimerResolution asks the system timer for 1ms periods.
func raiseTimerResolution() (restore func(), precise bool) {
	if err := timeBeginPeriod.Find(); err != nil {
		return func() {}, false
	}
	// TIMERR_NOERROR is 0.
	if r, _, _ := timeBeginPeriod.Call(1); r != 0 {
		return func() {}, false
	}
	return func() { timeEndPeriod.Call(1) }, true
}
