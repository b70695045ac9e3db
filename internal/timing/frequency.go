// Package timing paces the capture loop: it turns a capture frequency and
// frame rate into an interval, runs the automatic loop and serves manual
// triggers, and keeps the capture clock that timestamps every record.
package timing

import (
	"fmt"
	"strings"
	"time"
)

// Frequency is a capture policy.
type Frequency uint8

const (
	PerSecond Frequency = iota
	PerMinute
	PerHour
	Manual
	OnInteraction
)

var frequencyNames = map[Frequency]string{
	PerSecond:     "per_second",
	PerMinute:     "per_minute",
	PerHour:       "per_hour",
	Manual:        "manual",
	OnInteraction: "interaction",
}

func (f Frequency) String() string {
	if s, ok := frequencyNames[f]; ok {
		return s
	}
	return fmt.Sprintf("frequency(%d)", uint8(f))
}

// IsAutomatic reports whether the scheduler runs its own loop.
func (f Frequency) IsAutomatic() bool {
	return f == PerSecond || f == PerMinute || f == PerHour
}

// ParseFrequency accepts the names used in the config file.
func ParseFrequency(s string) (Frequency, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range frequencyNames {
		if s == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown capture frequency %q", s)
}

// DelayMode decides how the wait after each capture is measured.
type DelayMode uint8

const (
	// DelayMeasured waits until the interval has elapsed since the capture
	// started, so slow captures do not stretch the interval.
	DelayMeasured DelayMode = iota

	// DelayFixed waits the full interval after every capture.
	DelayFixed
)

func (m DelayMode) String() string {
	if m == DelayFixed {
		return "fixed"
	}
	return "measured"
}

// ParseDelayMode accepts "measured" (the default) and "fixed".
func ParseDelayMode(s string) (DelayMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "measured":
		return DelayMeasured, nil
	case "fixed":
		return DelayFixed, nil
	default:
		return 0, fmt.Errorf("unknown delay mode %q", s)
	}
}

// Interval returns the target time between captures: the frequency's unit
// divided by frameRate. Manual and OnInteraction have no interval.
func Interval(f Frequency, frameRate int) (time.Duration, error) {
	var unit time.Duration
	switch f {
	case PerSecond:
		unit = time.Second
	case PerMinute:
		unit = time.Minute
	case PerHour:
		unit = time.Hour
	case Manual, OnInteraction:
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown capture frequency %d", f)
	}

	if frameRate <= 0 {
		return 0, fmt.Errorf("frame rate must be positive, got %d", frameRate)
	}
	interval := unit / time.Duration(frameRate)
	if interval < time.Millisecond {
		return 0, fmt.Errorf("frame rate %d %s is faster than 1ms", frameRate, f)
	}
	// Intervals are whole milliseconds.
	return interval.Truncate(time.Millisecond), nil
}
