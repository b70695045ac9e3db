package output

import (
	"image"
	"time"
)

// Output defines the interface for frame preview mechanisms.
// The recorder hands it a copy of a stored frame at most every
// 1/FPS seconds; an Output must never block the capture loop.
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a frame to the output
	// The image is expected to be in RGBA format
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	FPS     int
	Quality int
}

// Interval returns the minimum time between two preview frames.
func (c Config) Interval() time.Duration {
	if c.FPS <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(c.FPS)
}
