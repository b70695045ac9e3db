// Package events carries input events from OS hook callbacks to the
// recording's event streams without ever blocking the callback.
package events

import (
	"image"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
)

// Event is one of CursorEvent, CursorDataEvent or KeyEvent.
type Event interface {
	// At returns the capture-clock timestamp of the event.
	At() time.Duration
}

// Button indexes CursorEvent.Buttons.
type Button int

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonMiddle
	ButtonExtra1
	ButtonExtra2
)

// CursorEvent is a pointer sample. Position is relative to the capture origin.
type CursorEvent struct {
	Timestamp  time.Duration
	Position   image.Point
	Buttons    [5]bool
	WheelDelta int16
}

func (e CursorEvent) At() time.Duration { return e.Timestamp }

// Pressed reports whether any button is down.
func (e CursorEvent) Pressed() bool {
	for _, b := range e.Buttons {
		if b {
			return true
		}
	}
	return false
}

// CursorDataEvent is emitted only when the cursor shape changes. Bounds is
// relative to the capture origin; Data holds the raw sprite bytes.
type CursorDataEvent struct {
	Timestamp time.Duration
	Type      capture.CursorType
	Bounds    image.Rectangle
	Hotspot   image.Point
	Data      []byte
}

func (e CursorDataEvent) At() time.Duration { return e.Timestamp }

// Modifier is a bit set of held modifier keys.
type Modifier uint8

const (
	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

// KeyEvent is a key press.
type KeyEvent struct {
	Timestamp time.Duration
	KeyCode   int32
	Modifiers Modifier
	Uppercase bool
	Injected  bool
}

func (e KeyEvent) At() time.Duration { return e.Timestamp }

// Sink persists events. Pipeline calls it from its drain goroutine only.
type Sink interface {
	WriteCursor(CursorEvent) error
	WriteCursorData(CursorDataEvent) error
	WriteKey(KeyEvent) error
}

// Gate reports whether the capture clock runs.
type Gate interface {
	Running() bool
}
