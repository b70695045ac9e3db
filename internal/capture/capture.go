package capture

import (
	"errors"
	"image"
	"time"
)

var (
	// ErrWaitTimeout means the platform had no new frame within the poll
	// timeout. It is not a failure: the tick simply has no work.
	ErrWaitTimeout = errors.New("no new frame available")

	// ErrDeviceLost means the duplication device was removed or reset and
	// every platform resource must be recreated.
	ErrDeviceLost = errors.New("capture device lost")

	// ErrNoPlatform is returned when a device is built without the platform
	// back-end its variant requires.
	ErrNoPlatform = errors.New("no capture platform configured")
)

// ErrorHandler receives per-call capture faults. Capture calls never return
// errors; they report through the handler and return the unchanged counter.
type ErrorHandler func(err error)

// Device grabs frames into a caller-owned, reusable Frame.
//
// Both capture calls return the device's frame counter. A counter larger
// than on the previous call means the frame was refilled; an unchanged
// counter means the frame was left untouched and there is nothing to encode.
type Device interface {
	// Capture fills frame with the current content of the capture region.
	Capture(frame *Frame) uint64

	// CaptureWithCursor is Capture with the cursor sprite composited on top.
	CaptureWithCursor(frame *Frame) uint64

	// FrameCount returns the number of frames produced so far.
	FrameCount() uint64

	// Region returns the capture region in screen coordinates.
	Region() image.Rectangle

	// Close releases every platform resource.
	Close() error
}

// Grabber copies screen pixels synchronously.
type Grabber interface {
	// Grab copies region (screen coordinates) into dst as BGRA rows of the given stride.
	Grab(region image.Rectangle, dst []byte, stride int) error
}

// CursorSource reports the current cursor.
type CursorSource interface {
	// Cursor returns the pointer state and its current shape.
	Cursor() (Pointer, *CursorShape, error)
}

// Pointer is the cursor position in screen coordinates.
type Pointer struct {
	Position image.Point
	Visible  bool
}

// CursorType classifies a cursor bitmap.
type CursorType uint8

const (
	CursorMonochrome  CursorType = 1
	CursorColor       CursorType = 2
	CursorMaskedColor CursorType = 4
)

// CursorShape is a cursor sprite. Pixels are premultiplied BGRA rows of
// Width*4 bytes. Serial changes whenever the shape changes.
type CursorShape struct {
	Type    CursorType
	Width   int
	Height  int
	Hotspot image.Point
	Pixels  []byte
	Serial  uint64
}

// Bounds returns where the sprite lands when the pointer is at pos.
func (s *CursorShape) Bounds(pos image.Point) image.Rectangle {
	origin := pos.Sub(s.Hotspot)
	return image.Rect(origin.X, origin.Y, origin.X+s.Width, origin.Y+s.Height)
}

// MovedRect is a region the platform moved instead of redrawing: the pixels
// now at Destination were at Source (top-left corner) in the previous frame.
type MovedRect struct {
	Source      image.Point
	Destination image.Rectangle
}

// DuplicatedFrame describes what changed on the desktop since the last
// acquired frame. Shape is nil unless the cursor shape changed.
type DuplicatedFrame struct {
	Moved          []MovedRect
	Dirty          []image.Rectangle
	PointerUpdated bool
	Pointer        Pointer
	Shape          *CursorShape
}

// Duplicator is a platform screen-duplication facility.
type Duplicator interface {
	// AcquireNextFrame polls for the next composited desktop frame.
	// It returns ErrWaitTimeout when nothing changed within timeout and
	// ErrDeviceLost when the device must be recreated.
	AcquireNextFrame(timeout time.Duration) (*DuplicatedFrame, error)

	// CopyRect copies src (screen coordinates) of the acquired frame into
	// dst at dstOrigin, as BGRA rows of the given stride.
	CopyRect(dst []byte, stride int, dstOrigin image.Point, src image.Rectangle) error

	// ReleaseFrame hands the acquired frame back to the platform.
	ReleaseFrame() error

	// Close releases the duplication resources.
	Close() error
}

// DuplicatorFactory creates a fresh Duplicator, used at start and after device loss.
type DuplicatorFactory func() (Duplicator, error)
