package capture

import (
	"fmt"
	"image"
	"sync/atomic"
)

// FullFrameDevice copies the whole capture region on every call.
type FullFrameDevice struct {
	grabber Grabber
	cursor  CursorSource
	region  image.Rectangle
	onError ErrorHandler
	count   atomic.Uint64

	// staging receives each grab so a failed one never reaches the caller's frame.
	staging *Frame
}

// NewFullFrameDevice returns a device grabbing region through grabber.
// cursor may be nil, in which case CaptureWithCursor behaves like Capture.
func NewFullFrameDevice(grabber Grabber, cursor CursorSource, region image.Rectangle, onError ErrorHandler) (*FullFrameDevice, error) {
	if grabber == nil {
		return nil, ErrNoPlatform
	}
	if region.Empty() {
		return nil, fmt.Errorf("capture region %v is empty", region)
	}
	return &FullFrameDevice{
		grabber: grabber,
		cursor:  cursor,
		region:  region,
		onError: onError,
		staging: NewFrame(region.Dx(), region.Dy()),
	}, nil
}

func (d *FullFrameDevice) Capture(frame *Frame) uint64 {
	if !d.grab(frame) {
		return d.count.Load()
	}
	return d.count.Add(1)
}

func (d *FullFrameDevice) CaptureWithCursor(frame *Frame) uint64 {
	if !d.grab(frame) {
		return d.count.Load()
	}

	if d.cursor != nil {
		p, shape, err := d.cursor.Cursor()
		if err != nil {
			d.report(fmt.Errorf("failed to read cursor: %w", err))
		} else {
			compositeCursor(frame, d.region.Min, p, shape)
		}
	}
	return d.count.Add(1)
}

func (d *FullFrameDevice) grab(frame *Frame) bool {
	if err := d.grabber.Grab(d.region, d.staging.Pixels, d.staging.Stride); err != nil {
		d.report(fmt.Errorf("failed to grab region %v: %w", d.region, err))
		return false
	}
	if frame.Width != d.staging.Width || frame.Height != d.staging.Height {
		frame.Resize(d.staging.Width, d.staging.Height)
	}
	copy(frame.Pixels, d.staging.Pixels)
	return true
}

func (d *FullFrameDevice) report(err error) {
	if d.onError != nil {
		d.onError(err)
	}
}

func (d *FullFrameDevice) FrameCount() uint64 {
	return d.count.Load()
}

func (d *FullFrameDevice) Region() image.Rectangle {
	return d.region
}

// Close does not close the grabber, which the caller owns.
func (d *FullFrameDevice) Close() error {
	return nil
}
