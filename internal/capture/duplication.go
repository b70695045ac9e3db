package capture

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
)

// DefaultAcquireTimeout keeps AcquireNextFrame a poll; the scheduler paces the loop.
const DefaultAcquireTimeout time.Duration = 0

// DuplicationDevice keeps a staging copy of the capture region and only
// refreshes the parts the platform reports as moved or dirty. A tick where
// nothing inside the region changed leaves the output frame untouched.
type DuplicationDevice struct {
	factory DuplicatorFactory
	dup     Duplicator
	region  image.Rectangle
	timeout time.Duration
	onError ErrorHandler

	staging   []byte
	stride    int
	needsFull bool

	pointer Pointer
	shape   *CursorShape

	count atomic.Uint64
}

// NewDuplicationDevice creates the platform duplicator and the staging buffer.
func NewDuplicationDevice(factory DuplicatorFactory, region image.Rectangle, timeout time.Duration, onError ErrorHandler) (*DuplicationDevice, error) {
	if factory == nil {
		return nil, ErrNoPlatform
	}
	if region.Empty() {
		return nil, fmt.Errorf("capture region %v is empty", region)
	}

	d := &DuplicationDevice{
		factory: factory,
		region:  region,
		timeout: timeout,
		onError: onError,
		stride:  region.Dx() * BytesPerPixel,
	}
	d.staging = make([]byte, d.stride*region.Dy())

	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DuplicationDevice) init() error {
	dup, err := d.factory()
	if err != nil {
		return fmt.Errorf("failed to create duplicator: %w", err)
	}
	d.dup = dup
	d.needsFull = true
	return nil
}

// reinit disposes every platform resource and recreates them once.
func (d *DuplicationDevice) reinit(cause error) {
	log := logger.WithComponent("capture")
	log.Warn().Err(cause).Msg("Duplication device lost, reinitializing")

	if d.dup != nil {
		if err := d.dup.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close lost duplicator")
		}
		d.dup = nil
	}
	if err := d.init(); err != nil {
		d.report(err)
	}
}

func (d *DuplicationDevice) Capture(frame *Frame) uint64 {
	return d.capture(frame, false)
}

func (d *DuplicationDevice) CaptureWithCursor(frame *Frame) uint64 {
	return d.capture(frame, true)
}

func (d *DuplicationDevice) capture(frame *Frame, withCursor bool) uint64 {
	if d.dup == nil {
		if err := d.init(); err != nil {
			d.report(err)
			return d.count.Load()
		}
	}

	info, err := d.dup.AcquireNextFrame(d.timeout)
	switch {
	case err == nil:
	case errors.Is(err, ErrWaitTimeout):
		return d.count.Load()
	case errors.Is(err, ErrDeviceLost):
		d.reinit(err)
		return d.count.Load()
	default:
		d.report(fmt.Errorf("failed to acquire frame: %w", err))
		return d.count.Load()
	}

	changed, err := d.apply(info)
	if rerr := d.dup.ReleaseFrame(); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		d.needsFull = true
		if errors.Is(err, ErrDeviceLost) {
			d.reinit(err)
		} else {
			d.report(fmt.Errorf("failed to update staging buffer: %w", err))
		}
		return d.count.Load()
	}

	if withCursor && d.updateCursor(info) {
		changed = true
	}
	if !changed {
		return d.count.Load()
	}

	frame.Resize(d.region.Dx(), d.region.Dy())
	copy(frame.Pixels, d.staging)
	if withCursor {
		compositeCursor(frame, d.region.Min, d.pointer, d.shape)
	}
	return d.count.Add(1)
}

// apply copies the moved and dirty parts of the region into the staging buffer.
func (d *DuplicationDevice) apply(info *DuplicatedFrame) (bool, error) {
	if d.needsFull {
		if err := d.dup.CopyRect(d.staging, d.stride, image.Point{}, d.region); err != nil {
			return false, err
		}
		d.needsFull = false
		return true, nil
	}

	changed := false
	for _, m := range info.Moved {
		dst := m.Destination.Intersect(d.region)
		if dst.Empty() {
			continue
		}
		changed = true

		srcMin := m.Source.Add(dst.Min.Sub(m.Destination.Min))
		src := image.Rectangle{Min: srcMin, Max: srcMin.Add(dst.Size())}
		if src.In(d.region) {
			copyRect(d.staging, d.stride, dst.Min.Sub(d.region.Min), d.staging, d.stride, src.Sub(d.region.Min))
			continue
		}
		// The source lies partly outside the staging buffer; fetch the
		// destination pixels from the desktop instead.
		if err := d.dup.CopyRect(d.staging, d.stride, dst.Min.Sub(d.region.Min), dst); err != nil {
			return false, err
		}
	}

	for _, r := range info.Dirty {
		r = r.Intersect(d.region)
		if r.Empty() {
			continue
		}
		changed = true
		if err := d.dup.CopyRect(d.staging, d.stride, r.Min.Sub(d.region.Min), r); err != nil {
			return false, err
		}
	}
	return changed, nil
}

// updateCursor records cursor updates and reports whether the old or the new
// sprite touches the capture region.
func (d *DuplicationDevice) updateCursor(info *DuplicatedFrame) bool {
	if info.Shape == nil && !info.PointerUpdated {
		return false
	}

	before := d.cursorBounds()
	if info.Shape != nil {
		d.shape = info.Shape
	}
	if info.PointerUpdated {
		d.pointer = info.Pointer
	}
	after := d.cursorBounds()

	return before.Overlaps(d.region) || after.Overlaps(d.region)
}

func (d *DuplicationDevice) cursorBounds() image.Rectangle {
	if d.shape == nil || !d.pointer.Visible {
		return image.Rectangle{}
	}
	return d.shape.Bounds(d.pointer.Position)
}

func (d *DuplicationDevice) report(err error) {
	if d.onError != nil {
		d.onError(err)
	}
}

func (d *DuplicationDevice) FrameCount() uint64 {
	return d.count.Load()
}

func (d *DuplicationDevice) Region() image.Rectangle {
	return d.region
}

func (d *DuplicationDevice) Close() error {
	if d.dup == nil {
		return nil
	}
	err := d.dup.Close()
	d.dup = nil
	return err
}
