package capture

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDesktop is an in-memory screen: every pixel holds a value derived from
// its position plus a per-test generation byte.
type fakeDesktop struct {
	bounds image.Rectangle
	gen    uint8
}

func (d *fakeDesktop) pixel(x, y int) [4]byte {
	return [4]byte{uint8(x), uint8(y), d.gen, 0xFF}
}

func (d *fakeDesktop) fill(dst []byte, stride int, dstOrigin image.Point, src image.Rectangle) {
	for y := src.Min.Y; y < src.Max.Y; y++ {
		for x := src.Min.X; x < src.Max.X; x++ {
			p := d.pixel(x, y)
			off := (dstOrigin.Y+y-src.Min.Y)*stride + (dstOrigin.X+x-src.Min.X)*BytesPerPixel
			copy(dst[off:off+4], p[:])
		}
	}
}

func (d *fakeDesktop) Grab(region image.Rectangle, dst []byte, stride int) error {
	d.fill(dst, stride, image.Point{}, region)
	return nil
}

type fakeDuplicator struct {
	desktop  *fakeDesktop
	frames   []*DuplicatedFrame
	errs     []error
	copies   []image.Rectangle
	released int
	closed   bool
}

func (f *fakeDuplicator) AcquireNextFrame(time.Duration) (*DuplicatedFrame, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.frames) == 0 {
		return nil, ErrWaitTimeout
	}
	fr := f.frames[0]
	f.frames = f.frames[1:]
	return fr, nil
}

func (f *fakeDuplicator) CopyRect(dst []byte, stride int, dstOrigin image.Point, src image.Rectangle) error {
	f.copies = append(f.copies, src)
	f.desktop.fill(dst, stride, dstOrigin, src)
	return nil
}

func (f *fakeDuplicator) ReleaseFrame() error {
	f.released++
	return nil
}

func (f *fakeDuplicator) Close() error {
	f.closed = true
	return nil
}

func newDuplication(t *testing.T, region image.Rectangle, dups ...*fakeDuplicator) (*DuplicationDevice, *[]error, *int) {
	t.Helper()
	var reported []error
	created := 0
	factory := func() (Duplicator, error) {
		if created >= len(dups) {
			return nil, errors.New("no more duplicators")
		}
		d := dups[created]
		created++
		return d, nil
	}
	dev, err := NewDuplicationDevice(factory, region, DefaultAcquireTimeout, func(err error) {
		reported = append(reported, err)
	})
	require.NoError(t, err)
	return dev, &reported, &created
}

func TestDuplicationFirstFrameIsFull(t *testing.T) {
	desk := &fakeDesktop{bounds: image.Rect(0, 0, 100, 100)}
	dup := &fakeDuplicator{desktop: desk, frames: []*DuplicatedFrame{{}}}
	region := image.Rect(10, 10, 20, 20)
	dev, reported, _ := newDuplication(t, region, dup)

	frame := NewFrame(0, 0)
	assert.Equal(t, uint64(1), dev.Capture(frame))
	assert.Empty(t, *reported)
	assert.Equal(t, []image.Rectangle{region}, dup.copies)
	assert.Equal(t, 10, frame.Width)
	assert.Equal(t, uint8(10), frame.Pixels[0])
	assert.Equal(t, uint8(10), frame.Pixels[1])
	assert.Equal(t, 1, dup.released)
}

func TestDuplicationNoOpWhenNothingIntersects(t *testing.T) {
	desk := &fakeDesktop{}
	dup := &fakeDuplicator{desktop: desk, frames: []*DuplicatedFrame{
		{},
		{
			Dirty: []image.Rectangle{image.Rect(50, 50, 60, 60)},
			Moved: []MovedRect{{Source: image.Pt(70, 70), Destination: image.Rect(80, 80, 90, 90)}},
		},
	}}
	dev, reported, _ := newDuplication(t, image.Rect(0, 0, 20, 20), dup)

	frame := NewFrame(0, 0)
	require.Equal(t, uint64(1), dev.CaptureWithCursor(frame))
	snapshot := append([]byte(nil), frame.Pixels...)
	desk.gen = 9

	assert.Equal(t, uint64(1), dev.CaptureWithCursor(frame))
	assert.Equal(t, snapshot, frame.Pixels)
	assert.Empty(t, *reported)
	assert.Len(t, dup.copies, 1)
}

func TestDuplicationTimeoutIsNotAnError(t *testing.T) {
	dup := &fakeDuplicator{desktop: &fakeDesktop{}, frames: []*DuplicatedFrame{{}}}
	dev, reported, _ := newDuplication(t, image.Rect(0, 0, 4, 4), dup)

	frame := NewFrame(0, 0)
	dev.Capture(frame)
	assert.Equal(t, uint64(1), dev.Capture(frame))
	assert.Equal(t, uint64(1), dev.Capture(frame))
	assert.Empty(t, *reported)
}

func TestDuplicationCopiesOnlyDirtyIntersection(t *testing.T) {
	desk := &fakeDesktop{}
	dup := &fakeDuplicator{desktop: desk, frames: []*DuplicatedFrame{
		{},
		{Dirty: []image.Rectangle{image.Rect(15, 15, 30, 30)}},
	}}
	region := image.Rect(10, 10, 20, 20)
	dev, _, _ := newDuplication(t, region, dup)

	frame := NewFrame(0, 0)
	dev.Capture(frame)
	desk.gen = 7
	assert.Equal(t, uint64(2), dev.Capture(frame))

	require.Len(t, dup.copies, 2)
	assert.Equal(t, image.Rect(15, 15, 20, 20), dup.copies[1])

	// Outside the dirty part the old generation survives.
	assert.Equal(t, uint8(0), frame.Pixels[2])
	inside := 5*frame.Stride + 5*BytesPerPixel
	assert.Equal(t, uint8(7), frame.Pixels[inside+2])
}

func TestDuplicationMovedRectInsideStaging(t *testing.T) {
	desk := &fakeDesktop{}
	dup := &fakeDuplicator{desktop: desk, frames: []*DuplicatedFrame{
		{},
		{Moved: []MovedRect{{Source: image.Pt(0, 0), Destination: image.Rect(0, 2, 4, 4)}}},
	}}
	dev, _, _ := newDuplication(t, image.Rect(0, 0, 4, 4), dup)

	frame := NewFrame(0, 0)
	dev.Capture(frame)
	assert.Equal(t, uint64(2), dev.Capture(frame))

	// Row 2 now holds what row 0 held, without touching the desktop.
	assert.Len(t, dup.copies, 1)
	assert.Equal(t, uint8(0), frame.Pixels[2*frame.Stride+1])
	assert.Equal(t, uint8(1), frame.Pixels[3*frame.Stride+1])
}

func TestDuplicationDeviceLostReinitializes(t *testing.T) {
	first := &fakeDuplicator{desktop: &fakeDesktop{}, frames: []*DuplicatedFrame{{}}, errs: []error{nil, ErrDeviceLost}}
	second := &fakeDuplicator{desktop: &fakeDesktop{gen: 3}, frames: []*DuplicatedFrame{{}}}
	dev, reported, created := newDuplication(t, image.Rect(0, 0, 2, 2), first, second)

	frame := NewFrame(0, 0)
	require.Equal(t, uint64(1), dev.Capture(frame))

	// The lost tick is sacrificed.
	assert.Equal(t, uint64(1), dev.Capture(frame))
	assert.True(t, first.closed)
	assert.Equal(t, 2, *created)
	assert.Empty(t, *reported)

	// Capture resumes on the next tick with a full refresh.
	assert.Equal(t, uint64(2), dev.Capture(frame))
	assert.Equal(t, uint8(3), frame.Pixels[2])
}

func TestDuplicationOtherErrorsAreReported(t *testing.T) {
	boom := errors.New("boom")
	dup := &fakeDuplicator{desktop: &fakeDesktop{}, errs: []error{boom}}
	dev, reported, _ := newDuplication(t, image.Rect(0, 0, 2, 2), dup)

	assert.Equal(t, uint64(0), dev.Capture(NewFrame(0, 0)))
	require.Len(t, *reported, 1)
	assert.ErrorIs(t, (*reported)[0], boom)
}

func TestDuplicationCursorChangeProducesFrame(t *testing.T) {
	shape := &CursorShape{Type: CursorColor, Width: 1, Height: 1, Pixels: []byte{1, 2, 3, 0xFF}, Serial: 1}
	dup := &fakeDuplicator{desktop: &fakeDesktop{}, frames: []*DuplicatedFrame{
		{},
		{PointerUpdated: true, Pointer: Pointer{Position: image.Pt(1, 1), Visible: true}, Shape: shape},
		{PointerUpdated: true, Pointer: Pointer{Position: image.Pt(50, 50), Visible: true}},
		{PointerUpdated: true, Pointer: Pointer{Position: image.Pt(60, 60), Visible: true}},
	}}
	dev, _, _ := newDuplication(t, image.Rect(0, 0, 4, 4), dup)

	frame := NewFrame(0, 0)
	dev.CaptureWithCursor(frame)
	assert.Equal(t, uint64(2), dev.CaptureWithCursor(frame))
	off := 1*frame.Stride + 1*BytesPerPixel
	assert.Equal(t, []byte{1, 2, 3, 0xFF}, frame.Pixels[off:off+4])

	// Leaving the region still repaints to remove the sprite.
	assert.Equal(t, uint64(3), dev.CaptureWithCursor(frame))
	assert.Equal(t, uint8(1), frame.Pixels[off])

	// Moving entirely outside the region is a no-op.
	assert.Equal(t, uint64(3), dev.CaptureWithCursor(frame))
}

type fakeCursor struct {
	pointer Pointer
	shape   *CursorShape
}

func (c *fakeCursor) Cursor() (Pointer, *CursorShape, error) {
	return c.pointer, c.shape, nil
}

func TestFullFrameAlwaysCopies(t *testing.T) {
	desk := &fakeDesktop{}
	cursor := &fakeCursor{
		pointer: Pointer{Position: image.Pt(200, 200), Visible: true},
		shape:   &CursorShape{Width: 1, Height: 1, Hotspot: image.Pt(0, 0), Pixels: []byte{0, 0, 0, 0x80}},
	}
	region := image.Rect(196, 196, 204, 204)
	dev, err := New(Options{Kind: KindFullFrame, Region: region}, Platform{Grabber: desk, Cursor: cursor})
	require.NoError(t, err)

	frame := NewFrame(0, 0)
	assert.Equal(t, uint64(1), dev.Capture(frame))
	assert.Equal(t, uint64(2), dev.Capture(frame))
	assert.Equal(t, uint64(3), dev.CaptureWithCursor(frame))

	// Half-transparent black roughly halves the underlying value.
	off := 4*frame.Stride + 4*BytesPerPixel
	assert.Equal(t, uint8(200*127/255), frame.Pixels[off])
	assert.Equal(t, uint8(0xFF), frame.Pixels[off+3])
	assert.Equal(t, uint64(3), dev.FrameCount())
}

// tornGrabber writes part of the buffer before failing.
type tornGrabber struct {
	fail bool
}

func (g *tornGrabber) Grab(region image.Rectangle, dst []byte, stride int) error {
	for i := range dst[:len(dst)/2] {
		dst[i] = 0xAB
	}
	if g.fail {
		return errors.New("grab failed")
	}
	return nil
}

func TestFullFrameLeavesFrameOnGrabError(t *testing.T) {
	grabber := &tornGrabber{fail: true}
	var reported []error
	dev, err := NewFullFrameDevice(grabber, nil, image.Rect(0, 0, 4, 2), func(err error) {
		reported = append(reported, err)
	})
	require.NoError(t, err)

	frame := NewFrame(1, 1)
	frame.Pixels[0] = 7
	assert.Equal(t, uint64(0), dev.Capture(frame))
	assert.Equal(t, 1, frame.Width, "not resized")
	assert.Equal(t, []byte{7, 0, 0, 0}, frame.Pixels)
	require.Len(t, reported, 1)

	grabber.fail = false
	assert.Equal(t, uint64(1), dev.Capture(frame))
	assert.Equal(t, 4, frame.Width)
	assert.Equal(t, byte(0xAB), frame.Pixels[0])
	assert.Equal(t, byte(0), frame.Pixels[frame.Len()-1])

	// A later failure keeps the previous good frame.
	frame.Pixels[0] = 9
	grabber.fail = true
	assert.Equal(t, uint64(1), dev.Capture(frame))
	assert.Equal(t, byte(9), frame.Pixels[0])
}

func TestNewRequiresPlatform(t *testing.T) {
	_, err := New(Options{Kind: KindDuplication, Region: image.Rect(0, 0, 1, 1)}, Platform{})
	assert.ErrorIs(t, err, ErrNoPlatform)

	_, err = ParseKind("gpu")
	assert.Error(t, err)
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindFullFrame, k)
}

func TestCursorWatcherReportsShapeChanges(t *testing.T) {
	src := &fakeCursor{shape: &CursorShape{Serial: 1}}
	w := NewCursorWatcher(src)

	_, shape, _, err := w.Poll()
	require.NoError(t, err)
	assert.NotNil(t, shape)

	_, shape, moved, err := w.Poll()
	require.NoError(t, err)
	assert.Nil(t, shape)
	assert.False(t, moved)

	src.shape = &CursorShape{Serial: 2}
	src.pointer.Position = image.Pt(3, 3)
	_, shape, moved, err = w.Poll()
	require.NoError(t, err)
	assert.NotNil(t, shape)
	assert.True(t, moved)
}
