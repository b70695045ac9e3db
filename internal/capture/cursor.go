package capture

import "image"

// compositeCursor blends the premultiplied cursor sprite into frame. origin
// is the screen position of the frame's top-left pixel.
func compositeCursor(frame *Frame, origin image.Point, p Pointer, shape *CursorShape) {
	if shape == nil || !p.Visible || len(shape.Pixels) < shape.Width*shape.Height*BytesPerPixel {
		return
	}

	sprite := shape.Bounds(p.Position).Sub(origin)
	visible := sprite.Intersect(image.Rect(0, 0, frame.Width, frame.Height))
	if visible.Empty() {
		return
	}

	spriteStride := shape.Width * BytesPerPixel
	for y := visible.Min.Y; y < visible.Max.Y; y++ {
		sy := y - sprite.Min.Y
		for x := visible.Min.X; x < visible.Max.X; x++ {
			sx := x - sprite.Min.X
			s := shape.Pixels[sy*spriteStride+sx*BytesPerPixel:]
			a := uint32(s[3])
			if a == 0 {
				continue
			}
			d := frame.Pixels[y*frame.Stride+x*BytesPerPixel:]
			if a == 0xFF {
				copy(d[:BytesPerPixel], s[:BytesPerPixel])
				continue
			}
			inv := 0xFF - a
			d[0] = uint8(uint32(s[0]) + uint32(d[0])*inv/0xFF)
			d[1] = uint8(uint32(s[1]) + uint32(d[1])*inv/0xFF)
			d[2] = uint8(uint32(s[2]) + uint32(d[2])*inv/0xFF)
			d[3] = 0xFF
		}
	}
}

// CursorWatcher polls a CursorSource and reports shape changes, for sessions
// that record the cursor as events instead of compositing it.
type CursorWatcher struct {
	source     CursorSource
	lastSerial uint64
	hasShape   bool
	last       Pointer
}

// NewCursorWatcher returns a watcher over source.
func NewCursorWatcher(source CursorSource) *CursorWatcher {
	return &CursorWatcher{source: source}
}

// Poll returns the current pointer, the shape when it changed since the
// previous call (nil otherwise) and whether the position or visibility moved.
func (w *CursorWatcher) Poll() (Pointer, *CursorShape, bool, error) {
	p, shape, err := w.source.Cursor()
	if err != nil {
		return Pointer{}, nil, false, err
	}

	moved := p != w.last
	w.last = p

	if shape == nil || (w.hasShape && shape.Serial == w.lastSerial) {
		return p, nil, moved, nil
	}
	w.lastSerial = shape.Serial
	w.hasShape = true
	return p, shape, moved, nil
}
