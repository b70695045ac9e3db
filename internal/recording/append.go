package recording

import (
	"fmt"
	"image"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
	"github.com/bryanchriswhite/FocusRecorder/internal/codec"
	"github.com/bryanchriswhite/FocusRecorder/internal/events"
	"golang.org/x/image/draw"
)

// scaler resizes captured frames to the recording size, reusing its buffer.
type scaler struct {
	dst *image.RGBA
}

func (s *scaler) scale(src *capture.Frame, width, height int) []byte {
	if s.dst == nil || s.dst.Rect.Dx() != width || s.dst.Rect.Dy() != height {
		s.dst = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	img := src.Image()
	draw.ApproxBiLinear.Scale(s.dst, s.dst.Rect, img, img.Rect, draw.Src, nil)
	return s.dst.Pix
}

// AppendFrame compresses frame and appends it to the frame stream. Frames
// whose size differs from the recording size are scaled first. The pixel
// buffer is not retained.
func (p *Project) AppendFrame(frame *capture.Frame, timestamp, expectedDelay time.Duration) error {
	s := p.frames
	if s == nil {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	width, height := int(p.Width), int(p.Height)
	pixels := frame.Pixels[:frame.Len()]
	if frame.Width != width || frame.Height != height {
		pixels = p.scaler.scale(frame, width, height)
	}

	compressed, err := p.compression.Compress(p.buf[:0], pixels)
	if err != nil {
		return fmt.Errorf("failed to compress frame: %w", err)
	}
	p.buf = compressed

	rec := codec.FrameRecord{
		TimestampTicks: codec.DurationToTicks(timestamp),
		ExpectedDelay:  int32(expectedDelay / time.Millisecond),
		Rect: codec.Rect{
			Width:  uint16(width),
			Height: uint16(height),
		},
		Raster: codec.Raster{
			OriginalWidth:  uint16(frame.Width),
			OriginalHeight: uint16(frame.Height),
			HorizontalDpi:  p.Dpi,
			VerticalDpi:    p.Dpi,
			ChannelCount:   p.ChannelCount,
			BitsPerChannel: p.BitsPerChannel,
		},
		UncompressedLength: int64(len(pixels)),
		CompressedLength:   int64(len(compressed)),
	}

	pos := s.w.Pos()
	s.w.FrameRecord(rec)
	s.w.Bytes(compressed)
	if err := s.w.Err(); err != nil {
		return fmt.Errorf("failed to append frame: %w", err)
	}

	p.Frames = append(p.Frames, Frame{
		StreamPosition:     pos,
		Timestamp:          codec.TicksToDuration(rec.TimestampTicks),
		ExpectedDelay:      time.Duration(rec.ExpectedDelay) * time.Millisecond,
		Width:              width,
		Height:             height,
		UncompressedLength: rec.UncompressedLength,
		CompressedLength:   rec.CompressedLength,
	})
	p.frameCount.Add(1)
	return nil
}

// WriteCursor appends a cursor sample to the mouse event stream.
func (p *Project) WriteCursor(e events.CursorEvent) error {
	rec := codec.CursorRecord{
		TimestampTicks: codec.DurationToTicks(e.Timestamp),
		Left:           int32(e.Position.X),
		Top:            int32(e.Position.Y),
		Buttons:        e.Buttons,
		WheelDelta:     e.WheelDelta,
	}
	return p.appendMouse(codec.MouseRecord{Tag: codec.TagCursor, Cursor: rec}, nil)
}

// WriteCursorData appends a cursor shape change and its bitmap to the mouse
// event stream.
func (p *Project) WriteCursorData(e events.CursorDataEvent) error {
	rec := codec.CursorDataRecord{
		TimestampTicks: codec.DurationToTicks(e.Timestamp),
		CursorType:     uint8(e.Type),
		Left:           int32(e.Bounds.Min.X),
		Top:            int32(e.Bounds.Min.Y),
		Width:          int32(e.Bounds.Dx()),
		Height:         int32(e.Bounds.Dy()),
		HotspotX:       uint16(e.Hotspot.X),
		HotspotY:       uint16(e.Hotspot.Y),
		DataLength:     int64(len(e.Data)),
	}
	return p.appendMouse(codec.MouseRecord{Tag: codec.TagCursorData, Data: rec}, e.Data)
}

func (p *Project) appendMouse(m codec.MouseRecord, bitmap []byte) error {
	s := p.mouse
	if s == nil {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	pos := s.w.Pos()
	if m.Tag == codec.TagCursorData {
		s.w.CursorDataRecord(m.Data)
		s.w.Bytes(bitmap)
	} else {
		s.w.CursorRecord(m.Cursor)
	}
	if err := s.w.Err(); err != nil {
		return fmt.Errorf("failed to append mouse event: %w", err)
	}

	p.MouseEvents = append(p.MouseEvents, MouseEvent{StreamPosition: pos, MouseRecord: m})
	return nil
}

// WriteKey appends a key press to the keyboard event stream.
func (p *Project) WriteKey(e events.KeyEvent) error {
	s := p.keyboard
	if s == nil {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	rec := codec.KeyRecord{
		TimestampTicks: codec.DurationToTicks(e.Timestamp),
		KeyCode:        e.KeyCode,
		Modifiers:      uint8(e.Modifiers),
		IsUppercase:    e.Uppercase,
		WasInjected:    e.Injected,
	}

	pos := s.w.Pos()
	s.w.KeyRecord(codec.TagKey, rec)
	if err := s.w.Err(); err != nil {
		return fmt.Errorf("failed to append key event: %w", err)
	}

	p.KeyboardEvents = append(p.KeyboardEvents, KeyboardEvent{StreamPosition: pos, KeyRecord: rec})
	return nil
}

var _ events.Sink = (*Project)(nil)
