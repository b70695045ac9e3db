package codec

import "fmt"

// SequenceType tags every sequence header and sub-sequence record.
type SequenceType uint8

const (
	SequenceFrame  SequenceType = 1
	SequenceCursor SequenceType = 2
	SequenceKey    SequenceType = 3
)

func (t SequenceType) String() string {
	switch t {
	case SequenceFrame:
		return "frame"
	case SequenceCursor:
		return "cursor"
	case SequenceKey:
		return "key"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Tags of the records in the mouse and keyboard event streams.
const (
	TagCursor     uint8 = 0
	TagCursorData uint8 = 1
	TagKey        uint8 = 2
)

// CursorDataHeaderSize is the distance from the start of a CursorData record
// to its raw bitmap bytes: tag, timestamp, cursor type, left/top/width/height,
// hotspot x/y, data length. It must change whenever WriteCursorData does.
const CursorDataHeaderSize = 1 + 8 + 1 + 4*4 + 2*2 + 8

// Encoded sizes of the fixed-layout structures.
const (
	RectSize   = 4 + 4 + 2 + 2 + 4
	RasterSize = 1 + 2 + 2 + 4 + 4 + 1 + 1

	// FrameRecordSize is the distance from the start of a frame record to
	// its compressed payload.
	FrameRecordSize = 1 + 8 + 4 + RectSize + RasterSize + 8 + 8

	// CursorSubRecordSize is the distance from the start of a cursor
	// sub-sequence record to its bitmap bytes.
	CursorSubRecordSize = 1 + 8 + RectSize + 1 + 2 + 2 + 5 + 2 + 8
)

// Rect is the placement of a sequence or frame on the canvas.
type Rect struct {
	Left   int32
	Top    int32
	Width  uint16
	Height uint16
	Angle  float32
}

func (w *Writer) Rect(r Rect) {
	w.I32(r.Left)
	w.I32(r.Top)
	w.U16(r.Width)
	w.U16(r.Height)
	w.F32(r.Angle)
}

func (r *Reader) Rect() Rect {
	return Rect{
		Left:   r.I32(),
		Top:    r.I32(),
		Width:  r.U16(),
		Height: r.U16(),
		Angle:  r.F32(),
	}
}

// Raster describes the pixel layout of raster content.
type Raster struct {
	Origin         uint8
	OriginalWidth  uint16
	OriginalHeight uint16
	HorizontalDpi  float32
	VerticalDpi    float32
	ChannelCount   uint8
	BitsPerChannel uint8
}

func (w *Writer) Raster(r Raster) {
	w.U8(r.Origin)
	w.U16(r.OriginalWidth)
	w.U16(r.OriginalHeight)
	w.F32(r.HorizontalDpi)
	w.F32(r.VerticalDpi)
	w.U8(r.ChannelCount)
	w.U8(r.BitsPerChannel)
}

func (r *Reader) Raster() Raster {
	return Raster{
		Origin:         r.U8(),
		OriginalWidth:  r.U16(),
		OriginalHeight: r.U16(),
		HorizontalDpi:  r.F32(),
		VerticalDpi:    r.F32(),
		ChannelCount:   r.U8(),
		BitsPerChannel: r.U8(),
	}
}

// SequenceHeader opens every sequence file. Raster is present only for
// frame sequences. Count is the number of records that follow; 0 in a frame
// sequence means "unknown, walk the records".
type SequenceHeader struct {
	ID          uint16
	Type        SequenceType
	StartTicks  int64
	EndTicks    int64
	Opacity     float32
	Background  string
	EffectCount uint8
	Rect        Rect
	Raster      Raster
	Count       uint32
}

// HeaderOffsets locates the patchable fields of a written sequence header.
type HeaderOffsets struct {
	EndTicks int64
	Count    int64
	End      int64
}

func (w *Writer) SequenceHeader(h SequenceHeader) HeaderOffsets {
	var off HeaderOffsets
	w.U16(h.ID)
	w.U8(uint8(h.Type))
	w.I64(h.StartTicks)
	off.EndTicks = w.Pos()
	w.I64(h.EndTicks)
	w.F32(h.Opacity)
	w.String32(h.Background)
	w.U8(h.EffectCount)
	w.Rect(h.Rect)
	if h.Type == SequenceFrame {
		w.Raster(h.Raster)
	}
	off.Count = w.Pos()
	w.U32(h.Count)
	off.End = w.Pos()
	return off
}

func (r *Reader) SequenceHeader() (SequenceHeader, HeaderOffsets) {
	var h SequenceHeader
	var off HeaderOffsets
	h.ID = r.U16()
	h.Type = SequenceType(r.U8())
	h.StartTicks = r.I64()
	off.EndTicks = r.Pos()
	h.EndTicks = r.I64()
	h.Opacity = r.F32()
	h.Background = r.String32()
	h.EffectCount = r.U8()
	h.Rect = r.Rect()

	switch h.Type {
	case SequenceFrame:
		h.Raster = r.Raster()
	case SequenceCursor, SequenceKey:
	default:
		r.fail(fmt.Errorf("%w: unknown sequence type %d at offset %d", ErrMalformedRecord, uint8(h.Type), r.Pos()))
		return h, off
	}
	if h.EffectCount != 0 {
		r.fail(fmt.Errorf("%w: sequence %d declares %d effects, effects are not supported", ErrMalformedRecord, h.ID, h.EffectCount))
		return h, off
	}

	off.Count = r.Pos()
	h.Count = r.U32()
	off.End = r.Pos()
	return h, off
}

// FrameRecord is the header of one frame; CompressedLength payload bytes follow it.
type FrameRecord struct {
	TimestampTicks     int64
	ExpectedDelay      int32
	Rect               Rect
	Raster             Raster
	UncompressedLength int64
	CompressedLength   int64
}

func (w *Writer) FrameRecord(f FrameRecord) {
	w.U8(uint8(SequenceFrame))
	w.I64(f.TimestampTicks)
	w.I32(f.ExpectedDelay)
	w.Rect(f.Rect)
	w.Raster(f.Raster)
	w.I64(f.UncompressedLength)
	w.I64(f.CompressedLength)
}

func (r *Reader) FrameRecord() FrameRecord {
	var f FrameRecord
	if t := SequenceType(r.U8()); r.err == nil && t != SequenceFrame {
		r.fail(fmt.Errorf("%w: expected frame record, got type %d at offset %d", ErrMalformedRecord, uint8(t), r.Pos()-1))
		return f
	}
	f.TimestampTicks = r.I64()
	f.ExpectedDelay = r.I32()
	f.Rect = r.Rect()
	f.Raster = r.Raster()
	f.UncompressedLength = r.I64()
	f.CompressedLength = r.I64()
	return f
}

// CursorRecord is a cursor position/button sample (tag 0).
type CursorRecord struct {
	TimestampTicks int64
	Left           int32
	Top            int32
	Buttons        [5]bool
	WheelDelta     int16
}

func (w *Writer) CursorRecord(c CursorRecord) {
	w.U8(TagCursor)
	w.I64(c.TimestampTicks)
	w.I32(c.Left)
	w.I32(c.Top)
	for _, b := range c.Buttons {
		w.Bool(b)
	}
	w.I16(c.WheelDelta)
}

// cursorRecordBody reads a cursor record after its tag.
func (r *Reader) cursorRecordBody() CursorRecord {
	var c CursorRecord
	c.TimestampTicks = r.I64()
	c.Left = r.I32()
	c.Top = r.I32()
	for i := range c.Buttons {
		c.Buttons[i] = r.Bool()
	}
	c.WheelDelta = r.I16()
	return c
}

// CursorDataRecord is a cursor shape change (tag 1); DataLength bitmap bytes follow it.
type CursorDataRecord struct {
	TimestampTicks int64
	CursorType     uint8
	Left           int32
	Top            int32
	Width          int32
	Height         int32
	HotspotX       uint16
	HotspotY       uint16
	DataLength     int64
}

func (w *Writer) CursorDataRecord(c CursorDataRecord) {
	w.U8(TagCursorData)
	w.I64(c.TimestampTicks)
	w.U8(c.CursorType)
	w.I32(c.Left)
	w.I32(c.Top)
	w.I32(c.Width)
	w.I32(c.Height)
	w.U16(c.HotspotX)
	w.U16(c.HotspotY)
	w.I64(c.DataLength)
}

func (r *Reader) cursorDataRecordBody() CursorDataRecord {
	return CursorDataRecord{
		TimestampTicks: r.I64(),
		CursorType:     r.U8(),
		Left:           r.I32(),
		Top:            r.I32(),
		Width:          r.I32(),
		Height:         r.I32(),
		HotspotX:       r.U16(),
		HotspotY:       r.U16(),
		DataLength:     r.I64(),
	}
}

// MouseRecord is one tagged record of the mouse event stream. Exactly one
// of Cursor and Data is set, according to Tag.
type MouseRecord struct {
	Tag    uint8
	Cursor CursorRecord
	Data   CursorDataRecord
}

// MouseRecord reads the next mouse stream record. The bitmap bytes of a
// CursorData record are not consumed.
func (r *Reader) MouseRecord() MouseRecord {
	m := MouseRecord{Tag: r.U8()}
	if r.err != nil {
		return m
	}
	switch m.Tag {
	case TagCursor:
		m.Cursor = r.cursorRecordBody()
	case TagCursorData:
		m.Data = r.cursorDataRecordBody()
	default:
		r.fail(fmt.Errorf("%w: unknown mouse record tag %d at offset %d", ErrMalformedRecord, m.Tag, r.Pos()-1))
	}
	return m
}

// KeyRecord is one keyboard event. The same layout is used by the keyboard
// event stream (tag TagKey) and key sub-sequences (tag SequenceKey).
type KeyRecord struct {
	TimestampTicks int64
	KeyCode        int32
	Modifiers      uint8
	IsUppercase    bool
	WasInjected    bool
}

func (w *Writer) KeyRecord(tag uint8, k KeyRecord) {
	w.U8(tag)
	w.I64(k.TimestampTicks)
	w.I32(k.KeyCode)
	w.U8(k.Modifiers)
	w.Bool(k.IsUppercase)
	w.Bool(k.WasInjected)
}

func (r *Reader) KeyRecord(tag uint8) KeyRecord {
	var k KeyRecord
	if t := r.U8(); r.err == nil && t != tag {
		r.fail(fmt.Errorf("%w: expected key record tag %d, got %d at offset %d", ErrMalformedRecord, tag, t, r.Pos()-1))
		return k
	}
	k.TimestampTicks = r.I64()
	k.KeyCode = r.I32()
	k.Modifiers = r.U8()
	k.IsUppercase = r.Bool()
	k.WasInjected = r.Bool()
	return k
}

// CursorSubRecord is one cursor sub-sequence of a cached project; DataLength
// bitmap bytes follow it.
type CursorSubRecord struct {
	TimestampTicks int64
	Rect           Rect
	CursorType     uint8
	HotspotX       uint16
	HotspotY       uint16
	Buttons        [5]bool
	WheelDelta     int16
	DataLength     int64
}

func (w *Writer) CursorSubRecord(c CursorSubRecord) {
	w.U8(uint8(SequenceCursor))
	w.I64(c.TimestampTicks)
	w.Rect(c.Rect)
	w.U8(c.CursorType)
	w.U16(c.HotspotX)
	w.U16(c.HotspotY)
	for _, b := range c.Buttons {
		w.Bool(b)
	}
	w.I16(c.WheelDelta)
	w.I64(c.DataLength)
}

func (r *Reader) CursorSubRecord() CursorSubRecord {
	var c CursorSubRecord
	if t := SequenceType(r.U8()); r.err == nil && t != SequenceCursor {
		r.fail(fmt.Errorf("%w: expected cursor sub-sequence, got type %d at offset %d", ErrMalformedRecord, uint8(t), r.Pos()-1))
		return c
	}
	c.TimestampTicks = r.I64()
	c.Rect = r.Rect()
	c.CursorType = r.U8()
	c.HotspotX = r.U16()
	c.HotspotY = r.U16()
	for i := range c.Buttons {
		c.Buttons[i] = r.Bool()
	}
	c.WheelDelta = r.I16()
	c.DataLength = r.I64()
	return c
}
