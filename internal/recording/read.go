package recording

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
	"github.com/bryanchriswhite/FocusRecorder/internal/codec"
	"github.com/bryanchriswhite/FocusRecorder/internal/compress"
	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
)

// Read opens the recording under root and rebuilds its metadata lists by
// walking every stream. Payloads are skipped, never decompressed. Any
// format fault aborts the read; no partial project is returned.
func Read(root string, compression compress.Codec) (*Project, error) {
	if compression == nil {
		compression = defaultCompression()
	}

	p := &Project{compression: compression, closed: true}
	p.setPaths(root)

	if err := p.readProperties(); err != nil {
		return nil, err
	}
	if err := p.readFrames(); err != nil {
		return nil, err
	}
	if err := p.readMouseEvents(); err != nil {
		return nil, err
	}
	if err := p.readKeyboardEvents(); err != nil {
		return nil, err
	}

	logger.WithComponent("recording").Debug().
		Str("path", root).
		Int("frames", len(p.Frames)).
		Int("mouse_events", len(p.MouseEvents)).
		Int("keyboard_events", len(p.KeyboardEvents)).
		Msg("Recording read")
	return p, nil
}

// openReader opens path for sequential decoding with its size known.
func openReader(path string) (*os.File, *codec.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return f, codec.NewReader(f, 0, info.Size()), nil
}

func (p *Project) readProperties() error {
	f, r, err := openReader(p.PropertiesPath)
	if err != nil {
		return err
	}
	defer f.Close()

	sig := r.Bytes(int64(len(Signature)))
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}
	if string(sig) != Signature {
		return fmt.Errorf("%w: got %q", ErrSignature, sig)
	}
	if v := r.U16(); r.Err() == nil && v != Version {
		return fmt.Errorf("%w: %d", ErrVersion, v)
	}

	p.Width = r.U16()
	p.Height = r.U16()
	p.Dpi = r.F32()
	p.ChannelCount = r.U8()
	p.BitsPerChannel = r.U8()
	p.AppName = r.String8()
	p.AppVersion = r.String8()
	p.CreatedBy = SourceKind(r.U8())
	p.CreationDate = codec.TicksToTime(r.I64())

	if err := r.Err(); err != nil {
		return fmt.Errorf("failed to read properties: %w", err)
	}
	return nil
}

func (p *Project) readFrames() error {
	f, r, err := openReader(p.FramesPath)
	if err != nil {
		return err
	}
	defer f.Close()

	h, _ := r.SequenceHeader()
	if err := r.Err(); err != nil {
		return fmt.Errorf("failed to read frame sequence header: %w", err)
	}
	if h.Type != codec.SequenceFrame {
		return fmt.Errorf("%w: frame stream starts with a %s sequence", codec.ErrMalformedRecord, h.Type)
	}

	p.Frames = make([]Frame, 0, h.Count)
	for !r.AtEOF() {
		pos := r.Pos()
		rec := r.FrameRecord()
		r.Skip(rec.CompressedLength)
		if err := r.Err(); err != nil {
			return fmt.Errorf("failed to read frame %d: %w", len(p.Frames), err)
		}
		p.Frames = append(p.Frames, Frame{
			StreamPosition:     pos,
			Timestamp:          codec.TicksToDuration(rec.TimestampTicks),
			ExpectedDelay:      time.Duration(rec.ExpectedDelay) * time.Millisecond,
			Width:              int(rec.Rect.Width),
			Height:             int(rec.Rect.Height),
			UncompressedLength: rec.UncompressedLength,
			CompressedLength:   rec.CompressedLength,
		})
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("failed to read frames: %w", err)
	}
	if h.Count != 0 && int(h.Count) != len(p.Frames) {
		return fmt.Errorf("%w: header declares %d frames, stream holds %d", codec.ErrMalformedRecord, h.Count, len(p.Frames))
	}
	p.frameCount.Store(uint64(len(p.Frames)))
	return nil
}

func (p *Project) readMouseEvents() error {
	f, r, err := openReader(p.MouseEventsPath)
	if err != nil {
		return err
	}
	defer f.Close()

	p.MouseEvents = []MouseEvent{}
	for !r.AtEOF() {
		pos := r.Pos()
		m := r.MouseRecord()
		if m.Tag == codec.TagCursorData {
			r.Skip(m.Data.DataLength)
		}
		if err := r.Err(); err != nil {
			return fmt.Errorf("failed to read mouse event %d: %w", len(p.MouseEvents), err)
		}
		p.MouseEvents = append(p.MouseEvents, MouseEvent{StreamPosition: pos, MouseRecord: m})
	}
	return r.Err()
}

func (p *Project) readKeyboardEvents() error {
	f, r, err := openReader(p.KeyboardEventsPath)
	if err != nil {
		return err
	}
	defer f.Close()

	p.KeyboardEvents = []KeyboardEvent{}
	for !r.AtEOF() {
		pos := r.Pos()
		k := r.KeyRecord(codec.TagKey)
		if err := r.Err(); err != nil {
			return fmt.Errorf("failed to read keyboard event %d: %w", len(p.KeyboardEvents), err)
		}
		p.KeyboardEvents = append(p.KeyboardEvents, KeyboardEvent{StreamPosition: pos, KeyRecord: k})
	}
	return r.Err()
}

// ReadFrame decompresses frame i from the frame stream.
func (p *Project) ReadFrame(i int) (*capture.Frame, error) {
	if i < 0 || i >= len(p.Frames) {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", i, len(p.Frames))
	}
	return ReadFramePayload(p.FramesPath, p.Frames[i], p.compression)
}

// ReadFramePayload reads and decompresses the payload of fr from path.
func ReadFramePayload(path string, fr Frame, compression compress.Codec) (*capture.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frames: %w", err)
	}
	defer f.Close()

	compressed := make([]byte, fr.CompressedLength)
	if _, err := f.ReadAt(compressed, fr.PayloadPosition()); err != nil {
		return nil, fmt.Errorf("failed to read frame payload at offset %d: %w", fr.PayloadPosition(), err)
	}

	if fr.UncompressedLength != int64(fr.Width*fr.Height*capture.BytesPerPixel) {
		return nil, fmt.Errorf("%w: frame of %dx%d declares %d bytes", codec.ErrMalformedRecord, fr.Width, fr.Height, fr.UncompressedLength)
	}

	out := capture.NewFrame(fr.Width, fr.Height)
	pixels, err := compression.Decompress(out.Pixels[:0], compressed, int(fr.UncompressedLength))
	if err != nil {
		return nil, err
	}
	out.Pixels = pixels
	return out, nil
}

// IsFormatError reports whether err is a signature, version or record fault.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrSignature) || errors.Is(err, ErrVersion) || errors.Is(err, codec.ErrMalformedRecord)
}
