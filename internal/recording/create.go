package recording

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/codec"
	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
)

const streamBufferSize = 256 * 1024

// stream is an append-only, buffered record stream owned by a Project.
type stream struct {
	mu     sync.Mutex
	f      *os.File
	bw     *bufio.Writer
	w      *codec.Writer
	closed bool
}

func createStream(path string) (*stream, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	bw := bufio.NewWriterSize(f, streamBufferSize)
	return &stream{f: f, bw: bw, w: codec.NewWriter(bw, 0)}, nil
}

// close flushes buffered records and closes the file. Closing twice is a no-op.
func (s *stream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.w.Err()
	if ferr := s.bw.Flush(); err == nil && ferr != nil {
		err = fmt.Errorf("failed to flush %s: %w", s.f.Name(), ferr)
	}
	if cerr := s.f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close %s: %w", s.f.Name(), cerr)
	}
	return err
}

// Create allocates a new session directory under opts.CacheDir, opens the
// three record streams and writes the properties and the empty frame
// sequence header.
func Create(opts Options) (*Project, error) {
	log := logger.WithComponent("recording")

	if opts.Width <= 0 || opts.Height <= 0 || opts.Width > 0xFFFF || opts.Height > 0xFFFF {
		return nil, fmt.Errorf("invalid recording size %dx%d", opts.Width, opts.Height)
	}
	if opts.CacheDir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if opts.Source == 0 {
		opts.Source = SourceScreen
	}
	if opts.Dpi <= 0 {
		opts.Dpi = defaultDpi
	}
	if opts.Compression == nil {
		opts.Compression = defaultCompression()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	now := opts.Now()
	p := &Project{
		Properties: Properties{
			Width:          uint16(opts.Width),
			Height:         uint16(opts.Height),
			Dpi:            opts.Dpi,
			ChannelCount:   4,
			BitsPerChannel: 8,
			AppName:        opts.AppName,
			AppVersion:     opts.AppVersion,
			CreatedBy:      opts.Source,
			CreationDate:   codec.TicksToTime(codec.TimeToTicks(now)),
		},
		Frames:         []Frame{},
		MouseEvents:    []MouseEvent{},
		KeyboardEvents: []KeyboardEvent{},
		compression:    opts.Compression,
	}
	p.setPaths(recordingDir(opts.CacheDir, now))

	if err := os.MkdirAll(p.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}

	if err := p.open(); err != nil {
		p.Discard()
		return nil, err
	}

	log.Info().
		Str("path", p.Root).
		Int("width", opts.Width).
		Int("height", opts.Height).
		Str("source", opts.Source.String()).
		Msg("Recording created")
	return p, nil
}

func (p *Project) open() error {
	if err := p.WriteProperties(); err != nil {
		return err
	}

	var err error
	if p.frames, err = createStream(p.FramesPath); err != nil {
		return err
	}
	if p.mouse, err = createStream(p.MouseEventsPath); err != nil {
		return err
	}
	if p.keyboard, err = createStream(p.KeyboardEventsPath); err != nil {
		return err
	}
	return p.WriteEmptyFrameSequenceHeader()
}

// WriteProperties writes the properties file, replacing any previous one.
func (p *Project) WriteProperties() error {
	f, err := os.Create(p.PropertiesPath)
	if err != nil {
		return fmt.Errorf("failed to create properties: %w", err)
	}

	w := codec.NewWriter(f, 0)
	w.Bytes([]byte(Signature))
	w.U16(Version)
	w.U16(p.Width)
	w.U16(p.Height)
	w.F32(p.Dpi)
	w.U8(p.ChannelCount)
	w.U8(p.BitsPerChannel)
	w.String8(p.AppName)
	w.String8(p.AppVersion)
	w.U8(uint8(p.CreatedBy))
	w.I64(codec.TimeToTicks(p.CreationDate))

	err = w.Err()
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write properties: %w", err)
	}
	return nil
}

// FrameSequenceHeader is the header every frame stream starts with. Count
// is 0: readers walk the records.
func (p *Project) FrameSequenceHeader() codec.SequenceHeader {
	return codec.SequenceHeader{
		ID:         0,
		Type:       codec.SequenceFrame,
		Opacity:    1,
		Background: DefaultBackground,
		Rect: codec.Rect{
			Width:  p.Width,
			Height: p.Height,
		},
		Raster: codec.Raster{
			OriginalWidth:  p.Width,
			OriginalHeight: p.Height,
			HorizontalDpi:  p.Dpi,
			VerticalDpi:    p.Dpi,
			ChannelCount:   p.ChannelCount,
			BitsPerChannel: p.BitsPerChannel,
		},
	}
}

// WriteEmptyFrameSequenceHeader starts the frame stream.
func (p *Project) WriteEmptyFrameSequenceHeader() error {
	if p.frames == nil || p.frames.w.Pos() != 0 {
		return fmt.Errorf("frame stream is not at its start")
	}
	p.frames.w.SequenceHeader(p.FrameSequenceHeader())
	if err := p.frames.w.Err(); err != nil {
		return fmt.Errorf("failed to write frame sequence header: %w", err)
	}
	return nil
}

func recordingDir(cacheDir string, now time.Time) string {
	return filepath.Join(cacheDir, DirName, sessionDirName(now))
}
