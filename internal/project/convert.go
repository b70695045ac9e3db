package project

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/codec"
	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
	"github.com/bryanchriswhite/FocusRecorder/internal/recording"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const sequenceBufferSize = 256 * 1024

// Options configures Convert.
type Options struct {
	// CacheDir is the parent of the project directory. Defaults to the
	// cache directory the recording lives in.
	CacheDir string

	// Name defaults to the recording's directory name.
	Name string

	// KeepRecording leaves the source recording on disk after a
	// successful conversion.
	KeepRecording bool
}

// Convert turns a finalized recording into a cached project with one track
// per content type present. The frame stream is moved, not copied, into the
// frame sequence file. The recording is discarded on success unless
// opts.KeepRecording is set.
func Convert(ctx context.Context, rec *recording.Project, opts Options) (*CachedProject, error) {
	log := logger.WithComponent("converter")
	start := time.Now()

	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Dir(filepath.Dir(rec.Root))
	}
	if opts.Name == "" {
		opts.Name = filepath.Base(rec.Root)
	}

	p := &CachedProject{
		Properties: Properties{
			Width:          rec.Width,
			Height:         rec.Height,
			HorizontalDpi:  rec.Dpi,
			VerticalDpi:    rec.Dpi,
			Background:     DefaultBackground,
			ChannelCount:   rec.ChannelCount,
			BitsPerChannel: rec.BitsPerChannel,
			AppName:        rec.AppName,
			AppVersion:     rec.AppVersion,
			CreatedBy:      rec.CreatedBy,
			CreationDate:   rec.CreationDate,
			Name:           opts.Name,
		},
		Root:        filepath.Join(opts.CacheDir, DirName, projectDirName(rec.CreationDate)),
		compression: rec.Compression(),
	}
	p.PropertiesPath = filepath.Join(p.Root, PropertiesFile)

	if err := os.MkdirAll(p.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}
	if err := p.WriteProperties(); err != nil {
		p.Discard()
		return nil, err
	}

	c := &converter{rec: rec, project: p, end: rec.Duration()}
	g, gctx := errgroup.WithContext(ctx)
	var tracks [3]*Track
	if len(rec.Frames) > 0 {
		g.Go(func() (err error) {
			tracks[0], err = c.frameTrack()
			return err
		})
	}
	if len(rec.MouseEvents) > 0 {
		g.Go(func() (err error) {
			tracks[1], err = c.cursorTrack(gctx)
			return err
		})
	}
	if len(rec.KeyboardEvents) > 0 {
		g.Go(func() (err error) {
			tracks[2], err = c.keyTrack(gctx)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		c.restoreFrames()
		p.Discard()
		return nil, fmt.Errorf("failed to convert recording %s: %w", rec.Root, err)
	}

	for _, t := range tracks {
		if t != nil {
			p.Tracks = append(p.Tracks, t)
		}
	}

	log.Info().
		Str("recording", rec.Root).
		Str("project", p.Root).
		Int("tracks", len(p.Tracks)).
		Int("frames", len(rec.Frames)).
		Int("mouse_events", len(rec.MouseEvents)).
		Int("keyboard_events", len(rec.KeyboardEvents)).
		Dur("took", time.Since(start)).
		Msg("Recording converted")

	if !opts.KeepRecording {
		rec.Discard()
	}
	return p, nil
}

// WriteProperties writes the project properties file, replacing any
// previous one.
func (p *CachedProject) WriteProperties() error {
	f, err := os.Create(p.PropertiesPath)
	if err != nil {
		return fmt.Errorf("failed to create project properties: %w", err)
	}

	w := codec.NewWriter(f, 0)
	w.Bytes([]byte(Signature))
	w.U16(Version)
	w.U16(p.Width)
	w.U16(p.Height)
	w.F32(p.HorizontalDpi)
	w.F32(p.VerticalDpi)
	w.String32(p.Background)
	w.U8(p.ChannelCount)
	w.U8(p.BitsPerChannel)
	w.String8(p.AppName)
	w.String8(p.AppVersion)
	w.U8(uint8(p.CreatedBy))
	w.I64(codec.TimeToTicks(p.CreationDate))
	w.String8(p.Name)
	w.String16(p.LastPath)

	err = w.Err()
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write project properties: %w", err)
	}
	return nil
}

type converter struct {
	rec     *recording.Project
	project *CachedProject
	end     time.Duration

	movedFrom string
	movedTo   string
}

func (c *converter) canvas() codec.Rect {
	return codec.Rect{Width: c.project.Width, Height: c.project.Height}
}

// writeTrack writes the track file of t.
func (c *converter) writeTrack(t *Track) error {
	t.Path = filepath.Join(c.project.Root, trackFileName(t.ID))
	if err := os.MkdirAll(filepath.Join(c.project.Root, trackDirName(t.ID)), 0755); err != nil {
		return fmt.Errorf("failed to create track directory: %w", err)
	}

	f, err := os.Create(t.Path)
	if err != nil {
		return fmt.Errorf("failed to create track %d: %w", t.ID, err)
	}
	w := codec.NewWriter(f, 0)
	w.U16(t.ID)
	w.String8(t.Name)
	w.Bool(t.Visible)
	w.Bool(t.Locked)
	w.U16(uint16(len(t.Sequences)))

	err = w.Err()
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write track %d: %w", t.ID, err)
	}
	return nil
}

func (c *converter) frameTrack() (*Track, error) {
	seq := &FrameSequence{
		SequenceInfo: SequenceInfo{
			ID:         FrameTrackID,
			End:        c.end,
			Opacity:    1,
			Background: recording.DefaultBackground,
			Rect:       c.canvas(),
			Path:       sequencePath(c.project.Root, FrameTrackID, FrameTrackID),
		},
		Frames:      append([]FrameSubSequence(nil), c.rec.Frames...),
		compression: c.project.compression,
	}
	t := &Track{ID: FrameTrackID, Name: FrameTrackName, Visible: true, Sequences: []Sequence{seq}}
	if err := c.writeTrack(t); err != nil {
		return nil, err
	}

	if err := moveFile(c.rec.FramesPath, seq.Path); err != nil {
		return nil, fmt.Errorf("failed to move frame stream: %w", err)
	}
	c.movedFrom, c.movedTo = c.rec.FramesPath, seq.Path

	raster, err := patchFrameHeader(seq.Path, codec.DurationToTicks(seq.End), uint32(len(seq.Frames)))
	if err != nil {
		return nil, err
	}
	seq.Raster = raster
	return t, nil
}

// patchFrameHeader fills in the end time and frame count the recording
// left as placeholders and returns the sequence raster.
func patchFrameHeader(path string, endTicks int64, count uint32) (codec.Raster, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return codec.Raster{}, fmt.Errorf("failed to open frame sequence: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return codec.Raster{}, fmt.Errorf("failed to stat frame sequence: %w", err)
	}
	r := codec.NewReader(f, 0, info.Size())
	h, off := r.SequenceHeader()
	if err := r.Err(); err != nil {
		return codec.Raster{}, fmt.Errorf("failed to read frame sequence header: %w", err)
	}

	if err := codec.PatchI64(f, off.EndTicks, endTicks); err != nil {
		return codec.Raster{}, err
	}
	if err := codec.PatchU32(f, off.Count, count); err != nil {
		return codec.Raster{}, err
	}
	return h.Raster, nil
}

// restoreFrames moves the frame stream back into the recording after a
// failed conversion.
func (c *converter) restoreFrames() {
	if c.movedTo == "" {
		return
	}
	if err := moveFile(c.movedTo, c.movedFrom); err != nil {
		logger.WithComponent("converter").Error().Err(err).
			Str("path", c.movedTo).
			Msg("Failed to restore frame stream")
	}
}

func (c *converter) cursorTrack(ctx context.Context) (*Track, error) {
	seq := &CursorSequence{
		SequenceInfo: SequenceInfo{
			ID:         CursorTrackID,
			End:        c.end,
			Opacity:    1,
			Background: DefaultBackground,
			Rect:       c.canvas(),
			Path:       sequencePath(c.project.Root, CursorTrackID, CursorTrackID),
		},
		Cursors: make([]CursorSubSequence, 0, len(c.rec.MouseEvents)),
	}
	t := &Track{ID: CursorTrackID, Name: CursorTrackName, Visible: true, Sequences: []Sequence{seq}}
	if err := c.writeTrack(t); err != nil {
		return nil, err
	}

	src, err := os.Open(c.rec.MouseEventsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open mouse events: %w", err)
	}
	defer src.Close()

	err = writeSequence(seq.Path, seq.header(codec.SequenceCursor, len(c.rec.MouseEvents)), func(w *codec.Writer) error {
		var (
			shape   codec.CursorDataRecord
			bitmap  []byte
			buttons [5]bool
		)
		for i, e := range byTimestamp(c.rec.MouseEvents) {
			if i%1024 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}

			sub := codec.CursorSubRecord{}
			switch e.Tag {
			case codec.TagCursorData:
				shape = e.Data
				bitmap = make([]byte, shape.DataLength)
				if _, err := src.ReadAt(bitmap, e.BitmapPosition()); err != nil {
					return fmt.Errorf("failed to read cursor bitmap at offset %d: %w", e.BitmapPosition(), err)
				}
				sub.TimestampTicks = shape.TimestampTicks
				sub.Rect.Left = shape.Left + int32(shape.HotspotX)
				sub.Rect.Top = shape.Top + int32(shape.HotspotY)
			default:
				buttons = e.Cursor.Buttons
				sub.TimestampTicks = e.Cursor.TimestampTicks
				sub.Rect.Left = e.Cursor.Left
				sub.Rect.Top = e.Cursor.Top
				sub.WheelDelta = e.Cursor.WheelDelta
			}
			sub.Rect.Width = uint16(shape.Width)
			sub.Rect.Height = uint16(shape.Height)
			sub.CursorType = shape.CursorType
			sub.HotspotX = shape.HotspotX
			sub.HotspotY = shape.HotspotY
			sub.Buttons = buttons
			sub.DataLength = int64(len(bitmap))

			pos := w.Pos()
			w.CursorSubRecord(sub)
			w.Bytes(bitmap)
			seq.Cursors = append(seq.Cursors, CursorSubSequence{StreamPosition: pos, CursorSubRecord: sub})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (c *converter) keyTrack(ctx context.Context) (*Track, error) {
	seq := &KeySequence{
		SequenceInfo: SequenceInfo{
			ID:         KeyTrackID,
			End:        c.end,
			Opacity:    1,
			Background: DefaultBackground,
			Rect:       c.canvas(),
			Path:       sequencePath(c.project.Root, KeyTrackID, KeyTrackID),
		},
		Keys: make([]KeySubSequence, 0, len(c.rec.KeyboardEvents)),
	}
	t := &Track{ID: KeyTrackID, Name: KeyTrackName, Visible: true, Sequences: []Sequence{seq}}
	if err := c.writeTrack(t); err != nil {
		return nil, err
	}

	err := writeSequence(seq.Path, seq.header(codec.SequenceKey, len(c.rec.KeyboardEvents)), func(w *codec.Writer) error {
		for i, e := range byTimestamp(c.rec.KeyboardEvents) {
			if i%1024 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			pos := w.Pos()
			w.KeyRecord(uint8(codec.SequenceKey), e.KeyRecord)
			seq.Keys = append(seq.Keys, KeySubSequence{StreamPosition: pos, KeyRecord: e.KeyRecord})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// byTimestamp returns a copy of events in timestamp order. The mouse stream
// has more than one producer, so file order is not time order.
func byTimestamp[E interface{ Timestamp() time.Duration }](events []E) []E {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b E) int {
		return cmp.Compare(a.Timestamp(), b.Timestamp())
	})
	return sorted
}

// writeSequence creates a sequence file, writes its header and lets body
// write the sub-sequences.
func writeSequence(path string, h codec.SequenceHeader, body func(w *codec.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create sequence %s: %w", path, err)
	}
	bw := bufio.NewWriterSize(f, sequenceBufferSize)
	w := codec.NewWriter(bw, 0)

	w.SequenceHeader(h)
	err = body(w)
	if err == nil {
		err = w.Err()
	}
	if ferr := bw.Flush(); err == nil && ferr != nil {
		err = ferr
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write sequence %s: %w", path, err)
	}
	return nil
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func projectDirName(created time.Time) string {
	if created.IsZero() {
		created = time.Now()
	}
	return created.Local().Format("2006-01-02 15-04-05") + "-" + uuid.NewString()[:8]
}
