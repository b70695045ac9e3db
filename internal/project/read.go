package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/codec"
	"github.com/bryanchriswhite/FocusRecorder/internal/compress"
	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
	"github.com/bryanchriswhite/FocusRecorder/internal/recording"
)

// Read opens the cached project under root, enumerating its track and
// sequence files. Any format fault aborts the read.
func Read(root string, compression compress.Codec) (*CachedProject, error) {
	if compression == nil {
		var err error
		if compression, err = compress.NewDeflate(compress.DefaultLevel); err != nil {
			return nil, err
		}
	}

	p := &CachedProject{
		Root:           root,
		PropertiesPath: filepath.Join(root, PropertiesFile),
		compression:    compression,
	}
	if err := p.readProperties(); err != nil {
		return nil, err
	}

	paths, err := filepath.Glob(filepath.Join(root, "Track-*.cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	for _, path := range paths {
		t, err := p.readTrack(path)
		if err != nil {
			return nil, err
		}
		p.Tracks = append(p.Tracks, t)
	}
	sort.Slice(p.Tracks, func(i, j int) bool { return p.Tracks[i].ID < p.Tracks[j].ID })

	logger.WithComponent("project").Debug().
		Str("path", root).
		Int("tracks", len(p.Tracks)).
		Msg("Project read")
	return p, nil
}

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

func (p *CachedProject) readProperties() error {
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
	p.HorizontalDpi = r.F32()
	p.VerticalDpi = r.F32()
	p.Background = r.String32()
	p.ChannelCount = r.U8()
	p.BitsPerChannel = r.U8()
	p.AppName = r.String8()
	p.AppVersion = r.String8()
	p.CreatedBy = recording.SourceKind(r.U8())
	p.CreationDate = codec.TicksToTime(r.I64())
	p.Name = r.String8()
	p.LastPath = r.String16()

	if err := r.Err(); err != nil {
		return fmt.Errorf("failed to read project properties: %w", err)
	}
	return nil
}

func (p *CachedProject) readTrack(path string) (*Track, error) {
	f, r, err := openReader(path)
	if err != nil {
		return nil, err
	}
	t := &Track{Path: path}
	t.ID = r.U16()
	t.Name = r.String8()
	t.Visible = r.Bool()
	t.Locked = r.Bool()
	count := r.U16()
	err = r.Err()
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read track %s: %w", path, err)
	}
	if want := trackFileName(t.ID); filepath.Base(path) != want {
		return nil, fmt.Errorf("%w: track %d stored in %s", codec.ErrMalformedRecord, t.ID, filepath.Base(path))
	}

	paths, err := sequenceFiles(filepath.Join(p.Root, trackDirName(t.ID)))
	if err != nil {
		return nil, err
	}
	if len(paths) != int(count) {
		return nil, fmt.Errorf("%w: track %d declares %d sequences, found %d", codec.ErrMalformedRecord, t.ID, count, len(paths))
	}

	for _, sp := range paths {
		s, err := p.readSequence(sp)
		if err != nil {
			return nil, err
		}
		t.Sequences = append(t.Sequences, s)
	}
	return t, nil
}

// sequenceFiles lists the sequence files of a track directory ordered by
// sequence id.
func sequenceFiles(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "Sequence-*.cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to list sequences: %w", err)
	}
	ids := make(map[string]int, len(paths))
	for _, path := range paths {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "Sequence-"), ".cache")
		id, err := strconv.Atoi(name)
		if err != nil {
			return nil, fmt.Errorf("%w: unexpected sequence file %s", codec.ErrMalformedRecord, path)
		}
		ids[path] = id
	}
	sort.Slice(paths, func(i, j int) bool { return ids[paths[i]] < ids[paths[j]] })
	return paths, nil
}

// readSequence dispatches on the type tag of the sequence header.
func (p *CachedProject) readSequence(path string) (Sequence, error) {
	f, r, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, _ := r.SequenceHeader()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sequence header of %s: %w", path, err)
	}
	info := infoFromHeader(h, path)

	var s Sequence
	switch h.Type {
	case codec.SequenceFrame:
		seq := &FrameSequence{SequenceInfo: info, Raster: h.Raster, Frames: []FrameSubSequence{}, compression: p.compression}
		for !r.AtEOF() {
			pos := r.Pos()
			rec := r.FrameRecord()
			r.Skip(rec.CompressedLength)
			if r.Err() != nil {
				break
			}
			seq.Frames = append(seq.Frames, FrameSubSequence{
				StreamPosition:     pos,
				Timestamp:          codec.TicksToDuration(rec.TimestampTicks),
				ExpectedDelay:      time.Duration(rec.ExpectedDelay) * time.Millisecond,
				Width:              int(rec.Rect.Width),
				Height:             int(rec.Rect.Height),
				UncompressedLength: rec.UncompressedLength,
				CompressedLength:   rec.CompressedLength,
			})
		}
		s = seq
	case codec.SequenceCursor:
		seq := &CursorSequence{SequenceInfo: info, Cursors: []CursorSubSequence{}}
		for !r.AtEOF() {
			pos := r.Pos()
			c := r.CursorSubRecord()
			r.Skip(c.DataLength)
			if r.Err() != nil {
				break
			}
			seq.Cursors = append(seq.Cursors, CursorSubSequence{StreamPosition: pos, CursorSubRecord: c})
		}
		s = seq
	case codec.SequenceKey:
		seq := &KeySequence{SequenceInfo: info, Keys: []KeySubSequence{}}
		for !r.AtEOF() {
			pos := r.Pos()
			k := r.KeyRecord(uint8(codec.SequenceKey))
			if r.Err() != nil {
				break
			}
			seq.Keys = append(seq.Keys, KeySubSequence{StreamPosition: pos, KeyRecord: k})
		}
		s = seq
	}

	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s sequence %s: %w", h.Type, path, err)
	}
	if h.Count != uint32(s.Len()) && !(h.Type == codec.SequenceFrame && h.Count == 0) {
		return nil, fmt.Errorf("%w: %s sequence %d declares %d records, holds %d", codec.ErrMalformedRecord, h.Type, h.ID, h.Count, s.Len())
	}
	return s, nil
}
