// Package project implements the cached project: the track and sequence
// layout a finished recording is converted into for editing.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
	"github.com/bryanchriswhite/FocusRecorder/internal/codec"
	"github.com/bryanchriswhite/FocusRecorder/internal/compress"
	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
	"github.com/bryanchriswhite/FocusRecorder/internal/recording"
)

const (
	// Signature opens every cached project properties file.
	Signature = "stgC"

	// Version is the only cached project format version this package reads.
	Version uint16 = 1

	// DirName is the cache subdirectory holding cached projects.
	DirName = "Project"

	PropertiesFile = "Properties.cache"

	// DefaultBackground is the canvas background of a converted project.
	DefaultBackground = "#FFFFFFFF"
)

var (
	ErrSignature = errors.New("not a cached project: signature mismatch")
	ErrVersion   = errors.New("unsupported cached project version")
)

// Track ids and names of a converted recording.
const (
	FrameTrackID  uint16 = 0
	CursorTrackID uint16 = 1
	KeyTrackID    uint16 = 2

	FrameTrackName  = "Frames"
	CursorTrackName = "Cursor"
	KeyTrackName    = "Keyboard"
)

// Properties is the header of a cached project.
type Properties struct {
	Width          uint16               `json:"width" yaml:"width"`
	Height         uint16               `json:"height" yaml:"height"`
	HorizontalDpi  float32              `json:"horizontal_dpi" yaml:"horizontal_dpi"`
	VerticalDpi    float32              `json:"vertical_dpi" yaml:"vertical_dpi"`
	Background     string               `json:"background" yaml:"background"`
	ChannelCount   uint8                `json:"channel_count" yaml:"channel_count"`
	BitsPerChannel uint8                `json:"bits_per_channel" yaml:"bits_per_channel"`
	AppName        string               `json:"app_name" yaml:"app_name"`
	AppVersion     string               `json:"app_version" yaml:"app_version"`
	CreatedBy      recording.SourceKind `json:"created_by" yaml:"created_by"`
	CreationDate   time.Time            `json:"creation_date" yaml:"creation_date"`
	Name           string               `json:"name" yaml:"name"`
	LastPath       string               `json:"last_path" yaml:"last_path"`
}

// CachedProject is a converted recording: one directory holding the
// properties, one file per track and one file per sequence.
type CachedProject struct {
	Properties

	Root           string   `json:"root" yaml:"root"`
	PropertiesPath string   `json:"-" yaml:"-"`
	Tracks         []*Track `json:"tracks" yaml:"tracks"`

	compression compress.Codec
}

// Track is an ordered list of non-overlapping sequences.
type Track struct {
	ID        uint16     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Visible   bool       `json:"visible" yaml:"visible"`
	Locked    bool       `json:"locked" yaml:"locked"`
	Path      string     `json:"-" yaml:"-"`
	Sequences []Sequence `json:"sequences" yaml:"sequences"`
}

// Sequence is a frame, cursor or key sequence.
type Sequence interface {
	Type() codec.SequenceType
	Info() *SequenceInfo
	Len() int
}

// SequenceInfo is the part of the sequence header shared by every type.
type SequenceInfo struct {
	ID         uint16        `json:"id" yaml:"id"`
	Start      time.Duration `json:"start" yaml:"start"`
	End        time.Duration `json:"end" yaml:"end"`
	Opacity    float32       `json:"opacity" yaml:"opacity"`
	Background string        `json:"background" yaml:"background"`
	Rect       codec.Rect    `json:"rect" yaml:"rect"`
	Path       string        `json:"-" yaml:"-"`
}

func (s *SequenceInfo) Info() *SequenceInfo {
	return s
}

func (s *SequenceInfo) header(t codec.SequenceType, count int) codec.SequenceHeader {
	return codec.SequenceHeader{
		ID:         s.ID,
		Type:       t,
		StartTicks: codec.DurationToTicks(s.Start),
		EndTicks:   codec.DurationToTicks(s.End),
		Opacity:    s.Opacity,
		Background: s.Background,
		Rect:       s.Rect,
		Count:      uint32(count),
	}
}

func infoFromHeader(h codec.SequenceHeader, path string) SequenceInfo {
	return SequenceInfo{
		ID:         h.ID,
		Start:      codec.TicksToDuration(h.StartTicks),
		End:        codec.TicksToDuration(h.EndTicks),
		Opacity:    h.Opacity,
		Background: h.Background,
		Rect:       h.Rect,
		Path:       path,
	}
}

// FrameSubSequence locates one compressed frame in its sequence file.
type FrameSubSequence = recording.Frame

// FrameSequence holds captured frames.
type FrameSequence struct {
	SequenceInfo
	Raster codec.Raster       `json:"raster" yaml:"raster"`
	Frames []FrameSubSequence `json:"frames" yaml:"frames"`

	compression compress.Codec
}

func (s *FrameSequence) Type() codec.SequenceType { return codec.SequenceFrame }
func (s *FrameSequence) Len() int                 { return len(s.Frames) }

// ReadFrame decompresses frame i of the sequence.
func (s *FrameSequence) ReadFrame(i int) (*capture.Frame, error) {
	if i < 0 || i >= len(s.Frames) {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", i, len(s.Frames))
	}
	return recording.ReadFramePayload(s.Path, s.Frames[i], s.compression)
}

// CursorSubSequence is one cursor sample with the shape in effect at that
// time. DataLength bitmap bytes follow the record.
type CursorSubSequence struct {
	StreamPosition int64 `json:"stream_position" yaml:"stream_position"`
	codec.CursorSubRecord
}

func (c CursorSubSequence) Timestamp() time.Duration {
	return codec.TicksToDuration(c.TimestampTicks)
}

// BitmapPosition is the offset of the shape bitmap in the sequence file.
func (c CursorSubSequence) BitmapPosition() int64 {
	return c.StreamPosition + codec.CursorSubRecordSize
}

// CursorSequence holds cursor samples.
type CursorSequence struct {
	SequenceInfo
	Cursors []CursorSubSequence `json:"cursors" yaml:"cursors"`
}

func (s *CursorSequence) Type() codec.SequenceType { return codec.SequenceCursor }
func (s *CursorSequence) Len() int                 { return len(s.Cursors) }

// ReadBitmap returns the cursor bitmap of sample i, or nil if it has none.
func (s *CursorSequence) ReadBitmap(i int) ([]byte, error) {
	if i < 0 || i >= len(s.Cursors) {
		return nil, fmt.Errorf("cursor %d out of range [0, %d)", i, len(s.Cursors))
	}
	c := s.Cursors[i]
	if c.DataLength == 0 {
		return nil, nil
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cursor sequence: %w", err)
	}
	defer f.Close()

	buf := make([]byte, c.DataLength)
	if _, err := f.ReadAt(buf, c.BitmapPosition()); err != nil {
		return nil, fmt.Errorf("failed to read cursor bitmap at offset %d: %w", c.BitmapPosition(), err)
	}
	return buf, nil
}

// KeySubSequence is one key press.
type KeySubSequence struct {
	StreamPosition int64 `json:"stream_position" yaml:"stream_position"`
	codec.KeyRecord
}

func (k KeySubSequence) Timestamp() time.Duration {
	return codec.TicksToDuration(k.TimestampTicks)
}

// KeySequence holds key presses.
type KeySequence struct {
	SequenceInfo
	Keys []KeySubSequence `json:"keys" yaml:"keys"`
}

func (s *KeySequence) Type() codec.SequenceType { return codec.SequenceKey }
func (s *KeySequence) Len() int                 { return len(s.Keys) }

// Track returns the track with the given id, or nil.
func (p *CachedProject) Track(id uint16) *Track {
	for _, t := range p.Tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Sequences returns every sequence of type t across all tracks.
func (p *CachedProject) Sequences(t codec.SequenceType) []Sequence {
	var out []Sequence
	for _, track := range p.Tracks {
		for _, s := range track.Sequences {
			if s.Type() == t {
				out = append(out, s)
			}
		}
	}
	return out
}

// Duration returns the end of the latest sequence.
func (p *CachedProject) Duration() time.Duration {
	var end time.Duration
	for _, track := range p.Tracks {
		for _, s := range track.Sequences {
			if e := s.Info().End; e > end {
				end = e
			}
		}
	}
	return end
}

// Discard deletes the project directory. Failures are logged.
func (p *CachedProject) Discard() {
	if p.Root == "" {
		return
	}
	if err := os.RemoveAll(p.Root); err != nil {
		logger.WithComponent("project").Warn().Err(err).Str("path", p.Root).Msg("Failed to delete project directory")
		return
	}
	p.Tracks = nil
	logger.WithComponent("project").Info().Str("path", p.Root).Msg("Project discarded")
}

func trackFileName(id uint16) string {
	return fmt.Sprintf("Track-%d.cache", id)
}

func trackDirName(id uint16) string {
	return fmt.Sprintf("Track-%d", id)
}

func sequencePath(root string, trackID, seqID uint16) string {
	return filepath.Join(root, trackDirName(trackID), fmt.Sprintf("Sequence-%d.cache", seqID))
}
