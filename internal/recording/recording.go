// Package recording implements the flat on-disk container of one capture
// session: a properties header, a frame stream and the mouse and keyboard
// event streams, all under one timestamped directory.
package recording

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/codec"
	"github.com/bryanchriswhite/FocusRecorder/internal/compress"
	"github.com/google/uuid"
)

const (
	// Signature opens every recording properties file.
	Signature = "stgR"

	// Version is the only recording format version this package reads.
	Version uint16 = 1

	// DirName is the cache subdirectory holding recordings.
	DirName = "Recording"

	PropertiesFile     = "Properties.cache"
	FramesFile         = "Frames.cache"
	MouseEventsFile    = "MouseEvents.cache"
	KeyboardEventsFile = "KeyboardEvents.cache"

	// DefaultBackground is the background of every frame sequence.
	DefaultBackground = "#FFFFFFFF"

	defaultDpi = 96
)

var (
	ErrSignature = errors.New("not a recording: signature mismatch")
	ErrVersion   = errors.New("unsupported recording version")

	// ErrClosed is returned when appending to a finalized or discarded project.
	ErrClosed = errors.New("recording is closed")
)

// SourceKind is the recorder that produced a project.
type SourceKind uint8

const (
	SourceScreen SourceKind = 1
	SourceWebcam SourceKind = 2
	SourceBoard  SourceKind = 3
)

func (k SourceKind) String() string {
	switch k {
	case SourceScreen:
		return "screen"
	case SourceWebcam:
		return "webcam"
	case SourceBoard:
		return "board"
	default:
		return fmt.Sprintf("source(%d)", uint8(k))
	}
}

// Properties is the fixed header of a recording.
type Properties struct {
	Width          uint16     `json:"width" yaml:"width"`
	Height         uint16     `json:"height" yaml:"height"`
	Dpi            float32    `json:"dpi" yaml:"dpi"`
	ChannelCount   uint8      `json:"channel_count" yaml:"channel_count"`
	BitsPerChannel uint8      `json:"bits_per_channel" yaml:"bits_per_channel"`
	AppName        string     `json:"app_name" yaml:"app_name"`
	AppVersion     string     `json:"app_version" yaml:"app_version"`
	CreatedBy      SourceKind `json:"created_by" yaml:"created_by"`
	CreationDate   time.Time  `json:"creation_date" yaml:"creation_date"`
}

// Frame is the metadata of one frame record. The pixels live on disk only.
type Frame struct {
	StreamPosition     int64         `json:"stream_position" yaml:"stream_position"`
	Timestamp          time.Duration `json:"timestamp" yaml:"timestamp"`
	ExpectedDelay      time.Duration `json:"expected_delay" yaml:"expected_delay"`
	Width              int           `json:"width" yaml:"width"`
	Height             int           `json:"height" yaml:"height"`
	UncompressedLength int64         `json:"uncompressed_length" yaml:"uncompressed_length"`
	CompressedLength   int64         `json:"compressed_length" yaml:"compressed_length"`
}

// PayloadPosition is the offset of the compressed pixels in the frame stream.
func (f Frame) PayloadPosition() int64 {
	return f.StreamPosition + codec.FrameRecordSize
}

// MouseEvent is one record of the mouse event stream.
type MouseEvent struct {
	StreamPosition int64 `json:"stream_position" yaml:"stream_position"`
	codec.MouseRecord
}

// Timestamp returns the capture time of either record kind.
func (e MouseEvent) Timestamp() time.Duration {
	if e.Tag == codec.TagCursorData {
		return codec.TicksToDuration(e.Data.TimestampTicks)
	}
	return codec.TicksToDuration(e.Cursor.TimestampTicks)
}

// BitmapPosition is the offset of a CursorData record's raw bitmap.
func (e MouseEvent) BitmapPosition() int64 {
	return e.StreamPosition + codec.CursorDataHeaderSize
}

// KeyboardEvent is one record of the keyboard event stream.
type KeyboardEvent struct {
	StreamPosition int64 `json:"stream_position" yaml:"stream_position"`
	codec.KeyRecord
}

func (e KeyboardEvent) Timestamp() time.Duration {
	return codec.TicksToDuration(e.TimestampTicks)
}

// Options configures Create.
type Options struct {
	// CacheDir is the parent of the session directory.
	CacheDir string
	Source   SourceKind

	// Width and Height are the stored frame size; captured frames of a
	// different size are scaled.
	Width  int
	Height int
	Dpi    float32

	AppName    string
	AppVersion string

	// Compression compresses frame payloads. Defaults to DEFLATE at the
	// default level.
	Compression compress.Codec

	// Now returns the creation date. Defaults to time.Now.
	Now func() time.Time
}

// Project is one recording session on disk plus the metadata of every
// record written or read. AppendFrame is called from the capture goroutine
// only and the event writers from the event pipeline's drain goroutine only.
type Project struct {
	Properties

	Root               string `json:"root" yaml:"root"`
	PropertiesPath     string `json:"-" yaml:"-"`
	FramesPath         string `json:"-" yaml:"-"`
	MouseEventsPath    string `json:"-" yaml:"-"`
	KeyboardEventsPath string `json:"-" yaml:"-"`

	Frames         []Frame         `json:"frames" yaml:"frames"`
	MouseEvents    []MouseEvent    `json:"mouse_events" yaml:"mouse_events"`
	KeyboardEvents []KeyboardEvent `json:"keyboard_events" yaml:"keyboard_events"`

	compression compress.Codec
	frames      *stream
	mouse       *stream
	keyboard    *stream
	scaler      scaler
	buf         []byte

	frameCount atomic.Uint64
	mu         sync.Mutex
	closed     bool
	discarded  bool
}

func (p *Project) setPaths(root string) {
	p.Root = root
	p.PropertiesPath = filepath.Join(root, PropertiesFile)
	p.FramesPath = filepath.Join(root, FramesFile)
	p.MouseEventsPath = filepath.Join(root, MouseEventsFile)
	p.KeyboardEventsPath = filepath.Join(root, KeyboardEventsFile)
}

// FrameCount returns the number of frames appended or read. It is safe to
// call from any goroutine.
func (p *Project) FrameCount() uint64 {
	return p.frameCount.Load()
}

// Duration returns the timestamp of the last frame or event.
func (p *Project) Duration() time.Duration {
	var last time.Duration
	for _, f := range p.Frames {
		last = max(last, f.Timestamp)
	}
	for _, e := range p.MouseEvents {
		last = max(last, e.Timestamp())
	}
	for _, e := range p.KeyboardEvents {
		last = max(last, e.Timestamp())
	}
	return last
}

// Compression returns the codec used for frame payloads.
func (p *Project) Compression() compress.Codec {
	return p.compression
}

// sessionDirName is sortable by creation time and unique per session.
func sessionDirName(t time.Time) string {
	return t.Format("2006-01-02 15-04-05") + "-" + uuid.NewString()[:8]
}

func defaultCompression() compress.Codec {
	c, _ := compress.NewDeflate(compress.DefaultLevel)
	return c
}
