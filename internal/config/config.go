package config

import (
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
	"github.com/bryanchriswhite/FocusRecorder/internal/timing"
)

// Config represents the application configuration
type Config struct {
	ServerPort int            `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	LogLevel   string         `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogFile    string         `json:"log_file" yaml:"log_file" mapstructure:"log_file"`
	Capture    CaptureSection `json:"capture" yaml:"capture" mapstructure:"capture"`
	Input      InputSection   `json:"input" yaml:"input" mapstructure:"input"`
	Preview    PreviewSection `json:"preview" yaml:"preview" mapstructure:"preview"`
}

// CaptureSection is the capture part of the config file, as written by the user.
type CaptureSection struct {
	Frequency        string  `json:"frequency" yaml:"frequency" mapstructure:"frequency"`
	FrameRate        int     `json:"frame_rate" yaml:"frame_rate" mapstructure:"frame_rate"`
	DelayMode        string  `json:"delay_mode" yaml:"delay_mode" mapstructure:"delay_mode"`
	TriggerDelayMs   int     `json:"trigger_delay_ms" yaml:"trigger_delay_ms" mapstructure:"trigger_delay_ms"`
	Device           string  `json:"device" yaml:"device" mapstructure:"device"`
	Cursor           string  `json:"cursor" yaml:"cursor" mapstructure:"cursor"`
	CompressionLevel int     `json:"compression_level" yaml:"compression_level" mapstructure:"compression_level"`
	CacheDir         string  `json:"cache_dir" yaml:"cache_dir" mapstructure:"cache_dir"`
	Scale            float64 `json:"scale" yaml:"scale" mapstructure:"scale"`
	Region           string  `json:"region" yaml:"region" mapstructure:"region"`
	ConvertOnStop    bool    `json:"convert_on_stop" yaml:"convert_on_stop" mapstructure:"convert_on_stop"`
}

// InputSection selects which input streams are recorded.
type InputSection struct {
	Mouse    bool `json:"mouse" yaml:"mouse" mapstructure:"mouse"`
	Keyboard bool `json:"keyboard" yaml:"keyboard" mapstructure:"keyboard"`
}

// PreviewSection configures the MJPEG preview of captured frames.
type PreviewSection struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	FPS     int  `json:"fps" yaml:"fps" mapstructure:"fps"`
	Quality int  `json:"quality" yaml:"quality" mapstructure:"quality"`
	// Badge draws the recording status onto preview frames only.
	Badge bool `json:"badge" yaml:"badge" mapstructure:"badge"`
}

// CursorMode decides how the cursor ends up in a recording.
type CursorMode string

const (
	// CursorComposite draws the cursor into every frame.
	CursorComposite CursorMode = "composite"

	// CursorEvents records shape changes to the mouse event stream instead.
	CursorEvents CursorMode = "events"

	// CursorNone leaves the cursor out.
	CursorNone CursorMode = "none"
)

// ParseCursorMode validates a configured cursor mode.
func ParseCursorMode(s string) (CursorMode, error) {
	switch m := CursorMode(strings.ToLower(strings.TrimSpace(s))); m {
	case CursorComposite, CursorEvents, CursorNone:
		return m, nil
	case "":
		return CursorComposite, nil
	default:
		return "", fmt.Errorf("unknown cursor mode %q (use composite, events or none)", s)
	}
}

// CaptureConfig is the validated capture configuration of one session. It is
// built once at session start and handed to every component; nothing in the
// capture path reads the config manager.
type CaptureConfig struct {
	Frequency    timing.Frequency
	FrameRate    int
	DelayMode    timing.DelayMode
	TriggerDelay time.Duration

	Device capture.Kind
	Cursor CursorMode

	CompressionLevel int
	CacheDir         string

	// Scale multiplies the capture region size to get the stored frame size.
	Scale float64

	// Region is the captured part of the screen. Empty means the whole screen.
	Region image.Rectangle

	RecordMouse    bool
	RecordKeyboard bool
	ConvertOnStop  bool
}

// CaptureConfig validates the capture settings and converts them to their
// typed form.
func (c *Config) CaptureConfig() (CaptureConfig, error) {
	s := c.Capture
	out := CaptureConfig{
		FrameRate:        s.FrameRate,
		TriggerDelay:     time.Duration(s.TriggerDelayMs) * time.Millisecond,
		CompressionLevel: s.CompressionLevel,
		CacheDir:         s.CacheDir,
		Scale:            s.Scale,
		RecordMouse:      c.Input.Mouse,
		RecordKeyboard:   c.Input.Keyboard,
		ConvertOnStop:    s.ConvertOnStop,
	}

	var err error
	if out.Frequency, err = timing.ParseFrequency(s.Frequency); err != nil {
		return CaptureConfig{}, err
	}
	if out.DelayMode, err = timing.ParseDelayMode(s.DelayMode); err != nil {
		return CaptureConfig{}, err
	}
	if _, err = timing.Interval(out.Frequency, out.FrameRate); err != nil {
		return CaptureConfig{}, err
	}
	if out.Device, err = capture.ParseKind(s.Device); err != nil {
		return CaptureConfig{}, err
	}
	if out.Cursor, err = ParseCursorMode(s.Cursor); err != nil {
		return CaptureConfig{}, err
	}
	if out.Region, err = ParseRegion(s.Region); err != nil {
		return CaptureConfig{}, err
	}

	if s.TriggerDelayMs < 0 {
		return CaptureConfig{}, fmt.Errorf("trigger delay must not be negative, got %dms", s.TriggerDelayMs)
	}
	if out.Scale == 0 {
		out.Scale = 1
	}
	if out.Scale < 0.1 || out.Scale > 4 {
		return CaptureConfig{}, fmt.Errorf("scale must be between 0.1 and 4, got %g", out.Scale)
	}
	if out.CompressionLevel < -2 || out.CompressionLevel > 9 {
		return CaptureConfig{}, fmt.Errorf("compression level must be between -2 and 9, got %d", out.CompressionLevel)
	}
	if out.CacheDir == "" {
		return CaptureConfig{}, fmt.Errorf("capture.cache_dir is required")
	}
	return out, nil
}

// ParseRegion parses "x,y,width,height". An empty string is the empty
// rectangle, meaning the whole screen.
func ParseRegion(s string) (image.Rectangle, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return image.Rectangle{}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("invalid region %q (use x,y,width,height)", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("invalid region %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("invalid region %q: width and height must be positive", s)
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}

// FormatRegion is the inverse of ParseRegion.
func FormatRegion(r image.Rectangle) string {
	if r.Empty() {
		return ""
	}
	return fmt.Sprintf("%d,%d,%d,%d", r.Min.X, r.Min.Y, r.Dx(), r.Dy())
}
