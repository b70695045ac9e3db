package config

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
	"github.com/bryanchriswhite/FocusRecorder/internal/timing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	return m
}

func TestNewManagerWritesDefaults(t *testing.T) {
	m := newTestManager(t)

	data, err := os.ReadFile(m.GetConfigPath())
	require.NoError(t, err)

	var onDisk Config
	require.NoError(t, yaml.Unmarshal(data, &onDisk))
	assert.Equal(t, 8080, onDisk.ServerPort)
	assert.Equal(t, "per_second", onDisk.Capture.Frequency)
	assert.Equal(t, 10, onDisk.Capture.FrameRate)
	assert.True(t, onDisk.Input.Keyboard)

	cc, err := m.Get().CaptureConfig()
	require.NoError(t, err)
	assert.Equal(t, timing.PerSecond, cc.Frequency)
	assert.Equal(t, capture.KindFullFrame, cc.Device)
	assert.Equal(t, CursorComposite, cc.Cursor)
	assert.Equal(t, 1.0, cc.Scale)
	assert.True(t, cc.Region.Empty())
}

func TestSetAndReload(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Set("capture.frequency", "manual"))
	require.NoError(t, m.Set("capture.trigger_delay_ms", "1500"))
	require.NoError(t, m.Set("capture.region", "10,20,640,480"))
	require.NoError(t, m.Set("input.keyboard", "false"))
	require.NoError(t, m.Save())

	reloaded, err := NewManager(m.GetConfigPath())
	require.NoError(t, err)
	cc, err := reloaded.Get().CaptureConfig()
	require.NoError(t, err)
	assert.Equal(t, timing.Manual, cc.Frequency)
	assert.Equal(t, 1500*time.Millisecond, cc.TriggerDelay)
	assert.Equal(t, image.Rect(10, 20, 650, 500), cc.Region)
	assert.False(t, cc.RecordKeyboard)
	assert.True(t, cc.RecordMouse)
}

func TestSetRejectsInvalidValues(t *testing.T) {
	m := newTestManager(t)

	assert.Error(t, m.Set("server_port", "abc"))
	assert.ErrorContains(t, m.Set("log_level", "verbose"), "debug info warn error")
	assert.Error(t, m.Set("nope", "1"))
	assert.Error(t, m.Set("capture.frequency", "hourly"))
	assert.Error(t, m.Set("capture.frame_rate", "0"))

	// Rejected values are rolled back.
	cfg := m.Get()
	assert.Equal(t, "per_second", cfg.Capture.Frequency)
	assert.Equal(t, 10, cfg.Capture.FrameRate)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("FOCUSRECORDER_CAPTURE_FREQUENCY", "per_minute")
	t.Setenv("FOCUSRECORDER_SERVER_PORT", "9191")

	m := newTestManager(t)
	cfg := m.Get()
	assert.Equal(t, "per_minute", cfg.Capture.Frequency)
	assert.Equal(t, 9191, m.GetPort())
}

func TestUpdate(t *testing.T) {
	m := newTestManager(t)

	cfg := m.Get()
	cfg.Capture.Device = "duplication"
	cfg.Capture.Cursor = "events"
	cfg.Preview.Quality = 50
	require.NoError(t, m.Update(cfg))

	got := m.Get()
	assert.Equal(t, "duplication", got.Capture.Device)
	assert.Equal(t, 50, got.Preview.Quality)

	cfg.Capture.Cursor = "sparkles"
	assert.Error(t, m.Update(cfg))
	assert.Equal(t, "events", m.Get().Capture.Cursor)
}

func TestCaptureConfigValidation(t *testing.T) {
	base := func() *Config {
		return &Config{Capture: CaptureSection{
			Frequency: "per_minute",
			FrameRate: 6,
			CacheDir:  "/tmp/cache",
		}}
	}

	cc, err := base().CaptureConfig()
	require.NoError(t, err)
	assert.Equal(t, timing.DelayMeasured, cc.DelayMode)

	cases := map[string]func(c *Config){
		"scale":       func(c *Config) { c.Capture.Scale = 10 },
		"compression": func(c *Config) { c.Capture.CompressionLevel = 11 },
		"delay":       func(c *Config) { c.Capture.TriggerDelayMs = -1 },
		"cache":       func(c *Config) { c.Capture.CacheDir = "" },
		"device":      func(c *Config) { c.Capture.Device = "gpu" },
		"region":      func(c *Config) { c.Capture.Region = "1,2,3" },
		"delay mode":  func(c *Config) { c.Capture.DelayMode = "lazy" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			_, err := c.CaptureConfig()
			assert.Error(t, err)
		})
	}
}

func TestParseRegion(t *testing.T) {
	r, err := ParseRegion(" 0, 0, 1920, 1080 ")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1920, 1080), r)
	assert.Equal(t, "0,0,1920,1080", FormatRegion(r))

	_, err = ParseRegion("0,0,0,10")
	assert.Error(t, err)
	_, err = ParseRegion("a,b,c,d")
	assert.Error(t, err)
}
