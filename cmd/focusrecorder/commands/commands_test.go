package commands

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
	"github.com/bryanchriswhite/FocusRecorder/internal/config"
	"github.com/bryanchriswhite/FocusRecorder/internal/events"
	"github.com/bryanchriswhite/FocusRecorder/internal/project"
	"github.com/bryanchriswhite/FocusRecorder/internal/recording"
	"github.com/bryanchriswhite/FocusRecorder/internal/timing"
	"github.com/bryanchriswhite/FocusRecorder/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newRecording(t *testing.T, cacheDir string, frames int) *recording.Project {
	t.Helper()
	rec, err := recording.Create(recording.Options{
		CacheDir:   cacheDir,
		Width:      4,
		Height:     2,
		AppName:    "FocusRecorder",
		AppVersion: "test",
	})
	require.NoError(t, err)
	for i := 0; i < frames; i++ {
		f := capture.NewFrame(4, 2)
		for j := range f.Pixels {
			f.Pixels[j] = byte(i * 40)
		}
		require.NoError(t, rec.AppendFrame(f, time.Duration(i)*time.Second, time.Second))
	}
	require.NoError(t, rec.WriteKey(events.KeyEvent{Timestamp: time.Second, KeyCode: 65}))
	require.NoError(t, rec.Finalize())
	return rec
}

func TestOpenAnyRecording(t *testing.T) {
	rec := newRecording(t, t.TempDir(), 3)

	o, err := openAny(rec.Root)
	require.NoError(t, err)
	s := o.summary()
	assert.Equal(t, "recording", s.Kind)
	assert.Equal(t, 3, s.Frames)
	assert.Equal(t, 1, s.KeyEvents)
	assert.Equal(t, uint16(4), s.Width)
	assert.Equal(t, 2*time.Second, s.Duration)

	frame, err := o.readFrame(2)
	require.NoError(t, err)
	assert.Equal(t, byte(80), frame.Pixels[0])
}

func TestOpenAnyProject(t *testing.T) {
	cacheDir := t.TempDir()
	rec := newRecording(t, cacheDir, 2)
	p, err := project.Convert(context.Background(), rec, project.Options{})
	require.NoError(t, err)

	o, err := openAny(p.Root)
	require.NoError(t, err)
	s := o.summary()
	assert.Equal(t, "project", s.Kind)
	assert.Equal(t, 2, s.Frames)
	assert.Equal(t, 1, s.KeyEvents)
	require.Len(t, s.Tracks, 2)
	assert.Equal(t, project.FrameTrackName, s.Tracks[0].Name)

	frame, err := o.readFrame(1)
	require.NoError(t, err)
	assert.Equal(t, byte(40), frame.Pixels[0])
	_, err = o.readFrame(2)
	assert.Error(t, err)

	out := filepath.Join(t.TempDir(), "frame.png")
	require.NoError(t, exportPNG(frame, out))
	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())
}

func TestOpenAnyRejectsOtherDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, recording.PropertiesFile), []byte("nope-nope"), 0644))
	_, err := openAny(dir)
	assert.ErrorContains(t, err, "neither a recording nor a cached project")

	_, err = openAny(t.TempDir())
	assert.Error(t, err)
}

func TestListEntries(t *testing.T) {
	cacheDir := t.TempDir()
	kept := newRecording(t, cacheDir, 1)
	converted := newRecording(t, cacheDir, 2)
	p, err := project.Convert(context.Background(), converted, project.Options{})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(cacheDir, recording.DirName, "broken"), 0755))

	entries, err := listEntries(cacheDir, false)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byPath := map[string]Entry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	assert.Equal(t, "recording", byPath[kept.Root].Kind)
	assert.Equal(t, 1, byPath[kept.Root].Frames)
	assert.Equal(t, "project", byPath[p.Root].Kind)
	assert.Equal(t, 2, byPath[p.Root].Frames)
	assert.NotEmpty(t, byPath[filepath.Join(cacheDir, recording.DirName, "broken")].Error)

	entries, err = listEntries(cacheDir, true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, p.Root, entries[0].Path)
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, "yaml", Summary{Kind: "recording", Frames: 3}))
	var s Summary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &s))
	assert.Equal(t, 3, s.Frames)

	buf.Reset()
	require.NoError(t, encode(&buf, "json", Summary{Kind: "project"}))
	assert.Contains(t, buf.String(), `"kind": "project"`)

	assert.Error(t, encode(&buf, "xml", Summary{}))
}

func TestApplyRecordFlags(t *testing.T) {
	defer func() {
		recordFrequency, recordFrameRate, recordRegion, recordScale = "", 0, "", 0
		recordManual, recordNoConvert, recordDevice, recordCursor = false, false, "", ""
	}()

	base := config.CaptureConfig{
		Frequency:     timing.PerSecond,
		FrameRate:     10,
		CacheDir:      t.TempDir(),
		ConvertOnStop: true,
	}

	recordFrequency = "per_minute"
	recordFrameRate = 6
	recordRegion = "10,20,100,50"
	recordScale = 0.5
	recordManual = true
	recordNoConvert = true
	recordDevice = "duplication"
	recordCursor = "events"

	cc, so, err := applyRecordFlags(base)
	require.NoError(t, err)
	assert.Equal(t, timing.PerMinute, cc.Frequency)
	assert.Equal(t, 6, cc.FrameRate)
	assert.Equal(t, capture.KindDuplication, cc.Device)
	assert.Equal(t, config.CursorEvents, cc.Cursor)
	assert.False(t, cc.ConvertOnStop)
	assert.False(t, so.Automatic)
	assert.Equal(t, image.Rect(10, 20, 110, 70), so.Region)
	assert.Equal(t, 0.5, so.Scale)

	recordScale = 9
	_, _, err = applyRecordFlags(base)
	assert.Error(t, err)
	recordScale = 0

	recordFrameRate = -1
	_, _, err = applyRecordFlags(base)
	assert.Error(t, err)
	recordFrameRate = 0

	recordCursor = "glitter"
	_, _, err = applyRecordFlags(base)
	assert.Error(t, err)
}

func TestPrintWindows(t *testing.T) {
	windows := []*window.Info{
		{ID: 0x1a00003, Title: "main.go - Code", Class: "code", Bounds: image.Rect(10, 20, 810, 620)},
	}

	var buf bytes.Buffer
	require.NoError(t, printWindows(&buf, windows, "table"))
	assert.Contains(t, buf.String(), "0x1a00003")
	assert.Contains(t, buf.String(), "10,20,800,600")

	buf.Reset()
	require.NoError(t, printWindows(&buf, nil, "table"))
	assert.Contains(t, buf.String(), "No windows found.")

	buf.Reset()
	require.NoError(t, printWindows(&buf, windows, "json"))
	assert.Contains(t, buf.String(), `"class": "code"`)

	assert.Error(t, printWindows(&buf, windows, "csv"))
}
