package recording

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
	"github.com/bryanchriswhite/FocusRecorder/internal/codec"
	"github.com/bryanchriswhite/FocusRecorder/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProject(t *testing.T, width, height int) *Project {
	t.Helper()
	p, err := Create(Options{
		CacheDir:   t.TempDir(),
		Width:      width,
		Height:     height,
		Dpi:        120,
		AppName:    "FocusRecorder",
		AppVersion: "test",
		Now:        func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 123456789, time.UTC) },
	})
	require.NoError(t, err)
	return p
}

func filledFrame(width, height int, seed byte) *capture.Frame {
	f := capture.NewFrame(width, height)
	for i := range f.Pixels {
		f.Pixels[i] = seed + byte(i%7)
	}
	return f
}

func TestRoundTrip(t *testing.T) {
	p := newTestProject(t, 8, 4)

	for i := 0; i < 3; i++ {
		ts := time.Duration(i) * 100 * time.Millisecond
		require.NoError(t, p.AppendFrame(filledFrame(8, 4, byte(i)), ts, 100*time.Millisecond))
	}
	require.NoError(t, p.WriteCursor(events.CursorEvent{Timestamp: 10 * time.Millisecond, Position: image.Pt(3, 2), Buttons: [5]bool{true}}))
	require.NoError(t, p.WriteCursorData(events.CursorDataEvent{
		Timestamp: 20 * time.Millisecond,
		Type:      capture.CursorColor,
		Bounds:    image.Rect(1, 1, 3, 2),
		Hotspot:   image.Pt(1, 0),
		Data:      []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}))
	require.NoError(t, p.WriteCursor(events.CursorEvent{Timestamp: 30 * time.Millisecond, WheelDelta: -120}))
	require.NoError(t, p.WriteKey(events.KeyEvent{Timestamp: 40 * time.Millisecond, KeyCode: 65, Modifiers: events.ModShift, Uppercase: true}))
	require.NoError(t, p.Finalize())
	require.NoError(t, p.Finalize())

	got, err := Read(p.Root, nil)
	require.NoError(t, err)

	assert.Equal(t, p.Properties, got.Properties)
	assert.Equal(t, "FocusRecorder", got.AppName)
	assert.Equal(t, SourceScreen, got.CreatedBy)
	assert.Equal(t, time.Date(2026, 10, 18, 9, 30, 0, 123456700, time.UTC), got.CreationDate)

	require.Len(t, got.Frames, 3)
	assert.Equal(t, p.Frames, got.Frames)
	assert.Equal(t, uint64(3), got.FrameCount())
	assert.Equal(t, p.MouseEvents, got.MouseEvents)
	assert.Equal(t, p.KeyboardEvents, got.KeyboardEvents)
	assert.Equal(t, 200*time.Millisecond, got.Duration())

	data := got.MouseEvents[1]
	assert.Equal(t, codec.TagCursorData, data.Tag)
	raw, err := os.ReadFile(got.MouseEventsPath)
	require.NoError(t, err)
	pos := data.BitmapPosition()
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, raw[pos:pos+8])

	frame, err := got.ReadFrame(2)
	require.NoError(t, err)
	assert.Equal(t, filledFrame(8, 4, 2).Pixels, frame.Pixels)
}

func TestAppendFrameScales(t *testing.T) {
	p := newTestProject(t, 4, 2)
	require.NoError(t, p.AppendFrame(filledFrame(8, 4, 0), 0, 0))
	require.NoError(t, p.Finalize())

	require.Len(t, p.Frames, 1)
	assert.Equal(t, 4, p.Frames[0].Width)
	assert.Equal(t, int64(4*2*capture.BytesPerPixel), p.Frames[0].UncompressedLength)

	frame, err := p.ReadFrame(0)
	require.NoError(t, err)
	assert.Equal(t, 2, frame.Height)
}

func TestEmptyManualRecording(t *testing.T) {
	p := newTestProject(t, 16, 16)
	require.NoError(t, p.Finalize())

	got, err := Read(p.Root, nil)
	require.NoError(t, err)
	assert.Empty(t, got.Frames)
	assert.Empty(t, got.MouseEvents)
	assert.Empty(t, got.KeyboardEvents)
	assert.Equal(t, uint16(16), got.Width)
}

func TestReadRejectsForeignSignature(t *testing.T) {
	p := newTestProject(t, 2, 2)
	require.NoError(t, p.Finalize())
	require.NoError(t, os.WriteFile(p.PropertiesPath, []byte("stgC\x01\x00garbage"), 0644))

	_, err := Read(p.Root, nil)
	assert.ErrorIs(t, err, ErrSignature)
	assert.True(t, IsFormatError(err))

	require.NoError(t, os.WriteFile(p.PropertiesPath, []byte("st"), 0644))
	_, err = Read(p.Root, nil)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestReadRejectsUnknownVersion(t *testing.T) {
	p := newTestProject(t, 2, 2)
	require.NoError(t, p.Finalize())

	raw, err := os.ReadFile(p.PropertiesPath)
	require.NoError(t, err)
	raw[4] = 9
	require.NoError(t, os.WriteFile(p.PropertiesPath, raw, 0644))

	_, err = Read(p.Root, nil)
	assert.ErrorIs(t, err, ErrVersion)
}

func TestReadRejectsTruncatedPayload(t *testing.T) {
	p := newTestProject(t, 4, 4)
	require.NoError(t, p.AppendFrame(filledFrame(4, 4, 1), 0, 0))
	require.NoError(t, p.Finalize())

	info, err := os.Stat(p.FramesPath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(p.FramesPath, info.Size()-1))

	_, err = Read(p.Root, nil)
	assert.ErrorIs(t, err, codec.ErrMalformedRecord)
}

func TestDiscardIsIdempotent(t *testing.T) {
	p := newTestProject(t, 2, 2)
	require.NoError(t, p.AppendFrame(filledFrame(2, 2, 0), 0, 0))

	p.Discard()
	p.Discard()

	assert.True(t, p.Discarded())
	assert.Empty(t, p.Frames)
	assert.Zero(t, p.FrameCount())
	_, err := os.Stat(p.Root)
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, p.AppendFrame(filledFrame(2, 2, 0), 0, 0), ErrClosed)
	assert.ErrorIs(t, p.WriteKey(events.KeyEvent{}), ErrClosed)
}

func TestCreateLayout(t *testing.T) {
	p := newTestProject(t, 2, 2)
	defer p.Discard()

	assert.Equal(t, "Recording", filepath.Base(filepath.Dir(p.Root)))
	for _, path := range []string{p.PropertiesPath, p.FramesPath, p.MouseEventsPath, p.KeyboardEventsPath} {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}

	_, err := Create(Options{CacheDir: t.TempDir()})
	assert.Error(t, err)
}
