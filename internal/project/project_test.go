package project

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
	"github.com/bryanchriswhite/FocusRecorder/internal/codec"
	"github.com/bryanchriswhite/FocusRecorder/internal/events"
	"github.com/bryanchriswhite/FocusRecorder/internal/recording"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecording(t *testing.T, cacheDir string) *recording.Project {
	t.Helper()
	rec, err := recording.Create(recording.Options{
		CacheDir:   cacheDir,
		Width:      4,
		Height:     4,
		AppName:    "FocusRecorder",
		AppVersion: "test",
	})
	require.NoError(t, err)
	return rec
}

func frame(seed byte) *capture.Frame {
	f := capture.NewFrame(4, 4)
	for i := range f.Pixels {
		f.Pixels[i] = seed ^ byte(i)
	}
	return f
}

func TestConvertFramesAndEvents(t *testing.T) {
	cacheDir := t.TempDir()
	rec := newRecording(t, cacheDir)

	const n = 5
	for i := 0; i < n; i++ {
		require.NoError(t, rec.AppendFrame(frame(byte(i)), time.Duration(i)*time.Second, time.Second))
	}

	arrow := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	hand := []byte{9, 9, 9, 9}
	require.NoError(t, rec.WriteCursor(events.CursorEvent{Timestamp: 100 * time.Millisecond, Position: image.Pt(1, 1)}))
	require.NoError(t, rec.WriteCursorData(events.CursorDataEvent{
		Timestamp: 200 * time.Millisecond,
		Type:      capture.CursorColor,
		Bounds:    image.Rect(0, 0, 2, 1),
		Hotspot:   image.Pt(1, 0),
		Data:      arrow,
	}))
	require.NoError(t, rec.WriteCursor(events.CursorEvent{Timestamp: 300 * time.Millisecond, Position: image.Pt(2, 3), Buttons: [5]bool{false, true}}))
	require.NoError(t, rec.WriteCursorData(events.CursorDataEvent{
		Timestamp: 400 * time.Millisecond,
		Type:      capture.CursorMaskedColor,
		Bounds:    image.Rect(2, 3, 3, 4),
		Data:      hand,
	}))
	require.NoError(t, rec.WriteCursor(events.CursorEvent{Timestamp: 6 * time.Second, Position: image.Pt(3, 3)}))

	require.NoError(t, rec.WriteKey(events.KeyEvent{Timestamp: time.Second, KeyCode: 65, Modifiers: events.ModCtrl}))
	require.NoError(t, rec.WriteKey(events.KeyEvent{Timestamp: 2 * time.Second, KeyCode: 66, Uppercase: true, Injected: true}))
	require.NoError(t, rec.Finalize())

	recRoot := rec.Root
	p, err := Convert(context.Background(), rec, Options{CacheDir: cacheDir})
	require.NoError(t, err)

	_, err = os.Stat(recRoot)
	assert.True(t, os.IsNotExist(err), "source recording is discarded")
	assert.Equal(t, filepath.Join(cacheDir, "Project"), filepath.Dir(p.Root))
	assert.Equal(t, filepath.Base(recRoot), p.Name)
	require.Len(t, p.Tracks, 3)
	assert.Equal(t, 6*time.Second, p.Duration())

	got, err := Read(p.Root, nil)
	require.NoError(t, err)
	assert.Equal(t, p.Properties, got.Properties)
	require.Len(t, got.Tracks, 3)

	frames := got.Track(FrameTrackID)
	require.NotNil(t, frames)
	assert.Equal(t, FrameTrackName, frames.Name)
	assert.True(t, frames.Visible)
	require.Len(t, frames.Sequences, 1)
	fs, ok := frames.Sequences[0].(*FrameSequence)
	require.True(t, ok)
	require.Len(t, fs.Frames, n)
	assert.Equal(t, time.Duration(0), fs.Start)
	assert.Equal(t, 6*time.Second, fs.End)
	assert.Equal(t, uint16(4), fs.Raster.OriginalWidth)
	for i := 1; i < n; i++ {
		assert.LessOrEqual(t, fs.Frames[i-1].Timestamp, fs.Frames[i].Timestamp)
	}
	img, err := fs.ReadFrame(3)
	require.NoError(t, err)
	assert.Equal(t, frame(3).Pixels, img.Pixels)

	cursors := got.Track(CursorTrackID)
	require.NotNil(t, cursors)
	cs := cursors.Sequences[0].(*CursorSequence)
	require.Len(t, cs.Cursors, 5)

	// Samples before the first shape carry no bitmap.
	assert.Zero(t, cs.Cursors[0].DataLength)
	assert.Equal(t, int32(1), cs.Cursors[0].Rect.Left)

	// A shape record is placed at the pointer, not the sprite origin.
	assert.Equal(t, int32(1), cs.Cursors[1].Rect.Left)
	assert.Equal(t, uint16(2), cs.Cursors[1].Rect.Width)

	// Position samples inherit the last shape.
	assert.Equal(t, uint8(capture.CursorColor), cs.Cursors[2].CursorType)
	assert.Equal(t, uint16(1), cs.Cursors[2].HotspotX)
	assert.Equal(t, [5]bool{false, true}, cs.Cursors[2].Buttons)
	bitmap, err := cs.ReadBitmap(2)
	require.NoError(t, err)
	assert.Equal(t, arrow, bitmap)

	assert.Equal(t, [5]bool{false, true}, cs.Cursors[3].Buttons)
	bitmap, err = cs.ReadBitmap(4)
	require.NoError(t, err)
	assert.Equal(t, hand, bitmap)
	assert.Equal(t, uint8(capture.CursorMaskedColor), cs.Cursors[4].CursorType)

	keys := got.Track(KeyTrackID)
	require.NotNil(t, keys)
	ks := keys.Sequences[0].(*KeySequence)
	require.Len(t, ks.Keys, 2)
	assert.Equal(t, int32(65), ks.Keys[0].KeyCode)
	assert.Equal(t, uint8(events.ModCtrl), ks.Keys[0].Modifiers)
	assert.True(t, ks.Keys[1].IsUppercase)
	assert.True(t, ks.Keys[1].WasInjected)
	assert.Equal(t, 2*time.Second, ks.Keys[1].Timestamp())
}

func TestConvertSkipsEmptyContent(t *testing.T) {
	cacheDir := t.TempDir()
	rec := newRecording(t, cacheDir)
	require.NoError(t, rec.AppendFrame(frame(0), 0, 0))
	require.NoError(t, rec.Finalize())

	p, err := Convert(context.Background(), rec, Options{CacheDir: cacheDir, Name: "demo", KeepRecording: true})
	require.NoError(t, err)
	require.Len(t, p.Tracks, 1)
	assert.Equal(t, "demo", p.Name)
	assert.Len(t, p.Sequences(codec.SequenceFrame), 1)
	assert.Empty(t, p.Sequences(codec.SequenceCursor))

	_, err = os.Stat(rec.PropertiesPath)
	assert.NoError(t, err, "recording is kept")
	_, err = os.Stat(rec.FramesPath)
	assert.True(t, os.IsNotExist(err), "frame stream is moved")
}

func TestConvertDefaultsToRecordingCache(t *testing.T) {
	cacheDir := t.TempDir()
	rec := newRecording(t, cacheDir)
	require.NoError(t, rec.Finalize())

	p, err := Convert(context.Background(), rec, Options{})
	require.NoError(t, err)
	assert.Empty(t, p.Tracks)
	assert.Equal(t, filepath.Join(cacheDir, "Project"), filepath.Dir(p.Root))

	got, err := Read(p.Root, nil)
	require.NoError(t, err)
	assert.Empty(t, got.Tracks)
	assert.Equal(t, DefaultBackground, got.Background)
}

func TestConvertRestoresFramesOnFailure(t *testing.T) {
	cacheDir := t.TempDir()
	rec := newRecording(t, cacheDir)
	require.NoError(t, rec.AppendFrame(frame(0), 0, 0))
	require.NoError(t, rec.WriteCursor(events.CursorEvent{Position: image.Pt(1, 1)}))
	require.NoError(t, rec.Finalize())
	require.NoError(t, os.Remove(rec.MouseEventsPath))

	_, err := Convert(context.Background(), rec, Options{})
	require.Error(t, err)

	_, err = os.Stat(rec.FramesPath)
	assert.NoError(t, err, "frame stream is back in the recording")
	projects, err := filepath.Glob(filepath.Join(cacheDir, "Project", "*"))
	require.NoError(t, err)
	assert.Empty(t, projects)
	assert.False(t, rec.Discarded())
}

func TestReadRejectsRecording(t *testing.T) {
	rec := newRecording(t, t.TempDir())
	require.NoError(t, rec.Finalize())

	_, err := Read(rec.Root, nil)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestReadRejectsUnknownVersion(t *testing.T) {
	cacheDir := t.TempDir()
	rec := newRecording(t, cacheDir)
	require.NoError(t, rec.Finalize())
	p, err := Convert(context.Background(), rec, Options{})
	require.NoError(t, err)

	raw, err := os.ReadFile(p.PropertiesPath)
	require.NoError(t, err)
	raw[4] = 2
	require.NoError(t, os.WriteFile(p.PropertiesPath, raw, 0644))

	_, err = Read(p.Root, nil)
	assert.ErrorIs(t, err, ErrVersion)
}

func TestReadRejectsMissingSequence(t *testing.T) {
	cacheDir := t.TempDir()
	rec := newRecording(t, cacheDir)
	require.NoError(t, rec.WriteKey(events.KeyEvent{KeyCode: 1}))
	require.NoError(t, rec.Finalize())
	p, err := Convert(context.Background(), rec, Options{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(sequencePath(p.Root, KeyTrackID, KeyTrackID)))
	_, err = Read(p.Root, nil)
	assert.ErrorIs(t, err, codec.ErrMalformedRecord)
}

func TestConvertOrdersInterleavedEvents(t *testing.T) {
	cacheDir := t.TempDir()
	rec := newRecording(t, cacheDir)
	require.NoError(t, rec.AppendFrame(frame(1), 0, 50*time.Millisecond))
	require.NoError(t, rec.AppendFrame(frame(2), 50*time.Millisecond, 50*time.Millisecond))

	// A hook sample can land in the stream before a shape sampled earlier.
	arrow := []byte{1, 2, 3, 4}
	require.NoError(t, rec.WriteCursor(events.CursorEvent{Timestamp: 120 * time.Millisecond, Position: image.Pt(3, 3)}))
	require.NoError(t, rec.WriteCursorData(events.CursorDataEvent{
		Timestamp: 100 * time.Millisecond,
		Type:      capture.CursorColor,
		Bounds:    image.Rect(1, 1, 2, 2),
		Data:      arrow,
	}))
	require.NoError(t, rec.WriteCursor(events.CursorEvent{Timestamp: 110 * time.Millisecond, Position: image.Pt(2, 2)}))
	require.NoError(t, rec.WriteKey(events.KeyEvent{Timestamp: 300 * time.Millisecond, KeyCode: 66}))
	require.NoError(t, rec.WriteKey(events.KeyEvent{Timestamp: 200 * time.Millisecond, KeyCode: 65}))
	require.NoError(t, rec.Finalize())
	assert.Equal(t, 300*time.Millisecond, rec.Duration())

	p, err := Convert(context.Background(), rec, Options{CacheDir: cacheDir})
	require.NoError(t, err)
	got, err := Read(p.Root, nil)
	require.NoError(t, err)

	cs := got.Track(CursorTrackID).Sequences[0].(*CursorSequence)
	require.Len(t, cs.Cursors, 3)
	for i := 1; i < len(cs.Cursors); i++ {
		assert.GreaterOrEqual(t, cs.Cursors[i].Timestamp(), cs.Cursors[i-1].Timestamp())
	}
	assert.GreaterOrEqual(t, cs.End, cs.Cursors[2].Timestamp())
	assert.Equal(t, 100*time.Millisecond, cs.Cursors[0].Timestamp())
	assert.Equal(t, int32(3), cs.Cursors[2].Rect.Left)

	// Shapes carry forward in time order, not file order.
	for i := range cs.Cursors {
		assert.Equal(t, uint8(capture.CursorColor), cs.Cursors[i].CursorType)
		bitmap, err := cs.ReadBitmap(i)
		require.NoError(t, err)
		assert.Equal(t, arrow, bitmap)
	}

	ks := got.Track(KeyTrackID).Sequences[0].(*KeySequence)
	require.Len(t, ks.Keys, 2)
	assert.Equal(t, int32(65), ks.Keys[0].KeyCode)
	assert.Equal(t, int32(66), ks.Keys[1].KeyCode)
	assert.GreaterOrEqual(t, ks.End, ks.Keys[1].Timestamp())

	fs := got.Track(FrameTrackID).Sequences[0].(*FrameSequence)
	assert.Equal(t, 300*time.Millisecond, fs.End)
}
