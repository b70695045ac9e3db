package overlay

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	frames []*image.RGBA
}

func (c *captureSink) WriteFrame(frame *image.RGBA) error {
	c.frames = append(c.frames, frame)
	return nil
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "REC 01:05 | 42 frames", StatusText(recorder.Progress{
		Status:     recorder.StatusRecording,
		Elapsed:    65*time.Second + 900*time.Millisecond,
		FrameCount: 42,
	}))
	assert.Equal(t, "PAUSED 00:03 | 1 frames | imprecise", StatusText(recorder.Progress{
		Status:          recorder.StatusPaused,
		Elapsed:         3 * time.Second,
		FrameCount:      1,
		ImpreciseTiming: true,
	}))
	assert.Equal(t, "pending 00:00 | 0 frames", StatusText(recorder.Progress{Status: recorder.StatusPending}))
}

func TestBadgeRender(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 40))
	b := DefaultBadge()
	b.Opacity = 1

	size := b.Size("REC")
	assert.Equal(t, 3*7+2*b.Padding, size.X)

	b.Render(img, "REC")
	assert.Equal(t, color.RGBA{20, 20, 20, 255}, img.RGBAAt(b.Position.X, b.Position.Y), "background corner")
	assert.Equal(t, color.RGBA{}, img.RGBAAt(199, 39), "outside the badge")

	var lit bool
	for y := b.Position.Y; y < b.Position.Y+size.Y; y++ {
		for x := b.Position.X; x < b.Position.X+size.X; x++ {
			if img.RGBAAt(x, y).R == 255 {
				lit = true
			}
		}
	}
	assert.True(t, lit, "text drawn")
}

func TestBadgeClipsAndSkips(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	b := DefaultBadge()
	assert.NotPanics(t, func() { b.Render(img, "a long status line") })

	empty := image.NewRGBA(image.Rect(0, 0, 10, 10))
	b.Render(empty, "")
	b.Opacity = 0
	b.Render(empty, "REC")
	assert.Equal(t, make([]byte, len(empty.Pix)), empty.Pix)
}

func TestStatusSink(t *testing.T) {
	next := &captureSink{}
	calls := 0
	sink := NewStatusSink(next, func() recorder.Progress {
		calls++
		return recorder.Progress{Status: recorder.StatusRecording}
	}, DefaultBadge())

	frame := image.NewRGBA(image.Rect(0, 0, 100, 40))
	require.NoError(t, sink.WriteFrame(frame))
	require.Len(t, next.frames, 1)
	assert.Same(t, frame, next.frames[0])
	assert.Equal(t, 1, calls)
	assert.NotEqual(t, color.RGBA{}, frame.RGBAAt(8, 8))
}
