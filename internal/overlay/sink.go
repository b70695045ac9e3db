package overlay

import (
	"fmt"
	"image"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/recorder"
)

// FrameSink receives preview frames.
type FrameSink interface {
	WriteFrame(frame *image.RGBA) error
}

// StatusSink stamps the recording status onto every frame before passing it
// on. Recorded frames are unaffected since the preview gets a copy.
type StatusSink struct {
	next   FrameSink
	status func() recorder.Progress
	badge  Badge
}

// NewStatusSink wraps next. status is called once per frame.
func NewStatusSink(next FrameSink, status func() recorder.Progress, badge Badge) *StatusSink {
	return &StatusSink{next: next, status: status, badge: badge}
}

// WriteFrame implements FrameSink.
func (s *StatusSink) WriteFrame(frame *image.RGBA) error {
	s.badge.Render(frame, StatusText(s.status()))
	return s.next.WriteFrame(frame)
}

// StatusText formats p as a short badge line, e.g. "REC 01:05 | 42 frames".
// The badge font only covers ASCII and Latin-1.
func StatusText(p recorder.Progress) string {
	var marker string
	switch p.Status {
	case recorder.StatusRecording:
		marker = "REC"
	case recorder.StatusPaused:
		marker = "PAUSED"
	default:
		marker = string(p.Status)
	}

	elapsed := p.Elapsed.Truncate(time.Second)
	text := fmt.Sprintf("%s %02d:%02d | %d frames", marker,
		int(elapsed.Minutes()), int(elapsed.Seconds())%60, p.FrameCount)
	if p.ImpreciseTiming {
		text += " | imprecise"
	}
	return text
}
