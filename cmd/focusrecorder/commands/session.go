package commands

import (
	"fmt"

	"github.com/bryanchriswhite/FocusRecorder/internal/capture/x11"
	"github.com/bryanchriswhite/FocusRecorder/internal/config"
	"github.com/bryanchriswhite/FocusRecorder/internal/input"
	"github.com/bryanchriswhite/FocusRecorder/internal/output"
	"github.com/bryanchriswhite/FocusRecorder/internal/overlay"
	"github.com/bryanchriswhite/FocusRecorder/internal/recorder"
)

// openSession connects to the display and builds a recorder session from
// cfg. preview may be nil. The caller closes the returned screen.
func openSession(cfg *config.Config, cc config.CaptureConfig, preview *output.MJPEGOutput) (*recorder.Session, *x11.Screen, error) {
	screen, err := x11.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open display: %w", err)
	}

	opts := recorder.Options{
		Config:     cc,
		Screen:     screen,
		AppName:    "FocusRecorder",
		AppVersion: Version,
	}
	if cc.RecordMouse || cc.RecordKeyboard {
		opts.Input = input.OSSource()
	}
	var session *recorder.Session
	if preview != nil {
		opts.Preview = preview
		opts.PreviewInterval = output.Config{FPS: cfg.Preview.FPS}.Interval()
		if cfg.Preview.Badge {
			opts.Preview = overlay.NewStatusSink(preview, func() recorder.Progress {
				return session.Progress()
			}, overlay.DefaultBadge())
		}
	}

	session, err = recorder.NewSession(opts)
	if err != nil {
		screen.Close()
		return nil, nil, err
	}
	return session, screen, nil
}
