package recording

import (
	"errors"
	"os"

	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
)

// Finalize flushes and closes the record streams. Callers must stop the
// capture loop and drain the event pipeline first. Finalizing twice is a
// no-op.
func (p *Project) Finalize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.closeStreams()
	if err != nil {
		return err
	}

	logger.WithComponent("recording").Info().
		Str("path", p.Root).
		Int("frames", len(p.Frames)).
		Int("mouse_events", len(p.MouseEvents)).
		Int("keyboard_events", len(p.KeyboardEvents)).
		Dur("duration", p.Duration()).
		Msg("Recording finalized")
	return nil
}

func (p *Project) closeStreams() error {
	var errs []error
	for _, s := range []*stream{p.frames, p.mouse, p.keyboard} {
		if s == nil {
			continue
		}
		if err := s.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard deletes every file of the recording and clears the metadata
// lists. Cleanup failures are logged, never returned, and discarding twice
// is a logged no-op.
func (p *Project) Discard() {
	log := logger.WithComponent("recording")

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.discarded {
		log.Debug().Str("path", p.Root).Msg("Recording already discarded")
		return
	}
	p.discarded = true
	p.closed = true

	if err := p.closeStreams(); err != nil {
		log.Warn().Err(err).Str("path", p.Root).Msg("Failed to close recording streams")
	}

	for _, path := range []string{p.PropertiesPath, p.FramesPath, p.MouseEventsPath, p.KeyboardEventsPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to delete recording file")
		}
	}
	if p.Root != "" {
		if err := os.RemoveAll(p.Root); err != nil {
			log.Warn().Err(err).Str("path", p.Root).Msg("Failed to delete recording directory")
		}
	}

	p.Frames = p.Frames[:0]
	p.MouseEvents = p.MouseEvents[:0]
	p.KeyboardEvents = p.KeyboardEvents[:0]
	p.frameCount.Store(0)

	log.Info().Str("path", p.Root).Msg("Recording discarded")
}

// Discarded reports whether Discard has run.
func (p *Project) Discarded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discarded
}
