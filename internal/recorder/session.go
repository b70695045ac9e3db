// Package recorder is the control surface of a capture session. It wires a
// capture device, the timing scheduler, the event pipeline and the recording
// container together and exposes start, pause, resume, snap, stop and discard.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
	"github.com/bryanchriswhite/FocusRecorder/internal/compress"
	"github.com/bryanchriswhite/FocusRecorder/internal/config"
	"github.com/bryanchriswhite/FocusRecorder/internal/events"
	"github.com/bryanchriswhite/FocusRecorder/internal/input"
	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
	"github.com/bryanchriswhite/FocusRecorder/internal/project"
	"github.com/bryanchriswhite/FocusRecorder/internal/recording"
	"github.com/bryanchriswhite/FocusRecorder/internal/timing"
)

var (
	ErrNotRecording = errors.New("no recording in progress")
	ErrBusy         = errors.New("a recording is already in progress")
	ErrNotPaused    = errors.New("recording is not paused")
)

// Screen is the platform display a session captures from.
type Screen interface {
	Bounds() image.Rectangle
	Platform() capture.Platform
}

// FrameSink receives a copy of captured frames for live preview.
type FrameSink interface {
	WriteFrame(frame *image.RGBA) error
}

// Options configures a Session.
type Options struct {
	Config config.CaptureConfig
	Screen Screen

	AppName    string
	AppVersion string

	// Input, when set, feeds mouse and keyboard hooks into recordings
	// that record them.
	Input input.Source

	// OnError receives capture and event pipeline faults.
	OnError func(error)

	// Preview, when set, receives at most one frame per PreviewInterval.
	Preview         FrameSink
	PreviewInterval time.Duration
}

// StartOptions are the per-recording choices made when starting.
type StartOptions struct {
	// Automatic runs the configured automatic frequency. When false, or
	// when the configured frequency is not automatic, frames are captured
	// on Snap (or on interaction, if so configured).
	Automatic bool

	// Delay postpones the first capture.
	Delay time.Duration

	// Region overrides the configured capture region.
	Region image.Rectangle

	// Scale overrides the configured output scale.
	Scale float64
}

// Result is the completed-project handoff of Stop.
type Result struct {
	Recording *recording.Project
	Project   *project.CachedProject
}

// Session runs one recording at a time.
type Session struct {
	opts Options

	// mu serializes state transitions; readers use the atomics.
	mu      sync.Mutex
	state   atomic.Value
	cur     atomic.Pointer[run]
	final   atomic.Pointer[Progress]
	lastErr atomic.Pointer[string]

	subMu       sync.Mutex
	subscribers []chan Progress
}

// run is the state of one recording, from Start to Stop or Discard.
type run struct {
	session   *Session
	cfg       config.CaptureConfig
	frequency timing.Frequency

	device   capture.Device
	project  *recording.Project
	pipeline *events.Pipeline
	clock    *timing.Clock
	sched    atomic.Pointer[timing.Scheduler]
	watcher  *capture.CursorWatcher
	hook     *input.Hook

	frame       *capture.Frame
	lastCount   uint64
	lastPreview time.Time

	cancelStart chan struct{}
	cancelOnce  sync.Once
}

// NewSession validates opts. No platform resource is touched until Start.
func NewSession(opts Options) (*Session, error) {
	if opts.Screen == nil {
		return nil, fmt.Errorf("a screen is required")
	}
	if _, err := timing.Interval(opts.Config.Frequency, opts.Config.FrameRate); err != nil {
		return nil, err
	}
	if opts.Config.CacheDir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	s := &Session{opts: opts}
	s.setStatus(StatusIdle)
	s.final.Store(&Progress{Status: StatusIdle})
	return s, nil
}

// SetConfig replaces the capture settings used by the next Start. A running
// recording keeps the settings it started with.
func (s *Session) SetConfig(cfg config.CaptureConfig) error {
	if _, err := timing.Interval(cfg.Frequency, cfg.FrameRate); err != nil {
		return err
	}
	if cfg.CacheDir == "" {
		return fmt.Errorf("cache directory is required")
	}
	s.mu.Lock()
	s.opts.Config = cfg
	s.mu.Unlock()
	return nil
}

// Start creates a recording and begins capturing after so.Delay.
func (s *Session) Start(so StartOptions) error {
	log := logger.WithComponent("recorder")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur.Load() != nil {
		return ErrBusy
	}

	r, err := s.prepare(so)
	if err != nil {
		return err
	}
	s.cur.Store(r)
	s.lastErr.Store(nil)

	log.Info().
		Str("path", r.project.Root).
		Str("frequency", r.frequency.String()).
		Int("frame_rate", r.cfg.FrameRate).
		Str("region", r.device.Region().String()).
		Int("width", int(r.project.Width)).
		Int("height", int(r.project.Height)).
		Dur("delay", so.Delay).
		Msg("Recording started")

	if so.Delay <= 0 {
		if err := s.beginLocked(r); err != nil {
			s.abortLocked(r)
			return err
		}
		return nil
	}

	s.setStatus(StatusPending)
	go func() {
		t := time.NewTimer(so.Delay)
		defer t.Stop()
		select {
		case <-r.cancelStart:
			return
		case <-t.C:
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.cur.Load() != r || s.status() != StatusPending {
			return
		}
		if err := s.beginLocked(r); err != nil {
			s.reportError(err)
			s.abortLocked(r)
		}
	}()
	s.publish()
	return nil
}

// prepare builds every component of a recording without starting capture.
func (s *Session) prepare(so StartOptions) (*run, error) {
	cfg := s.opts.Config

	bounds := s.opts.Screen.Bounds()
	region := so.Region
	if region.Empty() {
		region = cfg.Region
	}
	if region.Empty() {
		region = bounds
	}
	region = region.Intersect(bounds)
	if region.Empty() {
		return nil, fmt.Errorf("capture region is outside the screen %v", bounds)
	}

	scale := so.Scale
	if scale <= 0 {
		scale = cfg.Scale
	}
	if scale <= 0 {
		scale = 1
	}
	width := max(1, int(math.Round(float64(region.Dx())*scale)))
	height := max(1, int(math.Round(float64(region.Dy())*scale)))

	frequency := cfg.Frequency
	if !so.Automatic && frequency.IsAutomatic() {
		frequency = timing.Manual
	}

	compression, err := compress.NewDeflate(cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}

	r := &run{
		session:     s,
		cfg:         cfg,
		frequency:   frequency,
		cancelStart: make(chan struct{}),
	}

	platform := s.opts.Screen.Platform()
	r.device, err = capture.New(capture.Options{
		Kind:           cfg.Device,
		Region:         region,
		AcquireTimeout: capture.DefaultAcquireTimeout,
		OnError:        s.reportError,
	}, platform)
	if err != nil {
		return nil, err
	}
	if cfg.Cursor == config.CursorEvents && platform.Cursor != nil {
		r.watcher = capture.NewCursorWatcher(platform.Cursor)
	}

	r.project, err = recording.Create(recording.Options{
		CacheDir:    cfg.CacheDir,
		Source:      recording.SourceScreen,
		Width:       width,
		Height:      height,
		AppName:     s.opts.AppName,
		AppVersion:  s.opts.AppVersion,
		Compression: compression,
	})
	if err != nil {
		r.device.Close()
		return nil, err
	}

	r.clock = timing.NewClock()
	r.pipeline = events.NewPipeline(r.project, r.clock, s.reportError)
	r.frame = capture.NewFrame(region.Dx(), region.Dy())
	if s.opts.Input != nil && (cfg.RecordMouse || cfg.RecordKeyboard) {
		r.hook = input.NewHook(s, input.Options{
			Mouse:    cfg.RecordMouse,
			Keyboard: cfg.RecordKeyboard,
			Origin:   region.Min,
			Scale:    float64(width) / float64(region.Dx()),
			Source:   s.opts.Input,
		})
	}

	sched, err := r.newScheduler()
	if err != nil {
		r.pipeline.Close()
		r.device.Close()
		r.project.Discard()
		return nil, err
	}
	r.sched.Store(sched)
	return r, nil
}

func (r *run) newScheduler() (*timing.Scheduler, error) {
	return timing.NewScheduler(timing.Options{
		Frequency:    r.frequency,
		FrameRate:    r.cfg.FrameRate,
		DelayMode:    r.cfg.DelayMode,
		TriggerDelay: r.cfg.TriggerDelay,
	}, r.capture)
}

// beginLocked starts the clock, opens the event gate and starts the
// scheduler. s.mu must be held.
func (s *Session) beginLocked(r *run) error {
	sched := r.sched.Load()
	if sched.Imprecise() {
		logger.WithComponent("recorder").Warn().
			Msg("Timer resolution could not be raised to 1ms, capture intervals may drift")
	}

	r.clock.Start()
	r.pipeline.SetAccepting(true)
	if err := sched.Start(); err != nil {
		r.pipeline.SetAccepting(false)
		r.clock.Pause()
		return err
	}
	if r.hook != nil {
		r.hook.Start(context.Background())
	}
	s.setStatus(StatusRecording)
	s.publish()
	return nil
}

// abortLocked tears down a run that never produced a usable recording.
func (s *Session) abortLocked(r *run) {
	r.shutdown()
	r.project.Discard()
	s.cur.Store(nil)
	s.setStatus(StatusIdle)
	s.final.Store(&Progress{Status: StatusIdle})
	s.publish()
}

// capture is the scheduler's CaptureFunc.
func (r *run) capture(expectedDelay time.Duration) {
	s := r.session
	timestamp := r.clock.Elapsed()

	var n uint64
	if r.cfg.Cursor == config.CursorComposite {
		n = r.device.CaptureWithCursor(r.frame)
	} else {
		n = r.device.Capture(r.frame)
	}
	// Cursor samples take the time after the grab, not the frame's.
	r.pollCursor(r.clock.Elapsed())

	if n == r.lastCount {
		return
	}
	r.lastCount = n

	if err := r.project.AppendFrame(r.frame, timestamp, expectedDelay); err != nil {
		s.reportError(fmt.Errorf("failed to store frame: %w", err))
		return
	}

	if s.opts.Preview != nil && time.Since(r.lastPreview) >= s.opts.PreviewInterval {
		r.lastPreview = time.Now()
		if err := s.opts.Preview.WriteFrame(r.frame.ToRGBA()); err != nil {
			logger.WithComponent("recorder").Debug().Err(err).Msg("Preview frame dropped")
		}
	}
	s.publish()
}

// pollCursor records cursor shape changes when the cursor is kept out of
// the frames. Positions are sampled too when no mouse hook feeds them.
func (r *run) pollCursor(timestamp time.Duration) {
	if r.watcher == nil {
		return
	}
	p, shape, moved, err := r.watcher.Poll()
	if err != nil {
		r.session.reportError(fmt.Errorf("failed to read cursor: %w", err))
		return
	}
	origin := r.device.Region().Min
	if shape != nil {
		r.pipeline.Push(events.CursorDataEvent{
			Timestamp: timestamp,
			Type:      shape.Type,
			Bounds:    shape.Bounds(p.Position).Sub(origin),
			Hotspot:   shape.Hotspot,
			Data:      shape.Pixels,
		})
	}
	if moved && !r.cfg.RecordMouse {
		r.pipeline.Push(events.CursorEvent{Timestamp: timestamp, Position: p.Position.Sub(origin)})
	}
}

// shutdown stops capture and drains the event pipeline, in that order, and
// releases the device. It leaves the recording streams open.
func (r *run) shutdown() error {
	r.cancelOnce.Do(func() { close(r.cancelStart) })
	if r.hook != nil {
		r.hook.Stop()
	}
	r.sched.Load().Stop()
	r.clock.Pause()

	err := r.pipeline.Close()
	if cerr := r.device.Close(); cerr != nil {
		logger.WithComponent("recorder").Warn().Err(cerr).Msg("Failed to close capture device")
	}
	return err
}

// Pause stops capturing and rejects input events until Resume.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.cur.Load()
	if r == nil || s.status() != StatusRecording {
		return ErrNotRecording
	}
	r.sched.Load().Stop()
	r.clock.Pause()
	r.pipeline.SetAccepting(false)
	s.setStatus(StatusPaused)

	logger.WithComponent("recorder").Info().
		Dur("elapsed", r.clock.Elapsed()).
		Msg("Recording paused")
	s.publish()
	return nil
}

// Resume continues a paused recording.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.cur.Load()
	if r == nil || s.status() != StatusPaused {
		return ErrNotPaused
	}
	sched, err := r.newScheduler()
	if err != nil {
		return err
	}
	r.sched.Store(sched)
	if err := s.beginLocked(r); err != nil {
		return err
	}

	logger.WithComponent("recorder").Info().Msg("Recording resumed")
	return nil
}

// Snap captures one frame of a manual or interaction recording.
func (s *Session) Snap() error {
	s.mu.Lock()
	r := s.cur.Load()
	recording := r != nil && s.status() == StatusRecording
	s.mu.Unlock()

	if !recording {
		return ErrNotRecording
	}
	return r.sched.Load().Trigger()
}

// Elapsed returns the capture clock of the current recording.
func (s *Session) Elapsed() time.Duration {
	if r := s.cur.Load(); r != nil {
		return r.clock.Elapsed()
	}
	return 0
}

// Push hands an input event to the event pipeline. It never blocks on I/O.
// In interaction mode, clicks and key presses also trigger a capture.
func (s *Session) Push(e events.Event) {
	r := s.cur.Load()
	if r == nil {
		return
	}
	accepted, err := r.pipeline.Push(e)
	if err != nil || !accepted {
		return
	}
	if r.frequency != timing.OnInteraction || !isInteraction(e) {
		return
	}
	if err := r.sched.Load().Trigger(); err != nil && !errors.Is(err, timing.ErrStopped) {
		logger.WithComponent("recorder").Debug().Err(err).Msg("Interaction capture not triggered")
	}
}

func isInteraction(e events.Event) bool {
	switch ev := e.(type) {
	case events.CursorEvent:
		return ev.Pressed()
	case events.KeyEvent:
		return true
	default:
		return false
	}
}

// Stop ends the recording: capture stops, queued events are drained, the
// streams are finalized and, if configured, the recording is converted to a
// cached project.
func (s *Session) Stop(ctx context.Context) (*Result, error) {
	log := logger.WithComponent("recorder")

	r, err := s.beginStop()
	if err != nil {
		return nil, err
	}

	drainErr := r.shutdown()
	if drainErr != nil {
		log.Error().Err(drainErr).
			Uint64("dropped", r.pipeline.Dropped()).
			Msg("Event pipeline failed, some input events were lost")
	}
	final := s.progressOf(r)
	final.Status = StatusStopped
	if err := r.project.Finalize(); err != nil {
		s.endStop(final)
		return nil, fmt.Errorf("failed to finalize recording: %w", err)
	}

	result := &Result{Recording: r.project}
	if r.cfg.ConvertOnStop {
		p, err := project.Convert(ctx, r.project, project.Options{CacheDir: r.cfg.CacheDir})
		if err != nil {
			s.endStop(final)
			return result, fmt.Errorf("failed to convert recording: %w", err)
		}
		result.Project = p
		final.Path = p.Root
	}

	s.endStop(final)
	log.Info().
		Str("path", final.Path).
		Uint64("frames", final.FrameCount).
		Uint64("events", final.EventCount).
		Bool("converted", result.Project != nil).
		Msg("Recording stopped")
	return result, nil
}

// Discard abandons the recording and deletes every file it wrote.
func (s *Session) Discard() error {
	r, err := s.beginStop()
	if err != nil {
		return err
	}
	if err := r.shutdown(); err != nil {
		logger.WithComponent("recorder").Debug().Err(err).Msg("Event pipeline failed during discard")
	}
	r.project.Discard()

	s.mu.Lock()
	s.cur.Store(nil)
	s.setStatus(StatusIdle)
	s.final.Store(&Progress{Status: StatusIdle})
	s.publish()
	s.mu.Unlock()

	logger.WithComponent("recorder").Info().Msg("Recording discarded")
	return nil
}

func (s *Session) beginStop() (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.cur.Load()
	if r == nil || s.status() == StatusStopping {
		return nil, ErrNotRecording
	}
	s.setStatus(StatusStopping)
	r.cancelOnce.Do(func() { close(r.cancelStart) })
	s.publish()
	return r, nil
}

func (s *Session) endStop(final Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.final.Store(&final)
	s.cur.Store(nil)
	s.setStatus(StatusStopped)
	s.publish()
}

// reportError is the ErrorHandler of every component of a run.
func (s *Session) reportError(err error) {
	logger.WithComponent("recorder").Error().Err(err).Msg("Capture error")
	msg := err.Error()
	s.lastErr.Store(&msg)
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
	s.publish()
}
