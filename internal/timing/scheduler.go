package timing

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
)

var (
	// ErrNotTriggered is returned by Trigger for automatic frequencies.
	ErrNotTriggered = errors.New("scheduler runs automatically and cannot be triggered")

	// ErrStopped is returned once the scheduler has been stopped.
	ErrStopped = errors.New("scheduler stopped")
)

// CaptureFunc performs one capture. expectedDelay is the target interval,
// zero for triggered captures.
type CaptureFunc func(expectedDelay time.Duration)

// Options configures a Scheduler.
type Options struct {
	Frequency    Frequency
	FrameRate    int
	DelayMode    DelayMode
	TriggerDelay time.Duration
}

// Scheduler calls a CaptureFunc at the configured frequency. Captures never
// overlap: the loop and triggered captures share one capture slot.
type Scheduler struct {
	opts     Options
	interval time.Duration
	capture  CaptureFunc

	mu        sync.Mutex
	cancelled atomic.Bool
	stop      chan struct{}
	started   bool
	stopOnce  sync.Once
	loops     sync.WaitGroup
	captureMu sync.Mutex

	imprecise bool
	restore   func()
}

// NewScheduler validates opts and probes the timer resolution.
func NewScheduler(opts Options, capture CaptureFunc) (*Scheduler, error) {
	if capture == nil {
		return nil, fmt.Errorf("capture function is required")
	}
	interval, err := Interval(opts.Frequency, opts.FrameRate)
	if err != nil {
		return nil, err
	}
	if opts.TriggerDelay < 0 {
		return nil, fmt.Errorf("trigger delay must not be negative, got %v", opts.TriggerDelay)
	}

	restore, precise := raiseTimerResolution()
	return &Scheduler{
		opts:      opts,
		interval:  interval,
		capture:   capture,
		stop:      make(chan struct{}),
		imprecise: !precise,
		restore:   restore,
	}, nil
}

// Interval returns the target interval, zero for triggered frequencies.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

func (s *Scheduler) Frequency() Frequency {
	return s.opts.Frequency
}

// Imprecise reports that the timer resolution could not be set to 1ms, so
// intervals may drift. It is informational only.
func (s *Scheduler) Imprecise() bool {
	return s.imprecise
}

// Start launches the capture loop for automatic frequencies. For Manual and
// OnInteraction it only arms Trigger.
func (s *Scheduler) Start() error {
	log := logger.WithComponent("scheduler")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled.Load() {
		return ErrStopped
	}
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	if s.imprecise {
		log.Warn().Msg("Timer resolution could not be set to 1ms, capture intervals may drift")
	}

	log.Info().
		Str("frequency", s.opts.Frequency.String()).
		Dur("interval", s.interval).
		Str("delay_mode", s.opts.DelayMode.String()).
		Msg("Scheduler started")

	if !s.opts.Frequency.IsAutomatic() {
		return nil
	}

	s.loops.Add(1)
	go s.loop()
	return nil
}

func (s *Scheduler) loop() {
	defer s.loops.Done()

	for !s.cancelled.Load() {
		start := time.Now()
		s.run(s.interval)

		wait := s.interval
		if s.opts.DelayMode == DelayMeasured {
			wait -= time.Since(start)
		}
		if !s.sleep(wait) {
			return
		}
	}
}

// sleep waits d or until Stop, reporting whether the full wait elapsed.
func (s *Scheduler) sleep(d time.Duration) bool {
	if d <= 0 {
		return !s.cancelled.Load()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !s.cancelled.Load()
	case <-s.stop:
		return false
	}
}

func (s *Scheduler) run(expected time.Duration) {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	if s.cancelled.Load() {
		return
	}
	s.capture(expected)
}

// Trigger requests one capture after the configured trigger delay. It does
// not block; the capture runs on its own goroutine and Stop waits for it.
func (s *Scheduler) Trigger() error {
	if s.opts.Frequency.IsAutomatic() {
		return ErrNotTriggered
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled.Load() {
		return ErrStopped
	}

	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		if s.sleep(s.opts.TriggerDelay) {
			s.run(0)
		}
	}()
	return nil
}

// Stop raises the cancellation flag and waits for the in-flight capture, if
// any, to return. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.cancelled.Store(true)
		close(s.stop)
		s.mu.Unlock()

		s.loops.Wait()
		s.restore()
		logger.WithComponent("scheduler").Debug().Msg("Scheduler stopped")
	})
}
