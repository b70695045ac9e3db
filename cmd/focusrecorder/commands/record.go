package commands

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
	"github.com/bryanchriswhite/FocusRecorder/internal/config"
	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
	"github.com/bryanchriswhite/FocusRecorder/internal/recorder"
	"github.com/bryanchriswhite/FocusRecorder/internal/timing"
	"github.com/bryanchriswhite/FocusRecorder/internal/window"
	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the screen from the command line",
	Long: `Record the screen until the duration elapses or Ctrl+C is pressed.

Capture settings come from the configuration file; flags override them for
this recording only. In manual mode every Enter captures one frame and "q"
followed by Enter stops the recording.`,
	Example: `  # Record 10 frames per second for 30 seconds
  focusrecorder record --frame-rate 10 --duration 30s

  # Record a region at half size
  focusrecorder record --region 0,0,1920,1080 --scale 0.5

  # Record the focused window
  focusrecorder record --window focused

  # Record the first window whose class or title matches
  focusrecorder record --window firefox

  # Capture a frame on every Enter
  focusrecorder record --manual

  # Keep the raw recording instead of converting it
  focusrecorder record --no-convert`,
	RunE: runRecord,
}

var (
	recordFrequency string
	recordFrameRate int
	recordDuration  time.Duration
	recordDelay     time.Duration
	recordRegion    string
	recordScale     float64
	recordManual    bool
	recordNoConvert bool
	recordDevice    string
	recordCursor    string
	recordWindow    string
)

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().StringVar(&recordFrequency, "frequency", "", "capture frequency (per_second, per_minute, per_hour, manual, interaction)")
	recordCmd.Flags().IntVar(&recordFrameRate, "frame-rate", 0, "frames per frequency unit")
	recordCmd.Flags().DurationVarP(&recordDuration, "duration", "d", 0, "stop after this long (default: until Ctrl+C)")
	recordCmd.Flags().DurationVar(&recordDelay, "delay", 0, "wait before the first capture")
	recordCmd.Flags().StringVar(&recordRegion, "region", "", "capture region as x,y,width,height")
	recordCmd.Flags().Float64Var(&recordScale, "scale", 0, "output scale (0.1 to 4)")
	recordCmd.Flags().BoolVarP(&recordManual, "manual", "m", false, "capture a frame on every Enter")
	recordCmd.Flags().BoolVar(&recordNoConvert, "no-convert", false, "keep the raw recording")
	recordCmd.Flags().StringVar(&recordDevice, "device", "", "capture device (full or duplication)")
	recordCmd.Flags().StringVar(&recordCursor, "cursor", "", "cursor mode (composite, events or none)")
	recordCmd.Flags().StringVarP(&recordWindow, "window", "w", "", `record one window: a class or title pattern, or "focused"`)
}

// applyRecordFlags overrides cc with the record command's flags.
func applyRecordFlags(cc config.CaptureConfig) (config.CaptureConfig, recorder.StartOptions, error) {
	so := recorder.StartOptions{
		Automatic: !recordManual,
		Delay:     recordDelay,
		Scale:     recordScale,
	}

	if recordFrequency != "" {
		f, err := timing.ParseFrequency(recordFrequency)
		if err != nil {
			return cc, so, err
		}
		cc.Frequency = f
	}
	if recordFrameRate != 0 {
		cc.FrameRate = recordFrameRate
	}
	if _, err := timing.Interval(cc.Frequency, cc.FrameRate); err != nil {
		return cc, so, err
	}
	if recordRegion != "" {
		r, err := config.ParseRegion(recordRegion)
		if err != nil {
			return cc, so, err
		}
		so.Region = r
	}
	if recordScale != 0 && (recordScale < 0.1 || recordScale > 4) {
		return cc, so, fmt.Errorf("scale must be between 0.1 and 4, got %g", recordScale)
	}
	if recordDevice != "" {
		k, err := capture.ParseKind(recordDevice)
		if err != nil {
			return cc, so, err
		}
		cc.Device = k
	}
	if recordCursor != "" {
		m, err := config.ParseCursorMode(recordCursor)
		if err != nil {
			return cc, so, err
		}
		cc.Cursor = m
	}
	if recordDelay < 0 {
		return cc, so, fmt.Errorf("delay must not be negative")
	}
	if recordNoConvert {
		cc.ConvertOnStop = false
	}
	return cc, so, nil
}

func runRecord(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("record")

	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	cc, err := cfg.CaptureConfig()
	if err != nil {
		return fmt.Errorf("invalid capture config: %w", err)
	}
	cc, so, err := applyRecordFlags(cc)
	if err != nil {
		return err
	}

	session, screen, err := openSession(cfg, cc, nil)
	if err != nil {
		return err
	}
	defer screen.Close()

	if recordWindow != "" {
		if recordRegion != "" {
			return fmt.Errorf("--window and --region are mutually exclusive")
		}
		if so.Region, err = windowRegion(recordWindow, screen.Bounds()); err != nil {
			return err
		}
	}

	if err := session.Start(so); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var timeout <-chan time.Time
	if recordDuration > 0 {
		timer := time.NewTimer(recordDelay + recordDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	quit := make(chan struct{})
	if recordManual || cc.Frequency == timing.Manual {
		fmt.Println("Press Enter to capture a frame, q + Enter to stop.")
		go readSnaps(session, quit)
	} else {
		fmt.Println("Recording, press Ctrl+C to stop.")
	}

	select {
	case <-sigChan:
	case <-timeout:
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	res, err := session.Stop(ctx)
	if err != nil && res == nil {
		return err
	}
	p := session.Progress()
	fmt.Printf("✅ %d frames, %d events in %s\n", p.FrameCount, p.EventCount, p.Elapsed.Round(time.Millisecond))
	fmt.Println(resultPath(res))
	if p.DroppedEvents > 0 {
		log.Warn().Uint64("dropped", p.DroppedEvents).Msg("Some input events were not recorded")
	}
	return err
}

// windowRegion resolves pattern to a window on the display and returns its
// on-screen rectangle.
func windowRegion(pattern string, screen image.Rectangle) (image.Rectangle, error) {
	finder, err := window.OpenX11()
	if err != nil {
		return image.Rectangle{}, err
	}
	defer finder.Close()

	w, err := window.Resolve(finder, pattern)
	if err != nil {
		return image.Rectangle{}, err
	}
	logger.WithComponent("record").Info().
		Str("title", w.Title).
		Str("class", w.Class).
		Str("bounds", w.Bounds.String()).
		Msg("Recording window")
	return window.Region(w, screen)
}

// readSnaps triggers a capture for every line on stdin until "q".
func readSnaps(session *recorder.Session, quit chan<- struct{}) {
	defer close(quit)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "q" {
			return
		}
		if err := session.Snap(); err != nil {
			fmt.Fprintf(os.Stderr, "snap: %v\n", err)
			continue
		}
		fmt.Println("captured")
	}
}
