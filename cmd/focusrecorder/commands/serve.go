package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/api"
	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
	"github.com/bryanchriswhite/FocusRecorder/internal/output"
	"github.com/bryanchriswhite/FocusRecorder/internal/recorder"
	"github.com/bryanchriswhite/FocusRecorder/internal/window"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FocusRecorder server",
	Long: `Start the FocusRecorder HTTP server.

The server exposes a REST API to start, pause, resume, snap, stop and discard
recordings, a WebSocket feed of recording progress and a live MJPEG preview
of the captured frames.`,
	Example: `  # Start server on default port (8080)
  focusrecorder serve

  # Start server on custom port
  focusrecorder serve --port 9090

  # Start with specific config file
  focusrecorder serve --config /path/to/config.yaml

  # Start with debug logging
  focusrecorder serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	cc, err := cfg.CaptureConfig()
	if err != nil {
		return fmt.Errorf("invalid capture config: %w", err)
	}
	log.Info().
		Str("path", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	var preview *output.MJPEGOutput
	if cfg.Preview.Enabled {
		preview = output.NewMJPEGOutput(output.Config{
			FPS:     cfg.Preview.FPS,
			Quality: cfg.Preview.Quality,
		})
		if err := preview.Start(); err != nil {
			return fmt.Errorf("failed to start preview: %w", err)
		}
		defer preview.Stop()
	}

	log.Info().Msg("Connecting to X11 server...")
	session, screen, err := openSession(cfg, cc, preview)
	if err != nil {
		return err
	}
	defer screen.Close()

	port := configMgr.GetPort()
	server := api.NewServer(session, configMgr, preview)
	api.Version = Version

	if windows, err := window.OpenX11(); err != nil {
		log.Warn().Err(err).Msg("Window lookup unavailable")
	} else {
		defer windows.Close()
		server.SetWindowFinder(windows)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(port)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	log.Info().
		Str("web_ui", fmt.Sprintf("http://localhost:%d", port)).
		Str("api", fmt.Sprintf("http://localhost:%d/api", port)).
		Msg("FocusRecorder is running, press Ctrl+C to stop")

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-sigChan:
	}

	log.Info().Msg("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// A recording in progress is kept, not discarded.
	if res, err := session.Stop(ctx); err == nil {
		log.Info().Str("path", resultPath(res)).Msg("Recording saved")
	} else if !errors.Is(err, recorder.ErrNotRecording) {
		log.Error().Err(err).Msg("Failed to save recording")
	}
	return server.Shutdown(ctx)
}

func resultPath(res *recorder.Result) string {
	if res.Project != nil {
		return res.Project.Root
	}
	return res.Recording.Root
}
