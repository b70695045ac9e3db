package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/FocusRecorder/internal/config"
	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time.
var Version = "0.1.0"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "focusrecorder",
		Short: "FocusRecorder - Screen recorder with input event capture",
		Long: `FocusRecorder captures the screen into a compressed frame stream, records
mouse and keyboard events next to it and converts finished recordings into
multi-track cached projects.

Features:
  • Capture per second, per minute, per hour, on demand or on interaction
  • Full-frame or change-tracking (DAMAGE/XFIXES) capture on X11
  • Cursor composited into frames or recorded as events
  • Mouse and keyboard events recorded without blocking the OS hooks
  • Live MJPEG preview and a REST/WebSocket control API
  • Persistent configuration`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogging()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/focusrecorder/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "also write JSON logs to this rotating file")
	rootCmd.PersistentFlags().Bool("pretty", true, "human-readable console logs")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// initLogging configures the global logger from flags, falling back to the
// config file for anything not given on the command line.
func initLogging() error {
	level := viper.GetString("log_level")
	file := viper.GetString("log_file")
	if level == "" || file == "" {
		if configMgr, err := config.NewManager(GetConfigFile()); err == nil {
			cfg := configMgr.Get()
			if level == "" {
				level = cfg.LogLevel
			}
			if file == "" {
				file = cfg.LogFile
			}
		}
	}
	return logger.Init(logger.Options{
		Level:  level,
		Pretty: viper.GetBool("pretty"),
		File:   file,
	})
}

// loadConfig opens the configuration manager, applying flag overrides.
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if port := viper.GetInt("server_port"); port > 0 {
		configMgr.SetPort(port)
	}
	if level := viper.GetString("log_level"); level != "" {
		configMgr.SetLogLevel(level)
	}
	return configMgr, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
