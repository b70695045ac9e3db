// Package config loads, validates and persists the FocusRecorder
// configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. FOCUSRECORDER_CAPTURE_FREQUENCY.
const EnvPrefix = "FOCUSRECORDER"

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configFile string) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	actualConfigPath := filepath.Join(homeDir, ".config", "focusrecorder", "config.yaml")
	if configFile != "" {
		actualConfigPath = configFile
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(actualConfigPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{
		configPath: actualConfigPath,
		v:          v,
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("frequency", v.GetString("capture.frequency")).
		Int("frame_rate", v.GetInt("capture.frame_rate")).
		Msg("Config loaded")

	return m, nil
}

// setDefaults registers the default configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	v.SetDefault("capture.frequency", "per_second")
	v.SetDefault("capture.frame_rate", 10)
	v.SetDefault("capture.delay_mode", "measured")
	v.SetDefault("capture.trigger_delay_ms", 0)
	v.SetDefault("capture.device", "full")
	v.SetDefault("capture.cursor", string(CursorComposite))
	v.SetDefault("capture.compression_level", 6)
	v.SetDefault("capture.cache_dir", defaultCacheDir())
	v.SetDefault("capture.scale", 1.0)
	v.SetDefault("capture.region", "")
	v.SetDefault("capture.convert_on_stop", true)

	v.SetDefault("input.mouse", true)
	v.SetDefault("input.keyboard", true)

	v.SetDefault("preview.enabled", true)
	v.SetDefault("preview.fps", 5)
	v.SetDefault("preview.quality", 75)
	v.SetDefault("preview.badge", true)
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "focusrecorder")
	}
	return filepath.Join(os.TempDir(), "focusrecorder")
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to decode config, using defaults")
		d := viper.New()
		setDefaults(d)
		_ = d.Unmarshal(&cfg)
	}
	return &cfg
}

// GetViper exposes the underlying viper instance for key-based access and
// flag binding.
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	cfg := m.Get()

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Update replaces the entire configuration
func (m *Manager) Update(cfg *Config) error {
	if _, err := cfg.CaptureConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	m.mu.Lock()
	setAll(m.v, "", values)
	m.mu.Unlock()
	return m.Save()
}

// setAll sets every leaf of values under its dotted key.
func setAll(v *viper.Viper, prefix string, values map[string]any) {
	for k, val := range values {
		key := prefix + k
		if nested, ok := val.(map[string]any); ok {
			setAll(v, key+".", nested)
			continue
		}
		v.Set(key, val)
	}
}

// Set parses raw according to the type of key and stores it in memory.
// Call Save to persist it.
func (m *Manager) Set(key, raw string) error {
	value, err := ParseValue(key, raw)
	if err != nil {
		return err
	}

	m.mu.Lock()
	prev := m.v.Get(key)
	m.v.Set(key, value)
	m.mu.Unlock()

	if _, err := m.Get().CaptureConfig(); err != nil {
		m.mu.Lock()
		m.v.Set(key, prev)
		m.mu.Unlock()
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

// ParseValue converts a command-line value to the type stored under key.
func ParseValue(key, raw string) (any, error) {
	switch key {
	case "server_port", "capture.frame_rate", "capture.trigger_delay_ms", "capture.compression_level",
		"preview.fps", "preview.quality":
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid number for %s: %s", key, raw)
		}
		return n, nil
	case "capture.scale":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number for %s: %s", key, raw)
		}
		return f, nil
	case "capture.convert_on_stop", "input.mouse", "input.keyboard", "preview.enabled",
		"preview.badge":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean for %s: %s (use: true or false)", key, raw)
		}
		return b, nil
	case "log_level":
		if logger.LogLevel(raw).Valid() {
			return raw, nil
		}
		return nil, fmt.Errorf("invalid log level: %s (use: %v)", raw, logger.Levels)
	case "log_file", "capture.frequency", "capture.delay_mode", "capture.device", "capture.cursor",
		"capture.cache_dir", "capture.region":
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown configuration key: %s", key)
	}
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	m.v.Set("server_port", port)
	m.mu.Unlock()
}

// GetPort gets the server port
func (m *Manager) GetPort() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.GetInt("server_port")
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	m.v.Set("log_level", level)
	m.mu.Unlock()
}

// GetLogLevel gets the log level
func (m *Manager) GetLogLevel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.GetString("log_level")
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
