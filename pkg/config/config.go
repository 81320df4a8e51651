// Package config loads ussdpilot settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppName names the per-user config directory.
const AppName = "ussdpilot"

// LogConfig controls the logging sinks.
type LogConfig struct {
	Level string `yaml:"level"`
	// File enables the rotating file sink under the config directory.
	File bool `yaml:"file"`
}

// Config is the full settings tree.
type Config struct {
	Device  string `yaml:"device"`
	AdbPath string `yaml:"adbPath"`

	SettleDelay      time.Duration `yaml:"settleDelay"`
	ReplyDelay       time.Duration `yaml:"replyDelay"`
	EventSettleDelay time.Duration `yaml:"eventSettleDelay"`
	PollInterval     time.Duration `yaml:"pollInterval"`
	MaxRetries       int           `yaml:"maxRetries"`

	HideDialogs    bool     `yaml:"hideDialogs"`
	InputClasses   []string `yaml:"inputClasses"`
	ConfirmWords   []string `yaml:"confirmWords"`
	CancelWords    []string `yaml:"cancelWords"`
	DialogPackages []string `yaml:"dialogPackages"`

	Log         LogConfig `yaml:"log"`
	MetricsAddr string    `yaml:"metricsAddr"`

	path string
}

// Default returns the stock settings.
func Default() *Config {
	return &Config{
		SettleDelay:      800 * time.Millisecond,
		ReplyDelay:       3 * time.Second,
		EventSettleDelay: time.Second,
		PollInterval:     700 * time.Millisecond,
		MaxRetries:       3,
		DialogPackages:   []string{"com.android.phone"},
		Log:              LogConfig{Level: "info"},
	}
}

// Dir returns the per-user config directory.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, AppName)
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads path over the defaults. A missing file yields the defaults.
// An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string { return c.path }

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.SettleDelay < 0 || c.ReplyDelay < 0 || c.EventSettleDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("pollInterval must be positive"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("maxRetries must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// Save writes the config as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("USSDPILOT_DEVICE"); v != "" {
		cfg.Device = v
	} else if v := os.Getenv("ANDROID_SERIAL"); v != "" && cfg.Device == "" {
		cfg.Device = v
	}
	if v := os.Getenv("USSDPILOT_ADB"); v != "" {
		cfg.AdbPath = v
	}
	if v := os.Getenv("USSDPILOT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("USSDPILOT_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v, ok := envBool("USSDPILOT_HIDE_DIALOGS"); ok {
		cfg.HideDialogs = v
	}
}

func envBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, false
	}
	return v, true
}
