package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/MEKXH/autorecord/internal/policy"
	"github.com/MEKXH/autorecord/internal/recorder"
)

// Config root configuration
type Config struct {
	Recorder     RecorderConfig      `mapstructure:"recorder" json:"recorder"`
	Applications []ApplicationConfig `mapstructure:"applications" json:"applications"`
	Gateway      GatewayConfig       `mapstructure:"gateway" json:"gateway"`
	Log          LogConfig           `mapstructure:"log" json:"log"`
	Dispatch     DispatchConfig      `mapstructure:"dispatch" json:"dispatch"`
	State        StateConfig         `mapstructure:"state" json:"state"`
}

// RecorderConfig holds the recording subsystem layer: properties shared by
// every application plus the recorder defaults.
type RecorderConfig struct {
	Properties policy.Properties `mapstructure:"properties" json:"properties"`
	Params     recorder.Params   `mapstructure:"params" json:"params"`
}

// ApplicationConfig is one application instance. Its properties override the
// recorder layer key by key.
type ApplicationConfig struct {
	Name       string            `mapstructure:"name" json:"name"`
	StreamType string            `mapstructure:"stream_type" json:"stream_type,omitempty"`
	Properties policy.Properties `mapstructure:"properties" json:"properties"`
}

// GatewayConfig server settings
type GatewayConfig struct {
	Host  string `mapstructure:"host" json:"host"`
	Port  int    `mapstructure:"port" json:"port"`
	Token string `mapstructure:"token" json:"token"`
}

// LogConfig application logging settings
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
	File   string `mapstructure:"file" json:"file"`
}

// DispatchConfig controls stream event fan-out.
type DispatchConfig struct {
	Workers   int `mapstructure:"workers" json:"workers"`
	QueueSize int `mapstructure:"queue_size" json:"queue_size"`
}

// StateConfig locates the audit log and the persisted recorder registry.
type StateConfig struct {
	Dir             string `mapstructure:"dir" json:"dir"`
	Audit           bool   `mapstructure:"audit" json:"audit"`
	FlushIntervalMS int    `mapstructure:"flush_interval_ms" json:"flush_interval_ms"`
}

// DefaultConfig returns config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Recorder: RecorderConfig{
			Params: recorder.DefaultParams(),
		},
		Applications: []ApplicationConfig{
			{Name: "live", StreamType: "live"},
		},
		Gateway: GatewayConfig{
			Host:  "127.0.0.1",
			Port:  18791,
			Token: "",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		Dispatch: DispatchConfig{
			Workers:   4,
			QueueSize: 64,
		},
		State: StateConfig{
			Dir:             filepath.Join(ConfigDir(), "state"),
			Audit:           true,
			FlushIntervalMS: 1000,
		},
	}
}

// ConfigDir returns the autorecord config directory
func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory, using current directory as fallback", "error", err)
		homeDir = "."
	}
	return filepath.Join(homeDir, ".autorecord")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load loads config from file or returns defaults
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom loads config from configPath, creating it with defaults when missing.
func LoadFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveTo(configPath, cfg); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("AUTORECORD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	// Applications are replaced wholesale by the file, never merged with the
	// default entry.
	if v.IsSet("applications") {
		cfg.Applications = nil
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save saves config to the default path
func Save(cfg *Config) error {
	return SaveTo(ConfigPath(), cfg)
}

// SaveTo saves config to configPath
func SaveTo(configPath string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges.
// Recording policy values are deliberately not validated here: a bad
// record_type disables recording for that application instead of failing
// startup.
func (c *Config) Validate() error {
	var result *multierror.Error

	seen := make(map[string]bool, len(c.Applications))
	for i := range c.Applications {
		app := &c.Applications[i]
		app.Name = strings.TrimSpace(app.Name)
		if app.Name == "" {
			result = multierror.Append(result, fmt.Errorf("applications[%d].name must be non-empty", i))
			continue
		}
		if seen[app.Name] {
			result = multierror.Append(result, fmt.Errorf("applications[%d].name %q is duplicated", i, app.Name))
		}
		seen[app.Name] = true
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port))
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "info"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[level] {
			result = multierror.Append(result, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
		} else {
			c.Log.Level = level
		}
	}

	switch format := strings.ToLower(strings.TrimSpace(c.Log.Format)); format {
	case "":
		c.Log.Format = "text"
	case "text", "json":
		c.Log.Format = format
	default:
		result = multierror.Append(result, fmt.Errorf("log.format must be text or json; got %q", c.Log.Format))
	}

	if c.Dispatch.Workers < 0 {
		result = multierror.Append(result, fmt.Errorf("dispatch.workers must not be negative, got %d", c.Dispatch.Workers))
	}
	if c.Dispatch.Workers == 0 {
		c.Dispatch.Workers = 4
	}
	if c.Dispatch.QueueSize < 0 {
		result = multierror.Append(result, fmt.Errorf("dispatch.queue_size must not be negative, got %d", c.Dispatch.QueueSize))
	}
	if c.Dispatch.QueueSize == 0 {
		c.Dispatch.QueueSize = 64
	}

	p := &c.Recorder.Params
	if p.SegmentDurationMS < 0 || p.SegmentSizeBytes < 0 {
		result = multierror.Append(result, fmt.Errorf("recorder.params segment duration and size must not be negative"))
	}
	switch strings.ToLower(strings.TrimSpace(p.SegmentationType)) {
	case "", recorder.SegmentNone:
	case recorder.SegmentDuration:
		if p.SegmentDurationMS == 0 {
			result = multierror.Append(result, fmt.Errorf("recorder.params.segment_duration_ms is required for duration segmentation"))
		}
	case recorder.SegmentSize:
		if p.SegmentSizeBytes == 0 {
			result = multierror.Append(result, fmt.Errorf("recorder.params.segment_size_bytes is required for size segmentation"))
		}
	case recorder.SegmentSchedule:
		if strings.TrimSpace(p.SegmentSchedule) == "" {
			result = multierror.Append(result, fmt.Errorf("recorder.params.segment_schedule is required for schedule segmentation"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("recorder.params.segmentation_type must be one of none, duration, size, schedule; got %q", p.SegmentationType))
	}

	if strings.TrimSpace(c.State.Dir) == "" {
		c.State.Dir = filepath.Join(ConfigDir(), "state")
	}
	if c.State.FlushIntervalMS < 0 {
		result = multierror.Append(result, fmt.Errorf("state.flush_interval_ms must not be negative, got %d", c.State.FlushIntervalMS))
	}
	if c.State.FlushIntervalMS == 0 {
		c.State.FlushIntervalMS = 1000
	}

	return result.ErrorOrNil()
}

// Application returns the named application config.
func (c *Config) Application(name string) (ApplicationConfig, bool) {
	for _, app := range c.Applications {
		if app.Name == name {
			return app, true
		}
	}
	return ApplicationConfig{}, false
}

// ApplicationNames lists configured application names in file order.
func (c *Config) ApplicationNames() []string {
	names := make([]string, 0, len(c.Applications))
	for _, app := range c.Applications {
		names = append(names, app.Name)
	}
	return names
}
