// Package config handles configuration loading and validation for the
// photo studio server.
//
// Configuration is read from a TOML, YAML or JSON file (chosen by extension),
// layered over DefaultConfig, then overridden by PHOTO_STUDIO_* environment
// variables. A missing file is not an error.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Log     LogConfig     `toml:"log" yaml:"log" json:"log"`
	Limits  LimitsConfig  `toml:"limits" yaml:"limits" json:"limits"`
	Removal RemovalConfig `toml:"removal" yaml:"removal" json:"removal"`
	Render  RenderConfig  `toml:"render" yaml:"render" json:"render"`
}

// LogConfig controls logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" yaml:"level" json:"level"`
	// Format is text or json.
	Format string `toml:"format" yaml:"format" json:"format"`
}

// LimitsConfig bounds what a source image may cost.
type LimitsConfig struct {
	MaxSourceBytes int64    `toml:"max_source_bytes" yaml:"max_source_bytes" json:"max_source_bytes"`
	MaxPixels      int      `toml:"max_pixels" yaml:"max_pixels" json:"max_pixels"`
	FetchTimeout   Duration `toml:"fetch_timeout" yaml:"fetch_timeout" json:"fetch_timeout"`
	MaxSessions    int      `toml:"max_sessions" yaml:"max_sessions" json:"max_sessions"`

	// MaxCachedImages bounds the decoded sources the loader keeps for reuse.
	MaxCachedImages int `toml:"max_cached_images" yaml:"max_cached_images" json:"max_cached_images"`
}

// RemovalConfig selects the background-removal collaborator.
type RemovalConfig struct {
	// Mode is "command" (external program) or "keycolor" (built-in).
	Mode string `toml:"mode" yaml:"mode" json:"mode"`
	// Command is the program and arguments for mode "command".
	Command []string `toml:"command" yaml:"command" json:"command"`
	// Tolerance is the Lab distance for mode "keycolor".
	Tolerance float64  `toml:"tolerance" yaml:"tolerance" json:"tolerance"`
	Timeout   Duration `toml:"timeout" yaml:"timeout" json:"timeout"`
}

// RenderConfig tunes rendering.
type RenderConfig struct {
	// Seed, when non-zero, makes the random background patterns reproducible.
	Seed uint64 `toml:"seed" yaml:"seed" json:"seed"`
}

// Removal modes.
const (
	RemovalCommand  = "command"
	RemovalKeyColor = "keycolor"
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Limits: LimitsConfig{
			MaxSourceBytes:  32 << 20,
			MaxPixels:       40_000_000,
			FetchTimeout:    Duration(30 * time.Second),
			MaxSessions:     16,
			MaxCachedImages: 8,
		},
		Removal: RemovalConfig{
			Mode:      RemovalKeyColor,
			Tolerance: 0.12,
			Timeout:   Duration(2 * time.Minute),
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path or a missing file yields the defaults
// (still subject to environment overrides).
func Load(path string) (*Config, error) {
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

func loadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return cfg, nil
}

// ApplyEnvOverrides applies PHOTO_STUDIO_* variables. IMAGE_MCP_LOG_LEVEL is
// honored for compatibility with existing MCP client configurations.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("IMAGE_MCP_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PHOTO_STUDIO_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PHOTO_STUDIO_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("PHOTO_STUDIO_REMOVAL_MODE"); v != "" {
		c.Removal.Mode = v
	}
	if v := os.Getenv("PHOTO_STUDIO_REMOVAL_COMMAND"); v != "" {
		c.Removal.Command = strings.Fields(v)
	}
	if v := os.Getenv("PHOTO_STUDIO_MAX_SOURCE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Limits.MaxSourceBytes = n
		}
	}
	if v := os.Getenv("PHOTO_STUDIO_RENDER_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Render.Seed = n
		}
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if c.Limits.MaxSourceBytes <= 0 {
		errs = append(errs, errors.New("limits.max_source_bytes must be positive"))
	}
	if c.Limits.MaxPixels <= 0 {
		errs = append(errs, errors.New("limits.max_pixels must be positive"))
	}
	if c.Limits.MaxSessions <= 0 {
		errs = append(errs, errors.New("limits.max_sessions must be positive"))
	}
	if c.Limits.MaxCachedImages <= 0 {
		errs = append(errs, errors.New("limits.max_cached_images must be positive"))
	}
	switch c.Removal.Mode {
	case RemovalCommand:
		if len(c.Removal.Command) == 0 {
			errs = append(errs, errors.New("removal.command is required for mode \"command\""))
		}
	case RemovalKeyColor:
		if c.Removal.Tolerance < 0 {
			errs = append(errs, errors.New("removal.tolerance must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("removal.mode: unknown mode %q", c.Removal.Mode))
	}
	return errors.Join(errs...)
}

// Duration is a time.Duration that reads "30s"-style strings from every
// supported config format.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used by TOML and JSON.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}
