package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig configures telemetry exporters.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider,omitempty"`
}

// Store drivers.
const (
	StoreDriverFile = "file"
	StoreDriverBolt = "bolt"
)

// StoreConfig selects where project records are persisted. For the file
// driver Path is a directory, for bolt it is the database file.
type StoreConfig struct {
	Driver  string   `yaml:"driver"`
	Path    string   `yaml:"path"`
	Timeout Duration `yaml:"timeout,omitempty"`
	// Watch reloads file-store projects edited on disk.
	Watch bool `yaml:"watch,omitempty"`
}

// ValidationConfig grades catalog drift per call site.
type ValidationConfig struct {
	OnlineSeverity string `yaml:"online_severity"`
	DeploySeverity string `yaml:"deploy_severity"`
}

// ImportConfig holds defaults for catalog imports.
type ImportConfig struct {
	// Filter is the default selection expression. Empty selects every change.
	Filter string `yaml:"filter,omitempty"`
}

// Config is the root configuration structure of the tool.
type Config struct {
	Name       string           `yaml:"name,omitempty"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Store      StoreConfig      `yaml:"store"`
	Validation ValidationConfig `yaml:"validation"`
	Import     ImportConfig     `yaml:"import"`
	Source     string           `yaml:"-"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and decodes the configuration file from disk. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	cfg.Source = abs
	if cfg.Store.Path != "" && !filepath.IsAbs(cfg.Store.Path) {
		cfg.Store.Path = filepath.Join(filepath.Dir(abs), cfg.Store.Path)
	}
	return cfg, nil
}

// Parse decodes a configuration document, applies defaults and validates it.
func Parse(raw []byte) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "coregraph"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Telemetry.Provider == "" {
		c.Telemetry.Provider = "prometheus"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = StoreDriverFile
	}
	if c.Store.Path == "" {
		switch c.Store.Driver {
		case StoreDriverBolt:
			c.Store.Path = "projects.db"
		default:
			c.Store.Path = "projects"
		}
	}
	if c.Store.Timeout.Duration <= 0 {
		c.Store.Timeout.Duration = time.Second
	}
	if c.Validation.OnlineSeverity == "" {
		c.Validation.OnlineSeverity = "warning"
	}
	if c.Validation.DeploySeverity == "" {
		c.Validation.DeploySeverity = "error"
	}
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	switch c.Store.Driver {
	case StoreDriverFile, StoreDriverBolt:
	default:
		return fmt.Errorf("store: unknown driver %q", c.Store.Driver)
	}
	for name, severity := range map[string]string{
		"online_severity": c.Validation.OnlineSeverity,
		"deploy_severity": c.Validation.DeploySeverity,
	} {
		if severity != "error" && severity != "warning" {
			return fmt.Errorf("validation: %s must be error or warning, got %q", name, severity)
		}
	}
	if c.Telemetry.Enabled && c.Telemetry.Provider != "prometheus" {
		return fmt.Errorf("telemetry: unsupported provider %q", c.Telemetry.Provider)
	}
	if c.Logging.Loki.Enabled && c.Logging.Loki.URL == "" {
		return errors.New("logging: loki url is required when loki is enabled")
	}
	return nil
}

// StoreTimeout returns the configured store timeout.
func (c *Config) StoreTimeout() time.Duration {
	if c == nil || c.Store.Timeout.Duration <= 0 {
		return time.Second
	}
	return c.Store.Timeout.Duration
}
