// Package config loads esginsight settings from a YAML or TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/greg-hellings/esginsight/pkg/backend"
)

// Defaults.
const (
	DefaultBaseURL     = "http://localhost:8000"
	DefaultTimeout     = 60 * time.Second
	DefaultTopK        = 8
	DefaultFilename    = "esg_summary.pdf"
	DefaultWrapWidth   = 90
	DefaultServiceName = "esginsight"
)

// Environment variables that override file settings.
const (
	EnvBackendURL = "ESG_BACKEND_URL"
	EnvAPIToken   = "ESG_API_TOKEN"
	EnvTopK       = "ESG_TOP_K"
	EnvLogLevel   = "ESG_LOG_LEVEL"
	EnvTracing    = "ESG_TRACING"
	EnvStateFile  = "ESG_STATE_FILE"
)

// Config represents the top-level configuration file structure
type Config struct {
	Backend BackendConfig `yaml:"backend" toml:"backend"`
	Chat    ChatConfig    `yaml:"chat" toml:"chat"`
	Export  ExportConfig  `yaml:"export" toml:"export"`
	Log     LogConfig     `yaml:"log" toml:"log"`
	Tracing TracingConfig `yaml:"tracing" toml:"tracing"`
	Display DisplayConfig `yaml:"display" toml:"display"`
	State   StateConfig   `yaml:"state" toml:"state"`
}

// BackendConfig locates the analysis service.
type BackendConfig struct {
	BaseURL           string        `yaml:"base_url" toml:"base_url"`
	Timeout           time.Duration `yaml:"timeout" toml:"timeout"`
	APIToken          string        `yaml:"api_token" toml:"api_token"`
	RequestsPerSecond float64       `yaml:"requests_per_second" toml:"requests_per_second"`
}

// ChatConfig tunes chat questions.
type ChatConfig struct {
	TopK int `yaml:"top_k" toml:"top_k"`
}

// ExportConfig controls the summary PDF.
type ExportConfig struct {
	Filename  string `yaml:"filename" toml:"filename"`
	WrapWidth int    `yaml:"wrap_width" toml:"wrap_width"`
	// FontFile is an optional UTF-8 TTF for non-Latin summaries.
	FontFile  string `yaml:"font_file" toml:"font_file"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // text or json
}

// TracingConfig enables OTLP trace export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// DisplayConfig controls console output.
type DisplayConfig struct {
	NoColor bool `yaml:"no_color" toml:"no_color"`
}

// StateConfig locates the shell preferences file. An empty File means the
// per-user default location.
type StateConfig struct {
	File string `yaml:"file" toml:"file"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// Load reads filename (if non-empty), applies defaults and environment
// overrides, and validates the result.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		var err error
		if cfg, err = LoadFromFile(filename); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads a configuration file and returns the parsed Config.
// Files ending in .toml are parsed as TOML; anything else as YAML.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBaseURL
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultTimeout
	}
	if c.Chat.TopK == 0 {
		c.Chat.TopK = DefaultTopK
	}
	if c.Export.Filename == "" {
		c.Export.Filename = DefaultFilename
	}
	if c.Export.WrapWidth == 0 {
		c.Export.WrapWidth = DefaultWrapWidth
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = DefaultServiceName
	}
}

// ApplyEnv overrides settings from the environment. getenv is os.Getenv
// outside tests.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvBackendURL); v != "" {
		c.Backend.BaseURL = v
	}
	if v := getenv(EnvAPIToken); v != "" {
		c.Backend.APIToken = v
	}
	if v := getenv(EnvTopK); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTopK, err)
		}
		c.Chat.TopK = n
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvTracing); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTracing, err)
		}
		c.Tracing.Enabled = b
	}
	if v := getenv(EnvStateFile); v != "" {
		c.State.File = v
	}
	return nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url %q must be an absolute URL", c.Backend.BaseURL))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend.timeout must be positive"))
	}
	if c.Backend.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("backend.requests_per_second must not be negative"))
	}
	if c.Chat.TopK < 1 {
		errs = append(errs, fmt.Errorf("chat.top_k must be at least 1, got %d", c.Chat.TopK))
	}
	if c.Export.WrapWidth < 1 {
		errs = append(errs, fmt.Errorf("export.wrap_width must be at least 1, got %d", c.Export.WrapWidth))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ClientConfig returns the backend client settings.
func (c *Config) ClientConfig() backend.Config {
	return backend.Config{
		BaseURL:           c.Backend.BaseURL,
		Timeout:           c.Backend.Timeout,
		Token:             c.Backend.APIToken,
		RequestsPerSecond: c.Backend.RequestsPerSecond,
	}
}
