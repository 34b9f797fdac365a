// Package config loads the condorview YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all condorview configuration.
type Config struct {
	// DataDir holds the store and any relative file sources.
	DataDir string `yaml:"data_dir"`

	// DatabasePath is the SQLite store of views, connections and run logs.
	DatabasePath string `yaml:"database_path"`

	HTTP    HTTPConfig    `yaml:"http"`
	Sources SourcesConfig `yaml:"sources"`
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig configures the report server.
type HTTPConfig struct {
	Listen       string  `yaml:"listen"`
	RateLimit    float64 `yaml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst    int     `yaml:"rate_burst"`
	ReadTimeout  string  `yaml:"read_timeout"`
	WriteTimeout string  `yaml:"write_timeout"`
	CORSOrigin   string  `yaml:"cors_origin"` // empty disables CORS headers
}

// SourcesConfig configures data acquisition.
type SourcesConfig struct {
	FetchTimeout  string            `yaml:"fetch_timeout"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	UserAgent     string            `yaml:"user_agent"`
	AuthTokens    map[string]string `yaml:"auth_tokens"` // scheme://host → token sent as auth=
}

// EngineConfig bounds the query engine.
type EngineConfig struct {
	MaxDatacubeRows  int    `yaml:"max_datacube_rows"`
	TracePreviewRows int    `yaml:"trace_preview_rows"`
	MaxQueryRows     int    `yaml:"max_query_rows"` // db:// sources
	RunTimeout       string `yaml:"run_timeout"`    // one view refresh
	NumPattern       string `yaml:"num_pattern"`
	IntPattern       string `yaml:"int_pattern"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultPath returns ~/.condorview/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "condorview.yaml"
	}
	return filepath.Join(home, ".condorview", "config.yaml")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	dataDir := ".condorview"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".condorview")
	}
	return &Config{
		DataDir:      dataDir,
		DatabasePath: filepath.Join(dataDir, "condorview.db"),
		HTTP: HTTPConfig{
			Listen:       "127.0.0.1:8642",
			RateLimit:    20,
			RateBurst:    40,
			ReadTimeout:  "30s",
			WriteTimeout: "120s",
		},
		Sources: SourcesConfig{
			FetchTimeout:  "60s",
			MaxConcurrent: 8,
			UserAgent:     "condorview/1",
		},
		Engine: EngineConfig{
			MaxDatacubeRows:  1_000_000,
			TracePreviewRows: 1000,
			MaxQueryRows:     100_000,
			RunTimeout:       "5m",
			NumPattern:       "#,##0.00",
			IntPattern:       "#,##0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CONDORVIEW_DATA_DIR"); v != "" {
		c.DataDir = v
		c.DatabasePath = filepath.Join(v, "condorview.db")
	}
	if v := os.Getenv("CONDORVIEW_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("CONDORVIEW_LISTEN"); v != "" {
		c.HTTP.Listen = v
	}
	if v := os.Getenv("CONDORVIEW_FETCH_TIMEOUT"); v != "" {
		c.Sources.FetchTimeout = v
	}
	if v := os.Getenv("CONDORVIEW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CONDORVIEW_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("CONDORVIEW_MAX_DATACUBE_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.MaxDatacubeRows = n
		}
	}
}

// Validate checks durations and limits.
func (c *Config) Validate() error {
	for name, d := range map[string]string{
		"http.read_timeout":     c.HTTP.ReadTimeout,
		"http.write_timeout":    c.HTTP.WriteTimeout,
		"sources.fetch_timeout": c.Sources.FetchTimeout,
		"engine.run_timeout":    c.Engine.RunTimeout,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, d, err)
		}
	}
	if c.Engine.MaxDatacubeRows < 0 {
		return fmt.Errorf("engine.max_datacube_rows must be >= 0")
	}
	if c.Sources.MaxConcurrent < 0 {
		return fmt.Errorf("sources.max_concurrent must be >= 0")
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// FetchTimeout returns the per-source fetch timeout, 0 for none.
func (c *Config) FetchTimeout() time.Duration {
	return parseDuration(c.Sources.FetchTimeout)
}

// RunTimeout bounds one view refresh, 0 for none.
func (c *Config) RunTimeout() time.Duration {
	return parseDuration(c.Engine.RunTimeout)
}

// ReadTimeout returns the HTTP server read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return parseDuration(c.HTTP.ReadTimeout)
}

// WriteTimeout returns the HTTP server write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return parseDuration(c.HTTP.WriteTimeout)
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
