package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the takeoff auto-count API configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Search   SearchConfig   `yaml:"search"`
	Renderer RendererConfig `yaml:"renderer"`
	Describe DescribeConfig `yaml:"describe"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port           int `yaml:"port"`
	ReadTimeoutSec int `yaml:"read_timeout_sec"`
	// WriteTimeoutSec of 0 disables the write deadline. Progress streams
	// are long-lived, so a finite value would cut them off mid-run.
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SearchConfig holds search pipeline tuning.
type SearchConfig struct {
	Workers             int     `yaml:"workers"`
	UnitTimeoutSec      int     `yaml:"unit_timeout_sec"`
	MaxMatches          int     `yaml:"max_matches"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	RunLockTTLSec       int     `yaml:"run_lock_ttl_sec"`
	TemplateTTLSec      int     `yaml:"template_ttl_sec"`
	// PageRenderScale is the resolution multiplier used when searching a
	// page; TemplateRenderScale is used when extracting the reference
	// crop. Under-resolving loses thin symbol strokes.
	PageRenderScale     float64 `yaml:"page_render_scale"`
	TemplateRenderScale float64 `yaml:"template_render_scale"`
	MinSelectionExtent  float64 `yaml:"min_selection_extent"`
	ThumbnailWidth      int     `yaml:"thumbnail_width"`
	ThumbnailPadding    float64 `yaml:"thumbnail_padding"`
	MaxThumbnails       int     `yaml:"max_thumbnails"`
}

// RendererConfig holds the external page renderer settings.
type RendererConfig struct {
	Bin      string `yaml:"bin"`       // interpreter or binary, e.g. python3
	Script   string `yaml:"script"`    // renderer script path (empty when Bin is standalone)
	FilesDir string `yaml:"files_dir"` // directory holding uploaded document files
}

// DescribeConfig holds the optional symbol description provider settings.
// An empty api_key disables auto-description.
type DescribeConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Search.Workers <= 0 {
		c.Search.Workers = 4
	}
	if c.Search.UnitTimeoutSec <= 0 {
		c.Search.UnitTimeoutSec = 120
	}
	if c.Search.MaxMatches <= 0 {
		c.Search.MaxMatches = 10000
	}
	if c.Search.ConfidenceThreshold <= 0 {
		c.Search.ConfidenceThreshold = 0.7
	}
	if c.Search.RunLockTTLSec <= 0 {
		c.Search.RunLockTTLSec = 1800
	}
	if c.Search.TemplateTTLSec <= 0 {
		c.Search.TemplateTTLSec = 3600
	}
	if c.Search.PageRenderScale <= 0 {
		c.Search.PageRenderScale = 2.0
	}
	if c.Search.TemplateRenderScale <= 0 {
		c.Search.TemplateRenderScale = 4.0
	}
	if c.Search.MinSelectionExtent <= 0 {
		c.Search.MinSelectionExtent = 0.005
	}
	if c.Search.ThumbnailWidth <= 0 {
		c.Search.ThumbnailWidth = 160
	}
	if c.Search.ThumbnailPadding <= 0 {
		c.Search.ThumbnailPadding = 0.5
	}
	if c.Search.MaxThumbnails <= 0 {
		c.Search.MaxThumbnails = 100
	}
	if c.Renderer.Bin == "" {
		c.Renderer.Bin = "python3"
	}
	if c.Renderer.FilesDir == "" {
		c.Renderer.FilesDir = "files"
	}
	if c.Describe.Model == "" {
		c.Describe.Model = "gpt-4o-mini"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Search.ConfidenceThreshold > 1 {
		return fmt.Errorf("search.confidence_threshold must be at most 1, got %g",
			c.Search.ConfidenceThreshold)
	}
	if c.Search.MinSelectionExtent >= 1 {
		return fmt.Errorf("search.min_selection_extent must be below 1, got %g",
			c.Search.MinSelectionExtent)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
