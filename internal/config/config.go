package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds client configuration loaded from the config file with
// environment overrides applied on top.
type Config struct {
	APIBaseURL     string        `yaml:"api_base_url"`
	TokenFile      string        `yaml:"token_file"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	StreamTimeout  time.Duration `yaml:"stream_timeout"`
	LogLevel       string        `yaml:"log_level"`
	OTLPEndpoint   string        `yaml:"otlp_endpoint,omitempty"`
	CacheSize      int           `yaml:"cache_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIBaseURL:     "https://app.table.that",
		TokenFile:      filepath.Join(Dir(), "token"),
		RequestTimeout: 30 * time.Second,
		// Streaming turns can run for minutes while tools execute.
		StreamTimeout: 10 * time.Minute,
		LogLevel:      "info",
		CacheSize:     128,
	}
}

// Dir returns the horizon config directory (~/.horizon).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".horizon"
	}
	return filepath.Join(home, ".horizon")
}

// Path returns the default config file path.
func Path() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads the config file at path (Path() when empty), applies environment
// overrides and fills defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)
	fillDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("HORIZON_API_URL")); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("HORIZON_TOKEN_FILE")); v != "" {
		cfg.TokenFile = v
	}
	if v := strings.TrimSpace(os.Getenv("HORIZON_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("HORIZON_OTLP_ENDPOINT")); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("HORIZON_REQUEST_TIMEOUT")); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			cfg.RequestTimeout = time.Duration(seconds) * time.Second
		}
	}
}

func fillDefaults(cfg *Config) {
	def := Default()
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = def.APIBaseURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.TokenFile == "" {
		cfg.TokenFile = def.TokenFile
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = def.StreamTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
}

// Save writes the config to path (Path() when empty), creating the config
// directory if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
