package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Media   MediaConfig   `yaml:"media"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings. APIKey enables bearer
// authentication on the /v1 routes when non-empty.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ModelName    string        `yaml:"model_name"`
	APIKey       string        `yaml:"api_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// EngineConfig contains generation backend settings. An empty BackendURL
// selects the built-in mock engine.
type EngineConfig struct {
	BackendURL    string        `yaml:"backend_url"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

// MediaConfig contains the media security policy.
type MediaConfig struct {
	SafePath           string        `yaml:"safe_path"`
	AllowLocalFiles    *bool         `yaml:"allow_local_files"`
	AllowedURLPrefixes []string      `yaml:"allowed_url_prefixes"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout"`
}

// LocalFilesAllowed reports whether local file loading is enabled. Unset
// means enabled.
func (m *MediaConfig) LocalFilesAllowed() bool {
	if m.AllowLocalFiles == nil {
		return true
	}
	return *m.AllowLocalFiles
}

// LoggingConfig contains logging settings. Verbose gates the per-request
// body dump at debug level; unset means enabled.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Verbose *bool  `yaml:"verbose"`
}

// VerboseEnabled reports whether request bodies are dumped to the log.
func (l *LoggingConfig) VerboseEnabled() bool {
	if l.Verbose == nil {
		return true
	}
	return *l.Verbose
}

// Load reads the configuration file, expands environment references, applies
// environment overrides and fills defaults. A missing file is not an error:
// the defaults plus environment variables describe a runnable setup.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err == nil {
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	return &cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Media.SafePath == "" {
		return fmt.Errorf("media safe path must be specified")
	}

	for _, prefix := range c.Media.AllowedURLPrefixes {
		if !strings.HasPrefix(prefix, "http://") && !strings.HasPrefix(prefix, "https://") {
			return fmt.Errorf("allowed url prefix must start with http:// or https://: %s", prefix)
		}
	}

	if c.Engine.MaxConcurrent < 0 {
		return fmt.Errorf("engine max_concurrent cannot be negative: %d", c.Engine.MaxConcurrent)
	}

	return nil
}

// EnsureSafePath creates the safe media directory when missing.
func (c *Config) EnsureSafePath() error {
	return os.MkdirAll(c.Media.SafePath, 0o755)
}

// applyEnv applies the environment overrides recognized by the API layer.
// Environment values win over file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("API_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("API_MODEL_NAME"); v != "" {
		c.Server.ModelName = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("SAFE_MEDIA_PATH"); v != "" {
		c.Media.SafePath = v
	}
	if v, ok := os.LookupEnv("ALLOW_LOCAL_FILES"); ok {
		allowed := parseBoolEnv(v)
		c.Media.AllowLocalFiles = &allowed
	}
	if v := os.Getenv("ALLOWED_URL_PREFIXES"); v != "" {
		c.Media.AllowedURLPrefixes = splitPrefixes(v)
	}
	if v, ok := os.LookupEnv("API_VERBOSE"); ok {
		verbose := parseBoolEnv(v)
		c.Logging.Verbose = &verbose
	}
}

// setDefaults sets default values for optional fields.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ModelName == "" {
		c.Server.ModelName = "gpt-3.5-turbo"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// Generation streams can run for minutes.
		c.Server.WriteTimeout = 10 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Engine.Timeout == 0 {
		c.Engine.Timeout = 120 * time.Second
	}

	if c.Media.SafePath == "" {
		c.Media.SafePath = "safe_media"
	}
	if c.Media.FetchTimeout == 0 {
		c.Media.FetchTimeout = 30 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// expandEnvVars replaces ${VAR} and $VAR with environment variable values.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

// parseBoolEnv mirrors the permissive truthiness of the environment flags:
// "true", "y" and "1" enable, anything else disables.
func parseBoolEnv(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "y", "1":
		return true
	}
	return false
}

// splitPrefixes parses the comma-separated URL prefix allow-list.
func splitPrefixes(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
