// ABOUTME: Configuration loading and parsing for the hostmcp server
// ABOUTME: Supports YAML, TOML and JSONC files with env var expansion and durations

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// DefaultPort is the port the desktop host listens on by default.
const DefaultPort = 37650

// Config represents the complete hostmcp configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server" json:"server"`
	Sessions SessionsConfig `yaml:"sessions" toml:"sessions" json:"sessions"`
	Stream   StreamConfig   `yaml:"stream" toml:"stream" json:"stream"`
	Tools    ToolsConfig    `yaml:"tools" toml:"tools" json:"tools"`
	CORS     CORSConfig     `yaml:"cors" toml:"cors" json:"cors"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache" json:"cache"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging" json:"logging"`
}

// ServerConfig holds the listener configuration
type ServerConfig struct {
	Host         string        `yaml:"host" toml:"host" json:"host"`
	Port         int           `yaml:"port" toml:"port" json:"port"`
	Path         string        `yaml:"path" toml:"path" json:"path"`
	StartupGrace time.Duration `yaml:"-" toml:"-" json:"-"`

	StartupGraceRaw string `yaml:"startup_grace" toml:"startup_grace" json:"startup_grace"`
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionsConfig holds session bookkeeping configuration
type SessionsConfig struct {
	Timeout      time.Duration `yaml:"-" toml:"-" json:"-"`
	ReapInterval time.Duration `yaml:"-" toml:"-" json:"-"`
	MaxSessions  int           `yaml:"max_sessions" toml:"max_sessions" json:"max_sessions"`
	// Isolated gives every header-less initialize its own session.
	Isolated bool `yaml:"isolated" toml:"isolated" json:"isolated"`

	// Raw string values for unmarshaling
	TimeoutRaw      string `yaml:"timeout" toml:"timeout" json:"timeout"`
	ReapIntervalRaw string `yaml:"reap_interval" toml:"reap_interval" json:"reap_interval"`
}

// StreamConfig holds event stream configuration
type StreamConfig struct {
	HeartbeatInterval time.Duration `yaml:"-" toml:"-" json:"-"`

	HeartbeatIntervalRaw string `yaml:"heartbeat_interval" toml:"heartbeat_interval" json:"heartbeat_interval"`
}

// ToolsConfig holds the tool allowlist. Empty exposes every tool.
type ToolsConfig struct {
	Enabled []string `yaml:"enabled" toml:"enabled" json:"enabled"`
}

// CORSConfig holds cross-origin configuration
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" toml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins" json:"allowed_origins"`
}

// CacheConfig holds the local cache database location
type CacheConfig struct {
	Path string `yaml:"path" toml:"path" json:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            DefaultPort,
			Path:            "/mcp",
			StartupGrace:    500 * time.Millisecond,
			StartupGraceRaw: "500ms",
		},
		Sessions: SessionsConfig{
			Timeout:         60 * time.Minute,
			ReapInterval:    time.Minute,
			MaxSessions:     10,
			TimeoutRaw:      "60m",
			ReapIntervalRaw: "1m",
		},
		Stream: StreamConfig{
			HeartbeatInterval:    30 * time.Second,
			HeartbeatIntervalRaw: "30s",
		},
		CORS: CORSConfig{
			Enabled: true,
		},
		Cache: CacheConfig{
			Path: defaultCachePath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// defaultCachePath places the cache under the XDG data directory.
func defaultCachePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "hostmcp-cache.db")
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "hostmcp", "cache.db")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// The format is chosen by extension: .yaml/.yml, .toml, or .json/.jsonc.
// Values absent from the file keep their defaults. Environment variables in
// the format ${VAR_NAME} are expanded before decoding.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := decode(filepath.Ext(path), expanded, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func decode(ext, data string, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal([]byte(data), cfg)
	case ".toml":
		_, err := toml.Decode(data, cfg)
		return err
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON([]byte(data)), cfg)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port < 1024 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1024 and 65535, got %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path must start with /, got %q", c.Server.Path)
	}
	if c.Server.StartupGrace < 0 {
		return errors.New("server.startup_grace must not be negative")
	}

	if c.Sessions.MaxSessions < 0 {
		return errors.New("sessions.max_sessions must not be negative")
	}
	if c.Sessions.Timeout < 0 {
		return errors.New("sessions.timeout must not be negative")
	}
	if c.Sessions.Timeout > 0 && c.Sessions.ReapInterval <= 0 {
		return errors.New("sessions.reap_interval must be positive when sessions.timeout is set")
	}

	if c.Stream.HeartbeatInterval <= 0 {
		return errors.New("stream.heartbeat_interval must be positive")
	}

	if c.Cache.Path == "" {
		return errors.New("cache.path is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.startup_grace", cfg.Server.StartupGraceRaw, &cfg.Server.StartupGrace},
		{"sessions.timeout", cfg.Sessions.TimeoutRaw, &cfg.Sessions.Timeout},
		{"sessions.reap_interval", cfg.Sessions.ReapIntervalRaw, &cfg.Sessions.ReapInterval},
		{"stream.heartbeat_interval", cfg.Stream.HeartbeatIntervalRaw, &cfg.Stream.HeartbeatInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
