// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML/TOML/JSONC loading, env var expansion, defaults and validation

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	cfg := Default()

	if cfg.Server.Addr() != "127.0.0.1:37650" {
		t.Errorf("Server.Addr() = %q, want %q", cfg.Server.Addr(), "127.0.0.1:37650")
	}
	if cfg.Server.Path != "/mcp" {
		t.Errorf("Server.Path = %q, want /mcp", cfg.Server.Path)
	}
	if cfg.Server.StartupGrace != 500*time.Millisecond {
		t.Errorf("Server.StartupGrace = %v, want 500ms", cfg.Server.StartupGrace)
	}
	if cfg.Sessions.Timeout != time.Hour {
		t.Errorf("Sessions.Timeout = %v, want 1h", cfg.Sessions.Timeout)
	}
	if cfg.Sessions.MaxSessions != 10 {
		t.Errorf("Sessions.MaxSessions = %d, want 10", cfg.Sessions.MaxSessions)
	}
	if cfg.Stream.HeartbeatInterval != 30*time.Second {
		t.Errorf("Stream.HeartbeatInterval = %v, want 30s", cfg.Stream.HeartbeatInterval)
	}
	if !cfg.CORS.Enabled {
		t.Error("CORS.Enabled = false, want true")
	}
	if cfg.Cache.Path != filepath.Join("/data", "hostmcp", "cache.db") {
		t.Errorf("Cache.Path = %q", cfg.Cache.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  host: "127.0.0.1"
  port: 40000
  path: "/rpc"
  startup_grace: "250ms"

sessions:
  timeout: "15m"
  reap_interval: "30s"
  max_sessions: 3
  isolated: true

stream:
  heartbeat_interval: "5s"

tools:
  enabled:
    - browser_open
    - cache_stats

cors:
  enabled: false

cache:
  path: "/tmp/cache.db"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 40000 {
		t.Errorf("Server.Port = %d, want 40000", cfg.Server.Port)
	}
	if cfg.Server.Path != "/rpc" {
		t.Errorf("Server.Path = %q, want /rpc", cfg.Server.Path)
	}
	if cfg.Server.StartupGrace != 250*time.Millisecond {
		t.Errorf("Server.StartupGrace = %v, want 250ms", cfg.Server.StartupGrace)
	}
	if cfg.Sessions.Timeout != 15*time.Minute {
		t.Errorf("Sessions.Timeout = %v, want 15m", cfg.Sessions.Timeout)
	}
	if cfg.Sessions.ReapInterval != 30*time.Second {
		t.Errorf("Sessions.ReapInterval = %v, want 30s", cfg.Sessions.ReapInterval)
	}
	if cfg.Sessions.MaxSessions != 3 || !cfg.Sessions.Isolated {
		t.Errorf("Sessions = %+v", cfg.Sessions)
	}
	if cfg.Stream.HeartbeatInterval != 5*time.Second {
		t.Errorf("Stream.HeartbeatInterval = %v, want 5s", cfg.Stream.HeartbeatInterval)
	}
	if diff := cmp.Diff([]string{"browser_open", "cache_stats"}, cfg.Tools.Enabled); diff != "" {
		t.Errorf("Tools.Enabled mismatch (-want +got):\n%s", diff)
	}
	if cfg.CORS.Enabled {
		t.Error("CORS.Enabled = true, want false")
	}
	if cfg.Cache.Path != "/tmp/cache.db" {
		t.Errorf("Cache.Path = %q", cfg.Cache.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "config.yml", `
server:
  port: 41000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 41000 {
		t.Errorf("Server.Port = %d, want 41000", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Sessions.Timeout != time.Hour {
		t.Errorf("Sessions.Timeout = %v, want default 1h", cfg.Sessions.Timeout)
	}
	if !cfg.CORS.Enabled {
		t.Error("CORS.Enabled should keep its default")
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[server]
port = 42000
startup_grace = "1s"

[sessions]
timeout = "0"

[tools]
enabled = ["browser_navigate"]

[cors]
enabled = true
allowed_origins = ["http://localhost:3000"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 42000 {
		t.Errorf("Server.Port = %d, want 42000", cfg.Server.Port)
	}
	if cfg.Server.StartupGrace != time.Second {
		t.Errorf("Server.StartupGrace = %v, want 1s", cfg.Server.StartupGrace)
	}
	if cfg.Sessions.Timeout != 0 {
		t.Errorf("Sessions.Timeout = %v, want 0", cfg.Sessions.Timeout)
	}
	if diff := cmp.Diff([]string{"browser_navigate"}, cfg.Tools.Enabled); diff != "" {
		t.Errorf("Tools.Enabled mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"http://localhost:3000"}, cfg.CORS.AllowedOrigins); diff != "" {
		t.Errorf("CORS.AllowedOrigins mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_JSONC(t *testing.T) {
	path := writeConfig(t, "config.jsonc", `{
  // desktop settings file
  "server": {
    "port": 43000, /* custom port */
  },
  "logging": {"level": "warn"},
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 43000 {
		t.Errorf("Server.Port = %d, want 43000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("HOSTMCP_TEST_CACHE", "/var/lib/hostmcp/cache.db")
	t.Setenv("HOSTMCP_TEST_PORT", "44000")

	path := writeConfig(t, "config.yaml", `
server:
  port: ${HOSTMCP_TEST_PORT}
cache:
  path: "${HOSTMCP_TEST_CACHE}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 44000 {
		t.Errorf("Server.Port = %d, want 44000", cfg.Server.Port)
	}
	if cfg.Cache.Path != "/var/lib/hostmcp/cache.db" {
		t.Errorf("Cache.Path = %q", cfg.Cache.Path)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("HOSTMCP_SET", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${HOSTMCP_SET}", "value"},
		{"a-${HOSTMCP_SET}-b", "a-value-b"},
		{"${HOSTMCP_DEFINITELY_UNSET_VAR}", ""},
		{"$HOSTMCP_SET", "$HOSTMCP_SET"},
	}

	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"unsupported extension", "config.ini", "port=1", "unsupported config format"},
		{"invalid yaml", "config.yaml", "server: [", "parsing config file"},
		{"invalid duration", "config.yaml", "stream:\n  heartbeat_interval: soon\n", "stream.heartbeat_interval"},
		{"privileged port", "config.yaml", "server:\n  port: 80\n", "server.port"},
		{"bad path", "config.yaml", "server:\n  path: mcp\n", "server.path"},
		{"zero heartbeat", "config.yaml", "stream:\n  heartbeat_interval: 0s\n", "heartbeat_interval must be positive"},
		{"bad log level", "config.yaml", "logging:\n  level: loud\n", "logging.level"},
		{"negative sessions", "config.toml", "[sessions]\nmax_sessions = -1\n", "max_sessions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("Load() error = %v, want reading config file error", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
