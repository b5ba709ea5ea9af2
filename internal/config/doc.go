// Package config handles configuration loading for hostmcp.
//
// # Overview
//
// Configuration is loaded from a YAML, TOML or JSONC file with environment
// variable expansion. Anything the file leaves out keeps the value from
// [Default], so an empty file is a valid configuration.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the HOSTMCP_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/hostmcp/config.yaml
//  3. ~/.config/hostmcp/config.yaml
//
// The decoder is chosen by extension:
//
//	.yaml, .yml   gopkg.in/yaml.v3
//	.toml         github.com/BurntSushi/toml
//	.json, .jsonc github.com/tidwall/jsonc, then encoding/json
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	cache:
//	  path: "${HOME}/.cache/hostmcp.db"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  timeout: "60m"
//	  reap_interval: "1m"
//	stream:
//	  heartbeat_interval: "30s"
//
// A sessions.timeout of "0" disables the idle-session reaper.
//
// # Example
//
//	server:
//	  host: "127.0.0.1"
//	  port: 37650
//	  path: "/mcp"
//	  startup_grace: "500ms"
//	sessions:
//	  max_sessions: 10
//	  isolated: false
//	tools:
//	  enabled: ["browser_open", "browser_navigate", "cache_stats"]
//	cors:
//	  enabled: true
//	  allowed_origins: ["http://localhost:5173"]
//	logging:
//	  level: "debug"
//	  format: "json"
package config
