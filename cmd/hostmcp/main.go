// ABOUTME: Entry point for hostmcp, the local MCP server for agent tools
// ABOUTME: Dispatches the serve, probe and tools subcommands

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/2389/hostmcp/internal/config"
)

// Version is set at build time.
var version = "dev"

const banner = `
  _               _
 | |__   ___  ___| |_ _ __ ___   ___ _ __
 | '_ \ / _ \/ __| __| '_ ' _ \ / __| '_ \
 | | | | (_) \__ \ |_| | | | | | (__| |_) |
 |_| |_|\___/|___/\__|_| |_| |_|\___| .__/
                                    |_|
`

// getConfigPath returns the path to the hostmcp config file.
// Priority: HOSTMCP_CONFIG env var > XDG_CONFIG_HOME/hostmcp/config.yaml > ~/.config/hostmcp/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HOSTMCP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "hostmcp", "config.yaml")
}

// loadConfig loads path, or the default location when path is empty. A
// missing default file is not an error: the built-in defaults apply.
func loadConfig(path string) (*config.Config, string, error) {
	explicit := path != ""
	if !explicit {
		path = getConfigPath()
	}

	cfg, err := config.Load(path)
	switch {
	case err == nil:
		return cfg, path, nil
	case !explicit && errors.Is(err, fs.ErrNotExist):
		return config.Default(), "", nil
	default:
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
}

func usage() {
	fmt.Println("Usage: hostmcp <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve [--config F] [--port N] [--tools a,b]  Start the MCP server")
	fmt.Println("  probe --port N                               Check whether a port is free")
	fmt.Println("  tools [--config F] [--tools a,b]             List the exposed tools")
	fmt.Println("  version                                      Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "probe":
		err = runProbe(ctx, args, os.Stdout)
	case "tools":
		err = runTools(args, os.Stdout)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
