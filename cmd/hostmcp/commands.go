// ABOUTME: Subcommand implementations for hostmcp
// ABOUTME: serve runs the server until signalled; probe and tools are one-shot queries

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/hostmcp/internal/cache"
	"github.com/2389/hostmcp/internal/catalog"
	"github.com/2389/hostmcp/internal/config"
	"github.com/2389/hostmcp/internal/lifecycle"
)

// serveFlags are the command-line overrides for serve and tools.
type serveFlags struct {
	configPath string
	port       uint16
	tools      []string
}

func parseServeFlags(name string, args []string) (*serveFlags, *pflag.FlagSet, error) {
	var f serveFlags
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVarP(&f.configPath, "config", "c", "", "path to a YAML, TOML or JSONC config file")
	flagSet.Uint16VarP(&f.port, "port", "p", 0, "port to listen on (overrides server.port)")
	flagSet.StringSliceVarP(&f.tools, "tools", "t", nil, "comma-separated tool allowlist (overrides tools.enabled)")
	if err := flagSet.Parse(args); err != nil {
		return nil, flagSet, err
	}
	return &f, flagSet, nil
}

// apply writes the flags that were set over cfg and revalidates it.
func (f *serveFlags) apply(flagSet *pflag.FlagSet, cfg *config.Config) error {
	if flagSet.Changed("port") {
		cfg.Server.Port = int(f.port)
	}
	if flagSet.Changed("tools") {
		cfg.Tools.Enabled = f.tools
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

func runServe(ctx context.Context, args []string) error {
	flags, flagSet, err := parseServeFlags("serve", args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg, configPath, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	if err := flags.apply(flagSet, cfg); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	logger := setupLogger(cfg.Logging, os.Stderr)

	store, err := cache.Open(cfg.Cache.Path, logger)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer store.Close()

	h, err := newHost(cfg, store, nil, logger)
	if err != nil {
		return err
	}
	if unknown := unknownTools(h.registry, cfg.Tools.Enabled); len(unknown) > 0 {
		logger.Warn("ignoring unknown tools in allowlist", "tools", unknown)
	}

	if configPath == "" {
		configPath = "(defaults)"
	}
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Endpoint:  http://%s%s\n", cfg.Server.Addr(), cfg.Server.Path)
	green.Print("    ▶ ")
	fmt.Printf("Cache:     %s\n", cfg.Cache.Path)
	green.Print("    ▶ ")
	if len(cfg.Tools.Enabled) == 0 {
		fmt.Println("Tools:     all")
	} else {
		fmt.Printf("Tools:     %s\n", strings.Join(cfg.Tools.Enabled, ", "))
	}
	fmt.Println()

	if err := h.start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	logger.Info("hostmcp running", "addr", cfg.Server.Addr(), "path", cfg.Server.Path)
	<-ctx.Done()
	logger.Info("shutting down")

	return h.stop()
}

func runProbe(ctx context.Context, args []string, out io.Writer) error {
	var port uint16
	flagSet := pflag.NewFlagSet("probe", pflag.ContinueOnError)
	flagSet.Uint16VarP(&port, "port", "p", 0, "port to check")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if !flagSet.Changed("port") {
		return errors.New("--port is required")
	}
	if err := lifecycle.ValidatePort(port); err != nil {
		return err
	}

	if !lifecycle.ProbePort(ctx, port, lifecycle.DefaultProbeTimeout) {
		return fmt.Errorf("port %d: %w", port, lifecycle.ErrPortInUse)
	}
	fmt.Fprintf(out, "port %d is available\n", port)
	return nil
}

func runTools(args []string, out io.Writer) error {
	flags, flagSet, err := parseServeFlags("tools", args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	if err := flags.apply(flagSet, cfg); err != nil {
		return err
	}

	registry := catalog.NewRegistry(nil)
	if err := registerCatalogue(registry, nil, nil, nil); err != nil {
		return err
	}

	printTools(out, registry.AvailableTools(cfg.Tools.Enabled))
	if unknown := unknownTools(registry, cfg.Tools.Enabled); len(unknown) > 0 {
		fmt.Fprintf(out, "Ignored unknown tools: %s\n", strings.Join(unknown, ", "))
	}
	return nil
}

func printTools(out io.Writer, tools []catalog.ToolDescriptor) {
	if len(tools) == 0 {
		fmt.Fprintln(out, "No tools exposed")
		return
	}

	name := color.New(color.FgCyan)
	width := 0
	for _, t := range tools {
		width = max(width, len(t.Name))
	}
	for _, t := range tools {
		name.Fprintf(out, "%-*s", width, t.Name)
		fmt.Fprintf(out, "  %s\n", t.Description)
	}
}
