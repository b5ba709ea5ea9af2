// ABOUTME: Wires the catalogue, cache and lifecycle controller into one host
// ABOUTME: Builds a fresh MCP server for every start and relays cache changes to it

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/2389/hostmcp/internal/builtins"
	"github.com/2389/hostmcp/internal/cache"
	"github.com/2389/hostmcp/internal/catalog"
	"github.com/2389/hostmcp/internal/config"
	"github.com/2389/hostmcp/internal/lifecycle"
	"github.com/2389/hostmcp/internal/mcp"
	"github.com/2389/hostmcp/internal/session"
)

// host owns everything that outlives a single server instance.
type host struct {
	cfg        *config.Config
	registry   *catalog.Registry
	store      *cache.Store
	controller *lifecycle.Controller
	logger     *slog.Logger

	current atomic.Pointer[mcp.Server]
}

// serverInfo is the body of the config://server resource.
type serverInfo struct {
	Host    string   `json:"host"`
	Port    *uint16  `json:"port"`
	Path    string   `json:"path"`
	Running bool     `json:"running"`
	Tools   []string `json:"tools"`

	// Catalogue lists every tool this build supports, exposed or not.
	Catalogue []string `json:"catalogue"`
}

// newHost builds the registry and controller. store may be nil, in which
// case the cache tools report that the cache is unavailable.
func newHost(cfg *config.Config, store *cache.Store, driver builtins.BrowserDriver, logger *slog.Logger) (*host, error) {
	h := &host{
		cfg:      cfg,
		registry: catalog.NewRegistry(logger),
		store:    store,
		logger:   logger,
	}

	if err := registerCatalogue(h.registry, driver, store, h.cacheChanged); err != nil {
		return nil, err
	}
	if err := builtins.RegisterServerResource(h.registry, h.info); err != nil {
		return nil, fmt.Errorf("registering server resource: %w", err)
	}

	controller, err := lifecycle.New(lifecycle.Config{
		Host:         cfg.Server.Host,
		StartupGrace: cfg.Server.StartupGrace,
		NewHandler:   h.newHandler,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating controller: %w", err)
	}
	h.controller = controller

	return h, nil
}

// registerCatalogue registers the builtin packs in catalogue order.
func registerCatalogue(reg *catalog.Registry, driver builtins.BrowserDriver, store *cache.Store, onChange func()) error {
	if err := reg.RegisterPack(builtins.BrowserPack(driver)); err != nil {
		return fmt.Errorf("registering browser pack: %w", err)
	}
	if err := reg.RegisterPack(builtins.CachePack(store, onChange)); err != nil {
		return fmt.Errorf("registering cache pack: %w", err)
	}
	if store != nil {
		if err := builtins.RegisterCacheResources(reg, store); err != nil {
			return err
		}
	}
	return nil
}

// unknownTools returns the allowlist entries that name no catalogue tool.
func unknownTools(reg *catalog.Registry, enabled []string) []string {
	var unknown []string
	for _, name := range enabled {
		if _, ok := reg.Tool(name); !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// newHandler is the controller's handler factory.
func (h *host) newHandler(_ uint16, enabledTools []string) (http.Handler, func(), error) {
	srv, err := mcp.NewServer(mcp.Config{
		Registry:     h.registry,
		EnabledTools: enabledTools,
		Sessions: session.Config{
			MaxSessions:  h.cfg.Sessions.MaxSessions,
			Timeout:      h.cfg.Sessions.Timeout,
			ReapInterval: h.cfg.Sessions.ReapInterval,
		},
		Isolated:          h.cfg.Sessions.Isolated,
		ServerVersion:     version,
		Path:              h.cfg.Server.Path,
		HeartbeatInterval: h.cfg.Stream.HeartbeatInterval,
		CORS: mcp.CORSConfig{
			Enabled:        h.cfg.CORS.Enabled,
			AllowedOrigins: h.cfg.CORS.AllowedOrigins,
		},
		Logger: h.logger,
	})
	if err != nil {
		return nil, nil, err
	}

	h.current.Store(srv)
	cleanup := func() {
		h.current.CompareAndSwap(srv, nil)
		srv.Close()
	}
	return srv.Handler(), cleanup, nil
}

// cacheChanged tells open event streams that the cache statistics moved.
func (h *host) cacheChanged() {
	srv := h.current.Load()
	if srv == nil {
		return
	}
	srv.Publisher().Broadcast("notifications/resources/updated", map[string]string{
		"uri": builtins.CacheStatsURI,
	})
}

func (h *host) info() any {
	st := h.controller.Status()
	info := serverInfo{
		Host:      h.cfg.Server.Host,
		Port:      st.Port,
		Path:      h.cfg.Server.Path,
		Running:   st.Running,
		Tools:     []string{},
		Catalogue: h.registry.ToolNames(),
	}
	if srv := h.current.Load(); srv != nil {
		info.Tools = srv.Dispatcher().ExposedTools()
	}
	return info
}

// start binds the configured port and serves the exposed tools.
func (h *host) start(ctx context.Context) error {
	return h.controller.Start(ctx, uint16(h.cfg.Server.Port), h.cfg.Tools.Enabled)
}

// stop shuts the server down if it is running.
func (h *host) stop() error {
	if h.controller.State() == lifecycle.StateStopped {
		return nil
	}
	return h.controller.Stop()
}
