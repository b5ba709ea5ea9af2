// ABOUTME: Ordered, thread-safe catalogue of tool packs and resources.
// ABOUTME: Computes allowlist-filtered capability snapshots for MCP sessions.

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrToolCollision indicates a tool name is already registered.
var ErrToolCollision = errors.New("tool name collision")

// ErrResourceCollision indicates a resource URI or template is already registered.
var ErrResourceCollision = errors.New("resource collision")

// ErrResourceNotFound indicates no resource or template matches a URI.
var ErrResourceNotFound = errors.New("resource not found")

// ToolDescriptor is the MCP description of a tool as listed by tools/list.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Handler executes a tool. It receives the call arguments as a JSON object and
// returns the collaborator's structured result. A JSON string result is shown
// to the client verbatim; any other JSON value is pretty-printed.
type Handler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Tool pairs a descriptor with its handler.
type Tool struct {
	Descriptor ToolDescriptor
	Handler    Handler

	// Capture marks tools whose result is an image rather than text.
	Capture bool
}

// Pack is a named group of tools supplied by one collaborator.
type Pack struct {
	ID    string
	Tools []*Tool
}

// Registry holds the static catalogue for one host build.
type Registry struct {
	mu        sync.RWMutex
	tools     []*Tool          // catalogue order
	byName    map[string]*Tool // name -> tool
	packOf    map[string]string
	resources []*Resource
	byURI     map[string]*Resource
	templates []*ResourceTemplate
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName: make(map[string]*Tool),
		packOf: make(map[string]string),
		byURI:  make(map[string]*Resource),
		logger: logger,
	}
}

// RegisterPack appends a pack's tools to the catalogue.
// Returns ErrToolCollision if any tool name is already registered; in that
// case nothing from the pack is added.
func (r *Registry) RegisterPack(pack *Pack) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(pack.Tools))
	for _, tool := range pack.Tools {
		name := tool.Descriptor.Name
		if name == "" {
			return fmt.Errorf("pack %q: tool with empty name", pack.ID)
		}
		if owner, exists := r.packOf[name]; exists {
			return fmt.Errorf("%w: tool '%s' already registered by pack '%s'", ErrToolCollision, name, owner)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: tool '%s' listed twice in pack '%s'", ErrToolCollision, name, pack.ID)
		}
		if tool.Handler == nil {
			return fmt.Errorf("pack %q: tool '%s' has no handler", pack.ID, name)
		}
		seen[name] = struct{}{}
	}

	for _, tool := range pack.Tools {
		r.tools = append(r.tools, tool)
		r.byName[tool.Descriptor.Name] = tool
		r.packOf[tool.Descriptor.Name] = pack.ID
	}

	r.logger.Info("tool pack registered",
		"pack_id", pack.ID,
		"tool_count", len(pack.Tools),
		"total_tools", len(r.tools),
	)
	return nil
}

// AvailableTools returns the descriptors exposed under the given allowlist.
func (r *Registry) AvailableTools(enabled []string) []ToolDescriptor {
	exposed := r.ExposedTools(enabled)
	descs := make([]ToolDescriptor, len(exposed))
	for i, tool := range exposed {
		descs[i] = tool.Descriptor
	}
	return descs
}

// ExposedTools returns the tools exposed under the given allowlist, in
// catalogue order. An empty allowlist exposes the whole catalogue and names
// that are not in the catalogue are ignored.
func (r *Registry) ExposedTools(enabled []string) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(enabled) == 0 {
		out := make([]*Tool, len(r.tools))
		copy(out, r.tools)
		return out
	}

	allow := make(map[string]struct{}, len(enabled))
	for _, name := range enabled {
		allow[name] = struct{}{}
	}

	out := make([]*Tool, 0, len(enabled))
	for _, tool := range r.tools {
		if _, ok := allow[tool.Descriptor.Name]; ok {
			out = append(out, tool)
		}
	}
	return out
}

// Tool looks up a catalogue entry by name regardless of any allowlist.
func (r *Registry) Tool(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.byName[name]
	return tool, ok
}

// ToolNames returns every catalogue tool name in catalogue order.
func (r *Registry) ToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.tools))
	for i, tool := range r.tools {
		names[i] = tool.Descriptor.Name
	}
	return names
}
