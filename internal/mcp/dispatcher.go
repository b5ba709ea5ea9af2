// ABOUTME: JSON-RPC dispatcher that routes MCP methods to handlers.
// ABOUTME: Parses single and batch envelopes and resolves the addressed session.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/hostmcp/internal/catalog"
	"github.com/2389/hostmcp/internal/session"
)

// Inbound is one HTTP POST as seen by the dispatcher.
type Inbound struct {
	// SessionID is the Mcp-Session-Id header, empty when absent.
	SessionID string
	// ProtocolVersion is the Mcp-Protocol-Version header, empty when absent.
	ProtocolVersion string
	Body            []byte
}

// Reply is what the transport writes back.
type Reply struct {
	Status int
	// Body is JSON-encoded when non-nil. A nil Body with an empty HTTPError
	// means no body.
	Body any
	// HTTPError is a plain-text transport error written instead of Body.
	HTTPError string
	// SessionID, when set, is returned in the Mcp-Session-Id header.
	SessionID string
}

// DispatcherConfig holds configuration for a Dispatcher.
type DispatcherConfig struct {
	Registry *catalog.Registry
	Sessions *session.Store
	// EnabledTools is the operator allowlist. Empty exposes every tool.
	EnabledTools []string
	// Isolated gives every initialize without a session header its own
	// session instead of the shared default one.
	Isolated      bool
	ServerName    string
	ServerVersion string
	Logger        *slog.Logger
}

// Dispatcher routes JSON-RPC requests by method.
type Dispatcher struct {
	registry  *catalog.Registry
	sessions  *session.Store
	bridge    *Bridge
	tools     []catalog.ToolDescriptor
	resources []catalog.ResourceDescriptor
	isolated  bool
	info      Implementation
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. The exposed capability set is computed
// once here from the registry and the allowlist.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	exposed := cfg.Registry.ExposedTools(cfg.EnabledTools)
	tools := make([]catalog.ToolDescriptor, len(exposed))
	for i, t := range exposed {
		tools[i] = t.Descriptor
	}

	name := cfg.ServerName
	if name == "" {
		name = DefaultServerName
	}
	version := cfg.ServerVersion
	if version == "" {
		version = DefaultServerVersion
	}

	return &Dispatcher{
		registry:  cfg.Registry,
		sessions:  cfg.Sessions,
		bridge:    NewBridge(exposed, logger),
		tools:     tools,
		resources: cfg.Registry.AvailableResources(),
		isolated:  cfg.Isolated,
		info:      Implementation{Name: name, Version: version},
		logger:    logger,
	}, nil
}

// Default server identity reported by initialize.
const (
	DefaultServerName    = "hostmcp"
	DefaultServerVersion = "0.1.0"
)

// ExposedTools returns the names of the tools this dispatcher serves.
func (d *Dispatcher) ExposedTools() []string {
	names := make([]string, len(d.tools))
	for i, t := range d.tools {
		names[i] = t.Name
	}
	return names
}

// Handle processes one POST body and returns the reply to write.
func (d *Dispatcher) Handle(ctx context.Context, in Inbound) Reply {
	body := bytes.TrimSpace(in.Body)
	if len(body) == 0 || !json.Valid(body) {
		return jsonReply(errorResponse(nil, newError(JSONRPCParseError, "Parse error")))
	}

	if body[0] == '[' {
		var entries []json.RawMessage
		if err := json.Unmarshal(body, &entries); err != nil {
			return jsonReply(errorResponse(nil, newError(JSONRPCParseError, "Parse error")))
		}
		return d.handleBatch(ctx, in, entries)
	}

	req, rpcErr := decodeRequest(body)
	if rpcErr != nil {
		return jsonReply(errorResponse(nil, rpcErr))
	}

	sid, reply, ok := d.resolveSession(in, req.Method == "initialize")
	if !ok {
		return reply
	}

	resp := d.handleRequest(ctx, sid, req)
	header := d.sessionHeader(in, sid, req.Method == "initialize")
	if resp == nil {
		return Reply{Status: http.StatusAccepted, SessionID: header}
	}
	r := jsonReply(resp)
	r.SessionID = header
	return r
}

func (d *Dispatcher) handleBatch(ctx context.Context, in Inbound, entries []json.RawMessage) Reply {
	if len(entries) == 0 {
		return jsonReply(errorResponse(nil, newError(JSONRPCInvalidRequest, "empty batch")))
	}

	reqs := make([]*JSONRPCRequest, len(entries))
	errs := make([]*JSONRPCError, len(entries))
	hasInitialize := false
	for i, raw := range entries {
		reqs[i], errs[i] = decodeRequest(raw)
		if reqs[i] != nil && reqs[i].Method == "initialize" {
			hasInitialize = true
		}
	}

	sid, reply, ok := d.resolveSession(in, hasInitialize)
	if !ok {
		return reply
	}

	d.logger.Debug("batch request", "entries", len(entries), "session_id", sid)

	responses := make([]*JSONRPCResponse, 0, len(entries))
	for i := range entries {
		if errs[i] != nil {
			responses = append(responses, errorResponse(nil, errs[i]))
			continue
		}
		if resp := d.handleRequest(ctx, sid, reqs[i]); resp != nil {
			responses = append(responses, resp)
		}
	}

	header := d.sessionHeader(in, sid, hasInitialize)
	if len(responses) == 0 {
		return Reply{Status: http.StatusAccepted, SessionID: header}
	}
	return Reply{Status: http.StatusOK, Body: responses, SessionID: header}
}

// decodeRequest decodes one envelope. A non-object value or a malformed
// envelope yields an invalid-request error.
func decodeRequest(raw json.RawMessage) (*JSONRPCRequest, *JSONRPCError) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, newError(JSONRPCInvalidRequest, "Invalid Request")
	}
	var req JSONRPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, newError(JSONRPCInvalidRequest, "Invalid Request")
	}
	return &req, nil
}

// resolveSession picks the session a POST addresses. It returns ok=false with
// a transport reply when the request cannot be served.
func (d *Dispatcher) resolveSession(in Inbound, initialize bool) (string, Reply, bool) {
	if !initialize && in.ProtocolVersion != "" && !supportedProtocolVersions[in.ProtocolVersion] {
		return "", Reply{Status: http.StatusBadRequest, HTTPError: "Bad Request: unsupported Mcp-Protocol-Version"}, false
	}

	if in.SessionID != "" {
		if !initialize {
			if _, ok := d.sessions.Get(in.SessionID); !ok {
				// Session expired or unknown; client must re-initialize
				return "", Reply{Status: http.StatusNotFound, HTTPError: "Not Found"}, false
			}
		}
		return in.SessionID, Reply{}, true
	}

	if d.isolated {
		if initialize {
			return session.NewID(), Reply{}, true
		}
		return "", Reply{Status: http.StatusBadRequest, HTTPError: "Bad Request: missing Mcp-Session-Id"}, false
	}
	return session.DefaultID, Reply{}, true
}

// sessionHeader returns the id to echo in Mcp-Session-Id. initialize always
// announces its session; other header-less requests on the default session
// get no header. Nothing is announced for a session that does not exist,
// such as one refused by the session cap.
func (d *Dispatcher) sessionHeader(in Inbound, sid string, initialize bool) string {
	if !initialize && in.SessionID == "" && sid == session.DefaultID {
		return ""
	}
	if _, ok := d.sessions.Get(sid); !ok {
		return ""
	}
	return sid
}

// handleRequest executes one request. It returns nil for notifications.
func (d *Dispatcher) handleRequest(ctx context.Context, sid string, req *JSONRPCRequest) (resp *JSONRPCResponse) {
	isNotification := req.IsNotification()

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("panic in method handler", "method", req.Method, "panic", fmt.Sprint(rec))
			if isNotification {
				resp = nil
				return
			}
			resp = errorResponse(req.ID, newError(JSONRPCInternalError, "Internal error"))
		}
	}()

	if req.JSONRPC != "2.0" {
		if isNotification {
			return nil
		}
		return errorResponse(req.ID, newError(JSONRPCInvalidRequest, "invalid JSON-RPC version"))
	}
	if req.Method == "" {
		if isNotification {
			return nil
		}
		return errorResponse(req.ID, newError(JSONRPCInvalidRequest, "method is required"))
	}

	d.sessions.Touch(sid)

	d.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", isNotification,
		"session_id", sid,
	)

	if isNotification {
		d.handleNotification(sid, req)
		return nil
	}

	var (
		result any
		rpcErr *JSONRPCError
	)
	switch req.Method {
	case "initialize":
		result, rpcErr = d.handleInitialize(sid, req.Params)
	case "initialized", "notifications/initialized":
		result, rpcErr = d.handleInitialized(sid)
	case "tools/list":
		result, rpcErr = d.handleToolsList(sid)
	case "tools/call":
		result, rpcErr = d.handleToolsCall(ctx, sid, req.Params)
	case "resources/list":
		result, rpcErr = d.handleResourcesList(sid)
	case "resources/templates/list":
		result = ListResourceTemplatesResult{ResourceTemplates: d.registry.ResourceTemplates()}
	case "resources/read":
		result, rpcErr = d.handleResourcesRead(ctx, req.Params)
	case "ping":
		result = struct{}{}
	default:
		rpcErr = newError(JSONRPCMethodNotFound, "Method not found")
		rpcErr.Data = map[string]string{"method": req.Method}
	}

	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}
	return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (d *Dispatcher) handleNotification(sid string, req *JSONRPCRequest) {
	switch req.Method {
	case "initialized", "notifications/initialized":
		if _, rpcErr := d.handleInitialized(sid); rpcErr != nil {
			d.logger.Warn("initialized notification failed", "session_id", sid, "error", rpcErr.Message)
		}
	default:
		if strings.HasPrefix(req.Method, "notifications/") {
			d.logger.Debug("accepted MCP notification", "method", req.Method)
		} else {
			d.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
	}
}

func (d *Dispatcher) handleInitialize(sid string, params json.RawMessage) (any, *JSONRPCError) {
	var p InitializeParams
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, newError(JSONRPCInvalidParams, "invalid params")
		}
	}

	_, created, err := d.sessions.GetOrCreate(sid)
	if err != nil {
		return nil, d.sessionError(sid, err)
	}

	version := negotiateVersion(p.ProtocolVersion)
	sess, err := d.sessions.Update(sid, func(s *session.Session) {
		s.ProtocolVersion = version
		s.Tools = d.tools
		s.Resources = d.resources
	})
	if err != nil {
		return nil, d.sessionError(sid, err)
	}

	attrs := []any{"session_id", sid, "protocol_version", version, "tools", len(sess.Tools), "new", created}
	if p.ClientInfo != nil {
		attrs = append(attrs, "client", p.ClientInfo.Name, "client_version", p.ClientInfo.Version)
	}
	d.logger.Info("MCP session initialized", attrs...)

	return InitializeResult{
		ProtocolVersion: version,
		Capabilities: ServerCapabilities{
			Tools:     &struct{}{},
			Resources: &struct{}{},
		},
		ServerInfo: d.info,
		SessionID:  sid,
	}, nil
}

func (d *Dispatcher) handleInitialized(sid string) (any, *JSONRPCError) {
	if _, _, err := d.sessions.GetOrCreate(sid); err != nil {
		return nil, d.sessionError(sid, err)
	}
	if _, err := d.sessions.Update(sid, func(s *session.Session) { s.Initialized = true }); err != nil {
		return nil, d.sessionError(sid, err)
	}
	return struct{}{}, nil
}

// snapshot reads the session under the store's read lock. Only initialize
// creates sessions: an unknown or uninitialized session reports the
// server's exposed set.
func (d *Dispatcher) snapshot(sid string) session.Session {
	sess, ok := d.sessions.Get(sid)
	if !ok || sess.ProtocolVersion == "" {
		sess.Tools = d.tools
		sess.Resources = d.resources
	}
	return sess
}

func (d *Dispatcher) handleToolsList(sid string) (any, *JSONRPCError) {
	sess := d.snapshot(sid)
	tools := sess.Tools
	if tools == nil {
		tools = []catalog.ToolDescriptor{}
	}

	d.logger.Debug("tools/list", "session_id", sid, "count", len(tools))
	return ListToolsResult{Tools: tools}, nil
}

func (d *Dispatcher) handleResourcesList(sid string) (any, *JSONRPCError) {
	sess := d.snapshot(sid)
	resources := sess.Resources
	if resources == nil {
		resources = []catalog.ResourceDescriptor{}
	}
	return ListResourcesResult{Resources: resources}, nil
}

func (d *Dispatcher) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, *JSONRPCError) {
	var p ReadResourceParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, newError(JSONRPCInvalidParams, "invalid params")
		}
	}
	if p.URI == "" {
		return nil, newError(JSONRPCInvalidParams, "uri is required")
	}

	contents, err := d.registry.ReadResource(ctx, p.URI)
	if err != nil {
		if errors.Is(err, catalog.ErrResourceNotFound) {
			rpcErr := newError(JSONRPCInvalidParams, "Resource not found")
			rpcErr.Data = map[string]string{"uri": p.URI}
			return nil, rpcErr
		}
		d.logger.Warn("resource read failed", "uri", p.URI, "error", err)
		return nil, newError(JSONRPCInternalError, err.Error())
	}
	return ReadResourceResult{Contents: []catalog.ResourceContents{contents}}, nil
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, sid string, params json.RawMessage) (any, *JSONRPCError) {
	var p CallToolParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, newError(JSONRPCInvalidParams, "invalid params")
		}
	}
	if p.Name == "" {
		return nil, newError(JSONRPCInvalidParams, "tool name is required")
	}

	result, rpcErr := d.bridge.Call(ctx, p.Name, p.Arguments)
	if rpcErr != nil {
		return nil, rpcErr
	}
	d.logger.Debug("tools/call complete", "session_id", sid, "tool_name", p.Name, "is_error", result.IsError)
	return result, nil
}

func (d *Dispatcher) sessionError(sid string, err error) *JSONRPCError {
	d.logger.Warn("session unavailable", "session_id", sid, "error", err)
	if errors.Is(err, session.ErrTooManySessions) {
		return newError(JSONRPCInternalError, "too many sessions")
	}
	return newError(JSONRPCInternalError, err.Error())
}

func errorResponse(id json.RawMessage, rpcErr *JSONRPCError) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
}

func jsonReply(resp *JSONRPCResponse) Reply {
	return Reply{Status: http.StatusOK, Body: resp}
}
