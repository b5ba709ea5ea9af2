// ABOUTME: Tool invocation bridge between tools/call and collaborator handlers.
// ABOUTME: Validates required arguments and renders results as MCP content blocks.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/hostmcp/internal/catalog"
)

// screenshotUnavailable is shown when a capture tool returns no image data.
const screenshotUnavailable = "Screenshot captured but data not available"

// Bridge dispatches tool calls to the handlers of the exposed tools. The
// dispatch table is built from the same tool list that drives tools/list.
type Bridge struct {
	tools    map[string]*catalog.Tool
	required map[string][]string
	logger   *slog.Logger
}

// NewBridge builds the dispatch table for the given tools.
func NewBridge(tools []*catalog.Tool, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		tools:    make(map[string]*catalog.Tool, len(tools)),
		required: make(map[string][]string, len(tools)),
		logger:   logger,
	}
	for _, t := range tools {
		b.tools[t.Descriptor.Name] = t
		b.required[t.Descriptor.Name] = requiredArguments(t.Descriptor.InputSchema)
	}
	return b
}

// requiredArguments extracts the "required" list of an object schema.
func requiredArguments(schema json.RawMessage) []string {
	var s struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schema, &s); err != nil {
		return nil
	}
	return s.Required
}

// Call invokes a tool. Collaborator failures come back as a result with
// IsError set; only malformed requests produce a JSON-RPC error.
func (b *Bridge) Call(ctx context.Context, name string, args json.RawMessage) (*CallToolResult, *JSONRPCError) {
	args = bytes.TrimSpace(args)
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	var argMap map[string]json.RawMessage
	if err := json.Unmarshal(args, &argMap); err != nil {
		return nil, newError(JSONRPCInvalidParams, "arguments must be a JSON object")
	}

	tool, ok := b.tools[name]
	if !ok {
		b.logger.Info("call to unknown tool", "tool_name", name)
		return &CallToolResult{
			Content: []Content{TextContent(fmt.Sprintf("Tool '%s' is not yet implemented", name))},
		}, nil
	}

	var missing []string
	for _, req := range b.required[name] {
		if v, present := argMap[req]; !present || string(v) == "null" {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		rpcErr := newError(JSONRPCInvalidParams, fmt.Sprintf("missing required argument: %s", strings.Join(missing, ", ")))
		rpcErr.Data = map[string]any{"tool": name, "missing": missing}
		return nil, rpcErr
	}

	requestID := uuid.New().String()
	b.logger.Debug("tools/call", "tool_name", name, "request_id", requestID)

	out, err := b.invoke(ctx, tool, args)
	var pe *panicError
	if errors.As(err, &pe) {
		b.logger.Error("tool handler panicked", "tool_name", name, "request_id", requestID, "panic", pe.Error())
		return nil, newError(JSONRPCInternalError, "Internal error")
	}
	if err != nil {
		b.logger.Warn("tool execution failed", "tool_name", name, "request_id", requestID, "error", err)
		return &CallToolResult{
			Content: []Content{TextContent(fmt.Sprintf("Error: %v", err))},
			IsError: true,
		}, nil
	}

	if tool.Capture {
		return &CallToolResult{Content: []Content{imageBlock(out)}}, nil
	}
	return &CallToolResult{Content: []Content{TextContent(renderText(out))}}, nil
}

// panicError carries a recovered handler panic.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// invoke runs the handler, converting a panic into a *panicError.
func (b *Bridge) invoke(ctx context.Context, tool *catalog.Tool, args json.RawMessage) (out json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, &panicError{value: rec}
		}
	}()
	return tool.Handler(ctx, args)
}

// renderText shows a JSON string as-is and pretty-prints anything else.
func renderText(out json.RawMessage) string {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(out, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, out, "", "  "); err != nil {
		return string(out)
	}
	return buf.String()
}

// imageBlock converts a capture result to an image block. The result is
// either a string (a data URL or bare base64) or an object carrying "data"
// and optionally "mimeType".
func imageBlock(out json.RawMessage) Content {
	var data, mimeType string

	var s string
	if err := json.Unmarshal(out, &s); err == nil {
		data = s
	} else {
		var obj struct {
			Data     string `json:"data"`
			MimeType string `json:"mimeType"`
		}
		if err := json.Unmarshal(out, &obj); err == nil {
			data, mimeType = obj.Data, obj.MimeType
		}
	}

	if data == "" {
		return TextContent(screenshotUnavailable)
	}

	data, detected := splitDataURL(data)
	if mimeType == "" {
		mimeType = detected
	}
	return ImageContent(data, mimeType)
}

// splitDataURL strips a data-URL prefix and reports the image type. Bare
// base64 is assumed to be JPEG.
func splitDataURL(data string) (string, string) {
	for _, mimeType := range []string{"image/jpeg", "image/png"} {
		prefix := "data:" + mimeType + ";base64,"
		if rest, ok := strings.CutPrefix(data, prefix); ok {
			return rest, mimeType
		}
	}
	return data, "image/jpeg"
}
