// ABOUTME: Shared helpers for building builtin tool packs.
// ABOUTME: Tool constructors, argument decoding and text results.

package builtins

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/2389/hostmcp/internal/catalog"
)

func tool(name, description, schema string, h catalog.Handler) *catalog.Tool {
	return &catalog.Tool{
		Descriptor: catalog.ToolDescriptor{
			Name:        name,
			Description: description,
			InputSchema: json.RawMessage(schema),
		},
		Handler: h,
	}
}

func captureTool(name, description, schema string, h catalog.Handler) *catalog.Tool {
	t := tool(name, description, schema, h)
	t.Capture = true
	return t
}

// decodeArgs unmarshals tool arguments, treating empty input as {}.
func decodeArgs(args json.RawMessage, v any) error {
	args = bytes.TrimSpace(args)
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// textResult encodes a message shown to the agent as-is.
func textResult(msg string) (json.RawMessage, error) {
	return json.Marshal(msg)
}
