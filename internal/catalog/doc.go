// Package catalog is the capability registry for the MCP server.
//
// # Overview
//
// A host build compiles in one static, ordered catalogue of tools and
// resources. Tools arrive in packs: each [Pack] groups [Tool] values that
// pair a wire-level [ToolDescriptor] with the handler that executes it.
// Keeping the descriptor and the handler on the same value means the list a
// client sees through tools/list and the dispatch table used by tools/call are
// derived from the same source and cannot drift apart.
//
// # Allowlist Filtering
//
// The operator restricts what is exposed with an allowlist of tool names:
//
//	tools := registry.AvailableTools(nil)                 // whole catalogue
//	tools = registry.AvailableTools([]string{"ping_me"}) // only ping_me, if registered
//
// An empty allowlist exposes everything. Unknown names are ignored. The result
// always follows catalogue order, never allowlist order.
//
// # Resources
//
// Fixed resources are addressed by URI and read through a [ResourceReader].
// Resource templates use RFC 6570 URI templates (for example
// "cache://projects/{project_id}/issues") and receive the expanded variables.
package catalog
