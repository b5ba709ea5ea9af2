// Package mcp implements the Model Context Protocol server for local agents.
//
// # Overview
//
// MCP (Model Context Protocol) is a standard for AI tool integration. This
// package exposes a host application's tools and resources to agent clients
// over JSON-RPC 2.0 using the Streamable HTTP transport:
//
//   - POST /mcp - JSON-RPC requests, single or batched
//   - GET /mcp - server-push event stream (heartbeat pings and notifications)
//   - DELETE /mcp - terminate the session named by Mcp-Session-Id
//
// Notifications (requests without an id) are answered with 202 Accepted and
// no body.
//
// # Sessions
//
// initialize snapshots the exposed tools and resources onto the session and
// returns the session id both in the Mcp-Session-Id header and in the result.
// Clients that never send the header share the "default" session. With
// Config.Isolated set, each header-less initialize gets its own session.
//
// # Tool Execution
//
// Clients call tools/call to execute a tool:
//
//	{
//	  "jsonrpc": "2.0",
//	  "method": "tools/call",
//	  "params": {
//	    "name": "browser_navigate",
//	    "arguments": {"url": "https://example.com"}
//	  },
//	  "id": 2
//	}
//
// The [Bridge] checks the tool's required arguments and invokes its handler.
// A failing handler still yields a successful JSON-RPC result: the error text
// is returned as content with isError set, so the agent can read it and adapt.
//
// # Architecture
//
// Components:
//
//   - Server: HTTP transport, CORS and the event stream endpoint
//   - Dispatcher: envelope parsing and method routing
//   - Bridge: tool invocation and result rendering
//   - Publisher: per-session event streams
//
// # Usage
//
//	srv, err := mcp.NewServer(mcp.Config{Registry: registry})
//	if err != nil {
//		return err
//	}
//	defer srv.Close()
//	http.ListenAndServe("127.0.0.1:37650", srv.Handler())
package mcp
