// Package lifecycle supervises the MCP server inside a host process.
//
// # Overview
//
// A [Controller] brings one HTTP server instance up and down on request:
//
//	stopped -> starting -> running -> stopping -> stopped
//
// A failed start returns to stopped with its partial state rolled back.
// Start and Stop are not idempotent: starting twice or stopping a stopped
// controller is reported as an error so host programming mistakes surface.
//
// # Port Checks
//
// Start rejects port 0 and ports below 1024 before any socket work, then
// probes the port with a short TCP connect. A successful connect means
// another process already listens there. The bind that follows is the
// authoritative check.
//
// # Stopping
//
// Stop closes the listener and every open connection immediately. In-flight
// requests and open event streams are cut off; tool handlers are expected to
// honour their request context.
package lifecycle
