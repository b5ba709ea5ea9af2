// Package session tracks MCP client sessions for a running server instance.
//
// # Overview
//
// A session is created by the initialize handshake and holds the capability
// snapshot negotiated at that time. The store is a single RWMutex-guarded map:
// lookups take the read lock, creation and mutation take the write lock, and
// no lock is ever held while a tool runs.
//
// Session state is not persisted. Each server start gets a fresh store.
//
// # Default Session
//
// Clients that never send an Mcp-Session-Id header share the well-known
// session [DefaultID]. The store itself is keyed by id and supports any number
// of concurrent sessions.
//
// # Expiry
//
// When Config.Timeout is non-zero a background reaper removes sessions whose
// last activity is older than the timeout. Call Close to stop it.
package session
