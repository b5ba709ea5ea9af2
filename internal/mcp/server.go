// ABOUTME: Streamable HTTP transport for the MCP dispatcher.
// ABOUTME: Serves POST, GET (event stream) and DELETE on one endpoint with CORS.

package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"

	"github.com/2389/hostmcp/internal/catalog"
	"github.com/2389/hostmcp/internal/session"
)

// DefaultPath is the endpoint served when Config.Path is empty.
const DefaultPath = "/mcp"

// CORSConfig controls cross-origin access to the endpoint.
type CORSConfig struct {
	Enabled bool
	// AllowedOrigins restricts origins. Empty allows any origin.
	AllowedOrigins []string
}

// Config holds configuration for the MCP server.
type Config struct {
	Registry     *catalog.Registry
	EnabledTools []string
	Sessions     session.Config
	// Isolated mints a new session for each header-less initialize.
	Isolated          bool
	ServerName        string
	ServerVersion     string
	Path              string
	HeartbeatInterval time.Duration
	CORS              CORSConfig
	Logger            *slog.Logger
}

// Server implements the MCP Streamable HTTP endpoint for local agents.
type Server struct {
	dispatcher *Dispatcher
	sessions   *session.Store
	publisher  *Publisher
	isolated   bool
	path       string
	cors       CORSConfig
	logger     *slog.Logger
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcp")

	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}

	sessCfg := cfg.Sessions
	if sessCfg.Logger == nil {
		sessCfg.Logger = logger
	}
	sessions := session.NewStore(sessCfg)

	dispatcher, err := NewDispatcher(DispatcherConfig{
		Registry:      cfg.Registry,
		Sessions:      sessions,
		EnabledTools:  cfg.EnabledTools,
		Isolated:      cfg.Isolated,
		ServerName:    cfg.ServerName,
		ServerVersion: cfg.ServerVersion,
		Logger:        logger,
	})
	if err != nil {
		sessions.Close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	return &Server{
		dispatcher: dispatcher,
		sessions:   sessions,
		publisher:  NewPublisher(cfg.HeartbeatInterval, sessions, logger),
		isolated:   cfg.Isolated,
		path:       path,
		cors:       cfg.CORS,
		logger:     logger,
	}, nil
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(s.path, s.handleMCP)
}

// Handler returns the endpoint wrapped in the configured CORS policy.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	if !s.cors.Enabled {
		return mux
	}

	origins := s.cors.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{SessionIDHeader, ProtocolVersionHeader},
	}).Handler(mux)
}

// Dispatcher returns the server's dispatcher.
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Sessions returns the server's session store.
func (s *Server) Sessions() *session.Store {
	return s.sessions
}

// Publisher returns the server's event stream publisher.
func (s *Server) Publisher() *Publisher {
	return s.publisher
}

// Close ends open streams and stops the session reaper.
func (s *Server) Close() {
	s.publisher.Close()
	s.sessions.Close()
}

// handleMCP is the single MCP endpoint supporting POST, GET, and DELETE.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleStream(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost processes JSON-RPC messages sent via HTTP POST.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if !isJSONContentType(r.Header.Get("Content-Type")) {
		s.logger.Debug("rejected POST content type", "content_type", r.Header.Get("Content-Type"))
		s.writeReply(w, jsonReply(errorResponse(nil, newError(JSONRPCParseError, "Parse error: Content-Type must be application/json"))))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.writeReply(w, jsonReply(errorResponse(nil, newError(JSONRPCParseError, "failed to read request body"))))
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.writeReply(w, jsonReply(errorResponse(nil, newError(JSONRPCInvalidRequest, "request body too large"))))
		return
	}

	reply := s.dispatcher.Handle(r.Context(), Inbound{
		SessionID:       r.Header.Get(SessionIDHeader),
		ProtocolVersion: r.Header.Get(ProtocolVersionHeader),
		Body:            body,
	})
	s.writeReply(w, reply)
}

// isJSONContentType accepts an absent header or an application/json media
// type with any parameters.
func isJSONContentType(header string) bool {
	if header == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

func (s *Server) writeReply(w http.ResponseWriter, reply Reply) {
	if reply.SessionID != "" {
		w.Header().Set(SessionIDHeader, reply.SessionID)
	}
	if reply.HTTPError != "" {
		http.Error(w, reply.HTTPError, reply.Status)
		return
	}
	if reply.Body == nil {
		w.WriteHeader(reply.Status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	if err := json.NewEncoder(w).Encode(reply.Body); err != nil {
		s.logger.Error("failed to encode JSON-RPC response", "error", err)
	}
}

// streamSession resolves the session addressed by a GET or DELETE.
func (s *Server) streamSession(r *http.Request) (string, int) {
	sid := r.Header.Get(SessionIDHeader)
	if sid == "" {
		if s.isolated {
			return "", http.StatusBadRequest
		}
		return session.DefaultID, http.StatusOK
	}
	if _, ok := s.sessions.Get(sid); !ok {
		return "", http.StatusNotFound
	}
	return sid, http.StatusOK
}

// handleStream serves the server-push event stream for a session.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sid, status := s.streamSession(r)
	switch status {
	case http.StatusBadRequest:
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	case http.StatusNotFound:
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var lastEventID uint64
	if v := r.Header.Get(lastEventIDHeader); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "Bad Request: invalid Last-Event-ID", http.StatusBadRequest)
			return
		}
		lastEventID = parsed
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	if sid != session.DefaultID {
		w.Header().Set(SessionIDHeader, sid)
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Info("event stream opened", "session_id", sid, "last_event_id", lastEventID)

	for ev := range s.publisher.Open(r.Context(), sid, lastEventID) {
		if err := writeSSEEvent(w, ev); err != nil {
			s.logger.Debug("event stream write failed", "session_id", sid, "error", err)
			break
		}
		flusher.Flush()
	}

	s.logger.Info("event stream closed", "session_id", sid)
}

// writeSSEEvent writes one event in text/event-stream framing.
func writeSSEEvent(w io.Writer, ev Event) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Name, ev.Data)
	return err
}

// handleDelete terminates a session.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(SessionIDHeader)
	if sid == "" {
		if s.isolated {
			http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
			return
		}
		sid = session.DefaultID
	}

	if !s.sessions.Remove(sid) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	s.logger.Info("MCP session terminated", "session_id", sid)
	w.WriteHeader(http.StatusOK)
}
