// ABOUTME: Per-session server-push event streams with heartbeat pings.
// ABOUTME: Fans out JSON-RPC notifications to every open GET stream.

package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/hostmcp/internal/session"
)

const (
	// DefaultHeartbeatInterval is the ping period for open streams.
	DefaultHeartbeatInterval = 30 * time.Second

	// subscriberBufferSize is the notification backlog per stream.
	subscriberBufferSize = 64
)

// Event is one server-sent event.
type Event struct {
	ID   uint64
	Name string
	Data json.RawMessage
}

var pingData = json.RawMessage(`{}`)

// Publisher owns the open event streams. Each stream emits a ping on every
// heartbeat and a "message" event for each notification published to its
// session. Event ids increase by one per emission on a stream.
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan json.RawMessage // sessionID -> subID -> inbox
	heartbeat   time.Duration
	sessions    *session.Store
	logger      *slog.Logger

	done   chan struct{}
	closed bool
}

// NewPublisher creates a publisher. sessions may be nil, in which case event
// ids are not recorded on sessions.
func NewPublisher(heartbeat time.Duration, sessions *session.Store, logger *slog.Logger) *Publisher {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		subscribers: make(map[string]map[string]chan json.RawMessage),
		heartbeat:   heartbeat,
		sessions:    sessions,
		logger:      logger.With("component", "stream"),
		done:        make(chan struct{}),
	}
}

// Open starts a stream for a session. Ids continue from lastEventID. The
// returned channel is closed when ctx is cancelled or the publisher closes.
func (p *Publisher) Open(ctx context.Context, sessionID string, lastEventID uint64) <-chan Event {
	subID := uuid.New().String()
	inbox := make(chan json.RawMessage, subscriberBufferSize)
	out := make(chan Event)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		close(out)
		return out
	}
	if _, ok := p.subscribers[sessionID]; !ok {
		p.subscribers[sessionID] = make(map[string]chan json.RawMessage)
	}
	p.subscribers[sessionID][subID] = inbox
	p.mu.Unlock()

	p.logger.Debug("stream opened", "session_id", sessionID, "sub_id", subID, "last_event_id", lastEventID)

	go p.pump(ctx, sessionID, subID, inbox, out, lastEventID)
	return out
}

func (p *Publisher) pump(ctx context.Context, sessionID, subID string, inbox <-chan json.RawMessage, out chan<- Event, lastID uint64) {
	defer close(out)
	defer p.unsubscribe(sessionID, subID)

	ticker := time.NewTicker(p.heartbeat)
	defer ticker.Stop()

	emit := func(name string, data json.RawMessage) bool {
		lastID++
		select {
		case out <- Event{ID: lastID, Name: name, Data: data}:
		case <-ctx.Done():
			return false
		case <-p.done:
			return false
		}
		if p.sessions != nil {
			id := lastID
			_, _ = p.sessions.Update(sessionID, func(s *session.Session) { s.LastEventID = id })
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			if !emit("ping", pingData) {
				return
			}
		case msg := <-inbox:
			if !emit("message", msg) {
				return
			}
		}
	}
}

func (p *Publisher) unsubscribe(sessionID, subID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs, ok := p.subscribers[sessionID]
	if !ok {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(p.subscribers, sessionID)
	}

	p.logger.Debug("stream closed", "session_id", sessionID, "sub_id", subID)
}

// Notify pushes a JSON-RPC notification to every stream of one session.
func (p *Publisher) Notify(sessionID, method string, params any) {
	msg, ok := p.encode(method, params)
	if !ok {
		return
	}

	p.mu.RLock()
	targets := make([]chan json.RawMessage, 0, len(p.subscribers[sessionID]))
	for _, inbox := range p.subscribers[sessionID] {
		targets = append(targets, inbox)
	}
	p.mu.RUnlock()

	p.deliver(targets, method, msg)
}

// Broadcast pushes a JSON-RPC notification to every open stream.
func (p *Publisher) Broadcast(method string, params any) {
	msg, ok := p.encode(method, params)
	if !ok {
		return
	}

	p.mu.RLock()
	var targets []chan json.RawMessage
	for _, subs := range p.subscribers {
		for _, inbox := range subs {
			targets = append(targets, inbox)
		}
	}
	p.mu.RUnlock()

	p.deliver(targets, method, msg)
}

func (p *Publisher) encode(method string, params any) (json.RawMessage, bool) {
	msg, err := json.Marshal(JSONRPCNotification{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		p.logger.Error("encoding notification", "method", method, "error", err)
		return nil, false
	}
	return msg, true
}

// deliver never blocks: a stream with a full backlog misses the message.
func (p *Publisher) deliver(targets []chan json.RawMessage, method string, msg json.RawMessage) {
	for _, inbox := range targets {
		select {
		case inbox <- msg:
		default:
			p.logger.Debug("dropped notification for slow stream", "method", method)
		}
	}
}

// Streams returns the number of open streams.
func (p *Publisher) Streams() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, subs := range p.subscribers {
		n += len(subs)
	}
	return n
}

// Close ends every open stream. It is safe to call multiple times.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.done)
		p.closed = true
	}
}
