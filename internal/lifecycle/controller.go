// ABOUTME: Start/stop/status control loop for the local MCP HTTP listener.
// ABOUTME: Validates ports, probes for conflicts and rolls back failed starts.

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Lifecycle errors reported to the host application.
var (
	ErrInvalidPort    = errors.New("invalid port")
	ErrPrivilegedPort = errors.New("port is in the privileged range")
	ErrPortInUse      = errors.New("port in use")
	ErrAlreadyRunning = errors.New("server already running")
	ErrNotRunning     = errors.New("server not running")
	ErrBindFailed     = errors.New("failed to start server")
)

const (
	// DefaultStartupGrace bounds how long Start waits for the serve loop.
	DefaultStartupGrace = 500 * time.Millisecond

	// DefaultProbeTimeout bounds the port-in-use connect attempt.
	DefaultProbeTimeout = 300 * time.Millisecond

	// minUnprivilegedPort is the first port outside the reserved range.
	minUnprivilegedPort = 1024
)

// State is the controller's lifecycle state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// HandlerFactory builds the HTTP handler for one server instance. The
// returned cleanup func runs when the instance stops or fails to start.
type HandlerFactory func(port uint16, enabledTools []string) (http.Handler, func(), error)

// Config holds configuration for a Controller.
type Config struct {
	// Host is the bind address. Defaults to 127.0.0.1.
	Host         string
	StartupGrace time.Duration
	ProbeTimeout time.Duration
	NewHandler   HandlerFactory
	Logger       *slog.Logger
}

// Status is a point-in-time view of the controller.
type Status struct {
	Running bool
	// Port is set only while running.
	Port  *uint16
	State State
	// LastError describes the most recent failed start or serve exit.
	LastError string
}

// runtime is the state of one server instance.
type runtime struct {
	port    uint16
	server  *http.Server
	cleanup func()
	started chan struct{}
	done    chan struct{}
	exited  bool // guarded by Controller.stateMu
}

// Controller supervises at most one running server instance.
type Controller struct {
	host         string
	startupGrace time.Duration
	probeTimeout time.Duration
	newHandler   HandlerFactory
	logger       *slog.Logger

	// mu serializes Start and Stop.
	mu sync.Mutex

	stateMu   sync.RWMutex
	state     State
	rt        *runtime
	lastError string
}

// New creates a controller in the stopped state.
func New(cfg Config) (*Controller, error) {
	if cfg.NewHandler == nil {
		return nil, errors.New("handler factory is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	grace := cfg.StartupGrace
	if grace <= 0 {
		grace = DefaultStartupGrace
	}
	probe := cfg.ProbeTimeout
	if probe <= 0 {
		probe = DefaultProbeTimeout
	}

	return &Controller{
		host:         host,
		startupGrace: grace,
		probeTimeout: probe,
		newHandler:   cfg.NewHandler,
		logger:       logger.With("component", "lifecycle"),
		state:        StateStopped,
	}, nil
}

// ValidatePort rejects port 0 and the privileged range.
func ValidatePort(port uint16) error {
	if port == 0 {
		return fmt.Errorf("%w: 0", ErrInvalidPort)
	}
	if port < minUnprivilegedPort {
		return fmt.Errorf("%w: %d (use %d or above)", ErrPrivilegedPort, port, minUnprivilegedPort)
	}
	return nil
}

// Start brings up a server on port exposing enabledTools. It fails if a
// server is already running, if something already answers on the port, or
// if the bind fails. Any partial state is rolled back before returning.
func (c *Controller) Start(ctx context.Context, port uint16, enabledTools []string) error {
	if err := ValidatePort(port); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateRunning {
		return ErrAlreadyRunning
	}

	if !ProbePort(ctx, port, c.probeTimeout) {
		return c.fail(fmt.Errorf("%w: %d", ErrPortInUse, port))
	}

	c.setState(StateStarting)
	c.logger.Info("starting server", "host", c.host, "port", port, "enabled_tools", len(enabledTools))

	handler, cleanup, err := c.newHandler(port, enabledTools)
	if err != nil {
		return c.fail(fmt.Errorf("%w: building handler: %w", ErrBindFailed, err))
	}
	if cleanup == nil {
		cleanup = func() {}
	}

	addr := net.JoinHostPort(c.host, strconv.Itoa(int(port)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		cleanup()
		return c.fail(fmt.Errorf("%w: %w", ErrBindFailed, err))
	}

	rt := &runtime{
		port: port,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		cleanup: cleanup,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}

	c.stateMu.Lock()
	c.rt = rt
	c.stateMu.Unlock()

	go c.serve(rt, ln)

	timer := time.NewTimer(c.startupGrace)
	defer timer.Stop()
	select {
	case <-rt.started:
	case <-timer.C:
		_ = rt.server.Close()
		<-rt.done
		cleanup()
		return c.fail(fmt.Errorf("%w: serve loop did not start within %s", ErrBindFailed, c.startupGrace))
	}

	c.stateMu.Lock()
	if rt.exited {
		c.stateMu.Unlock()
		<-rt.done
		cleanup()
		return c.fail(fmt.Errorf("%w: server exited during startup", ErrBindFailed))
	}
	c.state = StateRunning
	c.lastError = ""
	c.stateMu.Unlock()

	c.logger.Info("server running", "addr", ln.Addr().String())
	return nil
}

func (c *Controller) serve(rt *runtime, ln net.Listener) {
	defer close(rt.done)

	close(rt.started)
	err := rt.server.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		c.logger.Error("server exited", "port", rt.port, "error", err)
	} else {
		err = nil
	}
	c.onServeExit(rt, err)
}

// onServeExit resets the controller when the current instance dies on its
// own. Exits caused by Stop or a failed Start are handled by those calls.
func (c *Controller) onServeExit(rt *runtime, err error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	rt.exited = true
	if c.rt != rt || c.state != StateRunning {
		return
	}
	c.state = StateStopped
	c.rt = nil
	if err != nil {
		c.lastError = err.Error()
	}
	go rt.cleanup()
}

// fail rolls back to Stopped and records err.
func (c *Controller) fail(err error) error {
	c.stateMu.Lock()
	c.state = StateStopped
	c.rt = nil
	c.lastError = err.Error()
	c.stateMu.Unlock()

	c.logger.Warn("start failed", "error", err)
	return err
}

// Stop closes the running server without draining in-flight requests.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stateMu.Lock()
	if c.state != StateRunning || c.rt == nil {
		c.stateMu.Unlock()
		return ErrNotRunning
	}
	rt := c.rt
	c.state = StateStopping
	c.stateMu.Unlock()

	c.logger.Info("stopping server", "port", rt.port)

	err := rt.server.Close()
	<-rt.done
	rt.cleanup()

	c.stateMu.Lock()
	c.state = StateStopped
	c.rt = nil
	c.stateMu.Unlock()

	if err != nil {
		return fmt.Errorf("closing server: %w", err)
	}
	c.logger.Info("server stopped", "port", rt.port)
	return nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Status reports whether a server is running and on which port.
func (c *Controller) Status() Status {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	st := Status{
		Running:   c.state == StateRunning,
		State:     c.state,
		LastError: c.lastError,
	}
	if st.Running && c.rt != nil {
		port := c.rt.port
		st.Port = &port
	}
	return st
}

// ProbePort reports whether port looks free on this controller's machine.
func (c *Controller) ProbePort(ctx context.Context, port uint16) bool {
	return ProbePort(ctx, port, c.probeTimeout)
}

// ProbePort reports whether port looks free: it is false for port 0 and
// when a TCP connect to 127.0.0.1:port succeeds within timeout. This is a
// best-effort check; the bind in Start is authoritative.
func ProbePort(ctx context.Context, port uint16, timeout time.Duration) bool {
	if port == 0 {
		return false
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		return true
	}
	_ = conn.Close()
	return false
}

func (c *Controller) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}
