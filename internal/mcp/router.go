package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brindle/bursar-ai-agent/internal/events"
)

// connectTimeout bounds the spawn + handshake + discovery phase for a
// single server so one hung subprocess cannot stall startup.
const connectTimeout = 30 * time.Second

// Sentinel errors returned by the router's dispatch path. Callers
// branch with errors.Is.
var (
	// ErrToolNotFound means no connected server discovered the
	// requested tool name. Returned without any process I/O.
	ErrToolNotFound = errors.New("tool not found on any connected server")

	// ErrServerNotConnected means the owning server's session is not
	// in the connected state.
	ErrServerNotConnected = errors.New("server not connected")
)

// ServerConfig describes one configured MCP tool server. It is
// immutable once handed to the router; changing connection settings
// means building a new router.
type ServerConfig struct {
	// Name identifies the server in logs, the registry, and errors.
	Name string

	// Description is a human-readable summary of the server's tools,
	// surfaced in tool listings.
	Description string

	// Transport selects "stdio" or "http". Empty defaults to stdio
	// unless URL is set.
	Transport string

	// Command, Args, Dir, and Env configure a stdio subprocess server.
	Command string
	Args    []string
	Dir     string
	Env     map[string]string

	// URL and Headers configure an HTTP server.
	URL     string
	Headers map[string]string

	// IncludeTools and ExcludeTools filter which discovered tools are
	// registered. A non-empty include list registers only those names;
	// otherwise any name on the exclude list is skipped.
	IncludeTools []string
	ExcludeTools []string
}

// Fallback serves an allow-listed set of tools locally when their
// owning server cannot. Implementations must return the same payload
// shape the remote tool would.
type Fallback interface {
	// Handles reports whether name is in the local allow-list.
	Handles(name string) bool

	// Call executes the local implementation of name.
	Call(ctx context.Context, name string, args map[string]any) (string, error)
}

// RouterConfig bundles the router's dependencies. Everything is
// injected here; the router keeps no global state.
type RouterConfig struct {
	// Servers lists the MCP servers to connect, in precedence order:
	// when two servers export the same tool name, the one listed
	// first wins.
	Servers []ServerConfig

	// Logger receives connection and dispatch diagnostics.
	Logger *slog.Logger

	// Fallback optionally serves allow-listed tools locally when the
	// owning server is unavailable or errors.
	Fallback Fallback

	// Bus optionally receives operational events. May be nil.
	Bus *events.Bus
}

// session binds one server config to its client and lifecycle state.
// All mutable fields are guarded by the router's mutex.
type session struct {
	config ServerConfig
	client *Client
	state  SessionState
	err    error
	tools  []ToolDefinition
	names  map[string]bool
}

// Router is the unified MCP client: it owns one session per configured
// server, a registry mapping tool names to their owning server, and
// the dispatch logic that routes a tool call to the right place.
//
// Connection is lazy: the first Call connects every configured server
// and remembers the outcome, including per-server failures. A server
// that fails its handshake is logged and skipped; its tools are simply
// absent from the registry. There is no reconnection.
type Router struct {
	logger   *slog.Logger
	fallback Fallback
	bus      *events.Bus

	// newTransport builds the transport for a server config.
	// Replaced in tests to inject fakes.
	newTransport func(cfg ServerConfig, logger *slog.Logger) Transport

	connectOnce sync.Once

	mu       sync.RWMutex
	sessions []*session // config order = resolution precedence
}

// NewRouter creates a router for the given configuration. No
// connections are made until Connect or the first Call.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		logger:       logger,
		fallback:     cfg.Fallback,
		bus:          cfg.Bus,
		newTransport: defaultTransport,
	}
	for _, sc := range cfg.Servers {
		r.sessions = append(r.sessions, &session{
			config: sc,
			names:  make(map[string]bool),
		})
	}
	return r
}

// defaultTransport picks the transport implementation for a server.
func defaultTransport(cfg ServerConfig, logger *slog.Logger) Transport {
	if cfg.Transport == "http" || (cfg.Transport == "" && cfg.URL != "") {
		return NewHTTPTransport(cfg, logger)
	}
	return NewStdioTransport(cfg, logger)
}

// Connect establishes sessions with every configured server, in order.
// Individual failures are logged and recorded but do not abort the
// rest; the only error returned is context cancellation. Safe to call
// more than once, connection happens exactly once.
func (r *Router) Connect(ctx context.Context) error {
	r.connectOnce.Do(func() {
		for _, sess := range r.sessions {
			if ctx.Err() != nil {
				return
			}
			r.connectServer(ctx, sess)
		}
	})
	return ctx.Err()
}

// connectServer runs the full connect sequence for one server:
// spawn + initialize handshake, then tool discovery. The session ends
// up Connected (possibly with zero tools) or Failed.
func (r *Router) connectServer(ctx context.Context, sess *session) {
	name := sess.config.Name
	r.setState(sess, StateConnecting)

	transport := r.newTransport(sess.config, r.logger)
	client := NewClient(name, transport, r.logger)

	initCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err := client.Initialize(initCtx)
	cancel()
	if err != nil {
		r.setFailed(sess, err)
		r.logger.Warn("MCP server connection failed",
			"server", name,
			"error", err,
		)
		r.publish(events.KindServerFailed, map[string]any{
			"server": name,
			"error":  err.Error(),
		})
		client.Close()
		return
	}

	r.mu.Lock()
	sess.client = client
	sess.state = StateConnected
	r.mu.Unlock()

	listCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	tools, err := client.ListTools(listCtx)
	cancel()
	if err != nil {
		// The session stays connected but contributes nothing to the
		// registry. Other servers are unaffected.
		r.logger.Warn("MCP tool discovery failed",
			"server", name,
			"error", err,
		)
		return
	}

	tools = filterTools(tools, sess.config.IncludeTools, sess.config.ExcludeTools)

	r.register(sess, tools)
	r.publish(events.KindServerConnected, map[string]any{
		"server": name,
		"tools":  len(tools),
	})
	r.logger.Info("MCP server connected", "server", name, "tools", len(tools))
}

// filterTools applies a server's include/exclude lists to its
// discovered tools. A non-empty include list is authoritative; the
// exclude list only applies when include is empty.
func filterTools(defs []ToolDefinition, include, exclude []string) []ToolDefinition {
	if len(include) == 0 && len(exclude) == 0 {
		return defs
	}
	includeSet := toSet(include)
	excludeSet := toSet(exclude)

	out := make([]ToolDefinition, 0, len(defs))
	for _, td := range defs {
		if len(includeSet) > 0 {
			if !includeSet[td.Name] {
				continue
			}
		} else if excludeSet[td.Name] {
			continue
		}
		out = append(out, td)
	}
	return out
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// register replaces a session's registry entries with the given tool
// list. Re-registering the same server is idempotent. A name already
// claimed by an earlier-configured server is logged, and the earlier
// server keeps winning resolution.
func (r *Router) register(sess *session, defs []ToolDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make(map[string]bool, len(defs))
	for _, td := range defs {
		for _, other := range r.sessions {
			if other == sess {
				break
			}
			if other.names[td.Name] {
				r.logger.Warn("duplicate tool name, earlier server takes precedence",
					"tool", td.Name,
					"server", sess.config.Name,
					"shadowed_by", other.config.Name,
				)
				break
			}
		}
		names[td.Name] = true
	}
	sess.tools = defs
	sess.names = names
}

func (r *Router) setState(sess *session, st SessionState) {
	r.mu.Lock()
	sess.state = st
	r.mu.Unlock()
}

func (r *Router) setFailed(sess *session, err error) {
	r.mu.Lock()
	sess.state = StateFailed
	sess.err = err
	r.mu.Unlock()
}

// lookup finds the session owning a tool name, scanning in
// configuration order so the first registered server wins.
func (r *Router) lookup(name string) (cli *Client, server string, st SessionState, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sess := range r.sessions {
		if sess.names[name] {
			return sess.client, sess.config.Name, sess.state, true
		}
	}
	return nil, "", StateDisconnected, false
}

// Resolve returns the name of the server that owns the given tool.
func (r *Router) Resolve(name string) (string, bool) {
	_, server, _, ok := r.lookup(name)
	return server, ok
}

// ToolInfo is a registered tool annotated with its owning server.
type ToolInfo struct {
	ToolDefinition
	Server            string `json:"server"`
	ServerDescription string `json:"server_description,omitempty"`
}

// Describe returns the definition of a registered tool together with
// the server that provides it.
func (r *Router) Describe(name string) (*ToolInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sess := range r.sessions {
		if !sess.names[name] {
			continue
		}
		for _, td := range sess.tools {
			if td.Name == name {
				return &ToolInfo{
					ToolDefinition:    td,
					Server:            sess.config.Name,
					ServerDescription: sess.config.Description,
				}, nil
			}
		}
	}
	return nil, fmt.Errorf("tool %q: %w", name, ErrToolNotFound)
}

// ServerTools groups a server's discovered tools for listings.
type ServerTools struct {
	Server      string           `json:"server"`
	Description string           `json:"description,omitempty"`
	Tools       []ToolDefinition `json:"tools"`
}

// ToolsByServer returns every server's discovered tools in
// configuration order. Servers that connected but discovered nothing
// appear with an empty list; failed servers appear the same way.
func (r *Router) ToolsByServer() []ServerTools {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServerTools, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, ServerTools{
			Server:      sess.config.Name,
			Description: sess.config.Description,
			Tools:       sess.tools,
		})
	}
	return out
}

// ServerStatus is a point-in-time view of one session for status
// surfaces (test_connection, the tools CLI).
type ServerStatus struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	State       string `json:"state"`
	Tools       int    `json:"tools"`
	Error       string `json:"error,omitempty"`
}

// Status reports every session's state in configuration order.
func (r *Router) Status() []ServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServerStatus, 0, len(r.sessions))
	for _, sess := range r.sessions {
		st := ServerStatus{
			Name:        sess.config.Name,
			Description: sess.config.Description,
			State:       sess.state.String(),
			Tools:       len(sess.tools),
		}
		if sess.err != nil {
			st.Error = sess.err.Error()
		}
		out = append(out, st)
	}
	return out
}

// Call dispatches a tool call to the server that owns the name.
//
// Unknown names fail synchronously with ErrToolNotFound, before any
// process I/O happens. The allow-listed fallback tools are the
// exception: for those, an unknown name, an unconnected owner, or a
// failed remote call all divert to the local implementation with a
// logged warning.
// All other errors propagate to the caller unchanged; there are no
// retries and no reconnection.
func (r *Router) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	if err := r.Connect(ctx); err != nil {
		return "", err
	}

	cli, server, st, ok := r.lookup(name)
	if !ok {
		if r.fallback != nil && r.fallback.Handles(name) {
			r.logger.Warn("tool not registered on any server, using local fallback", "tool", name)
			r.publish(events.KindFallbackUsed, map[string]any{"tool": name, "reason": "unregistered"})
			return r.fallback.Call(ctx, name, args)
		}
		return "", fmt.Errorf("tool %q: %w", name, ErrToolNotFound)
	}

	if st != StateConnected {
		if r.fallback != nil && r.fallback.Handles(name) {
			r.logger.Warn("server unavailable, using local fallback",
				"tool", name,
				"server", server,
				"state", st.String(),
			)
			r.publish(events.KindFallbackUsed, map[string]any{"tool": name, "reason": "server_" + st.String()})
			return r.fallback.Call(ctx, name, args)
		}
		return "", fmt.Errorf("server %s: %w", server, ErrServerNotConnected)
	}

	r.publish(events.KindToolCall, map[string]any{"tool": name, "server": server})
	start := time.Now()

	text, err := cli.CallTool(ctx, name, args)
	if err != nil {
		if r.fallback != nil && r.fallback.Handles(name) {
			r.logger.Warn("tool call failed, using local fallback",
				"tool", name,
				"server", server,
				"error", err,
			)
			r.publish(events.KindFallbackUsed, map[string]any{"tool": name, "reason": "call_failed"})
			return r.fallback.Call(ctx, name, args)
		}
		r.publish(events.KindToolDone, map[string]any{
			"tool": name, "server": server, "ok": false,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return "", err
	}

	r.publish(events.KindToolDone, map[string]any{
		"tool": name, "server": server, "ok": true,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return text, nil
}

// Close terminates every session. Best-effort: all clients are closed
// even if some return errors.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, sess := range r.sessions {
		if sess.client != nil {
			if err := sess.client.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", sess.config.Name, err))
			}
			sess.client = nil
		}
		sess.state = StateDisconnected
	}
	return errors.Join(errs...)
}

// publish emits a router event onto the bus, if one is attached.
func (r *Router) publish(kind string, data map[string]any) {
	r.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceRouter,
		Kind:      kind,
		Data:      data,
	})
}
