package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	mcpspec "github.com/mark3labs/mcp-go/mcp"

	"github.com/stacklok/mcpx/pkg/auth"
	"github.com/stacklok/mcpx/pkg/config"
	"github.com/stacklok/mcpx/pkg/errors"
	"github.com/stacklok/mcpx/pkg/local"
	"github.com/stacklok/mcpx/pkg/logger"
	"github.com/stacklok/mcpx/pkg/mcp"
	"github.com/stacklok/mcpx/pkg/process"
	"github.com/stacklok/mcpx/pkg/state"
)

const (
	// ToolsCacheTTL is how long a fetched tool list stays valid.
	ToolsCacheTTL = 300 * time.Second

	// acceptPollInterval bounds each accept call so the loop can observe
	// the running flag promptly after a signal.
	acceptPollInterval = time.Second

	connTimeout = 30 * time.Second
)

// ServerInfo is one entry in the servers listing.
type ServerInfo struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	HasAuth bool   `json:"has_auth"`
}

type cachedTools struct {
	tools   []mcpspec.Tool
	expires time.Time
}

// Daemon owns the warm per-server state. The accept loop services one
// connection at a time, so the maps below are only ever touched from the
// loop goroutine and need no locking; adding concurrency later requires
// per-key locking or message passing to the owning loop instead of shared
// mutation.
type Daemon struct {
	config       *config.Config
	store        *state.Store
	clients      map[string]*mcp.Client
	sessions     *mcp.MemorySessionStore
	tokens       *auth.Cache
	toolsCache   map[string]*cachedTools
	localManager *local.Manager

	running     atomic.Bool
	listener    *net.UnixListener
	socketPath  string
	started     time.Time
	cleanupOnce sync.Once
}

// New loads the configuration and builds a daemon ready to run.
func New() (*Daemon, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	store, err := state.New()
	if err != nil {
		return nil, err
	}
	return &Daemon{
		config:       cfg,
		store:        store,
		clients:      make(map[string]*mcp.Client),
		sessions:     mcp.NewMemorySessionStore(),
		tokens:       auth.NewCache(store),
		toolsCache:   make(map[string]*cachedTools),
		localManager: local.NewManager(),
	}, nil
}

// Run binds the socket and services connections until a shutdown command or
// termination signal. Cleanup of the socket, PID file, local servers, and
// warm connections happens on every exit path.
func (d *Daemon) Run(ctx context.Context) error {
	socketPath, err := process.SocketPath()
	if err != nil {
		return err
	}
	d.socketPath = socketPath

	// A previous unclean shutdown can leave the socket file behind; a live
	// daemon would still hold the bind, so removal here is safe only after
	// the liveness check done by the starter.
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: socketPath, Net: "unix"})
	if err != nil {
		return fmt.Errorf("failed to bind socket %s: %w", socketPath, err)
	}
	d.listener = listener
	if err := os.Chmod(socketPath, 0600); err != nil {
		logger.Warnf("failed to restrict socket permissions: %v", err)
	}

	if err := process.WriteCurrentPIDFile(); err != nil {
		d.cleanup()
		return err
	}

	d.running.Store(true)
	d.started = time.Now()
	defer d.cleanup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Infof("received %v, shutting down", sig)
			d.running.Store(false)
		case <-ctx.Done():
			d.running.Store(false)
		}
	}()

	logger.Infof("daemon started (pid %d, socket %s)", os.Getpid(), socketPath)
	d.startLocalServers(ctx)

	for d.running.Load() {
		if err := listener.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
			logger.Errorf("failed to set accept deadline: %v", err)
			break
		}
		conn, err := listener.Accept()
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			if d.running.Load() {
				logger.Errorf("accept failed: %v", err)
			}
			continue
		}
		// One connection at a time; warm state is only touched here.
		d.handleConnection(ctx, conn)
	}

	logger.Infof("daemon stopped")
	return nil
}

// cleanup is idempotent and safe on every exit path.
func (d *Daemon) cleanup() {
	d.cleanupOnce.Do(func() {
		d.localManager.StopAll()
		d.clients = make(map[string]*mcp.Client)
		d.toolsCache = make(map[string]*cachedTools)
		if d.listener != nil {
			_ = d.listener.Close()
		}
		if d.socketPath != "" {
			_ = os.Remove(d.socketPath)
		}
		if err := process.RemovePIDFile(); err != nil {
			logger.Warnf("failed to remove PID file: %v", err)
		}
	})
}

func (d *Daemon) startLocalServers(ctx context.Context) {
	for name, cfg := range d.config.Servers {
		if cfg.Local == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		logger.Infof("starting local server %q", name)
		serverCfg := cfg
		if err := d.localManager.StartServer(name, &serverCfg); err != nil {
			logger.Errorf("failed to start local server %q: %v", name, err)
		}
	}
}

// handleConnection reads one command document, dispatches it, and writes
// exactly one response document.
func (d *Daemon) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	start := time.Now()

	if err := conn.SetDeadline(time.Now().Add(connTimeout)); err != nil {
		logger.Warnf("failed to set connection deadline: %v", err)
	}

	var cmd Command
	// Streaming decode gives unambiguous single-document framing on the
	// socket without length prefixes.
	if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
		logger.Errorf("failed to parse command: %v", err)
		d.reply(conn, ErrResponse(errors.CodeParseError, fmt.Sprintf("malformed command: %v", err)))
		return
	}

	resp := d.dispatch(ctx, cmd)
	d.logRequest(cmd, resp, time.Since(start))
	d.reply(conn, resp)
}

func (*Daemon) reply(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		logger.Errorf("failed to write response: %v", err)
	}
}

func (*Daemon) logRequest(cmd Command, resp Response, elapsed time.Duration) {
	if cmd.Action == "ping" {
		return
	}
	status := "ok"
	if !resp.OK {
		status = "error"
	}
	logger.Infof("%s action=%s server=%s tool=%s elapsed=%s",
		status, cmd.Action, cmd.Server, cmd.Tool, elapsed.Round(time.Millisecond))
}

func (d *Daemon) dispatch(ctx context.Context, cmd Command) Response {
	switch cmd.Action {
	case "ping":
		return OKResponse("pong")

	case "reload":
		if err := d.reloadConfig(); err != nil {
			return ErrResponseFrom(err)
		}
		return OKResponse("config reloaded")

	case "servers":
		return OKResponse(map[string]any{"servers": d.serverList()})

	case "tools":
		cfg, resp := d.requireServer(cmd.Server)
		if resp != nil {
			return *resp
		}
		tools, err := d.getTools(ctx, cmd.Server, cfg)
		if err != nil {
			return ErrResponseFrom(err)
		}
		return OKResponse(map[string]any{"server": cmd.Server, "tools": mcp.SummarizeTools(tools)})

	case "call":
		cfg, resp := d.requireServer(cmd.Server)
		if resp != nil {
			return *resp
		}
		if cmd.Tool == "" {
			return ErrResponse(errors.CodeInvalidArgs, "tool name required")
		}
		result, err := d.callTool(ctx, cmd.Server, cfg, cmd.Tool, cmd.Arguments)
		if err != nil {
			return ErrResponseFrom(err)
		}
		return OKResponse(map[string]any{
			"server": cmd.Server,
			"tool":   cmd.Tool,
			"result": result,
		})

	case "status":
		return OKResponse(d.status())

	case "shutdown":
		d.running.Store(false)
		return OKResponse("shutting down")

	default:
		return ErrResponse(errors.CodeUnknownAction, fmt.Sprintf("unknown action: %s", cmd.Action))
	}
}

// requireServer validates that the command names a configured server.
func (d *Daemon) requireServer(name string) (*config.ServerConfig, *Response) {
	if name == "" {
		resp := ErrResponse(errors.CodeInvalidArgs, "server name required")
		return nil, &resp
	}
	cfg, ok := d.config.Server(name)
	if !ok {
		resp := ErrResponse(errors.CodeNotFound, fmt.Sprintf("server %q not configured", name))
		return nil, &resp
	}
	return &cfg, nil
}

func (d *Daemon) serverList() []ServerInfo {
	servers := make([]ServerInfo, 0, len(d.config.Servers))
	for name, cfg := range d.config.Servers {
		servers = append(servers, ServerInfo{
			Name:    name,
			URL:     cfg.URL,
			HasAuth: cfg.OAuth != nil || d.store.HasToken(name),
		})
	}
	return servers
}

// getClient returns the warm protocol client for a server, creating it on
// first use.
func (d *Daemon) getClient(name string) *mcp.Client {
	if client, ok := d.clients[name]; ok {
		return client
	}
	client := mcp.NewClient()
	d.clients[name] = client
	return client
}

// ensureSession establishes or reuses the in-memory session for a server.
func (d *Daemon) ensureSession(ctx context.Context, name string, cfg *config.ServerConfig, token string) string {
	session, err := d.getClient(name).InitializeSession(ctx, name, cfg, d.sessions, token)
	if err != nil {
		logger.Debugf("session bootstrap for %q failed: %v", name, err)
		return ""
	}
	return session
}

func (d *Daemon) getTools(ctx context.Context, name string, cfg *config.ServerConfig) ([]mcpspec.Tool, error) {
	if cached, ok := d.toolsCache[name]; ok && time.Now().Before(cached.expires) {
		return cached.tools, nil
	}

	token := d.tokens.AccessToken(ctx, name, cfg)
	session := d.ensureSession(ctx, name, cfg, token)
	tools, err := d.getClient(name).ListTools(ctx, cfg, session, token)
	if err != nil {
		return nil, err
	}

	d.toolsCache[name] = &cachedTools{tools: tools, expires: time.Now().Add(ToolsCacheTTL)}
	return tools, nil
}

func (d *Daemon) callTool(
	ctx context.Context,
	name string,
	cfg *config.ServerConfig,
	tool string,
	arguments map[string]any,
) (json.RawMessage, error) {
	token := d.tokens.AccessToken(ctx, name, cfg)
	session := d.ensureSession(ctx, name, cfg, token)
	return d.getClient(name).CallTool(ctx, cfg, tool, arguments, session, token)
}

// reloadConfig replaces the in-memory configuration and drops warm state for
// servers that were removed or whose URL changed.
func (d *Daemon) reloadConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to reload config")
	}

	old := d.config
	d.config = cfg
	for name := range d.clients {
		newCfg, exists := cfg.Servers[name]
		if !exists || newCfg.URL != old.Servers[name].URL {
			delete(d.clients, name)
			delete(d.toolsCache, name)
			d.tokens.Invalidate(name)
		}
	}
	logger.Infof("configuration reloaded (%d servers)", len(cfg.Servers))
	return nil
}

func (d *Daemon) status() map[string]any {
	localCount := 0
	for _, cfg := range d.config.Servers {
		if cfg.Local != nil {
			localCount++
		}
	}
	return map[string]any{
		"daemon":    "running",
		"pid":       os.Getpid(),
		"uptime":    time.Since(d.started).Round(time.Second).String(),
		"servers":   len(d.config.Servers),
		"local":     localCount,
		"processes": d.localManager.Status(),
	}
}
