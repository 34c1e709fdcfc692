// Package local supervises locally-spawned MCP server processes: it starts
// configured commands, captures their output to per-server log files, waits
// for them to accept connections, and restarts them when they crash.
package local

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"

	"github.com/stacklok/mcpx/pkg/config"
	"github.com/stacklok/mcpx/pkg/logger"
	"github.com/stacklok/mcpx/pkg/networking"
)

const (
	readyTimeout    = 30 * time.Second
	readyPollDelay  = 500 * time.Millisecond
	restartDelay    = time.Second
	gracefulTimeout = 5 * time.Second
)

// Process is one supervised local MCP server.
type Process struct {
	Name      string
	Config    config.LocalConfig
	ServerURL string
	Cmd       *exec.Cmd
	logFile   *os.File
	Started   time.Time
	Restarts  int

	mu       sync.Mutex
	stopping bool
	done     chan struct{}
}

// ProcessInfo is the status snapshot reported for one process.
type ProcessInfo struct {
	Name     string `json:"name"`
	PID      int    `json:"pid,omitempty"`
	Running  bool   `json:"running"`
	URL      string `json:"url"`
	Restarts int    `json:"restarts"`
	Uptime   string `json:"uptime,omitempty"`
	LogFile  string `json:"log_file"`
}

// Manager owns all supervised processes.
type Manager struct {
	processes map[string]*Process
	mu        sync.RWMutex
}

// NewManager returns an empty process manager.
func NewManager() *Manager {
	return &Manager{processes: make(map[string]*Process)}
}

// StartServer spawns the local process configured for the server and
// monitors it for crashes.
func (m *Manager) StartServer(name string, serverConfig *config.ServerConfig) error {
	if serverConfig.Local == nil {
		return fmt.Errorf("server %q has no local config", name)
	}

	m.mu.Lock()
	if _, exists := m.processes[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("server %q already running", name)
	}
	m.mu.Unlock()

	proc := &Process{
		Name:      name,
		Config:    *serverConfig.Local,
		ServerURL: serverConfig.URL,
		done:      make(chan struct{}),
	}
	if err := proc.Start(); err != nil {
		return err
	}

	m.mu.Lock()
	m.processes[name] = proc
	m.mu.Unlock()

	go m.monitor(name, serverConfig)
	return nil
}

// StopServer stops one supervised process.
func (m *Manager) StopServer(name string) error {
	m.mu.Lock()
	proc, exists := m.processes[name]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("server %q not running", name)
	}
	delete(m.processes, name)
	m.mu.Unlock()

	return proc.Stop()
}

// StopAll stops every supervised process.
func (m *Manager) StopAll() {
	m.mu.Lock()
	procs := make([]*Process, 0, len(m.processes))
	for _, proc := range m.processes {
		procs = append(procs, proc)
	}
	m.processes = make(map[string]*Process)
	m.mu.Unlock()

	for _, proc := range procs {
		if err := proc.Stop(); err != nil {
			logger.Warnf("failed to stop %s: %v", proc.Name, err)
		}
	}
}

// Status returns snapshots for all supervised processes.
func (m *Manager) Status() []ProcessInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]ProcessInfo, 0, len(m.processes))
	for _, proc := range m.processes {
		infos = append(infos, proc.Info())
	}
	return infos
}

// IsRunning reports whether a supervised process for the server is alive.
func (m *Manager) IsRunning(name string) bool {
	m.mu.RLock()
	proc, exists := m.processes[name]
	m.mu.RUnlock()
	return exists && proc.IsRunning()
}

// monitor restarts the process when it exits without an intentional stop.
func (m *Manager) monitor(name string, serverConfig *config.ServerConfig) {
	for {
		m.mu.RLock()
		proc, exists := m.processes[name]
		m.mu.RUnlock()
		if !exists {
			return
		}

		<-proc.done

		proc.mu.Lock()
		stopping := proc.stopping
		proc.mu.Unlock()
		if stopping {
			return
		}

		logger.Warnf("server %q exited unexpectedly, restarting", name)
		time.Sleep(restartDelay)

		m.mu.Lock()
		if _, stillTracked := m.processes[name]; !stillTracked {
			m.mu.Unlock()
			return
		}

		next := &Process{
			Name:      name,
			Config:    *serverConfig.Local,
			ServerURL: serverConfig.URL,
			Restarts:  proc.Restarts + 1,
			done:      make(chan struct{}),
		}
		if err := next.Start(); err != nil {
			logger.Errorf("failed to restart %q: %v", name, err)
			delete(m.processes, name)
			m.mu.Unlock()
			return
		}
		m.processes[name] = next
		m.mu.Unlock()
	}
}

// LogPath returns the log file path for a named server.
func LogPath(serverName string) (string, error) {
	return xdg.DataFile(filepath.Join(config.AppName, "logs", serverName+".log"))
}

// Start launches the process and waits for it to accept connections.
func (p *Process) Start() error {
	logPath, err := LogPath(p.Name)
	if err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Clean(logPath), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	p.logFile = logFile
	fmt.Fprintf(logFile, "\n=== Starting %s at %s ===\n", p.Name, time.Now().Format(time.RFC3339))

	cmdPath, err := exec.LookPath(p.Config.Command)
	if err != nil {
		logFile.Close()
		return fmt.Errorf("command not found: %s", p.Config.Command)
	}

	p.Cmd = exec.Command(cmdPath, p.Config.Args...) // #nosec G204 - operator-configured command
	p.Cmd.Env = append(os.Environ(), p.Config.Env...)

	stdout, err := p.Cmd.StdoutPipe()
	if err != nil {
		logFile.Close()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := p.Cmd.StderrPipe()
	if err != nil {
		logFile.Close()
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := p.Cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start process: %w", err)
	}
	p.Started = time.Now()

	go p.captureOutput(stdout)
	go p.captureOutput(stderr)
	go func() {
		_ = p.Cmd.Wait()
		p.mu.Lock()
		p.logFile.Close()
		p.logFile = nil
		p.mu.Unlock()
		close(p.done)
	}()

	if err := p.waitForReady(); err != nil {
		_ = p.Stop()
		return err
	}

	logger.Infof("started %q (pid %d)", p.Name, p.Cmd.Process.Pid)
	return nil
}

// captureOutput copies process output into the log file line by line.
func (p *Process) captureOutput(pipe io.Reader) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		p.mu.Lock()
		if p.logFile != nil {
			fmt.Fprintf(p.logFile, "[%s] %s\n", time.Now().Format("15:04:05"), line)
		}
		p.mu.Unlock()
	}
}

// waitForReady polls the server's TCP address until it accepts a connection
// or the process dies.
func (p *Process) waitForReady() error {
	parsed, err := url.Parse(p.ServerURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("cannot derive address from URL %q", p.ServerURL)
	}
	if !networking.IsLocalhost(parsed.Host) {
		logger.Warnf("local server %q advertises non-local URL %s", p.Name, p.ServerURL)
	}

	addr := parsed.Host
	if parsed.Port() == "" {
		if parsed.Scheme == networking.HttpsScheme {
			addr += ":443"
		} else {
			addr += ":80"
		}
	}

	deadline := time.Now().Add(readyTimeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-p.done:
			return fmt.Errorf("process exited before becoming ready")
		default:
		}
		time.Sleep(readyPollDelay)
	}
	return fmt.Errorf("timed out waiting for %q to accept connections", p.Name)
}

// Stop terminates the process, trying an interrupt before killing.
func (p *Process) Stop() error {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()

	if p.Cmd == nil || p.Cmd.Process == nil {
		return nil
	}

	_ = p.Cmd.Process.Signal(os.Interrupt)
	select {
	case <-p.done:
		return nil
	case <-time.After(gracefulTimeout):
	}

	_ = p.Cmd.Process.Kill()
	<-p.done
	logger.Infof("stopped %q", p.Name)
	return nil
}

// IsRunning reports whether the process is still alive.
func (p *Process) IsRunning() bool {
	if p.Cmd == nil || p.Cmd.Process == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Info returns a status snapshot.
func (p *Process) Info() ProcessInfo {
	logPath, _ := LogPath(p.Name)
	info := ProcessInfo{
		Name:     p.Name,
		URL:      p.ServerURL,
		Restarts: p.Restarts,
		LogFile:  logPath,
	}
	if p.IsRunning() {
		info.Running = true
		info.PID = p.Cmd.Process.Pid
		info.Uptime = time.Since(p.Started).Round(time.Second).String()
	}
	return info
}
