// Package process manages the daemon's runtime files (socket, PID file, log)
// and process-level operations: liveness checks and spawning a detached
// daemon.
package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	gops "github.com/shirou/gopsutil/v4/process"

	"github.com/stacklok/mcpx/pkg/config"
)

// SocketPath returns the daemon's unix socket path under the user runtime
// directory, falling back to the data directory when no runtime dir exists.
func SocketPath() (string, error) {
	return runtimeFile("daemon.sock")
}

// PIDFilePath returns the daemon PID file path.
func PIDFilePath() (string, error) {
	return runtimeFile("daemon.pid")
}

// LogFilePath returns the daemon log file path.
func LogFilePath() (string, error) {
	path, err := xdg.DataFile(filepath.Join(config.AppName, "daemon.log"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve log file path: %w", err)
	}
	return path, nil
}

func runtimeFile(name string) (string, error) {
	if xdg.RuntimeDir != "" {
		path := filepath.Join(xdg.RuntimeDir, config.AppName, name)
		if err := os.MkdirAll(filepath.Dir(path), 0700); err == nil {
			return path, nil
		}
	}
	path, err := xdg.DataFile(filepath.Join(config.AppName, name))
	if err != nil {
		return "", fmt.Errorf("failed to resolve runtime path for %s: %w", name, err)
	}
	return path, nil
}

// WriteCurrentPIDFile records the current process ID in the PID file.
func WriteCurrentPIDFile() error {
	path, err := PIDFilePath()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600)
}

// ReadPIDFile returns the PID recorded in the PID file.
func ReadPIDFile() (int, error) {
	path, err := PIDFilePath()
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// RemovePIDFile deletes the PID file. Missing files are not an error.
func RemovePIDFile() error {
	path, err := PIDFilePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Alive reports whether a process with the given PID is currently running.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	running, err := gops.PidExists(int32(pid)) // #nosec G115 - PIDs fit in int32
	return err == nil && running
}
