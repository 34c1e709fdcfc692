package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// StartDetached re-executes the current binary with the given arguments in a
// new session, with stdout and stderr redirected to the daemon log file. The
// child owns its own lifecycle; the returned PID is informational.
func StartDetached(args ...string) (int, error) {
	exePath, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve executable path: %w", err)
	}

	logPath, err := LogFilePath()
	if err != nil {
		return 0, err
	}
	logFile, err := os.OpenFile(filepath.Clean(logPath), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return 0, fmt.Errorf("failed to open daemon log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(exePath, args...) // #nosec G204 - re-executing self
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = getSysProcAttr()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start detached process: %w", err)
	}
	pid := cmd.Process.Pid

	// Detach fully; the child is not waited on by this process.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("failed to release detached process: %w", err)
	}
	return pid, nil
}
