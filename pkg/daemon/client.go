package daemon

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/stacklok/mcpx/pkg/errors"
	"github.com/stacklok/mcpx/pkg/process"
)

const (
	pingTimeout  = 2 * time.Second
	startTimeout = 5 * time.Second
	startPoll    = 250 * time.Millisecond
)

// Send delivers one command to the daemon and returns its response. A
// missing socket yields a DAEMON_NOT_RUNNING response rather than an error
// so callers can surface it directly.
func Send(cmd Command) (Response, error) {
	return sendWithTimeout(cmd, connTimeout)
}

func sendWithTimeout(cmd Command, timeout time.Duration) (Response, error) {
	socketPath, err := process.SocketPath()
	if err != nil {
		return Response{}, err
	}
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return ErrResponse(errors.CodeDaemonNotRunning,
			"daemon not running; start it with 'mcpx daemon start'"), nil
	}

	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return ErrResponse(errors.CodeDaemonNotRunning,
			fmt.Sprintf("cannot connect to daemon: %v", err)), nil
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, err
	}

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return Response{}, errors.Wrap(err, errors.CodeDaemonError, "failed to send command")
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, errors.Wrap(err, errors.CodeDaemonError, "failed to read daemon response")
	}
	return resp, nil
}

// IsRunning reports whether a daemon is reachable: the socket file must
// exist and a ping round-trip must succeed. A stale socket file alone does
// not count.
func IsRunning() bool {
	socketPath, err := process.SocketPath()
	if err != nil {
		return false
	}
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return false
	}
	resp, err := sendWithTimeout(Command{Action: "ping"}, pingTimeout)
	return err == nil && resp.OK
}

// StartBackground spawns a detached daemon process and waits for it to
// answer pings. Starting an already-running daemon is not an error.
func StartBackground() (int, error) {
	if IsRunning() {
		pid, _ := process.ReadPIDFile()
		return pid, nil
	}

	pid, err := process.StartDetached("daemon", "run")
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeDaemonError, "failed to spawn daemon")
	}

	deadline := time.Now().Add(startTimeout)
	for time.Now().Before(deadline) {
		if IsRunning() {
			return pid, nil
		}
		time.Sleep(startPoll)
	}
	return 0, errors.New(errors.CodeDaemonError, "daemon did not become ready")
}

// Stop asks a running daemon to shut down.
func Stop() error {
	if !IsRunning() {
		return errors.New(errors.CodeDaemonNotRunning, "daemon not running")
	}
	resp, err := Send(Command{Action: "shutdown"})
	if err != nil {
		return err
	}
	if !resp.OK && resp.Error != nil {
		return errors.New(resp.Error.Code, resp.Error.Message)
	}
	return nil
}

// Status returns liveness plus the recorded PID when available.
func Status() (bool, int) {
	if !IsRunning() {
		return false, 0
	}
	pid, err := process.ReadPIDFile()
	if err != nil || !process.Alive(pid) {
		return true, 0
	}
	return true, pid
}
