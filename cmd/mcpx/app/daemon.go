package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/mcpx/pkg/daemon"
	"github.com/stacklok/mcpx/pkg/errors"
	"github.com/stacklok/mcpx/pkg/logger"
	"github.com/stacklok/mcpx/pkg/process"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background daemon",
		Long: `The daemon keeps one warm HTTP connection, session, and credential per
configured server behind a unix socket, so repeated tool calls skip the
per-call setup cost. Use 'query' to route calls through it.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			pid, err := daemon.StartBackground()
			if err != nil {
				fail(err)
			}
			emit(map[string]any{"daemon": "running", "pid": pid})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if err := daemon.Stop(); err != nil {
				fail(err)
			}
			emit(map[string]any{"daemon": "stopped"})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report daemon liveness and local process status",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if !daemon.IsRunning() {
				emit(map[string]any{"daemon": "not running"})
			}
			resp, err := daemon.Send(daemon.Command{Action: "status"})
			if err != nil {
				fail(err)
			}
			emitResponse(resp)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "tools <server>",
		Short: "List a server's tools through the running daemon",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			resp, err := daemon.Send(daemon.Command{Action: "tools", Server: args[0]})
			if err != nil {
				fail(err)
			}
			emitResponse(resp)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Reload the server configuration in the running daemon",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			resp, err := daemon.Send(daemon.Command{Action: "reload"})
			if err != nil {
				fail(err)
			}
			emitResponse(resp)
		},
	})

	runCmd := &cobra.Command{
		Use:    "run",
		Short:  "Run the daemon loop in the foreground",
		Hidden: true,
		Args:   cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			// The detached child logs to the daemon log file.
			if logPath, err := process.LogFilePath(); err == nil {
				if err := logger.InitializeFile(logPath); err != nil {
					logger.Warnf("failed to redirect logs to %s: %v", logPath, err)
				}
			}

			d, err := daemon.New()
			if err != nil {
				fail(errors.Wrap(err, errors.CodeDaemonError, err.Error()))
			}
			if err := d.Run(cmd.Context()); err != nil {
				fail(errors.Wrap(err, errors.CodeDaemonError, err.Error()))
			}
		},
	}
	cmd.AddCommand(runCmd)

	return cmd
}
