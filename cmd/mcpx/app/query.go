package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/mcpx/pkg/daemon"
)

var queryCmd = &cobra.Command{
	Use:   "query <server> <tool> [json-arguments]",
	Short: "Invoke a tool through the running daemon",
	Long: `Invoke a tool on a configured MCP server using the daemon's warm connection,
session, and credentials. The daemon must already be running.`,
	Args: cobra.RangeArgs(2, 3),
	Run: func(_ *cobra.Command, args []string) {
		name, tool := args[0], args[1]
		rawArgs := ""
		if len(args) == 3 {
			rawArgs = args[2]
		}
		arguments, err := parseArguments(rawArgs)
		if err != nil {
			fail(err)
		}

		resp, err := daemon.Send(daemon.Command{
			Action:    "call",
			Server:    name,
			Tool:      tool,
			Arguments: arguments,
		})
		if err != nil {
			fail(err)
		}
		emitResponse(resp)
	},
}
