package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/mcpx/pkg/auth"
	"github.com/stacklok/mcpx/pkg/mcp"
)

var callCmd = &cobra.Command{
	Use:   "call <server> <tool> [json-arguments]",
	Short: "Invoke a tool on a server directly",
	Long: `Invoke a tool on a configured MCP server without going through the daemon.
Each invocation performs the full sequence: load credentials, establish or
reuse a session, issue the call, and print the result.`,
	Args: cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		name, tool := args[0], args[1]
		rawArgs := ""
		if len(args) == 3 {
			rawArgs = args[2]
		}
		arguments, err := parseArguments(rawArgs)
		if err != nil {
			fail(err)
		}

		cfg, store, err := loadEnvironment()
		if err != nil {
			fail(err)
		}
		serverCfg, err := requireServer(cfg, name)
		if err != nil {
			fail(err)
		}

		ctx := cmd.Context()
		client := mcp.NewClient()
		token := auth.AccessToken(ctx, name, serverCfg, store)
		session, _ := client.InitializeSession(ctx, name, serverCfg, store, token)

		result, err := client.CallTool(ctx, serverCfg, tool, arguments, session, token)
		if err != nil {
			fail(err)
		}
		emit(map[string]any{"server": name, "tool": tool, "result": result})
	},
}
