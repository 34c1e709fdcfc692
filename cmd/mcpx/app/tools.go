package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/mcpx/pkg/auth"
	"github.com/stacklok/mcpx/pkg/mcp"
)

var toolsCmd = &cobra.Command{
	Use:   "tools <server>",
	Short: "List the tools a server exposes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
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

		tools, err := client.ListTools(ctx, serverCfg, session, token)
		if err != nil {
			fail(err)
		}
		emit(map[string]any{"server": name, "tools": mcp.SummarizeTools(tools)})
	},
}
