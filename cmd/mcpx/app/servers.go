package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/mcpx/pkg/daemon"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List configured MCP servers",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		cfg, store, err := loadEnvironment()
		if err != nil {
			fail(err)
		}

		servers := make([]daemon.ServerInfo, 0, len(cfg.Servers))
		for name, serverCfg := range cfg.Servers {
			servers = append(servers, daemon.ServerInfo{
				Name:    name,
				URL:     serverCfg.URL,
				HasAuth: serverCfg.OAuth != nil || store.HasToken(name),
			})
		}
		emit(map[string]any{"servers": servers})
	},
}
