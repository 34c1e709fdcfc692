// Package app provides the mcpx command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/mcpx/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "mcpx",
	DisableAutoGenTag: true,
	Short:             "mcpx is a fast client for remote MCP tool servers",
	Long: `mcpx speaks the MCP (Model Context Protocol) JSON-RPC-over-HTTP protocol to
remote tool servers. It manages per-server sessions and OAuth credentials, and
can run a background daemon that keeps connections warm so repeated tool calls
skip the TLS, session, and auth setup cost.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// Re-read the log level after flag parsing so --debug takes effect.
		logger.Initialize()
	},
}

// NewRootCmd creates the root command for the mcpx CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newClearCmd())
	rootCmd.AddCommand(newDaemonCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
