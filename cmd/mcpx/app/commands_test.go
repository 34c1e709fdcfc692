package app

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findSubcommand(t *testing.T, parent *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, sub := range parent.Commands() {
		if sub.Name() == name {
			return sub
		}
	}
	return nil
}

func TestRootCommandWiring(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	for _, name := range []string{
		"servers", "tools", "call", "query", "auth", "init", "clear", "daemon", "version",
	} {
		assert.NotNil(t, findSubcommand(t, root, name), "missing subcommand %s", name)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("debug"))
}

func TestDaemonSubcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	daemonCmd := findSubcommand(t, root, "daemon")
	require.NotNil(t, daemonCmd)

	for _, name := range []string{"start", "stop", "status", "tools", "reload", "run"} {
		assert.NotNil(t, findSubcommand(t, daemonCmd, name), "missing daemon subcommand %s", name)
	}

	// Warm-path tool listing takes exactly the server name.
	toolsCmd := findSubcommand(t, daemonCmd, "tools")
	require.NotNil(t, toolsCmd)
	assert.Error(t, toolsCmd.Args(toolsCmd, nil))
	assert.NoError(t, toolsCmd.Args(toolsCmd, []string{"foo"}))
}
