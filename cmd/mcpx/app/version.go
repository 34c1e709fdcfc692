package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/mcpx/pkg/versions"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			emit(versions.GetVersionInfo())
		},
	}
}
