package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/mcpx/pkg/config"
	"github.com/stacklok/mcpx/pkg/errors"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter configuration file",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		path, created, err := config.Init()
		if err != nil {
			fail(errors.Wrap(err, errors.CodeInternal, err.Error()))
		}
		emit(map[string]any{"path": path, "created": created})
	},
}
