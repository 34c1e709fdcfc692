package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/mcpx/pkg/errors"
	"github.com/stacklok/mcpx/pkg/state"
)

func newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear stored client state",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sessions",
		Short: "Forget all stored MCP sessions",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			clearWith(func(s *state.Store) error { return s.ClearSessions() }, "sessions")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "tokens",
		Short: "Forget all stored OAuth tokens",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			clearWith(func(s *state.Store) error { return s.ClearTokens() }, "tokens")
		},
	})

	return cmd
}

func clearWith(clear func(*state.Store) error, what string) {
	store, err := state.New()
	if err != nil {
		fail(errors.Wrap(err, errors.CodeInternal, err.Error()))
	}
	if err := clear(store); err != nil {
		fail(errors.Wrap(err, errors.CodeInternal, err.Error()))
	}
	emit(map[string]any{"cleared": what})
}
