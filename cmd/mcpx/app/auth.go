package app

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/stacklok/mcpx/pkg/auth/oauth"
)

func newAuthCmd() *cobra.Command {
	var skipBrowser bool

	cmd := &cobra.Command{
		Use:   "auth <server>",
		Short: "Authorize against a server's OAuth provider",
		Long: `Run the OAuth authorization flow for a configured server: discover the
authorization endpoints when the config does not supply them, register a
client dynamically when needed, then complete the browser-based PKCE flow.
The resulting token is stored and reused by later calls.`,
		Args: cobra.ExactArgs(1),
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

			result, err := oauth.Authorize(cmd.Context(), name, serverCfg, store, skipBrowser)
			if err != nil {
				fail(err)
			}

			data := map[string]any{
				"server":     name,
				"expires_at": result.ExpiresAt.Format(time.RFC3339),
			}
			if result.RefreshToken != "" {
				data["refresh_token"] = true
			}
			if len(result.Claims) > 0 {
				data["claims"] = result.Claims
			}
			emit(data)
		},
	}

	cmd.Flags().BoolVar(&skipBrowser, "no-browser", false,
		"Print the authorization URL instead of opening a browser")
	return cmd
}
