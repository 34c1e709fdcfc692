package app

import (
	"encoding/json"
	"fmt"

	"github.com/stacklok/mcpx/pkg/config"
	"github.com/stacklok/mcpx/pkg/errors"
	"github.com/stacklok/mcpx/pkg/state"
)

// loadEnvironment loads the server configuration and the durable state
// store; both are needed by every direct-mode command.
func loadEnvironment() (*config.Config, *state.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("failed to load config: %v", err))
	}
	store, err := state.New()
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("failed to open state store: %v", err))
	}
	return cfg, store, nil
}

// requireServer resolves a server name against the loaded configuration.
func requireServer(cfg *config.Config, name string) (*config.ServerConfig, error) {
	serverCfg, ok := cfg.Server(name)
	if !ok {
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("server %q not configured", name))
	}
	return &serverCfg, nil
}

// parseArguments decodes the optional JSON arguments operand of a tool call.
func parseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidJSON,
			fmt.Sprintf("arguments are not a JSON object: %v", err))
	}
	return args, nil
}
