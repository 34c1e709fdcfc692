// Package config loads the mcpx server configuration.
//
// The configuration lives in servers.json under the XDG config directory and
// maps server names to their endpoint, static headers, and optional OAuth and
// local-process settings. The file is parsed as HuJSON so operators may use
// comments and trailing commas.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/tailscale/hujson"
)

// AppName is the directory name used for all mcpx files under the XDG base
// directories.
const AppName = "mcpx"

// ServerConfig represents a configured MCP server
type ServerConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	OAuth   *OAuthConfig      `json:"oauth,omitempty"`
	Scope   string            `json:"scope,omitempty"`
	Local   *LocalConfig      `json:"local,omitempty"`
}

// OAuthConfig holds OAuth configuration for a server. All fields are optional;
// missing endpoints are filled in by discovery at authorization time.
type OAuthConfig struct {
	AuthURL         string   `json:"auth_url,omitempty"`
	TokenURL        string   `json:"token_url,omitempty"`
	RegistrationURL string   `json:"registration_url,omitempty"`
	ClientID        string   `json:"client_id,omitempty"`
	ClientSecret    string   `json:"client_secret,omitempty"`
	Scopes          []string `json:"scopes,omitempty"`
	Scope           string   `json:"scope,omitempty"`
	Resource        string   `json:"resource,omitempty"`
}

// LocalConfig describes a local MCP server process that the daemon manages.
// The process is expected to serve the configured URL once started.
type LocalConfig struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"`
}

// Config is the root configuration structure
type Config struct {
	Servers map[string]ServerConfig `json:"servers"`
}

// Server looks up a server by name.
func (c *Config) Server(name string) (ServerConfig, bool) {
	s, ok := c.Servers[name]
	return s, ok
}

// FilePath returns the path to servers.json, creating parent directories as
// needed.
func FilePath() (string, error) {
	return xdg.ConfigFile(filepath.Join(AppName, "servers.json"))
}

// Load reads the server configuration from the default location. A missing
// file yields an empty configuration, not an error.
func Load() (*Config, error) {
	path, err := FilePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom reads the server configuration from the given path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Servers: make(map[string]ServerConfig)}, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Standardize HuJSON (comments, trailing commas) into plain JSON first.
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Servers == nil {
		cfg.Servers = make(map[string]ServerConfig)
	}
	return &cfg, nil
}

// defaultConfig is written by Init as a starting point for operators.
const defaultConfig = `{
  // mcpx server configuration.
  //
  // Each entry maps a server name to its MCP endpoint. Optional fields:
  //   headers: static headers sent with every request
  //   oauth:   OAuth endpoints and client credentials (discovered when absent)
  //   local:   command to spawn a local MCP server managed by the daemon
  "servers": {
    "example": {
      "url": "https://mcp.example.com/mcp",
      "headers": {
        "Authorization": "Bearer YOUR_TOKEN"
      }
    }
  }
}
`

// Init creates the config file with a commented example if it does not exist.
// It returns the path and whether a new file was created.
func Init() (string, bool, error) {
	path, err := FilePath()
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve config path: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0600); err != nil {
		return "", false, fmt.Errorf("failed to write config: %w", err)
	}
	return path, true, nil
}
