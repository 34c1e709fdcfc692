// Package state provides durable storage for mcpx runtime state: MCP session
// IDs, OAuth tokens, and dynamically-registered client credentials.
//
// Each kind of state is a single JSON document mapping server name to value,
// updated by whole-file read-modify-write. Concurrent writers from separate
// processes are not coordinated; the last writer wins. Token and registration
// files are access-restricted to the owning user.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/stacklok/mcpx/pkg/config"
)

const (
	sessionsFile      = "sessions.json"
	tokensFile        = "tokens.json"
	registrationsFile = "registrations.json"

	statePerms  = os.FileMode(0644)
	secretPerms = os.FileMode(0600)
)

// TokenData holds OAuth token information for one server
type TokenData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// Expired reports whether the token is within buffer of its expiry. Tokens
// without an expiry never expire.
func (t TokenData) Expired(now time.Time, buffer time.Duration) bool {
	if t.ExpiresAt == 0 {
		return false
	}
	return now.Unix() > t.ExpiresAt-int64(buffer.Seconds())
}

// ClientRegistration holds dynamic client registration data for one server
type ClientRegistration struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Store reads and writes the durable state files in one directory.
type Store struct {
	dir string
}

// New returns a store rooted at the default XDG data directory.
func New() (*Store, error) {
	// DataFile creates parent directories; the file name only anchors the path.
	anchor, err := xdg.DataFile(filepath.Join(config.AppName, sessionsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state directory: %w", err)
	}
	return &Store{dir: filepath.Dir(anchor)}, nil
}

// NewAt returns a store rooted at dir. Intended for tests.
func NewAt(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory holding the state files.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// loadMap reads a whole-file JSON map, yielding an empty map for a missing file.
func loadMap[V any](path string) (map[string]V, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]V), nil
		}
		return nil, err
	}
	m := make(map[string]V)
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt state file %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

func saveMap[V any](path string, m map[string]V, perms os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, perms)
}

// Session returns the persisted session ID for a server, if any.
func (s *Store) Session(server string) (string, bool) {
	m, err := loadMap[string](s.path(sessionsFile))
	if err != nil {
		return "", false
	}
	id, ok := m[server]
	return id, ok && id != ""
}

// SetSession persists a session ID for a server.
func (s *Store) SetSession(server, sessionID string) error {
	m, err := loadMap[string](s.path(sessionsFile))
	if err != nil {
		m = make(map[string]string)
	}
	m[server] = sessionID
	return saveMap(s.path(sessionsFile), m, statePerms)
}

// ClearSessions removes the sessions file.
func (s *Store) ClearSessions() error {
	return removeIfExists(s.path(sessionsFile))
}

// Token returns the stored OAuth token for a server, if any.
func (s *Store) Token(server string) (TokenData, bool) {
	m, err := loadMap[TokenData](s.path(tokensFile))
	if err != nil {
		return TokenData{}, false
	}
	t, ok := m[server]
	return t, ok
}

// SetToken persists an OAuth token for a server.
func (s *Store) SetToken(server string, token TokenData) error {
	m, err := loadMap[TokenData](s.path(tokensFile))
	if err != nil {
		m = make(map[string]TokenData)
	}
	m[server] = token
	return saveMap(s.path(tokensFile), m, secretPerms)
}

// ClearTokens removes the tokens file.
func (s *Store) ClearTokens() error {
	return removeIfExists(s.path(tokensFile))
}

// HasToken reports whether a token is stored for the server.
func (s *Store) HasToken(server string) bool {
	_, ok := s.Token(server)
	return ok
}

// Registration returns the stored client registration for a server, if any.
func (s *Store) Registration(server string) (ClientRegistration, bool) {
	m, err := loadMap[ClientRegistration](s.path(registrationsFile))
	if err != nil {
		return ClientRegistration{}, false
	}
	r, ok := m[server]
	return r, ok && r.ClientID != ""
}

// SetRegistration persists a client registration for a server.
func (s *Store) SetRegistration(server string, reg ClientRegistration) error {
	m, err := loadMap[ClientRegistration](s.path(registrationsFile))
	if err != nil {
		m = make(map[string]ClientRegistration)
	}
	m[server] = reg
	return saveMap(s.path(registrationsFile), m, secretPerms)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
