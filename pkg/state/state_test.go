package state

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewAt(t.TempDir())

	_, ok := store.Session("foo")
	assert.False(t, ok)

	require.NoError(t, store.SetSession("foo", "sess-123"))
	id, ok := store.Session("foo")
	require.True(t, ok)
	assert.Equal(t, "sess-123", id)

	// Second store sees the persisted value.
	again := NewAt(store.Dir())
	id, ok = again.Session("foo")
	require.True(t, ok)
	assert.Equal(t, "sess-123", id)
}

func TestClearSessions(t *testing.T) {
	t.Parallel()

	store := NewAt(t.TempDir())
	require.NoError(t, store.SetSession("foo", "sess-123"))
	require.NoError(t, store.ClearSessions())

	_, ok := store.Session("foo")
	assert.False(t, ok)

	// Clearing twice is fine.
	require.NoError(t, store.ClearSessions())
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewAt(t.TempDir())
	token := TokenData{
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
	require.NoError(t, store.SetToken("foo", token))

	got, ok := store.Token("foo")
	require.True(t, ok)
	assert.Equal(t, token, got)
	assert.True(t, store.HasToken("foo"))
	assert.False(t, store.HasToken("bar"))
}

func TestTokenFilePermissions(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	store := NewAt(t.TempDir())
	require.NoError(t, store.SetToken("foo", TokenData{AccessToken: "at"}))

	info, err := os.Stat(filepath.Join(store.Dir(), "tokens.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestTokenExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	buffer := 60 * time.Second

	// Within the buffer counts as expired.
	near := TokenData{AccessToken: "at", ExpiresAt: now.Add(30 * time.Second).Unix()}
	assert.True(t, near.Expired(now, buffer))

	// Outside the buffer is still fresh.
	fresh := TokenData{AccessToken: "at", ExpiresAt: now.Add(120 * time.Second).Unix()}
	assert.False(t, fresh.Expired(now, buffer))

	// No expiry means never expired.
	forever := TokenData{AccessToken: "at"}
	assert.False(t, forever.Expired(now, buffer))
}

func TestRegistrationRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewAt(t.TempDir())

	_, ok := store.Registration("foo")
	assert.False(t, ok)

	reg := ClientRegistration{ClientID: "cid", ClientSecret: "secret"}
	require.NoError(t, store.SetRegistration("foo", reg))

	got, ok := store.Registration("foo")
	require.True(t, ok)
	assert.Equal(t, reg, got)
}

func TestCorruptStateFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions.json"), []byte("{nope"), 0600))

	store := NewAt(dir)
	_, ok := store.Session("foo")
	assert.False(t, ok)
}
