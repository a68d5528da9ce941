// ABOUTME: Tests for the JWT-backed identity provider
// ABOUTME: Covers claim extraction, missing files, and malformed tokens
package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte(signed+"\n"), 0600))
	return path
}

func TestTokenFileCurrent(t *testing.T) {
	path := writeToken(t, jwt.MapClaims{
		"sub":   "user-123",
		"email": "user@example.com",
	})

	provider := NewTokenFile(path)
	user, ok := provider.Current()
	require.True(t, ok)
	assert.Equal(t, "user-123", user.ID)
	assert.Equal(t, "user@example.com", user.Email)
}

func TestTokenFileNoEmail(t *testing.T) {
	path := writeToken(t, jwt.MapClaims{"sub": "user-456"})

	user, ok := NewTokenFile(path).Current()
	require.True(t, ok)
	assert.Equal(t, "user-456", user.ID)
	assert.Empty(t, user.Email)
}

func TestTokenFileMissing(t *testing.T) {
	provider := NewTokenFile(filepath.Join(t.TempDir(), "nope"))
	_, ok := provider.Current()
	assert.False(t, ok, "missing token reads as anonymous")
}

func TestTokenFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("not-a-jwt"), 0600))

	_, ok := NewTokenFile(path).Current()
	assert.False(t, ok, "garbage token reads as anonymous")
}

func TestTokenFileNoSubject(t *testing.T) {
	path := writeToken(t, jwt.MapClaims{"email": "nobody@example.com"})

	_, ok := NewTokenFile(path).Current()
	assert.False(t, ok, "token without a subject reads as anonymous")
}

func TestTokenFileToken(t *testing.T) {
	path := writeToken(t, jwt.MapClaims{"sub": "user-789"})

	raw := NewTokenFile(path).Token()
	assert.NotEmpty(t, raw)
	assert.NotContains(t, raw, "\n", "bearer token should be trimmed")
}

func TestStaticProvider(t *testing.T) {
	provider := NewStatic(User{ID: "me"})

	user, ok := provider.Current()
	require.True(t, ok)
	assert.Equal(t, "me", user.ID)

	var gotUser User
	var gotOK bool
	cancel := provider.OnChange(func(u User, ok bool) {
		gotUser, gotOK = u, ok
	})
	defer cancel()

	provider.Clear()
	assert.False(t, gotOK)
	assert.Empty(t, gotUser.ID)

	_, ok = provider.Current()
	assert.False(t, ok, "cleared provider is anonymous")
}
