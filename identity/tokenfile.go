// ABOUTME: Identity provider backed by a stored JWT bearer token
// ABOUTME: Extracts subject and email claims; verification stays server-side
package identity

import (
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenFile reads identity from a JWT stored on disk by the external login
// flow. Claims are parsed without signature verification: the remote store
// verifies the token on every request, this side only needs the author
// identity for envelope attribution.
type TokenFile struct {
	Path string
}

// NewTokenFile returns a provider reading the token at path.
func NewTokenFile(path string) *TokenFile {
	return &TokenFile{Path: path}
}

// Current parses the stored token and returns the subject identity. A
// missing or unparseable token reads as anonymous.
func (t *TokenFile) Current() (User, bool) {
	raw, err := os.ReadFile(t.Path)
	if err != nil {
		return User{}, false
	}

	tokenString := strings.TrimSpace(string(raw))
	if tokenString == "" {
		return User{}, false
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return User{}, false
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return User{}, false
	}

	user := User{ID: sub}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	return user, true
}

// Token returns the raw bearer token for the remote client, if present.
func (t *TokenFile) Token() string {
	raw, err := os.ReadFile(t.Path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
