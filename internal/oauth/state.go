package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// NewState returns a random CSRF state token for the authorization redirect.
func NewState() (string, error) {
	return randomURLSafe(32)
}

// NewCodeVerifier returns a random PKCE code verifier.
func NewCodeVerifier() (string, error) {
	return randomURLSafe(32)
}

// Challenge derives the S256 code challenge from a verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomURLSafe(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
